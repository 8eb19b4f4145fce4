package partitions

import (
	"fmt"
)

// Partition is a contiguous run of elements that executes as one @outer
// iteration in a device kernel.
type Partition struct {
	ID int

	// Element membership
	FirstElement int // Global index of the first element
	NumElements  int // Actual number of active elements
	MaxElements  int // Padded size for OCCA @outer loop uniformity
}

// Elements returns the global element indices of the partition.
func (p Partition) Elements() []int {
	elems := make([]int, p.NumElements)
	for i := range elems {
		elems[i] = p.FirstElement + i
	}
	return elems
}

// PartitionLayout manages the complete mesh decomposition
type PartitionLayout struct {
	// All partitions in the mesh
	Partitions []Partition

	// Global sizing information
	KpartMax      int // max(NumElements) across all partitions for OCCA
	TotalElements int // Sum of all actual elements across partitions
	NumPartitions int // Total number of partitions

	// Element to partition mapping
	EToP []int // Length TotalElements: element k belongs to partition EToP[k]
}

// K returns the per partition element counts, the K array every device
// kernel takes as its first argument.
func (pl *PartitionLayout) K() []int {
	k := make([]int, pl.NumPartitions)
	for i, p := range pl.Partitions {
		k[i] = p.NumElements
	}
	return k
}

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// ValidateLayout checks partition consistency: counts, KpartMax and that
// partitions tile the elements contiguously in order.
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("have %d partitions, NumPartitions is %d",
			len(pl.Partitions), pl.NumPartitions)
	}

	actualMax, next := 0, 0
	for _, p := range pl.Partitions {
		if p.NumElements > actualMax {
			actualMax = p.NumElements
		}
		if p.MaxElements != pl.KpartMax {
			return fmt.Errorf("partition %d: MaxElements %d != KpartMax %d",
				p.ID, p.MaxElements, pl.KpartMax)
		}
		if p.FirstElement != next {
			return fmt.Errorf("partition %d starts at element %d, want %d",
				p.ID, p.FirstElement, next)
		}
		for e := p.FirstElement; e < p.FirstElement+p.NumElements; e++ {
			if pl.GetPartition(e) != p.ID {
				return fmt.Errorf("element %d maps to partition %d, want %d",
					e, pl.GetPartition(e), p.ID)
			}
		}
		next += p.NumElements
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	if next != pl.TotalElements {
		return fmt.Errorf("partitions hold %d elements, TotalElements is %d",
			next, pl.TotalElements)
	}
	return nil
}

// PartitionStats summarizes load balance.
type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: pl.NumPartitions,
		MinElements:   pl.TotalElements,
	}
	if pl.NumPartitions == 0 {
		return stats
	}
	stats.AvgElements = float64(pl.TotalElements) / float64(pl.NumPartitions)

	for _, p := range pl.Partitions {
		if p.NumElements < stats.MinElements {
			stats.MinElements = p.NumElements
		}
		if p.NumElements > stats.MaxElements {
			stats.MaxElements = p.NumElements
		}
	}
	if stats.AvgElements > 0 {
		stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements
	}
	return stats
}
