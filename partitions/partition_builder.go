package partitions

import (
	"fmt"
	"math"
)

// PartitionBuilder splits an element-major mesh into contiguous partitions.
// Contiguity keeps every partition's nodal data a single slice of the host
// arrays, so device copies stay one transfer per partition.
type PartitionBuilder struct {
	NumElements int

	// Partitioning parameters
	TargetPartitionSize int // Desired elements per partition
	MaxPartitions       int // Upper bound on partitions, 0 means unbounded
	Strategy            PartitionStrategy
}

// PartitionStrategy defines how elements are grouped
type PartitionStrategy int

const (
	// BlockPartition fills partitions of ceil(K/P) elements, the last one
	// taking the remainder.
	BlockPartition PartitionStrategy = iota
	// BalancedBlock spreads the remainder so sizes differ by at most one.
	BalancedBlock
)

// BuildPartitions creates a partition layout
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.NumElements < 1 {
		return nil, fmt.Errorf("cannot partition %d elements", pb.NumElements)
	}
	if pb.TargetPartitionSize < 1 {
		return nil, fmt.Errorf("target partition size must be positive, got %d",
			pb.TargetPartitionSize)
	}

	// Determine number of partitions needed
	numPartitions := pb.calculateNumPartitions()

	// Size and place the partitions
	partitions := pb.createPartitions(numPartitions)

	// Calculate KpartMax for OCCA
	kpartMax := calculateKpartMax(partitions)

	// Set MaxElements for all partitions
	for i := range partitions {
		partitions[i].MaxElements = kpartMax
	}

	eToP := make([]int, pb.NumElements)
	for _, p := range partitions {
		for e := p.FirstElement; e < p.FirstElement+p.NumElements; e++ {
			eToP[e] = p.ID
		}
	}

	// Create the layout
	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: pb.NumElements,
		NumPartitions: len(partitions),
		EToP:          eToP,
	}

	// Validate the layout
	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	return layout, nil
}

// calculateNumPartitions determines optimal partition count
func (pb *PartitionBuilder) calculateNumPartitions() int {
	// Basic calculation based on target size
	numPartitions := int(math.Ceil(float64(pb.NumElements) / float64(pb.TargetPartitionSize)))

	if pb.MaxPartitions > 0 && numPartitions > pb.MaxPartitions {
		numPartitions = pb.MaxPartitions
	}
	// Ensure at least one partition
	if numPartitions < 1 {
		numPartitions = 1
	}

	return numPartitions
}

// partitionSizes assigns element counts to partitions
func (pb *PartitionBuilder) partitionSizes(numPartitions int) []int {
	sizes := make([]int, numPartitions)
	switch pb.Strategy {
	case BalancedBlock:
		base, extra := pb.NumElements/numPartitions, pb.NumElements%numPartitions
		for i := range sizes {
			sizes[i] = base
			if i < extra {
				sizes[i]++
			}
		}
	default:
		per := int(math.Ceil(float64(pb.NumElements) / float64(numPartitions)))
		remaining := pb.NumElements
		for i := range sizes {
			sizes[i] = min(per, remaining)
			remaining -= sizes[i]
		}
	}
	return sizes
}

// createPartitions builds contiguous partitions, dropping empty tails
func (pb *PartitionBuilder) createPartitions(numPartitions int) []Partition {
	sizes := pb.partitionSizes(numPartitions)
	partitions := make([]Partition, 0, numPartitions)
	first := 0
	for _, n := range sizes {
		if n == 0 {
			continue
		}
		partitions = append(partitions, Partition{
			ID:           len(partitions),
			FirstElement: first,
			NumElements:  n,
		})
		first += n
	}
	return partitions
}

// calculateKpartMax finds maximum elements across all partitions
func calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	return kpartMax
}
