package utils

import (
	"fmt"

	"github.com/notargets/gocca"
)

// CreateTestDevice creates a Device for testing, preferring parallel backends
func CreateTestDevice() *gocca.OCCADevice {
	backends := []string{
		`{"mode": "OpenMP"}`,
		`{"mode": "CUDA", "device_id": 0}`,
		`{"mode": "Serial"}`,
	}

	for _, props := range backends {
		device, err := gocca.NewDevice(props)
		if err == nil {
			fmt.Printf("Created %s Device\n", device.Mode())
			return device
		}
	}

	panic("Failed to create any Device")
}

// SharedMemoryLimit is the per group @shared budget, in bytes, assumed for
// a backend. Host backends emulate @shared on the stack, so the figure
// there is a conservative stack bound rather than a hardware limit.
func SharedMemoryLimit(mode string) int {
	switch mode {
	case "CUDA":
		return 48 << 10
	case "HIP":
		return 64 << 10
	case "OpenCL", "Metal", "dpcpp":
		return 32 << 10
	default:
		return 256 << 10
	}
}

// MaxRegistersPerLane is the 32-bit register budget of one lane before a
// backend spills to local memory. Zero means no fixed budget, as on host
// backends.
func MaxRegistersPerLane(mode string) int {
	switch mode {
	case "CUDA", "HIP":
		return 255
	case "OpenCL", "Metal", "dpcpp":
		return 128
	default:
		return 0
	}
}

// MaxGroupLanes is the largest @inner extent a backend launches per group.
func MaxGroupLanes(mode string) int {
	return 1024
}
