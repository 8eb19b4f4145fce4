package runner

import (
	"fmt"
	"unsafe"

	"github.com/notargets/gocca"

	"github.com/notargets/SEMKernel/runner/builder"
)

// MaxKpart bounds the elements of a single partition, above which the
// decomposition is almost certainly unbalanced.
const MaxKpart = 1 << 20

// ArrayMetadata stores information about allocated arrays
type ArrayMetadata struct {
	spec             builder.ArraySpec
	valuesPerElement int64
}

// Runner owns the device memory of one partitioned problem and the kernels
// compiled against it. Host data is element-major and flat; partition p
// holds elements [sum K[:p], sum K[:p+1]).
type Runner struct {
	*builder.Builder
	Device        *gocca.OCCADevice
	Kernels       map[string]*gocca.OCCAKernel
	PooledMemory  map[string]*gocca.OCCAMemory
	Bindings      map[string]*DeviceBinding
	KernelConfigs map[string]*KernelConfig
	IsAllocated   bool

	bindingOrder  []string
	arrayMetadata map[string]ArrayMetadata
	hostOffsets   map[string][]int64
}

// NewRunner creates a new Runner instance and uploads K
func NewRunner(device *gocca.OCCADevice, cfg builder.Config) *Runner {
	if device == nil {
		panic("device cannot be nil")
	}
	bld := builder.NewBuilder(cfg)
	if bld.KpartMax > MaxKpart {
		panic(fmt.Sprintf("KpartMax exceeds %d, usually caused by unbalanced workloads.\n"+
			"Found KpartMax=%d with K=%v. Reduce partition sizes.", MaxKpart, bld.KpartMax, bld.K))
	}

	kr := &Runner{
		Builder:       bld,
		Device:        device,
		Kernels:       make(map[string]*gocca.OCCAKernel),
		PooledMemory:  make(map[string]*gocca.OCCAMemory),
		Bindings:      make(map[string]*DeviceBinding),
		KernelConfigs: make(map[string]*KernelConfig),
		arrayMetadata: make(map[string]ArrayMetadata),
		hostOffsets:   make(map[string][]int64),
	}
	kr.PooledMemory["K"] = kr.mallocInts(toInt64(bld.K))
	return kr
}

func toInt64(v []int) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}

// mallocInts uploads v as an int_t array
func (kr *Runner) mallocInts(v []int64) *gocca.OCCAMemory {
	if kr.IntType == builder.INT32 {
		v32 := make([]int32, len(v))
		for i, x := range v {
			v32[i] = int32(x)
		}
		return kr.Device.Malloc(int64(len(v32)*4), unsafe.Pointer(&v32[0]), nil)
	}
	return kr.Device.Malloc(int64(len(v)*8), unsafe.Pointer(&v[0]), nil)
}

// GetMemory returns the device memory for a named array
func (kr *Runner) GetMemory(arrayName string) *gocca.OCCAMemory {
	return kr.PooledMemory[arrayName+"_global"]
}

// GetOffsets returns the offset memory for a named array
func (kr *Runner) GetOffsets(arrayName string) *gocca.OCCAMemory {
	return kr.PooledMemory[arrayName+"_offsets"]
}

// GetHostOffsets returns the partition offsets, in values, of a named
// array. The last entry is the padded length.
func (kr *Runner) GetHostOffsets(arrayName string) ([]int64, bool) {
	off, ok := kr.hostOffsets[arrayName]
	return off, ok
}

// BuildKernel compiles and registers a kernel with the program
func (kr *Runner) BuildKernel(kernelSource, kernelName string) (*gocca.OCCAKernel, error) {
	kr.GeneratePreamble()
	fullSource := kr.KernelPreamble + "\n" + kernelSource

	var kernel *gocca.OCCAKernel
	var err error
	if kr.Device.Mode() == "OpenMP" {
		// OCCA does not pass -O3 to the OpenMP backend by default
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, props)
	} else {
		kernel, err = kr.Device.BuildKernelFromString(fullSource, kernelName, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", kernelName)
	}
	if old, ok := kr.Kernels[kernelName]; ok {
		old.Free()
	}
	kr.Kernels[kernelName] = kernel
	return kernel, nil
}

// Free releases all resources
func (kr *Runner) Free() {
	for name, kernel := range kr.Kernels {
		kernel.Free()
		delete(kr.Kernels, name)
	}
	for name, mem := range kr.PooledMemory {
		mem.Free()
		delete(kr.PooledMemory, name)
	}
	kr.IsAllocated = false
}

func (kr *Runner) allocateSingleArray(spec builder.ArraySpec) error {
	total := int64(kr.GetTotalElements())
	if spec.Size%(total*spec.DataType.Size()) != 0 {
		return fmt.Errorf("array %s: %d bytes do not divide evenly over %d elements",
			spec.Name, spec.Size, total)
	}
	offsets, totalSize := kr.CalculateAlignedOffsetsAndSize(spec)

	kr.PooledMemory[spec.Name+"_global"] = kr.Device.Malloc(totalSize, nil, nil)
	kr.PooledMemory[spec.Name+"_offsets"] = kr.mallocInts(offsets)
	kr.hostOffsets[spec.Name] = offsets

	if err := kr.validateOffsets(spec.Name); err != nil {
		return fmt.Errorf("offset corruption detected immediately after allocation: %w", err)
	}

	kr.AllocatedArrays = append(kr.AllocatedArrays, spec.Name)
	kr.arrayMetadata[spec.Name] = ArrayMetadata{
		spec:             spec,
		valuesPerElement: spec.Size / spec.DataType.Size() / total,
	}
	return nil
}

// validateOffsets reads the offsets of an array back from the device and
// compares them with the host copy.
func (kr *Runner) validateOffsets(name string) error {
	expected, exists := kr.hostOffsets[name]
	if !exists {
		return fmt.Errorf("no host offsets found for %s", name)
	}
	offsetsMem := kr.GetOffsets(name)
	if offsetsMem == nil {
		return fmt.Errorf("no device offsets found for %s", name)
	}

	actual := make([]int64, len(expected))
	if kr.IntType == builder.INT32 {
		offsets32 := make([]int32, len(expected))
		offsetsMem.CopyTo(unsafe.Pointer(&offsets32[0]), int64(len(offsets32)*4))
		for i, v := range offsets32 {
			actual[i] = int64(v)
		}
	} else {
		offsetsMem.CopyTo(unsafe.Pointer(&actual[0]), int64(len(actual)*8))
	}

	for i := range expected {
		if expected[i] != actual[i] {
			return fmt.Errorf("offset[%d] of %s corrupted: expected %d, got %d",
				i, name, expected[i], actual[i])
		}
	}
	return nil
}
