package runner

import (
	"fmt"
	"unsafe"

	"github.com/notargets/gocca"
)

// executeCopyActions is the single path for all host↔device transfers
func (kr *Runner) executeCopyActions(actions []ParameterUsage) error {
	for _, param := range actions {
		if param.HasAction(CopyTo) {
			if err := kr.copyPartitions(param.Binding, true); err != nil {
				return fmt.Errorf("failed to copy %s to device: %w", param.Binding.Name, err)
			}
		}
		if param.HasAction(CopyBack) {
			if err := kr.copyPartitions(param.Binding, false); err != nil {
				return fmt.Errorf("failed to copy %s from device: %w", param.Binding.Name, err)
			}
		}
	}
	return nil
}

// CopyToDevice uploads the host binding of a named array
func (kr *Runner) CopyToDevice(name string) error {
	return kr.copyNamed(name, CopyTo)
}

// CopyFromDevice downloads a named array into its host binding
func (kr *Runner) CopyFromDevice(name string) error {
	return kr.copyNamed(name, CopyBack)
}

func (kr *Runner) copyNamed(name string, action ActionFlags) error {
	if !kr.IsAllocated {
		return fmt.Errorf("device memory not allocated - call AllocateDevice first")
	}
	binding := kr.GetBinding(name)
	if binding == nil {
		return fmt.Errorf("no binding named %s", name)
	}
	if binding.IsStatic {
		return fmt.Errorf("static matrix %s has no device memory", name)
	}
	return kr.executeCopyActions([]ParameterUsage{{Binding: binding, Actions: action}})
}

// copyPartitions moves a flat element-major host slice to or from the
// padded partition layout on the device, one contiguous block per
// partition.
func (kr *Runner) copyPartitions(binding *DeviceBinding, toDevice bool) error {
	if binding.HostBinding == nil {
		return nil
	}
	mem := kr.GetMemory(binding.Name)
	if mem == nil {
		return fmt.Errorf("no device memory allocated for %s", binding.Name)
	}
	offsets := kr.hostOffsets[binding.Name]
	vpe := kr.arrayMetadata[binding.Name].valuesPerElement
	size := binding.DataType.Size()

	var first int64
	for p, k := range kr.K {
		n := int64(k) * vpe
		if n == 0 {
			continue
		}
		ptr, err := hostPointer(binding.HostBinding, first, n)
		if err != nil {
			return err
		}
		transfer(mem, toDevice, ptr, n*size, offsets[p]*size)
		first += n
	}
	return nil
}

func transfer(mem *gocca.OCCAMemory, toDevice bool, ptr unsafe.Pointer, bytes, offsetBytes int64) {
	if toDevice {
		mem.CopyFromWithOffset(ptr, bytes, offsetBytes)
	} else {
		mem.CopyToWithOffset(ptr, bytes, offsetBytes)
	}
}

// hostPointer returns the address of value first of a host slice after
// checking that n values are available from there.
func hostPointer(host interface{}, first, n int64) (unsafe.Pointer, error) {
	var length int64
	var ptr unsafe.Pointer
	switch data := host.(type) {
	case []float64:
		length = int64(len(data))
		if first+n <= length {
			ptr = unsafe.Pointer(&data[first])
		}
	case []float32:
		length = int64(len(data))
		if first+n <= length {
			ptr = unsafe.Pointer(&data[first])
		}
	case []int64:
		length = int64(len(data))
		if first+n <= length {
			ptr = unsafe.Pointer(&data[first])
		}
	case []int32:
		length = int64(len(data))
		if first+n <= length {
			ptr = unsafe.Pointer(&data[first])
		}
	default:
		return nil, fmt.Errorf("unsupported host type %T", host)
	}
	if ptr == nil {
		return nil, fmt.Errorf("host slice has %d values, need %d", length, first+n)
	}
	return ptr, nil
}
