package runner

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/SEMKernel/runner/builder"
)

// ActionFlags represents the memory operations to perform for a parameter
type ActionFlags int

const (
	NoAction ActionFlags = 0
	// CopyTo copies host to device before kernel execution
	CopyTo ActionFlags = 1 << iota
	// CopyBack copies device to host after kernel execution
	CopyBack
	Copy = CopyTo | CopyBack
)

// DeviceBinding captures the relationship between a host slice or matrix
// and its device allocation.
type DeviceBinding struct {
	Name        string
	HostBinding interface{} // []float32, []float64, []int32, []int64 or mat.Matrix

	DataType    builder.DataType
	Size        int64 // values over all elements
	ElementSize int

	IsMatrix   bool
	IsStatic   bool
	MatrixRows int
	MatrixCols int

	Alignment builder.AlignmentType
	IsOutput  bool

	ParamSpec *builder.ParamSpec
}

// ParameterUsage represents how a binding is used in a specific kernel or copy operation
type ParameterUsage struct {
	Binding *DeviceBinding
	Actions ActionFlags
}

// HasAction checks if a specific action is set
func (pu *ParameterUsage) HasAction(action ActionFlags) bool {
	return pu.Actions&action != 0
}

// DefineBindings establishes host↔device data relationships. It must be
// called before AllocateDevice; names must be unique.
func (kr *Runner) DefineBindings(params ...*builder.ParamBuilder) error {
	if kr.IsAllocated {
		return fmt.Errorf("bindings cannot be defined after AllocateDevice has been called")
	}
	for i, p := range params {
		spec := p.Spec
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("parameter %d: %w", i, err)
		}
		if kr.HasBinding(spec.Name) {
			return fmt.Errorf("parameter %d: %s already bound", i, spec.Name)
		}
		binding, err := kr.createBinding(&spec)
		if err != nil {
			return fmt.Errorf("failed to create binding for %s: %w", spec.Name, err)
		}
		kr.Bindings[spec.Name] = binding
		kr.bindingOrder = append(kr.bindingOrder, spec.Name)
	}
	return nil
}

func (kr *Runner) createBinding(spec *builder.ParamSpec) (*DeviceBinding, error) {
	binding := &DeviceBinding{
		Name:        spec.Name,
		HostBinding: spec.HostBinding,
		DataType:    spec.DataType,
		Size:        spec.Size,
		ElementSize: int(spec.DataType.Size()),
		IsMatrix:    spec.IsMatrix,
		IsStatic:    spec.IsStatic,
		MatrixRows:  spec.MatrixRows,
		MatrixCols:  spec.MatrixCols,
		Alignment:   spec.Alignment,
		IsOutput:    !spec.IsConst(),
		ParamSpec:   spec,
	}
	if binding.IsStatic {
		return binding, nil
	}

	switch {
	case binding.DataType.IsFloat() && binding.DataType != kr.FloatType:
		return nil, fmt.Errorf("host type %d does not match device real_t %d",
			binding.DataType, kr.FloatType)
	case !binding.DataType.IsFloat() && binding.DataType != kr.IntType:
		return nil, fmt.Errorf("host type %d does not match device int_t %d",
			binding.DataType, kr.IntType)
	}
	if total := int64(kr.GetTotalElements()); binding.Size%total != 0 {
		return nil, fmt.Errorf("%d values do not divide evenly over %d elements",
			binding.Size, total)
	}
	return binding, nil
}

// GetBinding returns a binding by name
func (kr *Runner) GetBinding(name string) *DeviceBinding {
	return kr.Bindings[name]
}

// HasBinding checks if a binding exists
func (kr *Runner) HasBinding(name string) bool {
	_, exists := kr.Bindings[name]
	return exists
}

// AllocateDevice allocates device memory for all defined bindings in
// definition order, registers static matrices with the builder and uploads
// every binding marked CopyTo.
func (kr *Runner) AllocateDevice() error {
	if kr.IsAllocated {
		return fmt.Errorf("device memory already allocated")
	}
	if len(kr.Bindings) == 0 {
		return fmt.Errorf("no bindings defined - call DefineBindings first")
	}

	var uploads []ParameterUsage
	for _, name := range kr.bindingOrder {
		binding := kr.Bindings[name]
		if binding.IsStatic {
			kr.Builder.AddStaticMatrix(name, binding.HostBinding.(mat.Matrix))
			continue
		}
		spec := builder.ArraySpec{
			Name:      name,
			Size:      binding.Size * int64(binding.ElementSize),
			DataType:  binding.DataType,
			Alignment: binding.Alignment,
			IsOutput:  binding.IsOutput,
		}
		if err := kr.allocateSingleArray(spec); err != nil {
			return fmt.Errorf("failed to allocate array %s: %w", name, err)
		}
		if binding.ParamSpec.NeedsCopyTo() {
			uploads = append(uploads, ParameterUsage{Binding: binding, Actions: CopyTo})
		}
	}
	kr.IsAllocated = true

	if err := kr.executeCopyActions(uploads); err != nil {
		return fmt.Errorf("initial upload failed: %w", err)
	}
	return nil
}
