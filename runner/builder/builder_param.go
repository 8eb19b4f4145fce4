package builder

import (
	"fmt"
	"reflect"

	"gonum.org/v1/gonum/mat"
)

// Direction indicates parameter data flow
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
	DirectionInOut
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	case DirectionInOut:
		return "inout"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// ParamBuilder provides a fluent interface for building kernel parameters
type ParamBuilder struct {
	Spec ParamSpec
}

// ParamSpec holds the complete specification for a kernel parameter
type ParamSpec struct {
	Name        string
	Direction   Direction
	HostBinding interface{}

	DataType DataType
	Size     int64 // values, not bytes

	// Data movement at allocation (CopyTo) and on demand (CopyBack)
	DoCopyTo   bool
	DoCopyBack bool

	Alignment AlignmentType

	IsMatrix   bool
	IsStatic   bool
	MatrixRows int
	MatrixCols int
}

// Input creates a parameter specification for a const input
func Input(deviceName string) *ParamBuilder {
	return &ParamBuilder{Spec: ParamSpec{Name: deviceName, Direction: DirectionInput}}
}

// Output creates a parameter specification for a non-const output
func Output(deviceName string) *ParamBuilder {
	return &ParamBuilder{Spec: ParamSpec{Name: deviceName, Direction: DirectionOutput}}
}

// InOut creates a parameter specification for a non-const input/output
func InOut(deviceName string) *ParamBuilder {
	return &ParamBuilder{Spec: ParamSpec{Name: deviceName, Direction: DirectionInOut}}
}

// Bind associates a host variable with this parameter
func (p *ParamBuilder) Bind(hostVar interface{}) *ParamBuilder {
	p.Spec.HostBinding = hostVar
	p.inferFromBinding()
	return p
}

// Copy sets bidirectional copy
func (p *ParamBuilder) Copy() *ParamBuilder {
	p.Spec.DoCopyTo = true
	p.Spec.DoCopyBack = true
	return p
}

// CopyTo uploads the host binding when the array is allocated
func (p *ParamBuilder) CopyTo() *ParamBuilder {
	p.Spec.DoCopyTo = true
	return p
}

// CopyBack marks the array as readable back into its host binding
func (p *ParamBuilder) CopyBack() *ParamBuilder {
	p.Spec.DoCopyBack = true
	return p
}

// ToMatrix marks this parameter as a matrix
func (p *ParamBuilder) ToMatrix() *ParamBuilder {
	p.Spec.IsMatrix = true
	if m, ok := p.Spec.HostBinding.(mat.Matrix); ok {
		p.Spec.MatrixRows, p.Spec.MatrixCols = m.Dims()
	}
	return p
}

// Static marks a matrix for static embedding (const array in kernel)
func (p *ParamBuilder) Static() *ParamBuilder {
	p.Spec.IsStatic = true
	return p
}

// Align sets memory alignment requirements
func (p *ParamBuilder) Align(alignment AlignmentType) *ParamBuilder {
	p.Spec.Alignment = alignment
	return p
}

// inferFromBinding extracts type and size information from the host binding
func (p *ParamBuilder) inferFromBinding() {
	if p.Spec.HostBinding == nil {
		return
	}
	if m, ok := p.Spec.HostBinding.(mat.Matrix); ok {
		rows, cols := m.Dims()
		p.Spec.Size = int64(rows * cols)
		p.Spec.DataType = Float64
		p.Spec.MatrixRows = rows
		p.Spec.MatrixCols = cols
		return
	}

	v := reflect.ValueOf(p.Spec.HostBinding)
	if v.Kind() != reflect.Slice {
		return
	}
	p.Spec.Size = int64(v.Len())
	switch v.Type().Elem().Kind() {
	case reflect.Float32:
		p.Spec.DataType = Float32
	case reflect.Float64:
		p.Spec.DataType = Float64
	case reflect.Int32:
		p.Spec.DataType = INT32
	case reflect.Int64:
		p.Spec.DataType = INT64
	}
}

// Validate checks if the parameter specification is complete and valid
func (p *ParamSpec) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("parameter name cannot be empty")
	}
	if p.Size == 0 {
		return fmt.Errorf("array %s needs size", p.Name)
	}
	if p.DataType == 0 {
		return fmt.Errorf("array %s needs type", p.Name)
	}
	if p.IsStatic {
		if !p.IsMatrix {
			return fmt.Errorf("static parameter %s must be a matrix", p.Name)
		}
		if _, ok := p.HostBinding.(mat.Matrix); !ok {
			return fmt.Errorf("static matrix %s needs a mat.Matrix binding", p.Name)
		}
		if p.Direction != DirectionInput {
			return fmt.Errorf("static matrix %s must be an input", p.Name)
		}
	}
	if p.DoCopyBack && p.Direction == DirectionInput {
		return fmt.Errorf("input %s cannot be copied back", p.Name)
	}
	return nil
}

// IsConst returns whether this parameter should be const in the kernel signature
func (p *ParamSpec) IsConst() bool {
	return p.Direction == DirectionInput
}

// NeedsCopyTo returns whether this parameter needs host→device copy
func (p *ParamSpec) NeedsCopyTo() bool {
	return p.DoCopyTo && p.HostBinding != nil
}

// NeedsCopyBack returns whether this parameter needs device→host copy
func (p *ParamSpec) NeedsCopyBack() bool {
	return p.DoCopyBack && p.HostBinding != nil
}
