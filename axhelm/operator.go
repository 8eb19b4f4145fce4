package axhelm

import "fmt"

// Operator evaluates the local stress Helmholtz action
//
//	out = A_stress(in) + h2*B*in
//
// by running the stress kernel over all elements and then the mass kernel
// over all nodes. Derivative and geometric arrays are referenced, not
// copied, and must not change for the operator's lifetime.
type Operator[T Real] struct {
	cfg    Config
	stress *StressKernel[T]
	mass   *MassKernel[T]
	react  ReactionFactors[T]
}

// NewOperator validates every input array against the configuration.
func NewOperator[T Real](cfg Config, d DerivativeMatrices[T], geo Geometry[T],
	react ReactionFactors[T]) (*Operator[T], error) {
	stress, err := NewStressKernel(cfg, d, geo)
	if err != nil {
		return nil, err
	}
	if react.H2 == nil || react.B == nil {
		return nil, fmt.Errorf("%w: reaction factors h2 and B are required", ErrMissingFactors)
	}
	if n := stress.NumNodes(); len(react.H2) != n || len(react.B) != n {
		return nil, fmt.Errorf("%w: reaction factors have lengths (%d, %d), want %d",
			ErrShapeMismatch, len(react.H2), len(react.B), n)
	}
	return &Operator[T]{
		cfg:    stress.cfg,
		stress: stress,
		mass:   NewMassKernel[T](cfg),
		react:  react,
	}, nil
}

// Config returns the configuration with defaults applied.
func (op *Operator[T]) Config() Config { return op.cfg }

// NumElements is the element count of the geometry.
func (op *Operator[T]) NumElements() int { return op.stress.NumElements() }

// NumNodes is the required length of each field component.
func (op *Operator[T]) NumNodes() int { return op.stress.NumNodes() }

// Apply overwrites out with the full operator action on in.
func (op *Operator[T]) Apply(out, in Field[T]) error {
	if err := op.ApplyStress(out, in); err != nil {
		return err
	}
	return op.ApplyMass(out, in)
}

// ApplyStress overwrites out with the stress action only.
func (op *Operator[T]) ApplyStress(out, in Field[T]) error {
	if err := op.stress.Apply(out, in); err != nil {
		return fmt.Errorf("stress kernel: %w", err)
	}
	return nil
}

// ApplyMass adds h2*B*in to out.
func (op *Operator[T]) ApplyMass(out, in Field[T]) error {
	if err := op.mass.Apply(out, in, op.react); err != nil {
		return fmt.Errorf("mass kernel: %w", err)
	}
	return nil
}
