package axhelm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedOrder is returned when LX is outside the specialized set
	// and the runtime sized fallback is not allowed.
	ErrUnsupportedOrder = errors.New("axhelm: unsupported element order")
	// ErrSharedMemory is returned when one group's shared buffers exceed the
	// target's shared memory.
	ErrSharedMemory = errors.New("axhelm: shared memory budget exceeded")
	// ErrLaneLimit is returned when LX*LX lanes exceed the group size limit.
	ErrLaneLimit = errors.New("axhelm: group lane limit exceeded")
	// ErrRegisterLimit is returned when one lane's pencils and temporaries
	// exceed the per lane register budget.
	ErrRegisterLimit = errors.New("axhelm: register budget exceeded")
	// ErrShapeMismatch is returned when field or factor arrays disagree in length.
	ErrShapeMismatch = errors.New("axhelm: array shape mismatch")
	// ErrMissingFactors is returned when the selected strategy lacks its coefficients.
	ErrMissingFactors = errors.New("axhelm: missing geometric factors")
	// ErrStrategy is returned for an unknown strategy.
	ErrStrategy = errors.New("axhelm: unknown strategy")
)

// BarrierViolation reports a shared memory access that was not ordered by a
// barrier, or that the current phase does not permit. It is only produced in
// instrumented mode.
type BarrierViolation struct {
	Element int
	Layer   int
	Phase   Phase
	Buffer  string
	Slot    int
	Lane    int
	Other   int // conflicting lane, -1 if none
	Reason  string
}

func (v *BarrierViolation) Error() string {
	msg := fmt.Sprintf("axhelm: %s on %s[%d] by lane %d in phase %s (element %d, layer %d)",
		v.Reason, v.Buffer, v.Slot, v.Lane, v.Phase, v.Element, v.Layer)
	if v.Other >= 0 {
		msg += fmt.Sprintf(", conflicting lane %d", v.Other)
	}
	return msg
}
