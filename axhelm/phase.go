package axhelm

import "fmt"

// Phase is one barrier delimited stage of a stress group. Every transition
// between phases is a full group barrier.
type Phase uint8

const (
	// PhaseLoad stores the derivative matrices into shared memory and fills
	// the lane pencils.
	PhaseLoad Phase = iota
	// PhaseSliceStore publishes layer k of each pencil and forms the t
	// derivative from registers.
	PhaseSliceStore
	// PhaseDeriveRS forms r and s derivatives from the shared slice and
	// publishes the r/s stress contributions.
	PhaseDeriveRS
	// PhaseTransformScatter applies the transposed r/s contraction and
	// scatters the t contribution over the register accumulators.
	PhaseTransformScatter
	numPhases
)

var phaseNames = [...]string{"Load", "SliceStore", "DeriveRS", "TransformScatter"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// next lists the legal successors of each phase. TransformScatter leads to
// the next layer's SliceStore, or to Load of the next element.
var next = [numPhases][]Phase{
	PhaseLoad:             {PhaseSliceStore},
	PhaseSliceStore:       {PhaseDeriveRS},
	PhaseDeriveRS:         {PhaseTransformScatter},
	PhaseTransformScatter: {PhaseSliceStore, PhaseLoad},
}

func legalTransition(from, to Phase) bool {
	for _, p := range next[from] {
		if p == to {
			return true
		}
	}
	return false
}

type bufferID uint8

const (
	bufDx bufferID = iota
	bufDy
	bufDz
	bufU
	bufV
	bufW
	bufUR
	bufUS
	bufVR
	bufVS
	bufWR
	bufWS
	numBuffers
)

var bufferNames = [numBuffers]string{
	"shdx", "shdy", "shdz",
	"shu", "shv", "shw",
	"shur", "shus", "shvr", "shvs", "shwr", "shws",
}

type bufferMask uint16

func maskOf(ids ...bufferID) bufferMask {
	var m bufferMask
	for _, id := range ids {
		m |= 1 << id
	}
	return m
}

func (m bufferMask) has(id bufferID) bool { return m&(1<<id) != 0 }

var (
	derivBuffers = maskOf(bufDx, bufDy, bufDz)
	sliceBuffers = maskOf(bufU, bufV, bufW)
	rsBuffers    = maskOf(bufUR, bufUS, bufVR, bufVS, bufWR, bufWS)
)

// phaseAccess is the shared memory each phase may touch.
var phaseAccess = [numPhases]struct{ read, write bufferMask }{
	PhaseLoad:             {write: derivBuffers},
	PhaseSliceStore:       {read: maskOf(bufDz), write: sliceBuffers},
	PhaseDeriveRS:         {read: maskOf(bufDx, bufDy) | sliceBuffers, write: rsBuffers},
	PhaseTransformScatter: {read: derivBuffers | rsBuffers},
}

// sharedChecker tracks, per shared slot, the barrier epoch and lane of the
// last write and last read. A read of a slot another lane wrote in the same
// epoch, or a write of a slot another lane read in the same epoch, is a
// missing barrier.
type sharedChecker struct {
	epoch      int32
	phase      Phase
	element    int
	layer      int
	writeEpoch [numBuffers][]int32
	writer     [numBuffers][]int32
	readEpoch  [numBuffers][]int32
	reader     [numBuffers][]int32
	violations []*BarrierViolation
}

const maxViolations = 16

func newSharedChecker(lx int) *sharedChecker {
	c := &sharedChecker{}
	n := lx * lx
	for b := range c.writeEpoch {
		c.writeEpoch[b] = make([]int32, n)
		c.writer[b] = make([]int32, n)
		c.readEpoch[b] = make([]int32, n)
		c.reader[b] = make([]int32, n)
	}
	c.reset()
	return c
}

func (c *sharedChecker) reset() {
	c.epoch = 0
	// as if a previous element had just completed
	c.phase = PhaseTransformScatter
	for b := range c.writeEpoch {
		fill(c.writeEpoch[b], -1)
		fill(c.readEpoch[b], -1)
	}
	c.violations = c.violations[:0]
}

func fill(s []int32, v int32) {
	for i := range s {
		s[i] = v
	}
}

func (c *sharedChecker) report(buffer string, slot, lane, other int, reason string) {
	if len(c.violations) >= maxViolations {
		return
	}
	c.violations = append(c.violations, &BarrierViolation{
		Element: c.element,
		Layer:   c.layer,
		Phase:   c.phase,
		Buffer:  buffer,
		Slot:    slot,
		Lane:    lane,
		Other:   other,
		Reason:  reason,
	})
}

func (c *sharedChecker) read(b bufferID, slot, lane int) {
	if !phaseAccess[c.phase].read.has(b) {
		c.report(bufferNames[b], slot, lane, -1, "read not permitted")
	}
	switch we := c.writeEpoch[b][slot]; {
	case we < 0:
		c.report(bufferNames[b], slot, lane, -1, "read before write")
	case we == c.epoch && int(c.writer[b][slot]) != lane:
		c.report(bufferNames[b], slot, lane, int(c.writer[b][slot]), "read after write without barrier")
	}
	c.readEpoch[b][slot] = c.epoch
	c.reader[b][slot] = int32(lane)
}

func (c *sharedChecker) write(b bufferID, slot, lane int) {
	if !phaseAccess[c.phase].write.has(b) {
		c.report(bufferNames[b], slot, lane, -1, "write not permitted")
	}
	if c.readEpoch[b][slot] == c.epoch && int(c.reader[b][slot]) != lane {
		c.report(bufferNames[b], slot, lane, int(c.reader[b][slot]), "write after read without barrier")
	}
	if c.writeEpoch[b][slot] == c.epoch && int(c.writer[b][slot]) != lane {
		c.report(bufferNames[b], slot, lane, int(c.writer[b][slot]), "write after write without barrier")
	}
	c.writeEpoch[b][slot] = c.epoch
	c.writer[b][slot] = int32(lane)
}

// advance moves to phase p. A barrier starts a new epoch; a skipped barrier
// keeps the current one so unordered accesses across the transition surface
// as violations.
func (c *sharedChecker) advance(p Phase, barrier bool) {
	if !legalTransition(c.phase, p) {
		c.report("-", 0, -1, -1, fmt.Sprintf("illegal transition %s -> %s", c.phase, p))
	}
	if barrier {
		c.epoch++
	}
	c.phase = p
}

func (c *sharedChecker) err() error {
	if len(c.violations) == 0 {
		return nil
	}
	return c.violations[0]
}
