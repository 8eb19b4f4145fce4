package axhelm

import (
	"fmt"
	"runtime"
)

const (
	// MinLX is the smallest meaningful number of nodes per direction.
	MinLX = 2
	// MaxLX is the largest order with fixed size lane registers.
	MaxLX = 16
	// DefaultBlockSize is the lane count of one mass term block.
	DefaultBlockSize = 256
	// sharedBuffers is the number of LX*LX buffers one group keeps in shared
	// memory: three derivative matrices, three slices and six r/s partials.
	sharedBuffers = 12
)

// Strategy selects how the stress kernel forms the physical contribution at
// each node.
type Strategy uint8

const (
	// StrategyCurvilinear applies the inverse Jacobian, forms the symmetric
	// strain dj*(grad f + grad f^T) and contracts it back.
	StrategyCurvilinear Strategy = iota
	// StrategyGFactors contracts each component with the pre-combined
	// symmetric metric G.
	StrategyGFactors
)

func (s Strategy) String() string {
	switch s {
	case StrategyCurvilinear:
		return "Curvilinear"
	case StrategyGFactors:
		return "GFactors"
	default:
		return fmt.Sprintf("Strategy(%d)", uint8(s))
	}
}

// Config parameterizes one operator instance.
type Config struct {
	LX            int      // nodes per direction
	Strategy      Strategy // stress formulation
	Workers       int      // concurrent groups, 0 means GOMAXPROCS
	BlockSize     int      // mass term lanes per block, 0 means DefaultBlockSize
	Instrumented  bool     // check phase permissions and barrier ordering
	AllowFallback bool     // permit LX > MaxLX with runtime sized registers
}

// SupportedOrders lists the LX values with fixed size lane registers.
func SupportedOrders() []int {
	orders := make([]int, 0, MaxLX-MinLX+1)
	for lx := MinLX; lx <= MaxLX; lx++ {
		orders = append(orders, lx)
	}
	return orders
}

// SharedMemoryBytes is the group shared footprint of the stress kernel.
func SharedMemoryBytes[T Real](lx int) int {
	return sharedBuffers * lx * lx * sizeOf[T]()
}

// RegistersPerLane estimates the 32-bit registers one lane holds: six
// pencils, the t-derivative temporaries and the t contributions.
func RegistersPerLane[T Real](lx int) int {
	words := sizeOf[T]() / 4
	return (6*lx+6)*words + 16
}

// LanesPerGroup is the size of one element group.
func LanesPerGroup(lx int) int { return lx * lx }

func sizeOf[T Real]() int {
	var zero T
	switch any(zero).(type) {
	case float32:
		return 4
	default:
		return 8
	}
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.BlockSize <= 0 {
		c.BlockSize = DefaultBlockSize
	}
	return c
}

// fixedRegisters reports whether lanes use the [MaxLX]T register arrays.
func (c Config) fixedRegisters() bool { return c.LX <= MaxLX }

// Limits are the per group resource budgets of a target. A zero field
// skips that check; the zero value validates order and strategy only.
type Limits struct {
	SharedBytes int // @shared bytes per group
	Lanes       int // lanes per group
	Registers   int // 32-bit registers per lane
}

// ValidateConfig checks order, strategy and the resource budgets in lim
// for precision T.
func ValidateConfig[T Real](c Config, lim Limits) error {
	if c.LX < MinLX {
		return fmt.Errorf("%w: LX=%d is below %d", ErrUnsupportedOrder, c.LX, MinLX)
	}
	if c.LX > MaxLX && !c.AllowFallback {
		return fmt.Errorf("%w: LX=%d exceeds %d and fallback is disabled",
			ErrUnsupportedOrder, c.LX, MaxLX)
	}
	switch c.Strategy {
	case StrategyCurvilinear, StrategyGFactors:
	default:
		return fmt.Errorf("%w: %s", ErrStrategy, c.Strategy)
	}
	if lim.SharedBytes > 0 {
		if need := SharedMemoryBytes[T](c.LX); need > lim.SharedBytes {
			return fmt.Errorf("%w: LX=%d needs %d bytes, limit is %d",
				ErrSharedMemory, c.LX, need, lim.SharedBytes)
		}
	}
	if lim.Lanes > 0 {
		if lanes := LanesPerGroup(c.LX); lanes > lim.Lanes {
			return fmt.Errorf("%w: LX=%d needs %d lanes, limit is %d",
				ErrLaneLimit, c.LX, lanes, lim.Lanes)
		}
	}
	if lim.Registers > 0 {
		if regs := RegistersPerLane[T](c.LX); regs > lim.Registers {
			return fmt.Errorf("%w: LX=%d needs %d registers per lane, limit is %d",
				ErrRegisterLimit, c.LX, regs, lim.Registers)
		}
	}
	return nil
}
