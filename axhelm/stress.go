package axhelm

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// StressKernel overwrites an output field with the per element stress
// action of an input field. Elements run as independent groups on a bounded
// worker pool. Apply is safe for concurrent use with distinct outputs.
type StressKernel[T Real] struct {
	cfg   Config
	d     DerivativeMatrices[T]
	geo   Geometry[T]
	nelem int
	pool  sync.Pool

	// barriers to omit, used to exercise the instrumented checker
	skip [numPhases]bool
}

// NewStressKernel validates the configuration, the derivative matrices and
// the coefficients of the selected strategy. The element count is taken
// from the coefficient arrays.
func NewStressKernel[T Real](cfg Config, d DerivativeMatrices[T], geo Geometry[T]) (*StressKernel[T], error) {
	cfg = cfg.withDefaults()
	if err := ValidateConfig[T](cfg, Limits{}); err != nil {
		return nil, err
	}
	lx2 := cfg.LX * cfg.LX
	for name, m := range map[string][]T{"dx": d.Dx, "dy": d.Dy, "dz": d.Dz} {
		if len(m) != lx2 {
			return nil, fmt.Errorf("%w: derivative matrix %s has %d entries, want %d",
				ErrShapeMismatch, name, len(m), lx2)
		}
	}
	nodes, err := geometryNodes(cfg, geo)
	if err != nil {
		return nil, err
	}

	k := &StressKernel[T]{
		cfg:   cfg,
		d:     d,
		geo:   geo,
		nelem: nodes / (lx2 * cfg.LX),
	}
	k.pool.New = func() any {
		return newGroup(k.cfg, k.d, k.geo, k.skip)
	}
	return k, nil
}

func geometryNodes[T Real](cfg Config, geo Geometry[T]) (int, error) {
	var arrays [][]T
	switch cfg.Strategy {
	case StrategyCurvilinear:
		if geo.Curvilinear == nil {
			return 0, fmt.Errorf("%w: %s needs inverse Jacobian factors", ErrMissingFactors, cfg.Strategy)
		}
		arrays = geo.Curvilinear.arrays()
	case StrategyGFactors:
		if geo.G == nil {
			return 0, fmt.Errorf("%w: %s needs G factors", ErrMissingFactors, cfg.Strategy)
		}
		arrays = geo.G.arrays()
	}
	nodes := len(arrays[0])
	for i, a := range arrays {
		if len(a) != nodes {
			return 0, fmt.Errorf("%w: %s factor %d has %d nodes, want %d",
				ErrShapeMismatch, cfg.Strategy, i, len(a), nodes)
		}
	}
	np := cfg.LX * cfg.LX * cfg.LX
	if nodes%np != 0 {
		return 0, fmt.Errorf("%w: %d nodes is not a multiple of LX^3=%d",
			ErrShapeMismatch, nodes, np)
	}
	return nodes, nil
}

// NumElements is the element count the kernel was built for.
func (k *StressKernel[T]) NumElements() int { return k.nelem }

// NumNodes is the length of each field component.
func (k *StressKernel[T]) NumNodes() int { return k.nelem * k.cfg.LX * k.cfg.LX * k.cfg.LX }

// Apply overwrites out with the stress action on in. The only errors are
// shape mismatches and, in instrumented mode, barrier violations.
func (k *StressKernel[T]) Apply(out, in Field[T]) error {
	n := k.NumNodes()
	if err := checkField("input", in, n); err != nil {
		return err
	}
	if err := checkField("output", out, n); err != nil {
		return err
	}
	if k.nelem == 0 {
		return nil
	}

	workers := k.cfg.Workers
	chunk := max(1, k.nelem/(4*workers))
	var eg errgroup.Group
	eg.SetLimit(workers)
	for start := 0; start < k.nelem; start += chunk {
		end := min(start+chunk, k.nelem)
		eg.Go(func() error {
			g := k.pool.Get().(*group[T])
			defer k.pool.Put(g)
			g.begin()
			for e := start; e < end; e++ {
				g.run(e, out, in)
			}
			return g.err()
		})
	}
	return eg.Wait()
}

func checkField[T Real](name string, f Field[T], n int) error {
	if !f.consistent() || f.Len() != n {
		return fmt.Errorf("%w: %s field has lengths (%d, %d, %d), want %d",
			ErrShapeMismatch, name, len(f.U), len(f.V), len(f.W), n)
	}
	return nil
}
