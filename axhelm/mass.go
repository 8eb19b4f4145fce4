package axhelm

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// MassKernel adds the reaction term h2*B*f to an output field. The node
// range is covered by a fixed grid of blocks, each lane striding by the
// total lane count.
type MassKernel[T Real] struct {
	blocks    int
	blockSize int
}

// NewMassKernel uses cfg.Workers blocks of cfg.BlockSize lanes.
func NewMassKernel[T Real](cfg Config) *MassKernel[T] {
	cfg = cfg.withDefaults()
	return &MassKernel[T]{blocks: cfg.Workers, blockSize: cfg.BlockSize}
}

// Apply computes out[i] += H2[i]*B[i]*in[i] for every node and component.
func (m *MassKernel[T]) Apply(out, in Field[T], r ReactionFactors[T]) error {
	n := in.Len()
	if err := checkField("input", in, n); err != nil {
		return err
	}
	if err := checkField("output", out, n); err != nil {
		return err
	}
	if len(r.H2) != n || len(r.B) != n {
		return fmt.Errorf("%w: reaction factors have lengths (%d, %d), want %d",
			ErrShapeMismatch, len(r.H2), len(r.B), n)
	}

	bs := m.blockSize
	blocks := min(m.blocks, (n+bs-1)/bs)
	stride := blocks * bs
	var eg errgroup.Group
	for b := 0; b < blocks; b++ {
		eg.Go(func() error {
			for base := b * bs; base < n; base += stride {
				end := min(base+bs, n)
				for i := base; i < end; i++ {
					hb := r.H2[i] * r.B[i]
					out.U[i] = out.U[i] + hb*in.U[i]
					out.V[i] = out.V[i] + hb*in.V[i]
					out.W[i] = out.W[i] + hb*in.W[i]
				}
			}
			return nil
		})
	}
	return eg.Wait()
}
