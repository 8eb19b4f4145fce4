package element

import (
	"fmt"

	"github.com/notargets/gocfd/DG1D"
	"github.com/notargets/gocfd/utils"
	"gonum.org/v1/gonum/mat"
)

// ElementProperties contains metadata describing a reference element
type ElementProperties struct {
	Name      string // Full descriptive name (e.g., "GLL Hexahedron Order 3")
	ShortName string // Abbreviated name (e.g., "Hex3")
	Order     int    // Polynomial order
	LX        int    // Nodes per direction, Order+1
	Np        int    // Total number of nodes, LX^3
	NFp       int    // Nodes per face, LX^2
}

// Hex is the tensor-product Gauss-Lobatto-Legendre reference hexahedron
// on [-1,1]^3. Local node p = i + j*LX + k*LX^2 sits at (R[i], R[j], R[k]).
type Hex struct {
	ElementProperties

	R []float64 // 1D GLL nodes, length LX
	W []float64 // 1D GLL weights, length LX

	// Dr is the 1D differentiation matrix, Dr(a,b) = l_b'(R[a])
	Dr *mat.Dense
}

// NewHex builds the GLL reference hexahedron with lx nodes per direction
func NewHex(lx int) (*Hex, error) {
	if lx < 2 {
		return nil, fmt.Errorf("hex element needs at least 2 nodes per direction, got %d", lx)
	}
	N := lx - 1
	r := JacobiGL(0, 0, N)

	// Dr = Vr * V^-1 over the orthonormal Legendre basis
	R := utils.NewVector(lx, r)
	vinv, err := DG1D.Vandermonde1D(N, R).Inverse()
	if err != nil {
		return nil, fmt.Errorf("GLL Vandermonde matrix for LX=%d: %w", lx, err)
	}
	D := DG1D.GradVandermonde1D(N, R).Mul(vinv)
	dr := mat.NewDense(lx, lx, nil)
	for a := 0; a < lx; a++ {
		for b := 0; b < lx; b++ {
			dr.Set(a, b, D.At(a, b))
		}
	}

	return &Hex{
		ElementProperties: ElementProperties{
			Name:      fmt.Sprintf("GLL Hexahedron Order %d", N),
			ShortName: fmt.Sprintf("Hex%d", N),
			Order:     N,
			LX:        lx,
			Np:        lx * lx * lx,
			NFp:       lx * lx,
		},
		R:  r,
		W:  GLLWeights(r),
		Dr: dr,
	}, nil
}

// GetProperties returns the element metadata
func (h *Hex) GetProperties() ElementProperties {
	return h.ElementProperties
}

// Index returns the element-local flattened node index of (i,j,k)
func (h *Hex) Index(i, j, k int) int {
	return i + j*h.LX + k*h.LX*h.LX
}

// Weight3 returns the tensor-product quadrature weight at node (i,j,k)
func (h *Hex) Weight3(i, j, k int) float64 {
	return h.W[i] * h.W[j] * h.W[k]
}

// ColumnMajor returns Dr flattened column-major, entry (a,b) at a + b*LX.
// This is the layout the stress kernels consume.
func (h *Hex) ColumnMajor() []float64 {
	lx := h.LX
	out := make([]float64, lx*lx)
	for a := 0; a < lx; a++ {
		for b := 0; b < lx; b++ {
			out[a+b*lx] = h.Dr.At(a, b)
		}
	}
	return out
}

// Nodes returns the reference coordinates of all Np nodes in local order
func (h *Hex) Nodes() (r, s, t []float64) {
	r, s, t = make([]float64, h.Np), make([]float64, h.Np), make([]float64, h.Np)
	for k := 0; k < h.LX; k++ {
		for j := 0; j < h.LX; j++ {
			for i := 0; i < h.LX; i++ {
				p := h.Index(i, j, k)
				r[p], s[p], t[p] = h.R[i], h.R[j], h.R[k]
			}
		}
	}
	return
}
