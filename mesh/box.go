// Package mesh builds structured boxes of spectral hexahedra and the per node
// geometric factors the stress operator consumes.
package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/SEMKernel/axhelm"
	"github.com/notargets/SEMKernel/element"
	"github.com/notargets/SEMKernel/partitions"
)

// MaxDeform bounds the deformation amplitude so the mapping stays
// invertible.
const MaxDeform = 0.2

// Box is an NX x NY x NZ array of hexahedra covering [0,Extent] in each
// direction. Coordinates are element-major like every nodal field.
type Box struct {
	Hex        *element.Hex
	NX, NY, NZ int
	K          int
	Extent     [3]float64
	X, Y, Z    []float64
}

// NewBox places the GLL nodes of hex in every element and, for deform > 0,
// applies the smooth interior perturbation
//
//	x += deform*Lx*b, y += deform*Ly*b*cos(pi*xi), z += deform*Lz*b*cos(pi*eta)
//
// with b = sin(pi*xi) sin(pi*eta) sin(pi*zeta) and (xi, eta, zeta) the
// normalized coordinates, which leaves the box boundary fixed.
func NewBox(hex *element.Hex, nx, ny, nz int, extent [3]float64, deform float64) (*Box, error) {
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("box needs at least one element per direction, got %dx%dx%d", nx, ny, nz)
	}
	for d, l := range extent {
		if l <= 0 {
			return nil, fmt.Errorf("extent[%d] must be positive, got %g", d, l)
		}
	}
	if deform < 0 || deform >= MaxDeform {
		return nil, fmt.Errorf("deformation %g outside [0, %g)", deform, MaxDeform)
	}

	lx, np := hex.LX, hex.Np
	b := &Box{
		Hex:    hex,
		NX:     nx,
		NY:     ny,
		NZ:     nz,
		K:      nx * ny * nz,
		Extent: extent,
	}
	b.X = make([]float64, b.K*np)
	b.Y = make([]float64, b.K*np)
	b.Z = make([]float64, b.K*np)

	h := [3]float64{extent[0] / float64(nx), extent[1] / float64(ny), extent[2] / float64(nz)}
	for ez := 0; ez < nz; ez++ {
		for ey := 0; ey < ny; ey++ {
			for ex := 0; ex < nx; ex++ {
				off := (ex + ey*nx + ez*nx*ny) * np
				for k := 0; k < lx; k++ {
					for j := 0; j < lx; j++ {
						for i := 0; i < lx; i++ {
							x := (float64(ex) + (hex.R[i]+1)/2) * h[0]
							y := (float64(ey) + (hex.R[j]+1)/2) * h[1]
							z := (float64(ez) + (hex.R[k]+1)/2) * h[2]
							if deform > 0 {
								xi, eta, zeta := x/extent[0], y/extent[1], z/extent[2]
								bump := math.Sin(math.Pi*xi) * math.Sin(math.Pi*eta) * math.Sin(math.Pi*zeta)
								x += deform * extent[0] * bump
								y += deform * extent[1] * bump * math.Cos(math.Pi*xi)
								z += deform * extent[2] * bump * math.Cos(math.Pi*eta)
							}
							p := off + hex.Index(i, j, k)
							b.X[p], b.Y[p], b.Z[p] = x, y, z
						}
					}
				}
			}
		}
	}
	return b, nil
}

// NumNodes is the length of every nodal array on the box.
func (b *Box) NumNodes() int { return b.K * b.Hex.Np }

// referenceDerivative returns d(field)/d(r,s,t) of element e at node
// (i,j,k), summing the one dimensional derivative along each direction.
func (b *Box) referenceDerivative(f []float64, e, i, j, k int) (dr, ds, dt float64) {
	hex := b.Hex
	off := e * hex.Np
	for l := 0; l < hex.LX; l++ {
		dr += hex.Dr.At(i, l) * f[off+hex.Index(l, j, k)]
		ds += hex.Dr.At(j, l) * f[off+hex.Index(i, l, k)]
		dt += hex.Dr.At(k, l) * f[off+hex.Index(i, j, l)]
	}
	return dr, ds, dt
}

// Geometry computes the inverse Jacobian entries of the isoparametric map,
// and W = w_i w_j w_k |J| at every node. H1 is set to one.
func (b *Box) Geometry() (*axhelm.GeometricFactors[float64], error) {
	n := b.NumNodes()
	g := &axhelm.GeometricFactors[float64]{}
	for _, p := range []*[]float64{&g.H1,
		&g.Drdx, &g.Drdy, &g.Drdz,
		&g.Dsdx, &g.Dsdy, &g.Dsdz,
		&g.Dtdx, &g.Dtdy, &g.Dtdz,
		&g.W} {
		*p = make([]float64, n)
	}

	hex := b.Hex
	lx := hex.LX
	jac := mat.NewDense(3, 3, nil)
	var inv mat.Dense
	for e := 0; e < b.K; e++ {
		for k := 0; k < lx; k++ {
			for j := 0; j < lx; j++ {
				for i := 0; i < lx; i++ {
					xr, xs, xt := b.referenceDerivative(b.X, e, i, j, k)
					yr, ys, yt := b.referenceDerivative(b.Y, e, i, j, k)
					zr, zs, zt := b.referenceDerivative(b.Z, e, i, j, k)
					jac.SetRow(0, []float64{xr, xs, xt})
					jac.SetRow(1, []float64{yr, ys, yt})
					jac.SetRow(2, []float64{zr, zs, zt})

					p := e*hex.Np + hex.Index(i, j, k)
					det := mat.Det(jac)
					if det <= 0 {
						return nil, fmt.Errorf("element %d node (%d,%d,%d): non-positive Jacobian %g",
							e, i, j, k, det)
					}
					if err := inv.Inverse(jac); err != nil {
						return nil, fmt.Errorf("element %d node (%d,%d,%d): %w", e, i, j, k, err)
					}

					g.Drdx[p], g.Drdy[p], g.Drdz[p] = inv.At(0, 0), inv.At(0, 1), inv.At(0, 2)
					g.Dsdx[p], g.Dsdy[p], g.Dsdz[p] = inv.At(1, 0), inv.At(1, 1), inv.At(1, 2)
					g.Dtdx[p], g.Dtdy[p], g.Dtdz[p] = inv.At(2, 0), inv.At(2, 1), inv.At(2, 2)
					g.W[p] = hex.Weight3(i, j, k) * det
					g.H1[p] = 1
				}
			}
		}
	}
	return g, nil
}

// GFactors folds the inverse Jacobian and W into the symmetric metric
// G_rs = W sum_a J[r][a] J[s][a].
func GFactors(g *axhelm.GeometricFactors[float64]) *axhelm.GFactors[float64] {
	n := len(g.W)
	gf := &axhelm.GFactors[float64]{
		H1:  append([]float64(nil), g.H1...),
		G00: make([]float64, n),
		G01: make([]float64, n),
		G02: make([]float64, n),
		G11: make([]float64, n),
		G12: make([]float64, n),
		G22: make([]float64, n),
	}
	for p := 0; p < n; p++ {
		r := [3]float64{g.Drdx[p], g.Drdy[p], g.Drdz[p]}
		s := [3]float64{g.Dsdx[p], g.Dsdy[p], g.Dsdz[p]}
		t := [3]float64{g.Dtdx[p], g.Dtdy[p], g.Dtdz[p]}
		w := g.W[p]
		gf.G00[p] = w * dot3(r, r)
		gf.G01[p] = w * dot3(r, s)
		gf.G02[p] = w * dot3(r, t)
		gf.G11[p] = w * dot3(s, s)
		gf.G12[p] = w * dot3(s, t)
		gf.G22[p] = w * dot3(t, t)
	}
	return gf
}

func dot3(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

// Reaction uses the lumped GLL mass W as B and a constant h2.
func Reaction(g *axhelm.GeometricFactors[float64], h2 float64) axhelm.ReactionFactors[float64] {
	r := axhelm.ReactionFactors[float64]{
		H2: make([]float64, len(g.W)),
		B:  append([]float64(nil), g.W...),
	}
	for i := range r.H2 {
		r.H2[i] = h2
	}
	return r
}

// Partition splits the box elements into contiguous device partitions of
// about target elements.
func (b *Box) Partition(target int) ([]int, error) {
	pb := partitions.PartitionBuilder{
		NumElements:         b.K,
		TargetPartitionSize: target,
		Strategy:            partitions.BalancedBlock,
	}
	layout, err := pb.BuildPartitions()
	if err != nil {
		return nil, err
	}
	return layout.K(), nil
}

// Interpolate samples f at every node of the box into a field.
func (b *Box) Interpolate(f func(x, y, z float64) [3]float64) axhelm.Field[float64] {
	out := axhelm.NewField[float64](b.NumNodes())
	for p := range b.X {
		v := f(b.X[p], b.Y[p], b.Z[p])
		out.U[p], out.V[p], out.W[p] = v[0], v[1], v[2]
	}
	return out
}
