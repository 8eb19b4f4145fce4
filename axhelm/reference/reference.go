// Package reference assembles the element matrices of the stress Helmholtz
// operator as dense gonum matrices. It is used to verify the matrix-free
// kernels and is far too slow for anything else.
package reference

import (
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/SEMKernel/axhelm"
)

// TensorDerivatives expands the one dimensional matrices into the LX^3
// square r, s and t derivative operators on the element-major node order
// p = i + j*LX + k*LX*LX.
func TensorDerivatives(lx int, d axhelm.DerivativeMatrices[float64]) [3]*mat.Dense {
	np := lx * lx * lx
	lx2 := lx * lx
	var D [3]*mat.Dense
	for r := range D {
		D[r] = mat.NewDense(np, np, nil)
	}
	at := func(m []float64, a, b int) float64 { return m[a+b*lx] }
	for k := 0; k < lx; k++ {
		for j := 0; j < lx; j++ {
			for i := 0; i < lx; i++ {
				p := i + j*lx + k*lx2
				for l := 0; l < lx; l++ {
					D[0].Set(p, l+j*lx+k*lx2, at(d.Dx, i, l))
					D[1].Set(p, i+l*lx+k*lx2, at(d.Dy, j, l))
					D[2].Set(p, i+j*lx+l*lx2, at(d.Dz, k, l))
				}
			}
		}
	}
	return D
}

// physicalGradients returns G_a = sum_r diag(J[r][a]) D_r for a = x, y, z on
// element e.
func physicalGradients(lx int, D [3]*mat.Dense, g *axhelm.GeometricFactors[float64], e int) [3]*mat.Dense {
	np := lx * lx * lx
	off := e * np
	J := [3][3][]float64{
		{g.Drdx[off : off+np], g.Drdy[off : off+np], g.Drdz[off : off+np]},
		{g.Dsdx[off : off+np], g.Dsdy[off : off+np], g.Dsdz[off : off+np]},
		{g.Dtdx[off : off+np], g.Dtdy[off : off+np], g.Dtdz[off : off+np]},
	}
	var G [3]*mat.Dense
	for a := 0; a < 3; a++ {
		G[a] = mat.NewDense(np, np, nil)
		for p := 0; p < np; p++ {
			for q := 0; q < np; q++ {
				G[a].Set(p, q, J[0][a][p]*D[0].At(p, q)+J[1][a][p]*D[1].At(p, q)+J[2][a][p]*D[2].At(p, q))
			}
		}
	}
	return G
}

// StressElement assembles the 3*LX^3 square stress matrix of element e,
// acting on the stacked vector [u; v; w]. Block (c, c') is
//
//	delta(c,c') sum_a G_a^T Dj G_a + G_c'^T Dj G_c
//
// with Dj = diag(H1*W).
func StressElement(lx int, d axhelm.DerivativeMatrices[float64], g *axhelm.GeometricFactors[float64], e int) *mat.Dense {
	np := lx * lx * lx
	off := e * np
	G := physicalGradients(lx, TensorDerivatives(lx, d), g, e)

	// M_a = Dj G_a
	var M [3]*mat.Dense
	for a := range M {
		M[a] = mat.DenseCopyOf(G[a])
		for p := 0; p < np; p++ {
			dj := g.H1[off+p] * g.W[off+p]
			row := M[a].RawRowView(p)
			for q := range row {
				row[q] *= dj
			}
		}
	}

	lap := mat.NewDense(np, np, nil)
	var tmp mat.Dense
	for a := 0; a < 3; a++ {
		tmp.Mul(G[a].T(), M[a])
		lap.Add(lap, &tmp)
	}

	A := mat.NewDense(3*np, 3*np, nil)
	for c := 0; c < 3; c++ {
		for c2 := 0; c2 < 3; c2++ {
			blk := A.Slice(c*np, (c+1)*np, c2*np, (c2+1)*np).(*mat.Dense)
			tmp.Mul(G[c2].T(), M[c])
			blk.Copy(&tmp)
			if c == c2 {
				blk.Add(blk, lap)
			}
		}
	}
	return A
}

// GFactorElement assembles the block diagonal matrix of the metric
// formulation, each block sum_{r,s} D_r^T diag(H1*G_rs) D_s.
func GFactorElement(lx int, d axhelm.DerivativeMatrices[float64], g *axhelm.GFactors[float64], e int) *mat.Dense {
	np := lx * lx * lx
	off := e * np
	D := TensorDerivatives(lx, d)
	metric := [3][3][]float64{
		{g.G00, g.G01, g.G02},
		{g.G01, g.G11, g.G12},
		{g.G02, g.G12, g.G22},
	}

	blk := mat.NewDense(np, np, nil)
	var scaled, tmp mat.Dense
	for r := 0; r < 3; r++ {
		for s := 0; s < 3; s++ {
			scaled.CloneFrom(D[s])
			for p := 0; p < np; p++ {
				f := g.H1[off+p] * metric[r][s][off+p]
				row := scaled.RawRowView(p)
				for q := range row {
					row[q] *= f
				}
			}
			tmp.Mul(D[r].T(), &scaled)
			blk.Add(blk, &tmp)
		}
	}

	A := mat.NewDense(3*np, 3*np, nil)
	for c := 0; c < 3; c++ {
		A.Slice(c*np, (c+1)*np, c*np, (c+1)*np).(*mat.Dense).Copy(blk)
	}
	return A
}

// MassDiagonal returns H2*B of element e repeated for the three components.
func MassDiagonal(lx int, r axhelm.ReactionFactors[float64], e int) *mat.DiagDense {
	np := lx * lx * lx
	off := e * np
	diag := make([]float64, 3*np)
	for p := 0; p < np; p++ {
		hb := r.H2[off+p] * r.B[off+p]
		diag[p], diag[np+p], diag[2*np+p] = hb, hb, hb
	}
	return mat.NewDiagDense(3*np, diag)
}

// Element gathers element e of f into the stacked vector [u; v; w].
func Element(f axhelm.Field[float64], e, np int) *mat.VecDense {
	off := e * np
	x := mat.NewVecDense(3*np, nil)
	for p := 0; p < np; p++ {
		x.SetVec(p, f.U[off+p])
		x.SetVec(np+p, f.V[off+p])
		x.SetVec(2*np+p, f.W[off+p])
	}
	return x
}

// Apply returns A times the stacked vector of element e of in.
func Apply(a mat.Matrix, in axhelm.Field[float64], e, np int) *mat.VecDense {
	var y mat.VecDense
	y.MulVec(a, Element(in, e, np))
	return &y
}
