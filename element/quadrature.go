package element

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// JacobiGQ computes the N+1 Gauss quadrature points and weights for the
// Jacobi weight (1-x)^alpha (1+x)^beta using the Golub-Welsch eigenvalue
// formulation of the three-term recurrence.
func JacobiGQ(alpha, beta float64, N int) (x, w []float64) {
	if N == 0 {
		return []float64{-(alpha - beta) / (alpha + beta + 2)}, []float64{2}
	}

	h1 := make([]float64, N+1)
	for i := range h1 {
		h1[i] = 2*float64(i) + alpha + beta
	}

	// Main diagonal
	d0 := make([]float64, N+1)
	fac := beta*beta - alpha*alpha
	for i := range d0 {
		d0[i] = fac / (h1[i] * (h1[i] + 2))
	}
	// 0/0 at i=0 when alpha+beta vanishes
	if alpha+beta < 1e-15 {
		d0[0] = 0
	}

	// First off-diagonal
	d1 := make([]float64, N)
	for i := range d1 {
		n := float64(i + 1)
		d1[i] = 2 / (h1[i] + 2) *
			math.Sqrt(n*(n+alpha+beta)*(n+alpha)*(n+beta)/(h1[i]+1)/(h1[i]+3))
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(symTriDiagonal(d0, d1), true); !ok {
		panic("jacobi matrix eigen decomposition failed")
	}
	x = eig.Values(nil)

	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	g0 := gamma0(alpha, beta)
	w = make([]float64, N+1)
	for i := range w {
		v := vecs.At(0, i)
		w[i] = v * v * g0
	}
	return x, w
}

// JacobiGL computes the N+1 Gauss-Lobatto points of the Jacobi weight,
// i.e. the endpoints plus the zeros of P'_N^{alpha,beta}.
func JacobiGL(alpha, beta float64, N int) []float64 {
	switch N {
	case 0:
		return []float64{0}
	case 1:
		return []float64{-1, 1}
	}
	interior, _ := JacobiGQ(alpha+1, beta+1, N-2)
	x := make([]float64, N+1)
	x[0], x[N] = -1, 1
	copy(x[1:N], interior)
	return x
}

// LegendreP evaluates the (unnormalized) Legendre polynomial P_n at x.
func LegendreP(x float64, n int) float64 {
	if n == 0 {
		return 1
	}
	pm, p := 1.0, x
	for k := 1; k < n; k++ {
		fk := float64(k)
		pm, p = p, ((2*fk+1)*x*p-fk*pm)/(fk+1)
	}
	return p
}

// GLLWeights returns the Gauss-Lobatto-Legendre quadrature weights for the
// nodes r, w_i = 2 / (N(N+1) P_N(r_i)^2).
func GLLWeights(r []float64) []float64 {
	N := len(r) - 1
	w := make([]float64, len(r))
	if N == 0 {
		w[0] = 2
		return w
	}
	c := 2 / float64(N*(N+1))
	for i, ri := range r {
		p := LegendreP(ri, N)
		w[i] = c / (p * p)
	}
	return w
}

func gamma0(alpha, beta float64) float64 {
	ab1 := alpha + beta + 1
	return math.Gamma(alpha+1) * math.Gamma(beta+1) * math.Pow(2, ab1) / ab1 / math.Gamma(ab1)
}

func symTriDiagonal(d0, d1 []float64) *mat.SymDense {
	n := len(d0)
	t := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		t.SetSym(i, i, d0[i])
		if i < n-1 {
			t.SetSym(i, i+1, d1[i])
		}
	}
	return t
}
