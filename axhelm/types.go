package axhelm

// Real is the working precision of one operator instance.
type Real interface {
	~float32 | ~float64
}

// Field is a three component nodal field stored element-major: node
// p = i + j*LX + k*LX*LX of element e lives at p + e*LX^3 in each component.
type Field[T Real] struct {
	U, V, W []T
}

// NewField allocates a zeroed field of n nodes per component.
func NewField[T Real](n int) Field[T] {
	return Field[T]{
		U: make([]T, n),
		V: make([]T, n),
		W: make([]T, n),
	}
}

// Len returns the node count of the first component.
func (f Field[T]) Len() int { return len(f.U) }

func (f Field[T]) consistent() bool {
	return len(f.U) == len(f.V) && len(f.U) == len(f.W)
}

// Zero clears all three components.
func (f Field[T]) Zero() {
	clear(f.U)
	clear(f.V)
	clear(f.W)
}

// Components returns the component slices in (u, v, w) order.
func (f Field[T]) Components() [3][]T {
	return [3][]T{f.U, f.V, f.W}
}

// DerivativeMatrices holds the one dimensional differentiation matrices for
// the r, s and t directions, each LX*LX in column-major order (entry (a,b)
// at a + b*LX).
type DerivativeMatrices[T Real] struct {
	Dx, Dy, Dz []T
}

// UniformDerivatives uses the same matrix for all three directions.
func UniformDerivatives[T Real](d []T) DerivativeMatrices[T] {
	return DerivativeMatrices[T]{Dx: d, Dy: d, Dz: d}
}

// GeometricFactors carries the per node inverse Jacobian entries, the
// diffusion coefficient H1 and the combined quadrature weight and Jacobian
// determinant W. The stress scale at a node is H1*W.
type GeometricFactors[T Real] struct {
	H1               []T
	Drdx, Drdy, Drdz []T
	Dsdx, Dsdy, Dsdz []T
	Dtdx, Dtdy, Dtdz []T
	W                []T
}

func (g *GeometricFactors[T]) arrays() [][]T {
	return [][]T{g.H1,
		g.Drdx, g.Drdy, g.Drdz,
		g.Dsdx, g.Dsdy, g.Dsdz,
		g.Dtdx, g.Dtdy, g.Dtdz,
		g.W}
}

// GFactors is the pre-combined symmetric metric G = W * J^-1 J^-T, with the
// six distinct entries stored per node, plus the diffusion coefficient.
type GFactors[T Real] struct {
	H1            []T
	G00, G01, G02 []T
	G11, G12, G22 []T
}

func (g *GFactors[T]) arrays() [][]T {
	return [][]T{g.H1, g.G00, g.G01, g.G02, g.G11, g.G12, g.G22}
}

// Geometry selects the per node coefficients consumed by the stress
// kernel. Curvilinear is read by StrategyCurvilinear, G by StrategyGFactors.
type Geometry[T Real] struct {
	Curvilinear *GeometricFactors[T]
	G           *GFactors[T]
}

// ReactionFactors holds the per node reaction coefficient H2 and the
// diagonal mass B used by the mass term.
type ReactionFactors[T Real] struct {
	H2, B []T
}
