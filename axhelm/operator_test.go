package axhelm_test

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/SEMKernel/axhelm"
	"github.com/notargets/SEMKernel/axhelm/reference"
	"github.com/notargets/SEMKernel/element"
	"github.com/notargets/SEMKernel/mesh"
)

type problem struct {
	hex   *element.Hex
	box   *mesh.Box
	d     axhelm.DerivativeMatrices[float64]
	geo   *axhelm.GeometricFactors[float64]
	react axhelm.ReactionFactors[float64]
}

func newProblem(t *testing.T, lx int, deform float64) *problem {
	t.Helper()
	hex, err := element.NewHex(lx)
	require.NoError(t, err)
	box, err := mesh.NewBox(hex, 2, 2, 1, [3]float64{1, 1, 0.5}, deform)
	require.NoError(t, err)
	geo, err := box.Geometry()
	require.NoError(t, err)

	// spatially varying coefficients
	for p := range geo.H1 {
		geo.H1[p] = 1 + 0.5*math.Sin(box.X[p]+2*box.Y[p])
	}
	react := mesh.Reaction(geo, 0.7)
	return &problem{
		hex:   hex,
		box:   box,
		d:     axhelm.UniformDerivatives(hex.ColumnMajor()),
		geo:   geo,
		react: react,
	}
}

func (p *problem) operator(t *testing.T, cfg axhelm.Config) *axhelm.Operator[float64] {
	t.Helper()
	geo := axhelm.Geometry[float64]{Curvilinear: p.geo}
	if cfg.Strategy == axhelm.StrategyGFactors {
		geo = axhelm.Geometry[float64]{G: mesh.GFactors(p.geo)}
	}
	cfg.LX = p.hex.LX
	op, err := axhelm.NewOperator(cfg, p.d, geo, p.react)
	require.NoError(t, err)
	return op
}

func randomField(n int, seed int64) axhelm.Field[float64] {
	rng := rand.New(rand.NewSource(seed))
	f := axhelm.NewField[float64](n)
	for _, c := range f.Components() {
		for i := range c {
			c[i] = rng.NormFloat64()
		}
	}
	return f
}

func dot(a, b axhelm.Field[float64]) float64 {
	return floats.Dot(a.U, b.U) + floats.Dot(a.V, b.V) + floats.Dot(a.W, b.W)
}

func maxRelativeElementError(t *testing.T, got axhelm.Field[float64], want func(e int) *mat.VecDense, nelem, np int) float64 {
	t.Helper()
	var worst float64
	for e := 0; e < nelem; e++ {
		w := want(e)
		g := reference.Element(got, e, np)
		var diff mat.VecDense
		diff.SubVec(g, w)
		rel := mat.Norm(&diff, 2) / mat.Norm(w, 2)
		worst = math.Max(worst, rel)
	}
	return worst
}

func TestStress_MatchesDenseReference(t *testing.T) {
	for _, lx := range []int{2, 3, 4, 5} {
		t.Run(fmt.Sprintf("LX=%d", lx), func(t *testing.T) {
			p := newProblem(t, lx, 0.1)
			op := p.operator(t, axhelm.Config{})
			np := p.hex.Np

			// tensor-product polynomial of degree LX-1 plus noise
			in := p.box.Interpolate(func(x, y, z float64) [3]float64 {
				q := math.Pow(x, float64(lx-1)) * y
				return [3]float64{q + z, y * z, math.Pow(z, float64(lx-1)) - x}
			})
			noise := randomField(in.Len(), 7)
			floats.Add(in.U, noise.U)

			out := axhelm.NewField[float64](in.Len())
			require.NoError(t, op.ApplyStress(out, in))

			rel := maxRelativeElementError(t, out, func(e int) *mat.VecDense {
				return reference.Apply(reference.StressElement(lx, p.d, p.geo, e), in, e, np)
			}, op.NumElements(), np)
			assert.Less(t, rel, 1e-10)
		})
	}
}

func TestGFactors_MatchesDenseReference(t *testing.T) {
	for _, lx := range []int{3, 4} {
		t.Run(fmt.Sprintf("LX=%d", lx), func(t *testing.T) {
			p := newProblem(t, lx, 0.1)
			op := p.operator(t, axhelm.Config{Strategy: axhelm.StrategyGFactors})
			gf := mesh.GFactors(p.geo)
			np := p.hex.Np

			in := randomField(op.NumNodes(), 11)
			out := axhelm.NewField[float64](in.Len())
			require.NoError(t, op.ApplyStress(out, in))

			rel := maxRelativeElementError(t, out, func(e int) *mat.VecDense {
				return reference.Apply(reference.GFactorElement(lx, p.d, gf, e), in, e, np)
			}, op.NumElements(), np)
			assert.Less(t, rel, 1e-10)
		})
	}
}

func TestFullOperator_MatchesDenseReference(t *testing.T) {
	const lx = 3
	p := newProblem(t, lx, 0.05)
	op := p.operator(t, axhelm.Config{})
	np := p.hex.Np

	in := randomField(op.NumNodes(), 5)
	out := axhelm.NewField[float64](in.Len())
	require.NoError(t, op.Apply(out, in))

	rel := maxRelativeElementError(t, out, func(e int) *mat.VecDense {
		var a mat.Dense
		a.Add(reference.StressElement(lx, p.d, p.geo, e), reference.MassDiagonal(lx, p.react, e))
		return reference.Apply(&a, in, e, np)
	}, op.NumElements(), np)
	assert.Less(t, rel, 1e-10)
}

func TestReference_StressSymmetric(t *testing.T) {
	p := newProblem(t, 3, 0.1)
	a := reference.StressElement(3, p.d, p.geo, 1)
	assert.True(t, mat.EqualApprox(a, a.T(), 1e-12))
}

func TestOperator_Linearity(t *testing.T) {
	p := newProblem(t, 4, 0.1)
	op := p.operator(t, axhelm.Config{})
	n := op.NumNodes()
	x, y := randomField(n, 1), randomField(n, 2)
	const alpha, beta = 1.7, -0.3

	combo := axhelm.NewField[float64](n)
	for c, dst := range combo.Components() {
		floats.AddScaledTo(dst, dst, alpha, x.Components()[c])
		floats.AddScaled(dst, beta, y.Components()[c])
	}

	ax, ay, acombo := axhelm.NewField[float64](n), axhelm.NewField[float64](n), axhelm.NewField[float64](n)
	require.NoError(t, op.Apply(ax, x))
	require.NoError(t, op.Apply(ay, y))
	require.NoError(t, op.Apply(acombo, combo))

	for c, got := range acombo.Components() {
		want := make([]float64, n)
		floats.AddScaledTo(want, want, alpha, ax.Components()[c])
		floats.AddScaled(want, beta, ay.Components()[c])
		scale := floats.Norm(want, math.Inf(1))
		for i := range want {
			assert.InDelta(t, want[i], got[i], 1e-12*scale)
		}
	}
}

func TestOperator_ZeroInput(t *testing.T) {
	for _, s := range []axhelm.Strategy{axhelm.StrategyCurvilinear, axhelm.StrategyGFactors} {
		t.Run(s.String(), func(t *testing.T) {
			p := newProblem(t, 4, 0.1)
			op := p.operator(t, axhelm.Config{Strategy: s})
			in := axhelm.NewField[float64](op.NumNodes())
			out := randomField(op.NumNodes(), 3)

			require.NoError(t, op.ApplyStress(out, in))
			for _, c := range out.Components() {
				for _, v := range c {
					require.Zero(t, v)
				}
			}
			require.NoError(t, op.ApplyMass(out, in))
			for _, c := range out.Components() {
				for _, v := range c {
					require.Zero(t, v)
				}
			}
		})
	}
}

func TestOperator_SelfAdjoint(t *testing.T) {
	for _, s := range []axhelm.Strategy{axhelm.StrategyCurvilinear, axhelm.StrategyGFactors} {
		t.Run(s.String(), func(t *testing.T) {
			p := newProblem(t, 5, 0.1)
			op := p.operator(t, axhelm.Config{Strategy: s})
			n := op.NumNodes()
			x, y := randomField(n, 21), randomField(n, 22)
			ax, ay := axhelm.NewField[float64](n), axhelm.NewField[float64](n)
			require.NoError(t, op.ApplyStress(ax, x))
			require.NoError(t, op.ApplyStress(ay, y))

			lhs, rhs := dot(ax, y), dot(x, ay)
			scale := math.Sqrt(dot(ax, ax) * dot(y, y))
			assert.InDelta(t, lhs, rhs, 1e-12*scale)
		})
	}
}

func TestMass_ZeroReactionLeavesOutput(t *testing.T) {
	p := newProblem(t, 3, 0)
	p.react = mesh.Reaction(p.geo, 0)
	op := p.operator(t, axhelm.Config{BlockSize: 7, Workers: 3})
	n := op.NumNodes()
	in := randomField(n, 31)
	out := randomField(n, 32)
	before := randomField(n, 32)

	require.NoError(t, op.ApplyMass(out, in))
	assert.Equal(t, before, out)
}

func TestOperator_CompositionAdditive(t *testing.T) {
	p := newProblem(t, 4, 0.1)
	op := p.operator(t, axhelm.Config{})
	n := op.NumNodes()
	in := randomField(n, 41)

	full := axhelm.NewField[float64](n)
	require.NoError(t, op.Apply(full, in))

	stress := axhelm.NewField[float64](n)
	require.NoError(t, op.ApplyStress(stress, in))
	for c, s := range stress.Components() {
		f := in.Components()[c]
		for i := range s {
			s[i] += p.react.H2[i] * p.react.B[i] * f[i]
		}
	}
	assert.Equal(t, stress, full)
}

func TestOperator_WorkerCountIndependent(t *testing.T) {
	p := newProblem(t, 4, 0.1)
	in := randomField(p.box.NumNodes(), 51)
	var results []axhelm.Field[float64]
	for _, w := range []int{1, 2, 5} {
		op := p.operator(t, axhelm.Config{Workers: w, BlockSize: 32})
		out := axhelm.NewField[float64](in.Len())
		require.NoError(t, op.Apply(out, in))
		results = append(results, out)
	}
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])
}

// Reference cube, identity geometry, dj = 1, h2 = 0 and the quadratic
// field u = xy, v = yz, w = zx + x^2 at LX = 3. The expected action was
// evaluated in exact rational arithmetic.
func TestOperator_QuadraticOnReferenceCube(t *testing.T) {
	const lx = 3
	hex, err := element.NewHex(lx)
	require.NoError(t, err)
	np := hex.Np
	r, s, tt := hex.Nodes()

	geo := &axhelm.GeometricFactors[float64]{}
	for _, a := range []*[]float64{&geo.H1,
		&geo.Drdx, &geo.Drdy, &geo.Drdz,
		&geo.Dsdx, &geo.Dsdy, &geo.Dsdz,
		&geo.Dtdx, &geo.Dtdy, &geo.Dtdz,
		&geo.W} {
		*a = make([]float64, np)
	}
	for i := 0; i < np; i++ {
		geo.H1[i], geo.W[i] = 1, 1
		geo.Drdx[i], geo.Dsdy[i], geo.Dtdz[i] = 1, 1, 1
	}

	in := axhelm.NewField[float64](np)
	for i := 0; i < np; i++ {
		x, y, z := r[i], s[i], tt[i]
		in.U[i], in.V[i], in.W[i] = x*y, y*z, z*x+x*x
	}

	d := axhelm.UniformDerivatives(hex.ColumnMajor())
	op, err := axhelm.NewOperator(axhelm.Config{LX: lx}, d,
		axhelm.Geometry[float64]{Curvilinear: geo}, mesh.Reaction(geo, 0))
	require.NoError(t, err)
	out := randomField(np, 71)
	require.NoError(t, op.Apply(out, in))

	want := [3][]float64{
		{9.5, 2, -5.5, 5, 2, -1, 0.5, 2, 3.5,
			0.5, -4, -8.5, -4, -4, -4, -8.5, -4, 0.5,
			3.5, 2, 0.5, -1, 2, 5, -5.5, 2, 9.5},
		{6.5, 0.5, 6.5, 2, -4, 2, -2.5, -8.5, -2.5,
			2, -4, 2, 2, -4, 2, 2, -4, 2,
			-2.5, -8.5, -2.5, 2, -4, 2, 6.5, 0.5, 6.5},
		{10.5, -6, 1.5, 4.5, -12, -4.5, 10.5, -6, 1.5,
			6, -6, 6, 0, -12, 0, 6, -6, 6,
			1.5, -6, 10.5, -4.5, -12, 4.5, 1.5, -6, 10.5},
	}
	for c, got := range out.Components() {
		assert.InDeltaSlice(t, want[c], got, 1e-12, "component %d", c)
	}
}

func TestOperator_Float32TracksFloat64(t *testing.T) {
	p := newProblem(t, 4, 0.1)
	op64 := p.operator(t, axhelm.Config{})
	in := randomField(op64.NumNodes(), 61)
	out64 := axhelm.NewField[float64](in.Len())
	require.NoError(t, op64.Apply(out64, in))

	op32, err := axhelm.NewOperator(axhelm.Config{LX: 4},
		axhelm.CastDerivatives[float32](p.d),
		axhelm.CastGeometry[float32](axhelm.Geometry[float64]{Curvilinear: p.geo}),
		axhelm.CastReaction[float32](p.react))
	require.NoError(t, err)
	out32 := axhelm.NewField[float32](in.Len())
	require.NoError(t, op32.Apply(out32, axhelm.CastField[float32](in)))

	for c, want := range out64.Components() {
		got := out32.Components()[c]
		scale := floats.Norm(want, math.Inf(1))
		for i := range want {
			assert.InDelta(t, want[i], float64(got[i]), 1e-4*scale)
		}
	}
}

func TestNewOperator_Errors(t *testing.T) {
	p := newProblem(t, 3, 0)
	geo := axhelm.Geometry[float64]{Curvilinear: p.geo}

	_, err := axhelm.NewOperator(axhelm.Config{LX: 4}, p.d, geo, p.react)
	assert.ErrorIs(t, err, axhelm.ErrShapeMismatch, "derivatives sized for LX=3")

	_, err = axhelm.NewOperator(axhelm.Config{LX: 1}, p.d, geo, p.react)
	assert.ErrorIs(t, err, axhelm.ErrUnsupportedOrder)

	_, err = axhelm.NewOperator(axhelm.Config{LX: 3, Strategy: axhelm.StrategyGFactors}, p.d, geo, p.react)
	assert.ErrorIs(t, err, axhelm.ErrMissingFactors)

	_, err = axhelm.NewOperator(axhelm.Config{LX: 3, Strategy: 5}, p.d, geo, p.react)
	assert.ErrorIs(t, err, axhelm.ErrStrategy)

	_, err = axhelm.NewOperator(axhelm.Config{LX: 3}, p.d, geo, axhelm.ReactionFactors[float64]{})
	assert.ErrorIs(t, err, axhelm.ErrMissingFactors)

	short := mesh.Reaction(p.geo, 1)
	short.B = short.B[:10]
	_, err = axhelm.NewOperator(axhelm.Config{LX: 3}, p.d, geo, short)
	assert.ErrorIs(t, err, axhelm.ErrShapeMismatch)

	bad := *p.geo
	bad.Dtdz = bad.Dtdz[:len(bad.Dtdz)-1]
	_, err = axhelm.NewOperator(axhelm.Config{LX: 3}, p.d, axhelm.Geometry[float64]{Curvilinear: &bad}, p.react)
	assert.ErrorIs(t, err, axhelm.ErrShapeMismatch)

	op := p.operator(t, axhelm.Config{})
	in := axhelm.NewField[float64](op.NumNodes())
	out := axhelm.NewField[float64](op.NumNodes() - 1)
	assert.ErrorIs(t, op.Apply(out, in), axhelm.ErrShapeMismatch)
	out.W = nil
	assert.ErrorIs(t, op.ApplyMass(out, in), axhelm.ErrShapeMismatch)
}
