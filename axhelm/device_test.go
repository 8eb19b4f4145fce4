package axhelm_test

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/SEMKernel/axhelm"
	"github.com/notargets/SEMKernel/mesh"
	"github.com/notargets/SEMKernel/utils"
)

func maxAbsDiff(a, b axhelm.Field[float64]) (diff, scale float64) {
	ac, bc := a.Components(), b.Components()
	for c := range ac {
		for i := range ac[c] {
			diff = math.Max(diff, math.Abs(ac[c][i]-bc[c][i]))
			scale = math.Max(scale, math.Abs(bc[c][i]))
		}
	}
	return diff, scale
}

func TestDeviceOperator_MatchesHost(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()

	for _, lx := range []int{3, 4} {
		for _, strategy := range []axhelm.Strategy{axhelm.StrategyCurvilinear, axhelm.StrategyGFactors} {
			t.Run(fmt.Sprintf("LX=%d/%s", lx, strategy), func(t *testing.T) {
				p := newProblem(t, lx, 0.1)
				cfg := axhelm.Config{LX: lx, Strategy: strategy}
				geo := axhelm.Geometry[float64]{Curvilinear: p.geo}
				if strategy == axhelm.StrategyGFactors {
					geo = axhelm.Geometry[float64]{G: mesh.GFactors(p.geo)}
				}
				host, err := axhelm.NewOperator(cfg, p.d, geo, p.react)
				require.NoError(t, err)

				k, err := p.box.Partition(3)
				require.NoError(t, err)
				for _, parts := range [][]int{nil, k} {
					dev, err := axhelm.NewDeviceOperator(device, cfg, p.d, geo, p.react, parts)
					require.NoError(t, err)

					in := randomField(host.NumNodes(), 11)
					want := axhelm.NewField[float64](host.NumNodes())
					got := axhelm.NewField[float64](host.NumNodes())
					require.NoError(t, host.Apply(want, in))
					require.NoError(t, dev.Apply(got, in))
					diff, scale := maxAbsDiff(got, want)
					assert.Less(t, diff, 1e-11*scale, "partitions %v", parts)

					require.NoError(t, host.ApplyStress(want, in))
					require.NoError(t, dev.ApplyStress(got, in))
					diff, scale = maxAbsDiff(got, want)
					assert.Less(t, diff, 1e-11*scale, "stress only, partitions %v", parts)
					dev.Free()
				}
			})
		}
	}
}

func TestDeviceOperator_RepeatedApply(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()

	p := newProblem(t, 3, 0.05)
	cfg := axhelm.Config{LX: 3}
	geo := axhelm.Geometry[float64]{Curvilinear: p.geo}
	dev, err := axhelm.NewDeviceOperator(device, cfg, p.d, geo, p.react, nil)
	require.NoError(t, err)
	defer dev.Free()

	in := randomField(dev.NumNodes(), 5)
	first := axhelm.NewField[float64](dev.NumNodes())
	second := axhelm.NewField[float64](dev.NumNodes())
	require.NoError(t, dev.Apply(first, in))
	require.NoError(t, dev.Apply(second, in))
	assert.Equal(t, first, second)

	zero := axhelm.NewField[float64](dev.NumNodes())
	out := randomField(dev.NumNodes(), 6)
	require.NoError(t, dev.Apply(out, zero))
	for _, c := range out.Components() {
		for _, v := range c {
			require.Zero(t, v)
		}
	}
}

func TestDeviceOperator_Float32(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()

	p := newProblem(t, 4, 0.1)
	cfg := axhelm.Config{LX: 4}
	geo := axhelm.Geometry[float64]{Curvilinear: p.geo}
	host := p.operator(t, cfg)

	dev, err := axhelm.NewDeviceOperator(device, cfg,
		axhelm.CastDerivatives[float32](p.d),
		axhelm.CastGeometry[float32](geo),
		axhelm.CastReaction[float32](p.react), nil)
	require.NoError(t, err)
	defer dev.Free()
	assert.Contains(t, dev.StressSource(), "typedef float real_t;")

	in := randomField(host.NumNodes(), 8)
	want := axhelm.NewField[float64](host.NumNodes())
	require.NoError(t, host.Apply(want, in))
	got32 := axhelm.NewField[float32](host.NumNodes())
	require.NoError(t, dev.Apply(got32, axhelm.CastField[float32](in)))

	diff, scale := maxAbsDiff(widen(got32), want)
	assert.Less(t, diff, 1e-4*scale)
}

func widen(f axhelm.Field[float32]) axhelm.Field[float64] {
	out := axhelm.NewField[float64](f.Len())
	oc := out.Components()
	for c, comp := range f.Components() {
		for i, v := range comp {
			oc[c][i] = float64(v)
		}
	}
	return out
}

func TestNewDeviceOperator_Errors(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()

	p := newProblem(t, 3, 0)
	geo := axhelm.Geometry[float64]{Curvilinear: p.geo}

	_, err := axhelm.NewDeviceOperator(device, axhelm.Config{LX: 17}, p.d, geo, p.react, nil)
	assert.ErrorIs(t, err, axhelm.ErrUnsupportedOrder)

	_, err = axhelm.NewDeviceOperator(device, axhelm.Config{LX: 3}, p.d, geo, p.react, []int{1, 1})
	assert.ErrorIs(t, err, axhelm.ErrShapeMismatch)

	_, err = axhelm.NewDeviceOperator(device, axhelm.Config{LX: 3, Strategy: axhelm.StrategyGFactors},
		p.d, geo, p.react, nil)
	assert.ErrorIs(t, err, axhelm.ErrMissingFactors)

	_, err = axhelm.NewDeviceOperator(device, axhelm.Config{LX: 3, BlockSize: 4096}, p.d, geo, p.react, nil)
	assert.ErrorIs(t, err, axhelm.ErrLaneLimit)

	_, err = axhelm.NewDeviceOperator(nil, axhelm.Config{LX: 3}, p.d, geo, p.react, nil)
	assert.Error(t, err)
}

func TestKernelSources(t *testing.T) {
	sig := "const int_t* K"
	curv := axhelm.StressKernelSource(axhelm.StrategyCurvilinear, sig)
	gf := axhelm.StressKernelSource(axhelm.StrategyGFactors, sig)

	for _, src := range []string{curv, gf} {
		assert.True(t, strings.HasPrefix(src, "@kernel void "+axhelm.StressKernelName+"("+sig+")"))
		assert.Equal(t, 12, strings.Count(src, "@shared"))
		// Load, three phases per layer, store
		assert.Equal(t, 5, strings.Count(src, "@inner(1)"))
		assert.Equal(t, strings.Count(src, "{"), strings.Count(src, "}"))
	}
	assert.Contains(t, curv, "const real_t dj = h1[n] * wj[n];")
	assert.NotContains(t, curv, "g00")
	assert.Contains(t, gf, "g00[n]")
	assert.NotContains(t, gf, "drdx")

	mass := axhelm.MassKernelSource(sig)
	assert.Contains(t, mass, "@kernel void "+axhelm.MassKernelName)
	assert.Contains(t, mass, "id += MASS_BLOCKS * MASS_BLOCK_SIZE")
	assert.Equal(t, strings.Count(mass, "{"), strings.Count(mass, "}"))
}
