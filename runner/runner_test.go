package runner

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/SEMKernel/runner/builder"
	"github.com/notargets/SEMKernel/utils"
)

const valuesPerElement = 4

func TestRunner_PartitionedScale(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()

	for _, intType := range []builder.DataType{builder.INT32, builder.INT64} {
		t.Run(fmt.Sprintf("int%d", intType.Size()*8), func(t *testing.T) {
			k := []int{3, 5, 2}
			kr := NewRunner(device, builder.Config{K: k, FloatType: builder.Float64, IntType: intType})
			defer kr.Free()

			n := 10 * valuesPerElement
			x := make([]float64, n)
			y := make([]float64, n)
			for i := range x {
				x[i] = float64(i + 1)
			}
			scale := mat.NewDense(1, 1, []float64{2.5})

			require.NoError(t, kr.DefineBindings(
				builder.Input("S").Bind(scale).ToMatrix().Static(),
				builder.Input("x").Bind(x).CopyTo().Align(builder.CacheLineAlign),
				builder.Output("y").Bind(y).Align(builder.CacheLineAlign),
			))
			require.NoError(t, kr.AllocateDevice())

			// x is padded per partition to a 64 byte boundary
			off, ok := kr.GetHostOffsets("x")
			require.True(t, ok)
			assert.Equal(t, []int64{0, 16, 40, 48}, off)

			kr.SetDefine("NV", valuesPerElement)
			cfg, err := kr.ConfigureKernel("scale",
				kr.Param("S"),
				kr.Param("x"),
				kr.Param("y").CopyBack(),
			)
			require.NoError(t, err)
			src := fmt.Sprintf(`
@kernel void scale(%s) {
  for (int part = 0; part < NPART; ++part; @outer) {
    for (int elem = 0; elem < KpartMax; ++elem; @inner) {
      if (elem < K[part]) {
        const real_t* x = x_PART(part);
        real_t* y = y_PART(part);
        for (int i = 0; i < NV; ++i) {
          y[elem * NV + i] = S[0][0] * x[elem * NV + i];
        }
      }
    }
  }
}`, cfg.GetSignature())
			_, err = kr.BuildKernel(src, "scale")
			require.NoError(t, err)
			require.NoError(t, kr.ExecuteKernel("scale"))

			for i := range y {
				assert.Equal(t, 2.5*x[i], y[i], "value %d", i)
			}

			// round trip through the device copy of x
			saved := append([]float64(nil), x...)
			for i := range x {
				x[i] = 0
			}
			require.NoError(t, kr.CopyFromDevice("x"))
			assert.Equal(t, saved, x)

			for i := range x {
				x[i] = -x[i]
			}
			require.NoError(t, kr.CopyToDevice("x"))
			require.NoError(t, kr.ExecuteKernel("scale"))
			assert.Equal(t, -2.5*saved[n-1], y[n-1])
		})
	}
}

func TestKernelConfig_Signature(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()

	kr := NewRunner(device, builder.Config{K: []int{2}})
	defer kr.Free()
	require.NoError(t, kr.DefineBindings(
		builder.Input("D").Bind(mat.NewDense(2, 2, nil)).ToMatrix().Static(),
		builder.Input("a").Bind(make([]float64, 4)),
		builder.InOut("b").Bind(make([]float64, 2)),
		builder.Input("idx").Bind(make([]int64, 2)),
	))
	require.NoError(t, kr.AllocateDevice())

	cfg, err := kr.ConfigureKernel("k", kr.Param("D"), kr.Param("a"), kr.Param("b"), kr.Param("idx"))
	require.NoError(t, err)
	assert.Equal(t, "const int_t* K,\n\t"+
		"const real_t* a_global,\n\tconst int_t* a_offsets,\n\t"+
		"real_t* b_global,\n\tconst int_t* b_offsets,\n\t"+
		"const int_t* idx_global,\n\tconst int_t* idx_offsets", cfg.GetSignature())
	assert.Len(t, cfg.Arguments(), 7)
	assert.NotNil(t, cfg.GetParameter("D"))
	assert.Nil(t, cfg.GetParameter("missing"))
}

func TestRunner_Errors(t *testing.T) {
	device := utils.CreateTestDevice()
	defer device.Free()

	kr := NewRunner(device, builder.Config{K: []int{2, 1}})
	defer kr.Free()

	_, err := kr.ConfigureKernel("early")
	assert.Error(t, err, "configure before allocation")
	assert.Error(t, kr.AllocateDevice(), "allocate without bindings")

	assert.Error(t, kr.DefineBindings(builder.Input("f32").Bind(make([]float32, 3))),
		"precision differs from real_t")
	assert.Error(t, kr.DefineBindings(builder.Input("odd").Bind(make([]float64, 4))),
		"4 values over 3 elements")
	assert.Error(t, kr.DefineBindings(builder.Input("i32").Bind(make([]int32, 3))),
		"int width differs from int_t")

	require.NoError(t, kr.DefineBindings(
		builder.Input("in").Bind(make([]float64, 6)),
		builder.Output("out").Bind(make([]float64, 6)),
	))
	assert.Error(t, kr.DefineBindings(builder.Input("in").Bind(make([]float64, 3))), "duplicate")
	require.NoError(t, kr.AllocateDevice())
	assert.Error(t, kr.AllocateDevice(), "second allocation")
	assert.Error(t, kr.DefineBindings(builder.Input("late").Bind(make([]float64, 3))))

	_, err = kr.ConfigureKernel("k", kr.Param("nope"))
	assert.Error(t, err)
	_, err = kr.ConfigureKernel("k", kr.Param("in").CopyBack())
	assert.Error(t, err)
	_, err = kr.ConfigureKernel("k", kr.Param("in"), kr.Param("in"))
	assert.Error(t, err)

	assert.Error(t, kr.ExecuteKernel("k"), "not configured")
	_, err = kr.ConfigureKernel("k", kr.Param("in").CopyTo(), kr.Param("out").Copy())
	require.NoError(t, err)
	assert.Error(t, kr.ExecuteKernel("k"), "not built")
	assert.Error(t, kr.CopyToDevice("nope"))
}
