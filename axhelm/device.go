package axhelm

import (
	"fmt"

	"github.com/notargets/gocca"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/SEMKernel/runner"
	"github.com/notargets/SEMKernel/runner/builder"
	"github.com/notargets/SEMKernel/utils"
)

// maxMassBlocks caps the mass kernel grid; lanes stride over the rest.
const maxMassBlocks = 1024

// DeviceOperator evaluates the same operator as Operator through OCCA. The
// kernels are specialized at build time for LX and the strategy, and every
// partition of elements runs as one @outer dimension.
//
// Geometric and reaction factors are uploaded once. Apply stages its input
// and output through host buffers owned by the operator, so calls must not
// overlap.
type DeviceOperator[T Real] struct {
	cfg       Config
	kr        *runner.Runner
	nelem, np int
	in, out   Field[T]

	stressSrc, massSrc string
}

// NewDeviceOperator validates cfg against the device limits, allocates and
// uploads all coefficients and builds both kernels. k lists the element
// count of each contiguous partition; nil runs all elements as one
// partition. T must be exactly float32 or float64.
func NewDeviceOperator[T Real](device *gocca.OCCADevice, cfg Config, d DerivativeMatrices[T],
	geo Geometry[T], react ReactionFactors[T], k []int) (*DeviceOperator[T], error) {
	if device == nil {
		return nil, fmt.Errorf("device cannot be nil")
	}
	floatType := runner.GetDataTypeFromSample(any(*new(T)))
	if floatType == 0 {
		return nil, fmt.Errorf("device precision must be float32 or float64, got %T", *new(T))
	}

	cfg = cfg.withDefaults()
	mode := device.Mode()
	lim := Limits{
		SharedBytes: utils.SharedMemoryLimit(mode),
		Lanes:       utils.MaxGroupLanes(mode),
		Registers:   utils.MaxRegistersPerLane(mode),
	}
	if err := ValidateConfig[T](cfg, lim); err != nil {
		return nil, fmt.Errorf("%s device: %w", mode, err)
	}
	if cfg.BlockSize > utils.MaxGroupLanes(mode) {
		return nil, fmt.Errorf("%s device: %w: mass block of %d lanes", mode, ErrLaneLimit, cfg.BlockSize)
	}

	// the host operator performs every shape check the device needs
	host, err := NewOperator(cfg, d, geo, react)
	if err != nil {
		return nil, err
	}
	nelem, nodes := host.NumElements(), host.NumNodes()
	if nelem == 0 {
		return nil, fmt.Errorf("%w: geometry has no elements", ErrShapeMismatch)
	}
	if k == nil {
		k = []int{nelem}
	}
	total := 0
	for p, kp := range k {
		if kp < 0 {
			return nil, fmt.Errorf("%w: partition %d has %d elements", ErrShapeMismatch, p, kp)
		}
		total += kp
	}
	if total != nelem {
		return nil, fmt.Errorf("%w: partitions hold %d elements, geometry has %d",
			ErrShapeMismatch, total, nelem)
	}

	op := &DeviceOperator[T]{
		cfg:   cfg,
		nelem: nelem,
		np:    cfg.LX * cfg.LX * cfg.LX,
		in:    NewField[T](nodes),
		out:   NewField[T](nodes),
	}
	op.kr = runner.NewRunner(device, builder.Config{
		K:         k,
		FloatType: floatType,
		IntType:   builder.INT64,
	})
	if err := op.setup(d, geo, react); err != nil {
		op.kr.Free()
		return nil, err
	}
	return op, nil
}

func (op *DeviceOperator[T]) setup(d DerivativeMatrices[T], geo Geometry[T], react ReactionFactors[T]) error {
	kr := op.kr
	lx := op.cfg.LX

	var params []*builder.ParamBuilder
	for c, m := range [3][]T{d.Dx, d.Dy, d.Dz} {
		params = append(params, builder.Input(derivativeNames[c]).Bind(columnMajorDense(lx, m)).ToMatrix().Static())
	}
	var coeffs [][]T
	if op.cfg.Strategy == StrategyGFactors {
		coeffs = geo.G.arrays()
	} else {
		coeffs = geo.Curvilinear.arrays()
	}
	names := geometryArrays(op.cfg.Strategy)
	for i, a := range coeffs {
		params = append(params, builder.Input(names[i]).Bind(a).CopyTo().Align(builder.CacheLineAlign))
	}
	params = append(params,
		builder.Input(reactionArrays[0]).Bind(react.H2).CopyTo().Align(builder.CacheLineAlign),
		builder.Input(reactionArrays[1]).Bind(react.B).CopyTo().Align(builder.CacheLineAlign))
	for c, a := range op.in.Components() {
		params = append(params, builder.Input(fieldArrays[c]).Bind(a).Align(builder.CacheLineAlign))
	}
	for c, a := range op.out.Components() {
		params = append(params, builder.Output(outputArrays[c]).Bind(a).CopyBack().Align(builder.CacheLineAlign))
	}
	if err := kr.DefineBindings(params...); err != nil {
		return err
	}
	if err := kr.AllocateDevice(); err != nil {
		return err
	}

	bs := op.cfg.BlockSize
	kr.SetDefine("LX", lx)
	kr.SetDefine("NP", op.np)
	kr.SetDefine("MASS_BLOCK_SIZE", bs)
	kr.SetDefine("MASS_BLOCKS", min((kr.KpartMax*op.np+bs-1)/bs, maxMassBlocks))

	// stress: geometry, then inputs uploaded per launch, then outputs
	stress := []*runner.ParamConfig{}
	for _, name := range derivativeNames {
		stress = append(stress, kr.Param(name))
	}
	for _, name := range names {
		stress = append(stress, kr.Param(name))
	}
	for _, name := range fieldArrays {
		stress = append(stress, kr.Param(name).CopyTo())
	}
	for _, name := range outputArrays {
		stress = append(stress, kr.Param(name))
	}
	stressCfg, err := kr.ConfigureKernel(StressKernelName, stress...)
	if err != nil {
		return err
	}

	mass := []*runner.ParamConfig{}
	for _, name := range fieldArrays {
		mass = append(mass, kr.Param(name))
	}
	for _, name := range reactionArrays {
		mass = append(mass, kr.Param(name))
	}
	for _, name := range outputArrays {
		mass = append(mass, kr.Param(name).CopyBack())
	}
	massCfg, err := kr.ConfigureKernel(MassKernelName, mass...)
	if err != nil {
		return err
	}

	op.stressSrc = StressKernelSource(op.cfg.Strategy, stressCfg.GetSignature())
	op.massSrc = MassKernelSource(massCfg.GetSignature())
	if _, err := kr.BuildKernel(op.stressSrc, StressKernelName); err != nil {
		return err
	}
	if _, err := kr.BuildKernel(op.massSrc, MassKernelName); err != nil {
		return err
	}
	return nil
}

// columnMajorDense wraps a column-major LX*LX slice as a gonum matrix.
func columnMajorDense[T Real](lx int, d []T) *mat.Dense {
	m := mat.NewDense(lx, lx, nil)
	for b := 0; b < lx; b++ {
		for a := 0; a < lx; a++ {
			m.Set(a, b, float64(d[a+b*lx]))
		}
	}
	return m
}

// Config returns the configuration with defaults applied.
func (op *DeviceOperator[T]) Config() Config { return op.cfg }

// NumElements is the element count over all partitions.
func (op *DeviceOperator[T]) NumElements() int { return op.nelem }

// NumNodes is the required length of each field component.
func (op *DeviceOperator[T]) NumNodes() int { return op.nelem * op.np }

// Apply overwrites out with the full operator action on in.
func (op *DeviceOperator[T]) Apply(out, in Field[T]) error {
	if err := op.stage(out, in); err != nil {
		return err
	}
	if err := op.kr.ExecuteKernel(StressKernelName); err != nil {
		return fmt.Errorf("stress kernel: %w", err)
	}
	if err := op.kr.ExecuteKernel(MassKernelName); err != nil {
		return fmt.Errorf("mass kernel: %w", err)
	}
	op.unstage(out)
	return nil
}

// ApplyStress overwrites out with the stress action only.
func (op *DeviceOperator[T]) ApplyStress(out, in Field[T]) error {
	if err := op.stage(out, in); err != nil {
		return err
	}
	if err := op.kr.ExecuteKernel(StressKernelName); err != nil {
		return fmt.Errorf("stress kernel: %w", err)
	}
	for _, name := range outputArrays {
		if err := op.kr.CopyFromDevice(name); err != nil {
			return fmt.Errorf("stress kernel: %w", err)
		}
	}
	op.unstage(out)
	return nil
}

func (op *DeviceOperator[T]) stage(out, in Field[T]) error {
	n := op.NumNodes()
	if err := checkField("input", in, n); err != nil {
		return err
	}
	if err := checkField("output", out, n); err != nil {
		return err
	}
	copy(op.in.U, in.U)
	copy(op.in.V, in.V)
	copy(op.in.W, in.W)
	return nil
}

func (op *DeviceOperator[T]) unstage(out Field[T]) {
	copy(out.U, op.out.U)
	copy(out.V, op.out.V)
	copy(out.W, op.out.W)
}

// StressSource returns the full stress kernel source, preamble included,
// as it was compiled.
func (op *DeviceOperator[T]) StressSource() string {
	return op.kr.KernelPreamble + "\n" + op.stressSrc
}

// MassSource returns the full mass kernel source as it was compiled.
func (op *DeviceOperator[T]) MassSource() string {
	return op.kr.KernelPreamble + "\n" + op.massSrc
}

// Free releases the device memory and kernels.
func (op *DeviceOperator[T]) Free() {
	op.kr.Free()
}
