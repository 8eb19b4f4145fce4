package builder

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// DataType represents the precision of numerical data
type DataType int

const (
	Float32 DataType = iota + 1
	Float64
	INT32
	INT64
)

// Size returns the width of one value in bytes
func (dt DataType) Size() int64 {
	switch dt {
	case Float32, INT32:
		return 4
	default:
		return 8
	}
}

// IsFloat reports whether values of this type are real_t on the device
func (dt DataType) IsFloat() bool {
	return dt == Float32 || dt == Float64
}

// AlignmentType specifies memory alignment requirements
type AlignmentType int

const (
	NoAlignment    AlignmentType = 1
	CacheLineAlign AlignmentType = 64
	WarpAlign      AlignmentType = 128
	PageAlign      AlignmentType = 4096
)

// ArraySpec defines user requirements for array allocation
type ArraySpec struct {
	Name      string
	Size      int64 // bytes over all partitions, without padding
	Alignment AlignmentType
	DataType  DataType
	IsOutput  bool
}

// define is one compile time constant emitted into the preamble
type define struct {
	name, value string
}

// Builder generates the preamble shared by all kernels of a runner:
// precision typedefs, partition constants, user defines, static matrices
// and the per-array partition access macros.
type Builder struct {
	NumPartitions int
	K             []int
	KpartMax      int

	FloatType DataType
	IntType   DataType

	StaticMatrices map[string]mat.Matrix

	// AllocatedArrays is in allocation order, which is also the order of
	// the generated kernel arguments.
	AllocatedArrays []string

	defines []define

	KernelPreamble string
}

// Config holds configuration for creating a Builder
type Config struct {
	K         []int
	FloatType DataType
	IntType   DataType
}

// NewBuilder creates a new Builder instance
func NewBuilder(cfg Config) *Builder {
	if len(cfg.K) == 0 {
		panic("K array cannot be empty")
	}
	kpartMax := 0
	for _, k := range cfg.K {
		if k > kpartMax {
			kpartMax = k
		}
	}
	floatType := cfg.FloatType
	if floatType == 0 {
		floatType = Float64
	}
	intType := cfg.IntType
	if intType == 0 {
		intType = INT64
	}
	kb := &Builder{
		NumPartitions:   len(cfg.K),
		K:               make([]int, len(cfg.K)),
		KpartMax:        kpartMax,
		FloatType:       floatType,
		IntType:         intType,
		StaticMatrices:  make(map[string]mat.Matrix),
		AllocatedArrays: []string{},
	}
	copy(kb.K, cfg.K)
	return kb
}

// AddStaticMatrix adds a matrix to be embedded as static const in Kernels
func (kb *Builder) AddStaticMatrix(name string, m mat.Matrix) {
	kb.StaticMatrices[name] = m
}

// SetDefine adds or replaces a #define emitted ahead of every kernel.
// Defines keep the order of their first definition.
func (kb *Builder) SetDefine(name string, value interface{}) {
	v := fmt.Sprint(value)
	for i := range kb.defines {
		if kb.defines[i].name == name {
			kb.defines[i].value = v
			return
		}
	}
	kb.defines = append(kb.defines, define{name: name, value: v})
}

// CalculateAlignedOffsetsAndSize computes partition offsets with alignment.
// Offsets are in values, not bytes, so that ptr + offset addresses the
// first value of a partition.
func (kb *Builder) CalculateAlignedOffsetsAndSize(spec ArraySpec) (
	[]int64, int64) {
	offsets := make([]int64, kb.NumPartitions+1)
	totalElements := kb.GetTotalElements()
	valueSize := spec.DataType.Size()
	valuesPerElement := spec.Size / int64(totalElements) / valueSize

	alignment := int64(spec.Alignment)
	if alignment == 0 {
		alignment = int64(NoAlignment)
	}
	align := func(off int64) int64 {
		if off%alignment != 0 {
			off = ((off + alignment - 1) / alignment) * alignment
		}
		return off
	}

	currentByteOffset := int64(0)
	for i := 0; i < kb.NumPartitions; i++ {
		currentByteOffset = align(currentByteOffset)
		offsets[i] = currentByteOffset / valueSize
		currentByteOffset += int64(kb.K[i]) * valuesPerElement * valueSize
	}
	currentByteOffset = align(currentByteOffset)
	offsets[kb.NumPartitions] = currentByteOffset / valueSize

	return offsets, offsets[kb.NumPartitions] * valueSize
}

// GetTotalElements returns sum of all K values
func (kb *Builder) GetTotalElements() int {
	total := 0
	for _, k := range kb.K {
		total += k
	}
	return total
}

// GeneratePreamble generates the kernel preamble with static data and utilities
func (kb *Builder) GeneratePreamble() string {
	var sb strings.Builder
	sb.WriteString(kb.generateTypeDefinitions())
	sb.WriteString(kb.generateDefines())
	sb.WriteString(kb.generateStaticMatrices())
	sb.WriteString(kb.generatePartitionMacros())
	kb.KernelPreamble = sb.String()
	return kb.KernelPreamble
}

func (kb *Builder) RealTypeName() string {
	if kb.FloatType == Float32 {
		return "float"
	}
	return "double"
}

func (kb *Builder) IntTypeName() string {
	if kb.IntType == INT32 {
		return "int"
	}
	return "long"
}

func (kb *Builder) generateTypeDefinitions() string {
	var sb strings.Builder
	floatSuffix := ""
	if kb.FloatType == Float32 {
		floatSuffix = "f"
	}

	sb.WriteString(fmt.Sprintf("typedef %s real_t;\n", kb.RealTypeName()))
	sb.WriteString(fmt.Sprintf("typedef %s int_t;\n", kb.IntTypeName()))
	sb.WriteString(fmt.Sprintf("#define REAL_ZERO 0.0%s\n", floatSuffix))
	sb.WriteString(fmt.Sprintf("#define REAL_ONE 1.0%s\n", floatSuffix))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("#define NPART %d\n", kb.NumPartitions))
	sb.WriteString(fmt.Sprintf("#define KpartMax %d\n", kb.KpartMax))
	sb.WriteString("\n")
	return sb.String()
}

func (kb *Builder) generateDefines() string {
	if len(kb.defines) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, d := range kb.defines {
		sb.WriteString(fmt.Sprintf("#define %s %s\n", d.name, d.value))
	}
	sb.WriteString("\n")
	return sb.String()
}

// generateStaticMatrices emits the matrices sorted by name so that the
// preamble, and with it the kernel cache key, is deterministic.
func (kb *Builder) generateStaticMatrices() string {
	if len(kb.StaticMatrices) == 0 {
		return ""
	}
	names := make([]string, 0, len(kb.StaticMatrices))
	for name := range kb.StaticMatrices {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("// Static matrices\n")
	for _, name := range names {
		sb.WriteString(kb.formatStaticMatrix(name, kb.StaticMatrices[name]))
	}
	return sb.String()
}

// formatStaticMatrix writes m as a [cols][rows] C array, so NAME[j][i] is
// m(i,j) and the data is column-major in memory.
func (kb *Builder) formatStaticMatrix(name string, m mat.Matrix) string {
	rows, cols := m.Dims()
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("// Matrix %s stored in column-major format\n", name))
	sb.WriteString(fmt.Sprintf("const %s %s[%d][%d] = {\n", kb.RealTypeName(), name, cols, rows))
	for j := 0; j < cols; j++ {
		sb.WriteString("    {")
		for i := 0; i < rows; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			val := m.At(i, j)
			if kb.FloatType == Float32 {
				sb.WriteString(fmt.Sprintf("%.7ef", val))
			} else {
				sb.WriteString(fmt.Sprintf("%.15e", val))
			}
		}
		sb.WriteString("}")
		if j < cols-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("};\n\n")
	return sb.String()
}

func (kb *Builder) generatePartitionMacros() string {
	if len(kb.AllocatedArrays) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("// Partition access macros\n")
	for _, arrayName := range kb.AllocatedArrays {
		sb.WriteString(fmt.Sprintf("#define %s_PART(part) (%s_global + %s_offsets[part])\n",
			arrayName, arrayName, arrayName))
	}
	sb.WriteString("\n")
	return sb.String()
}

// GetIntSize returns the size of the integer type in bytes
func (kb *Builder) GetIntSize() int {
	return int(kb.IntType.Size())
}
