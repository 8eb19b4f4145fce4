package runner

import (
	"github.com/notargets/SEMKernel/runner/builder"
)

// SizeOfType returns the size in bytes of a data type
func SizeOfType(dt builder.DataType) int64 {
	return dt.Size()
}

// TypeName returns the kernel type of an array argument: real_t for
// floating point data and int_t otherwise.
func TypeName(dt builder.DataType) string {
	if dt.IsFloat() {
		return "real_t"
	}
	return "int_t"
}

// GetDataTypeFromSample returns the DataType based on a sample value
func GetDataTypeFromSample(sample interface{}) builder.DataType {
	switch sample.(type) {
	case float32:
		return builder.Float32
	case float64:
		return builder.Float64
	case int32:
		return builder.INT32
	case int64:
		return builder.INT64
	default:
		return 0
	}
}
