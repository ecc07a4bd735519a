package qstore

import "errors"

var (
	// ErrUnsupportedDtype reports an operation the storage scheme cannot
	// serve: no kernel or decoder exists, or the element count cannot be
	// expressed in whole blocks.
	ErrUnsupportedDtype = errors.New("qstore: unsupported dtype for operation")

	// ErrUnsupportedSource reports a Quantize source that is not a dense
	// float32 tensor of the storage's exact element count.
	ErrUnsupportedSource = errors.New("qstore: unsupported quantization source")

	// ErrShapeMismatch reports matrix extents the storage cannot cover.
	ErrShapeMismatch = errors.New("qstore: shape mismatch")

	// ErrDimensionMismatch reports an input whose inner dimension does not
	// match the matrix column count.
	ErrDimensionMismatch = errors.New("qstore: dimension mismatch")

	// ErrRequiresContiguous reports a strided vector input on the fast
	// vector path, which reads the device buffer directly.
	ErrRequiresContiguous = errors.New("qstore: vector input must be contiguous")

	// ErrUnsupportedShape reports an input rank the dispatcher does not
	// route.
	ErrUnsupportedShape = errors.New("qstore: unsupported input shape")
)
