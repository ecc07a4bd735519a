package qstore

import (
	"fmt"

	"github.com/samcharles93/crucible/internal/tensor"
)

// Forward multiplies the storage, viewed as a rows x cols row-major matrix,
// by rhs. A rhs shaped [1, k] or [1, 1, k] takes the vector fast path and
// the output mirrors the input pattern with k replaced by rows. Any other
// rank-2 or rank-3 rhs takes the dequantize-and-matmul path, broadcasting
// the weights across a leading batch. Everything else is rejected.
func (s *Storage) Forward(rows, cols int, rhs *tensor.Tensor, strategy Strategy) (*tensor.Tensor, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: %dx%d matrix", ErrShapeMismatch, rows, cols)
	}
	shape := rhs.Layout.Shape

	vector := false
	switch len(shape) {
	case 2:
		vector = shape[0] == 1
	case 3:
		vector = shape[0] == 1 && shape[1] == 1
	default:
		return nil, fmt.Errorf("%w: rank %d input", ErrUnsupportedShape, len(shape))
	}

	k := shape[len(shape)-1]
	if k != cols {
		return nil, fmt.Errorf("%w: input inner dimension %d, matrix has %d columns", ErrDimensionMismatch, k, cols)
	}
	if rhs.DType != tensor.F32 {
		return nil, fmt.Errorf("%w: %s activations", ErrUnsupportedDtype, rhs.DType)
	}

	if vector {
		// The kernels read the activation buffer from element zero, so a
		// view with an offset or gaps has to be ruled out here.
		if rhs.Layout.Offset != 0 || !rhs.Layout.IsContiguous() {
			return nil, fmt.Errorf("%w: strided vector input", ErrRequiresContiguous)
		}
		dst, err := s.matVec(rhs, rows, cols, strategy)
		if err != nil {
			return nil, err
		}
		outShape := []int{1, rows}
		if len(shape) == 3 {
			outShape = []int{1, 1, rows}
		}
		out, err := tensor.FromBuffer(s.dev, dst, tensor.F32, outShape...)
		if err != nil {
			dst.Free()
			return nil, err
		}
		return out, nil
	}

	if s.elems < rows*cols {
		return nil, fmt.Errorf("%w: storage holds %d elements, %dx%d matrix needs %d",
			ErrShapeMismatch, s.elems, rows, cols, rows*cols)
	}
	weights, err := s.Dequantize()
	if err != nil {
		return nil, err
	}
	defer weights.Close()

	// The decoded buffer is the row-major matrix; viewing it as [k, rows]
	// with strides [1, cols] is the transpose the product needs, without
	// moving a byte.
	view := &tensor.Tensor{
		Dev: s.dev, Buf: weights.Buf, DType: tensor.F32,
		Layout: tensor.Layout{Shape: []int{cols, rows}, Strides: []int{1, cols}},
	}
	return tensor.MatMul(rhs, view)
}
