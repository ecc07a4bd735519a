package qstore

import (
	"fmt"
	"strings"

	"github.com/samcharles93/crucible/internal/device"
	"github.com/samcharles93/crucible/internal/tensor"
	"github.com/samcharles93/crucible/pkg/qblock"
)

// Strategy selects how the vector fast path multiplies. The choice changes
// rounding, not meaning: the two kernel families are numerically close but
// never bit-equal.
type Strategy uint8

const (
	// StrategyAuto picks the quantized-dot path when the scheme has one,
	// falling back to on-the-fly dequantization.
	StrategyAuto Strategy = iota

	// StrategyDequantize decodes each weight row and dots it against the
	// float vector.
	StrategyDequantize

	// StrategyQuantizedDot encodes the vector as q8_1 once, then reduces
	// packed weights against packed activation.
	StrategyQuantizedDot
)

func (st Strategy) String() string {
	switch st {
	case StrategyDequantize:
		return "dequantize"
	case StrategyQuantizedDot:
		return "quantized-dot"
	default:
		return "auto"
	}
}

// ParseStrategy reads a strategy name from flags or config. The kernel
// family names dmmv and mmvq are accepted as aliases.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return StrategyAuto, nil
	case "dequantize", "dmmv":
		return StrategyDequantize, nil
	case "quantized-dot", "mmvq":
		return StrategyQuantizedDot, nil
	default:
		return 0, fmt.Errorf("unknown strategy %q (expected auto, dequantize, or quantized-dot)", name)
	}
}

// matVec multiplies the rows x cols quantized matrix by the float vector in
// rhs, writing rows float32 results into a fresh buffer. rhs is already
// validated as a contiguous f32 vector of cols elements.
func (s *Storage) matVec(rhs *tensor.Tensor, rows, cols int, strategy Strategy) (device.Buffer, error) {
	bs := s.scheme.BlockSize()
	if cols <= 0 || cols%bs != 0 {
		return nil, fmt.Errorf("%w: %d columns is not whole %s blocks of %d", ErrShapeMismatch, cols, s.scheme, bs)
	}
	if capacity := s.buf.Size() / s.scheme.TypeSize() * bs; capacity < rows*cols {
		return nil, fmt.Errorf("%w: storage holds %d elements, %dx%d matrix needs %d",
			ErrShapeMismatch, capacity, rows, cols, rows*cols)
	}

	eff := strategy
	if eff == StrategyAuto {
		if _, ok := device.MmvqLaunch(s.scheme, cols, rows); ok {
			eff = StrategyQuantizedDot
		} else {
			eff = StrategyDequantize
		}
	}
	switch eff {
	case StrategyDequantize:
		return s.dmmv(rhs, rows, cols)
	case StrategyQuantizedDot:
		return s.mmvq(rhs, rows, cols)
	default:
		return nil, fmt.Errorf("qstore: unknown strategy %d", strategy)
	}
}

func (s *Storage) dmmv(rhs *tensor.Tensor, rows, cols int) (device.Buffer, error) {
	l, ok := device.DmmvLaunch(s.scheme, cols, rows)
	if !ok {
		return nil, fmt.Errorf("%w: no dequantizing matvec kernel for %s", ErrUnsupportedDtype, s.scheme)
	}
	dst, err := s.dev.Alloc(4 * rows)
	if err != nil {
		return nil, err
	}
	if err := s.dev.Launch(l.Kernel, l.Config, []device.Buffer{s.buf, rhs.Buf, dst}, l.Scalars); err != nil {
		dst.Free()
		return nil, err
	}
	return dst, nil
}

func (s *Storage) mmvq(rhs *tensor.Tensor, rows, cols int) (device.Buffer, error) {
	ml, ok := device.MmvqLaunch(s.scheme, cols, rows)
	if !ok {
		return nil, fmt.Errorf("%w: no quantized-dot kernel for %s", ErrUnsupportedDtype, s.scheme)
	}

	// Encode the activation once. The quantize kernel runs over the padded
	// extent and zero fills past cols, so every block it writes is defined.
	ql := device.QuantizeQ8_1Launch(cols)
	padded := int(ql.Scalars[1])
	yq, err := s.dev.Alloc(qblock.Q8_1.StorageSize(padded))
	if err != nil {
		return nil, err
	}
	defer yq.Free()
	if err := s.dev.Launch(ql.Kernel, ql.Config, []device.Buffer{rhs.Buf, yq}, ql.Scalars); err != nil {
		return nil, err
	}

	dst, err := s.dev.Alloc(4 * rows)
	if err != nil {
		return nil, err
	}
	if err := s.dev.Launch(ml.Kernel, ml.Config, []device.Buffer{s.buf, yq, dst}, ml.Scalars); err != nil {
		dst.Free()
		return nil, err
	}
	return dst, nil
}
