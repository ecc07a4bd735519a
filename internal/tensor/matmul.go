package tensor

import (
	"fmt"
	"runtime"
	"sync"

	"simd/archsimd"
)

// side is one matmul operand normalized to three axes. A rank-2 operand
// gets a batch of one with stride zero so it broadcasts for free.
type side struct {
	batch, rows, cols int
	s0, s1, s2        int
	off               int
}

func operandSide(l Layout) (side, bool) {
	switch l.Rank() {
	case 2:
		return side{
			batch: 1, rows: l.Shape[0], cols: l.Shape[1],
			s1: l.Strides[0], s2: l.Strides[1],
			off: l.Offset,
		}, true
	case 3:
		return side{
			batch: l.Shape[0], rows: l.Shape[1], cols: l.Shape[2],
			s0: l.Strides[0], s1: l.Strides[1], s2: l.Strides[2],
			off: l.Offset,
		}, true
	}
	return side{}, false
}

// MatMul multiplies a by b and returns a new contiguous float32 tensor on
// a's device. Operands may be rank 2 or 3; an operand with batch one is
// broadcast across the other's batch. Strides are honored on both sides,
// so a transposed or otherwise non-contiguous view multiplies directly.
// The result is rank 3 exactly when either operand is.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if a.DType != F32 || b.DType != F32 {
		return nil, fmt.Errorf("%w: matmul needs f32 operands, got %s x %s", errUnsupportedDType, a.DType, b.DType)
	}
	av, ok := operandSide(a.Layout)
	if !ok {
		return nil, fmt.Errorf("%w: rank %d operand", errMatMulShape, a.Layout.Rank())
	}
	bv, ok := operandSide(b.Layout)
	if !ok {
		return nil, fmt.Errorf("%w: rank %d operand", errMatMulShape, b.Layout.Rank())
	}
	if av.cols != bv.rows {
		return nil, fmt.Errorf("%w: %v x %v", errMatMulShape, a.Layout.Shape, b.Layout.Shape)
	}
	batch := av.batch
	switch {
	case bv.batch == batch:
	case bv.batch == 1:
		bv.batch, bv.s0 = batch, 0
	case av.batch == 1:
		batch = bv.batch
		av.batch, av.s0 = batch, 0
	default:
		return nil, fmt.Errorf("%w: batches %d and %d", errMatMulShape, av.batch, bv.batch)
	}

	araw, err := a.hostF32()
	if err != nil {
		return nil, err
	}
	braw, err := b.hostF32()
	if err != nil {
		return nil, err
	}
	if a.Layout.span() > len(araw) || b.Layout.span() > len(braw) {
		return nil, errViewOutOfRange
	}

	m, n := av.rows, bv.cols
	out := make([]float32, batch*m*n)
	total := batch * m
	workers := min(runtime.GOMAXPROCS(0), total)
	if workers <= 1 {
		matmulRange(out, araw, braw, av, bv, n, 0, total)
	} else {
		var wg sync.WaitGroup
		chunk := (total + workers - 1) / workers
		for w := range workers {
			rs := w * chunk
			re := min(rs+chunk, total)
			if rs >= re {
				break
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				matmulRange(out, araw, braw, av, bv, n, rs, re)
			}()
		}
		wg.Wait()
	}

	if a.Layout.Rank() == 2 && b.Layout.Rank() == 2 {
		return FromFloats(a.Dev, out, m, n)
	}
	return FromFloats(a.Dev, out, batch, m, n)
}

// matmulRange computes output rows [rs,re) counted across all batches.
// Rows with unit inner strides on both operands take the contiguous dot
// kernels; anything else falls back to strided gathering.
func matmulRange(dst, araw, braw []float32, a, b side, n, rs, re int) {
	k := a.cols
	for r := rs; r < re; r++ {
		bi := r / a.rows
		i := r % a.rows
		aoff := a.off + bi*a.s0 + i*a.s1
		boff := b.off + bi*b.s0
		drow := dst[r*n : r*n+n]
		if a.s2 == 1 && b.s1 == 1 {
			arow := araw[aoff : aoff+k]
			for j := 0; j < n; j++ {
				col := boff + j*b.s2
				drow[j] = dotF32(arow, braw[col:col+k])
			}
			continue
		}
		for j := 0; j < n; j++ {
			drow[j] = dotStrided(araw, aoff, a.s2, braw, boff+j*b.s2, b.s1, k)
		}
	}
}

func dotF32(x, y []float32) float32 {
	if cpu.HasAVX2 {
		return dotF32SIMD(x, y)
	}
	return dotF32Scalar(x, y)
}

func dotF32Scalar(x, y []float32) float32 {
	var sum float32
	j := 0
	for ; j+3 < len(x); j += 4 {
		sum += x[j]*y[j] + x[j+1]*y[j+1] + x[j+2]*y[j+2] + x[j+3]*y[j+3]
	}
	for ; j < len(x); j++ {
		sum += x[j] * y[j]
	}
	return sum
}

// dotF32SIMD uses a single accumulator to minimize register pressure.
func dotF32SIMD(x, y []float32) float32 {
	var acc archsimd.Float32x8
	j := 0
	for ; j+8 <= len(x); j += 8 {
		vx := archsimd.LoadFloat32x8Slice(x[j:])
		vy := archsimd.LoadFloat32x8Slice(y[j:])
		acc = acc.Add(vx.Mul(vy))
	}
	var tmp [8]float32
	acc.Store(&tmp)
	sum := tmp[0] + tmp[1] + tmp[2] + tmp[3] + tmp[4] + tmp[5] + tmp[6] + tmp[7]
	for ; j < len(x); j++ {
		sum += x[j] * y[j]
	}
	return sum
}

func dotStrided(x []float32, xo, xs int, y []float32, yo, ys, k int) float32 {
	var sum float32
	for kk := 0; kk < k; kk++ {
		sum += x[xo+kk*xs] * y[yo+kk*ys]
	}
	return sum
}
