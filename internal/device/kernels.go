package device

import (
	"fmt"

	"github.com/samcharles93/crucible/pkg/qblock"
)

// Kernel tags one entry of the closed kernel table. Dispatch is by tag, never
// by string; the symbol names below exist so an accelerator adapter can
// resolve the matching functions in its compiled kernel library.
type Kernel uint8

const (
	QuantizeQ8_1 Kernel = iota

	DequantQ4_0
	DequantQ4_1
	DequantQ5_0
	DequantQ5_1
	DequantQ8_0
	DequantQ2_K
	DequantQ3_K
	DequantQ4_K
	DequantQ5_K
	DequantQ6_K
	DequantQ8_K

	DmmvQ4_0
	DmmvQ4_1
	DmmvQ5_0
	DmmvQ5_1
	DmmvQ8_0
	DmmvQ2_K
	DmmvQ3_K
	DmmvQ4_K
	DmmvQ5_K
	DmmvQ6_K

	MmvqQ4_0
	MmvqQ4_1
	MmvqQ5_0
	MmvqQ5_1
	MmvqQ8_0
	MmvqQ2_K
	MmvqQ3_K
	MmvqQ4_K
	MmvqQ5_K
	MmvqQ6_K

	kernelCount
)

// Descriptor is the fixed per-kernel record: the device symbol and the
// thread-block shape every launch of the kernel uses.
type Descriptor struct {
	Symbol string
	Block  Dim3
}

var descriptors = [kernelCount]Descriptor{
	QuantizeQ8_1: {"quantize_q8_1", Dim3{QuantizeBlockSize, 1, 1}},

	DequantQ4_0: {"dequantize_block_q4_0", Dim3{32, 1, 1}},
	DequantQ4_1: {"dequantize_block_q4_1", Dim3{32, 1, 1}},
	DequantQ5_0: {"dequantize_block_q5_0", Dim3{DequantizeBlockSize, 1, 1}},
	DequantQ5_1: {"dequantize_block_q5_1", Dim3{DequantizeBlockSize, 1, 1}},
	DequantQ8_0: {"dequantize_block_q8_0", Dim3{32, 1, 1}},
	DequantQ2_K: {"dequantize_block_q2_K", Dim3{64, 1, 1}},
	DequantQ3_K: {"dequantize_block_q3_K", Dim3{64, 1, 1}},
	DequantQ4_K: {"dequantize_block_q4_K", Dim3{32, 1, 1}},
	DequantQ5_K: {"dequantize_block_q5_K", Dim3{64, 1, 1}},
	DequantQ6_K: {"dequantize_block_q6_K", Dim3{64, 1, 1}},
	DequantQ8_K: {"dequantize_block_q8_K", Dim3{32, 1, 1}},

	DmmvQ4_0: {"dequantize_mul_mat_vec_q4_0_cuda", Dim3{WarpSize, MmvY, 1}},
	DmmvQ4_1: {"dequantize_mul_mat_vec_q4_1_cuda", Dim3{WarpSize, MmvY, 1}},
	DmmvQ5_0: {"dequantize_mul_mat_vec_q5_0_cuda", Dim3{WarpSize, MmvY, 1}},
	DmmvQ5_1: {"dequantize_mul_mat_vec_q5_1_cuda", Dim3{WarpSize, MmvY, 1}},
	DmmvQ8_0: {"dequantize_mul_mat_vec_q8_0_cuda", Dim3{WarpSize, MmvY, 1}},
	DmmvQ2_K: {"dequantize_mul_mat_vec_q2_k", Dim3{WarpSize, MmvY, 1}},
	DmmvQ3_K: {"dequantize_mul_mat_vec_q3_k", Dim3{WarpSize, MmvY, 1}},
	DmmvQ4_K: {"dequantize_mul_mat_vec_q4_k", Dim3{WarpSize, MmvY, 1}},
	DmmvQ5_K: {"dequantize_mul_mat_vec_q5_k", Dim3{WarpSize, MmvY, 1}},
	DmmvQ6_K: {"dequantize_mul_mat_vec_q6_k", Dim3{WarpSize, MmvY, 1}},

	MmvqQ4_0: {"mul_mat_vec_q4_0_q8_1_cuda", Dim3{WarpSize, 4, 1}},
	MmvqQ4_1: {"mul_mat_vec_q4_1_q8_1_cuda", Dim3{WarpSize, 4, 1}},
	MmvqQ5_0: {"mul_mat_vec_q5_0_q8_1_cuda", Dim3{WarpSize, 4, 1}},
	MmvqQ5_1: {"mul_mat_vec_q5_1_q8_1_cuda", Dim3{WarpSize, 4, 1}},
	MmvqQ8_0: {"mul_mat_vec_q8_0_q8_1_cuda", Dim3{WarpSize, 4, 1}},
	MmvqQ2_K: {"mul_mat_vec_q2_K_q8_1_cuda", Dim3{WarpSize, 4, 1}},
	MmvqQ3_K: {"mul_mat_vec_q3_K_q8_1_cuda", Dim3{WarpSize, 4, 1}},
	MmvqQ4_K: {"mul_mat_vec_q4_K_q8_1_cuda", Dim3{WarpSize, 4, 1}},
	MmvqQ5_K: {"mul_mat_vec_q5_K_q8_1_cuda", Dim3{WarpSize, 4, 1}},
	MmvqQ6_K: {"mul_mat_vec_q6_K_q8_1_cuda", Dim3{WarpSize, 4, 1}},
}

// Descriptor returns the kernel's fixed record. Out-of-range tags are a
// programming error.
func (k Kernel) Descriptor() Descriptor {
	if k >= kernelCount {
		panic(fmt.Sprintf("device: unknown kernel %d", uint8(k)))
	}
	return descriptors[k]
}

func (k Kernel) String() string {
	return k.Descriptor().Symbol
}

// Launch is a fully resolved plan for one kernel submission: the tag, its
// geometry for the requested problem size, and the scalar arguments the
// kernel expects after its buffer arguments.
type Launch struct {
	Kernel  Kernel
	Config  LaunchConfig
	Scalars []int32
}

// DequantizeLaunch plans the expansion of elemCount elements of scheme s
// into float32. ok is false for schemes without a device decoder (F32, F16
// and the activation-only Q8_1); those take the host fallback path.
// Geometry per family: the narrow 32-thread kernels cover 256 elements per
// grid block, the 5-bit kernels run 256 threads decoding two elements each,
// and the K kernels map one grid block per super-block. Non-K kernels take
// one scalar (block count in 32-element units; the 5-bit pair takes the raw
// element count), K kernels take none.
func DequantizeLaunch(s qblock.Scheme, elemCount int) (Launch, bool) {
	var k Kernel
	switch s {
	case qblock.Q4_0:
		k = DequantQ4_0
	case qblock.Q4_1:
		k = DequantQ4_1
	case qblock.Q5_0:
		k = DequantQ5_0
	case qblock.Q5_1:
		k = DequantQ5_1
	case qblock.Q8_0:
		k = DequantQ8_0
	case qblock.Q2_K:
		k = DequantQ2_K
	case qblock.Q3_K:
		k = DequantQ3_K
	case qblock.Q4_K:
		k = DequantQ4_K
	case qblock.Q5_K:
		k = DequantQ5_K
	case qblock.Q6_K:
		k = DequantQ6_K
	case qblock.Q8_K:
		k = DequantQ8_K
	default:
		return Launch{}, false
	}

	gridX := ceilDiv(elemCount, 256)
	var scalars []int32
	switch s {
	case qblock.Q5_0, qblock.Q5_1:
		gridX = ceilDiv(elemCount, 2*DequantizeBlockSize)
		scalars = []int32{int32(elemCount)}
	case qblock.Q4_0, qblock.Q4_1, qblock.Q8_0:
		scalars = []int32{int32(elemCount / 32)}
	}

	return Launch{
		Kernel: k,
		Config: LaunchConfig{
			Grid:  Dim3{gridX, 1, 1},
			Block: k.Descriptor().Block,
		},
		Scalars: scalars,
	}, true
}

// DmmvLaunch plans a direct dequantize-and-dot matrix-vector product over
// nrows rows of ncols columns. One grid block handles MmvY rows with a warp
// of threads striding the columns. Scalars are (ncols, nrows).
func DmmvLaunch(s qblock.Scheme, ncols, nrows int) (Launch, bool) {
	var k Kernel
	switch s {
	case qblock.Q4_0:
		k = DmmvQ4_0
	case qblock.Q4_1:
		k = DmmvQ4_1
	case qblock.Q5_0:
		k = DmmvQ5_0
	case qblock.Q5_1:
		k = DmmvQ5_1
	case qblock.Q8_0:
		k = DmmvQ8_0
	case qblock.Q2_K:
		k = DmmvQ2_K
	case qblock.Q3_K:
		k = DmmvQ3_K
	case qblock.Q4_K:
		k = DmmvQ4_K
	case qblock.Q5_K:
		k = DmmvQ5_K
	case qblock.Q6_K:
		k = DmmvQ6_K
	default:
		return Launch{}, false
	}
	return Launch{
		Kernel: k,
		Config: LaunchConfig{
			Grid:  Dim3{ceilDiv(nrows, MmvY), 1, 1},
			Block: k.Descriptor().Block,
		},
		Scalars: []int32{int32(ncols), int32(nrows)},
	}, true
}

// MmvqLaunch plans an integer-dominant matrix-vector product against a
// Q8_1-quantized activation row. One grid block per output row. Scalars are
// (ncols_x, nrows_x, nrows_y, nrows_dst).
func MmvqLaunch(s qblock.Scheme, ncols, nrows int) (Launch, bool) {
	var k Kernel
	switch s {
	case qblock.Q4_0:
		k = MmvqQ4_0
	case qblock.Q4_1:
		k = MmvqQ4_1
	case qblock.Q5_0:
		k = MmvqQ5_0
	case qblock.Q5_1:
		k = MmvqQ5_1
	case qblock.Q8_0:
		k = MmvqQ8_0
	case qblock.Q2_K:
		k = MmvqQ2_K
	case qblock.Q3_K:
		k = MmvqQ3_K
	case qblock.Q4_K:
		k = MmvqQ4_K
	case qblock.Q5_K:
		k = MmvqQ5_K
	case qblock.Q6_K:
		k = MmvqQ6_K
	default:
		return Launch{}, false
	}
	return Launch{
		Kernel: k,
		Config: LaunchConfig{
			Grid:  Dim3{nrows, 1, 1},
			Block: k.Descriptor().Block,
		},
		Scalars: []int32{int32(ncols), int32(nrows), int32(ncols), int32(nrows)},
	}, true
}

// QuantizeQ8_1Launch plans the activation quantization of elemCount floats
// into Q8_1 blocks padded to MatrixRowPadding elements. Scalars are
// (kx, kx_padded).
func QuantizeQ8_1Launch(elemCount int) Launch {
	padded := Pad(elemCount, MatrixRowPadding)
	return Launch{
		Kernel: QuantizeQ8_1,
		Config: LaunchConfig{
			Grid:  Dim3{ceilDiv(padded, QuantizeBlockSize), 1, 1},
			Block: descriptors[QuantizeQ8_1].Block,
		},
		Scalars: []int32{int32(elemCount), int32(padded)},
	}
}
