package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"runtime"

	"github.com/x448/float16"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/crucible/pkg/qblock"
)

// Host kernel bodies. Each one reproduces the work assignment of its device
// counterpart: grid block x covers the same element or row range, so a launch
// plan built in kernels.go means the same thing on every device. Block
// layouts accessed by offset here match pkg/qblock exactly.

// Q8_1 activation block: f16 scale, f16 scaled code sum, 32 int8 codes.
const (
	q81Size  = 36
	q81Codes = 4
)

func loadF32(b []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
}

func storeF32(b []byte, i int, v float32) {
	binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
}

func f16at(b []byte, off int) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(b[off:])).Float32()
}

func forEachGridBlock(gridX int, fn func(x int) error) error {
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for x := 0; x < gridX; x++ {
		g.Go(func() error { return fn(x) })
	}
	return g.Wait()
}

func runKernel(k Kernel, cfg LaunchConfig, bufs [][]byte, scalars []int32) error {
	switch k {
	case QuantizeQ8_1:
		return runQuantizeQ8_1(cfg, bufs, scalars)
	case DequantQ4_0, DequantQ4_1, DequantQ5_0, DequantQ5_1, DequantQ8_0,
		DequantQ2_K, DequantQ3_K, DequantQ4_K, DequantQ5_K, DequantQ6_K, DequantQ8_K:
		return runDequantize(k, cfg, bufs, scalars)
	case DmmvQ4_0, DmmvQ4_1, DmmvQ5_0, DmmvQ5_1, DmmvQ8_0,
		DmmvQ2_K, DmmvQ3_K, DmmvQ4_K, DmmvQ5_K, DmmvQ6_K:
		return runDmmv(k, cfg, bufs, scalars)
	case MmvqQ4_0, MmvqQ4_1, MmvqQ5_0, MmvqQ5_1, MmvqQ8_0,
		MmvqQ2_K, MmvqQ3_K, MmvqQ4_K, MmvqQ5_K, MmvqQ6_K:
		return runMmvq(k, cfg, bufs, scalars)
	}
	return fmt.Errorf("kernel %d has no host body", uint8(k))
}

func kernelScheme(k Kernel) qblock.Scheme {
	switch k {
	case DequantQ4_0, DmmvQ4_0, MmvqQ4_0:
		return qblock.Q4_0
	case DequantQ4_1, DmmvQ4_1, MmvqQ4_1:
		return qblock.Q4_1
	case DequantQ5_0, DmmvQ5_0, MmvqQ5_0:
		return qblock.Q5_0
	case DequantQ5_1, DmmvQ5_1, MmvqQ5_1:
		return qblock.Q5_1
	case DequantQ8_0, DmmvQ8_0, MmvqQ8_0:
		return qblock.Q8_0
	case DequantQ2_K, DmmvQ2_K, MmvqQ2_K:
		return qblock.Q2_K
	case DequantQ3_K, DmmvQ3_K, MmvqQ3_K:
		return qblock.Q3_K
	case DequantQ4_K, DmmvQ4_K, MmvqQ4_K:
		return qblock.Q4_K
	case DequantQ5_K, DmmvQ5_K, MmvqQ5_K:
		return qblock.Q5_K
	case DequantQ6_K, DmmvQ6_K, MmvqQ6_K:
		return qblock.Q6_K
	case DequantQ8_K:
		return qblock.Q8_K
	}
	panic(fmt.Sprintf("device: no scheme for kernel %d", uint8(k)))
}

// runQuantizeQ8_1 encodes kx floats into Q8_1 blocks, zero-filling the tail
// up to kx_padded. One grid block covers QuantizeBlockSize elements.
func runQuantizeQ8_1(cfg LaunchConfig, bufs [][]byte, scalars []int32) error {
	if len(bufs) != 2 {
		return fmt.Errorf("want 2 buffers, got %d", len(bufs))
	}
	if len(scalars) != 2 {
		return fmt.Errorf("want scalars (kx, kx_padded), got %d", len(scalars))
	}
	src, dst := bufs[0], bufs[1]
	kx, padded := int(scalars[0]), int(scalars[1])
	if kx < 0 || padded < kx || padded%qblock.QK != 0 {
		return fmt.Errorf("bad extents kx=%d kx_padded=%d", kx, padded)
	}
	if len(src) < 4*kx {
		return fmt.Errorf("source holds %d bytes, need %d", len(src), 4*kx)
	}
	nb := padded / qblock.QK
	if len(dst) < nb*q81Size {
		return fmt.Errorf("destination holds %d bytes, need %d", len(dst), nb*q81Size)
	}

	blocksPerGrid := QuantizeBlockSize / qblock.QK
	return forEachGridBlock(cfg.Grid.X, func(x int) error {
		var tmp [qblock.QK]float32
		last := (x + 1) * blocksPerGrid
		if last > nb {
			last = nb
		}
		for ib := x * blocksPerGrid; ib < last; ib++ {
			for j := range tmp {
				if i := ib*qblock.QK + j; i < kx {
					tmp[j] = loadF32(src, i)
				} else {
					tmp[j] = 0
				}
			}
			if err := qblock.EncodeInto(qblock.Q8_1, tmp[:], dst[ib*q81Size:(ib+1)*q81Size]); err != nil {
				return err
			}
		}
		return nil
	})
}

func runDequantize(k Kernel, cfg LaunchConfig, bufs [][]byte, scalars []int32) error {
	if len(bufs) != 2 {
		return fmt.Errorf("want 2 buffers, got %d", len(bufs))
	}
	s := kernelScheme(k)
	packed, out := bufs[0], bufs[1]

	// Elements covered by one grid block, and the element count the launch
	// is allowed to write. Non-K kernels carry the count as a scalar; the
	// K kernels derive it from the grid.
	span := 256
	count := cfg.Grid.X * span
	switch k {
	case DequantQ4_0, DequantQ4_1, DequantQ8_0:
		if len(scalars) != 1 {
			return fmt.Errorf("want scalar (nb32), got %d scalars", len(scalars))
		}
		count = int(scalars[0]) * qblock.QK
	case DequantQ5_0, DequantQ5_1:
		if len(scalars) != 1 {
			return fmt.Errorf("want scalar (nel), got %d scalars", len(scalars))
		}
		span = 2 * DequantizeBlockSize
		count = int(scalars[0])
	default:
		if len(scalars) != 0 {
			return fmt.Errorf("want no scalars, got %d", len(scalars))
		}
	}
	if m := len(out) / 4; count > m {
		count = m
	}
	if count < 0 {
		return fmt.Errorf("bad element count %d", count)
	}
	if len(packed) < s.StorageSize(count) {
		return fmt.Errorf("payload holds %d bytes, need %d", len(packed), s.StorageSize(count))
	}

	bs, ts := s.BlockSize(), s.TypeSize()
	return forEachGridBlock(cfg.Grid.X, func(x int) error {
		lo := x * span
		if lo >= count {
			return nil
		}
		hi := lo + span
		if hi > count {
			hi = count
		}
		scratch := make([]float32, bs)
		for ib := lo / bs; ib*bs < hi; ib++ {
			if err := qblock.DecodeInto(s, packed[ib*ts:(ib+1)*ts], scratch); err != nil {
				return err
			}
			for j, v := range scratch {
				i := ib*bs + j
				if i >= hi {
					break
				}
				storeF32(out, i, v)
			}
		}
		return nil
	})
}

// runDmmv is the direct path: decode one weight row and dot it against the
// float activation. One grid block owns MmvY consecutive rows.
func runDmmv(k Kernel, cfg LaunchConfig, bufs [][]byte, scalars []int32) error {
	if len(bufs) != 3 {
		return fmt.Errorf("want 3 buffers, got %d", len(bufs))
	}
	if len(scalars) != 2 {
		return fmt.Errorf("want scalars (ncols, nrows), got %d", len(scalars))
	}
	s := kernelScheme(k)
	data, y, dst := bufs[0], bufs[1], bufs[2]
	ncols, nrows := int(scalars[0]), int(scalars[1])
	if ncols <= 0 || ncols%s.BlockSize() != 0 {
		return fmt.Errorf("ncols %d not a positive multiple of %d", ncols, s.BlockSize())
	}
	rowBytes := s.StorageSize(ncols)
	if len(data) < nrows*rowBytes {
		return fmt.Errorf("weights hold %d bytes, need %d", len(data), nrows*rowBytes)
	}
	if len(y) < 4*ncols {
		return fmt.Errorf("activation holds %d bytes, need %d", len(y), 4*ncols)
	}
	if len(dst) < 4*nrows {
		return fmt.Errorf("output holds %d bytes, need %d", len(dst), 4*nrows)
	}

	return forEachGridBlock(cfg.Grid.X, func(x int) error {
		row := make([]float32, ncols)
		for r := x * MmvY; r < (x+1)*MmvY && r < nrows; r++ {
			if err := qblock.DecodeInto(s, data[r*rowBytes:(r+1)*rowBytes], row); err != nil {
				return err
			}
			var acc float32
			for i, w := range row {
				acc += w * loadF32(y, i)
			}
			storeF32(dst, r, acc)
		}
		return nil
	})
}

// runMmvq is the quantized-dot path: the activation arrives as Q8_1 blocks
// and each weight row is reduced against it. One grid block per output row.
func runMmvq(k Kernel, cfg LaunchConfig, bufs [][]byte, scalars []int32) error {
	if len(bufs) != 3 {
		return fmt.Errorf("want 3 buffers, got %d", len(bufs))
	}
	if len(scalars) != 4 {
		return fmt.Errorf("want scalars (ncols_x, nrows_x, nrows_y, nrows_dst), got %d", len(scalars))
	}
	s := kernelScheme(k)
	data, yq, dst := bufs[0], bufs[1], bufs[2]
	ncols, nrows := int(scalars[0]), int(scalars[1])
	if ncols <= 0 || ncols%s.BlockSize() != 0 {
		return fmt.Errorf("ncols %d not a positive multiple of %d", ncols, s.BlockSize())
	}
	rowBytes := s.StorageSize(ncols)
	if len(data) < nrows*rowBytes {
		return fmt.Errorf("weights hold %d bytes, need %d", len(data), nrows*rowBytes)
	}
	if nbY := ncols / qblock.QK; len(yq) < nbY*q81Size {
		return fmt.Errorf("activation holds %d bytes, need %d", len(yq), nbY*q81Size)
	}
	if len(dst) < 4*nrows {
		return fmt.Errorf("output holds %d bytes, need %d", len(dst), 4*nrows)
	}

	var dot func(row, yq []byte, ncols int) (float32, error)
	switch k {
	case MmvqQ4_0:
		dot = mmvqDotQ4_0
	case MmvqQ4_1:
		dot = mmvqDotQ4_1
	case MmvqQ5_0:
		dot = mmvqDotQ5_0
	case MmvqQ5_1:
		dot = mmvqDotQ5_1
	case MmvqQ8_0:
		dot = mmvqDotQ8_0
	default:
		dot = func(row, yq []byte, ncols int) (float32, error) {
			return mmvqDotK(s, row, yq, ncols)
		}
	}

	return forEachGridBlock(cfg.Grid.X, func(x int) error {
		if x >= nrows {
			return nil
		}
		v, err := dot(data[x*rowBytes:(x+1)*rowBytes], yq, ncols)
		if err != nil {
			return err
		}
		storeF32(dst, x, v)
		return nil
	})
}

// The simple-scheme dots fold the affine weight map into two terms: an
// integer code product scaled by both block scales, and a correction from
// the activation block's stored code sum.

func mmvqDotQ4_0(row, yq []byte, ncols int) (float32, error) {
	const ts = 18
	var acc float32
	for ib := 0; ib*qblock.QK < ncols; ib++ {
		wb := row[ib*ts : (ib+1)*ts]
		ab := yq[ib*q81Size : (ib+1)*q81Size]
		d4 := f16at(wb, 0)
		d8, s8 := qblock.Q8_1Fields(ab)
		var sumi int32
		for j := 0; j < 16; j++ {
			q := wb[2+j]
			sumi += int32(q&0x0F)*int32(int8(ab[q81Codes+j])) +
				int32(q>>4)*int32(int8(ab[q81Codes+16+j]))
		}
		acc += d4*d8*float32(sumi) - 8*d4*s8
	}
	return acc, nil
}

func mmvqDotQ4_1(row, yq []byte, ncols int) (float32, error) {
	const ts = 20
	var acc float32
	for ib := 0; ib*qblock.QK < ncols; ib++ {
		wb := row[ib*ts : (ib+1)*ts]
		ab := yq[ib*q81Size : (ib+1)*q81Size]
		d4 := f16at(wb, 0)
		m4 := f16at(wb, 2)
		d8, s8 := qblock.Q8_1Fields(ab)
		var sumi int32
		for j := 0; j < 16; j++ {
			q := wb[4+j]
			sumi += int32(q&0x0F)*int32(int8(ab[q81Codes+j])) +
				int32(q>>4)*int32(int8(ab[q81Codes+16+j]))
		}
		acc += d4*d8*float32(sumi) + m4*s8
	}
	return acc, nil
}

func mmvqDotQ5_0(row, yq []byte, ncols int) (float32, error) {
	const ts = 22
	var acc float32
	for ib := 0; ib*qblock.QK < ncols; ib++ {
		wb := row[ib*ts : (ib+1)*ts]
		ab := yq[ib*q81Size : (ib+1)*q81Size]
		d5 := f16at(wb, 0)
		qh := binary.LittleEndian.Uint32(wb[2:6])
		d8, s8 := qblock.Q8_1Fields(ab)
		var sumi int32
		for j := 0; j < 16; j++ {
			q := wb[6+j]
			q0 := int32(q&0x0F | uint8((qh>>j)<<4)&0x10)
			q1 := int32(q>>4 | uint8(qh>>(j+12))&0x10)
			sumi += q0*int32(int8(ab[q81Codes+j])) + q1*int32(int8(ab[q81Codes+16+j]))
		}
		acc += d5*d8*float32(sumi) - 16*d5*s8
	}
	return acc, nil
}

func mmvqDotQ5_1(row, yq []byte, ncols int) (float32, error) {
	const ts = 24
	var acc float32
	for ib := 0; ib*qblock.QK < ncols; ib++ {
		wb := row[ib*ts : (ib+1)*ts]
		ab := yq[ib*q81Size : (ib+1)*q81Size]
		d5 := f16at(wb, 0)
		m5 := f16at(wb, 2)
		qh := binary.LittleEndian.Uint32(wb[4:8])
		d8, s8 := qblock.Q8_1Fields(ab)
		var sumi int32
		for j := 0; j < 16; j++ {
			q := wb[8+j]
			q0 := int32(q&0x0F | uint8((qh>>j)<<4)&0x10)
			q1 := int32(q>>4 | uint8(qh>>(j+12))&0x10)
			sumi += q0*int32(int8(ab[q81Codes+j])) + q1*int32(int8(ab[q81Codes+16+j]))
		}
		acc += d5*d8*float32(sumi) + m5*s8
	}
	return acc, nil
}

func mmvqDotQ8_0(row, yq []byte, ncols int) (float32, error) {
	const ts = 34
	var acc float32
	for ib := 0; ib*qblock.QK < ncols; ib++ {
		wb := row[ib*ts : (ib+1)*ts]
		ab := yq[ib*q81Size : (ib+1)*q81Size]
		d0 := f16at(wb, 0)
		d8, _ := qblock.Q8_1Fields(ab)
		var sumi int32
		for j := 0; j < qblock.QK; j++ {
			sumi += int32(int8(wb[2+j])) * int32(int8(ab[q81Codes+j]))
		}
		acc += d0 * d8 * float32(sumi)
	}
	return acc, nil
}

// mmvqDotK reduces a K super-block row against the quantized activation.
// The weight side decodes through the shared codec; the activation side
// stays in its quantized form, each code scaled by its block's d on the fly.
func mmvqDotK(s qblock.Scheme, row, yq []byte, ncols int) (float32, error) {
	ts := s.TypeSize()
	scratch := make([]float32, qblock.QKK)
	var acc float32
	for sb := 0; sb*qblock.QKK < ncols; sb++ {
		if err := qblock.DecodeInto(s, row[sb*ts:(sb+1)*ts], scratch); err != nil {
			return 0, err
		}
		for c := 0; c < qblock.QKK/qblock.QK; c++ {
			ib := sb*(qblock.QKK/qblock.QK) + c
			ab := yq[ib*q81Size : (ib+1)*q81Size]
			d8, _ := qblock.Q8_1Fields(ab)
			var sum float32
			for j := 0; j < qblock.QK; j++ {
				sum += scratch[c*qblock.QK+j] * float32(int8(ab[q81Codes+j]))
			}
			acc += d8 * sum
		}
	}
	return acc, nil
}
