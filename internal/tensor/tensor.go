// Package tensor provides dense tensors that live in device memory: explicit
// strided layouts over a device buffer, float32 round trips to the host, and
// a batched matmul that honors views without materializing them.
package tensor

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/samcharles93/crucible/internal/device"
)

// DType identifies the element encoding of a tensor buffer.
type DType uint8

const (
	F32 DType = iota
	F16
)

// Size returns the byte width of one element.
func (d DType) Size() int {
	if d == F16 {
		return 2
	}
	return 4
}

func (d DType) String() string {
	if d == F16 {
		return "f16"
	}
	return "f32"
}

// Tensor is a typed view over one device allocation. The zero value is not
// usable; construct through FromFloats, FromRaw or FromBuffer, or build a
// view by pairing an existing buffer with a new Layout.
type Tensor struct {
	Dev    device.Device
	Buf    device.Buffer
	DType  DType
	Layout Layout
}

var (
	errNegativeDim      = fmtError("tensor: negative dimension")
	errTensorTooLarge   = fmtError("tensor: shape overflows int")
	errUnsupportedDType = fmtError("tensor: unsupported dtype")
	errRawSizeMismatch  = fmtError("tensor: raw data length mismatch")
	errValueCount       = fmtError("tensor: value count does not match shape")
	errViewOutOfRange   = fmtError("tensor: view exceeds buffer")
	errMatMulShape      = fmtError("tensor: matmul shape mismatch")
)

type fmtError string

func (e fmtError) Error() string { return string(e) }

// checkShape validates dimensions and returns the element and byte counts.
func checkShape(dt DType, shape []int) (elems, bytes int, err error) {
	elems = 1
	for _, d := range shape {
		if d < 0 {
			return 0, 0, fmt.Errorf("%w: %d", errNegativeDim, d)
		}
		if d > 0 && elems > math.MaxInt/d {
			return 0, 0, errTensorTooLarge
		}
		elems *= d
	}
	size := dt.Size()
	if elems > math.MaxInt/size {
		return 0, 0, errTensorTooLarge
	}
	return elems, elems * size, nil
}

// FromFloats uploads vals to dev as a contiguous float32 tensor of the
// given shape.
func FromFloats(dev device.Device, vals []float32, shape ...int) (*Tensor, error) {
	elems, bytes, err := checkShape(F32, shape)
	if err != nil {
		return nil, err
	}
	if len(vals) != elems {
		return nil, fmt.Errorf("%w: %d values for shape %v", errValueCount, len(vals), shape)
	}
	raw := make([]byte, bytes)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	return upload(dev, F32, raw, shape)
}

// FromRaw uploads a little-endian element buffer to dev as a contiguous
// tensor. This is the only way to build an f16 tensor.
func FromRaw(dev device.Device, dt DType, raw []byte, shape ...int) (*Tensor, error) {
	if dt != F32 && dt != F16 {
		return nil, errUnsupportedDType
	}
	_, bytes, err := checkShape(dt, shape)
	if err != nil {
		return nil, err
	}
	if len(raw) != bytes {
		return nil, fmt.Errorf("%w: %d bytes for shape %v %s", errRawSizeMismatch, len(raw), shape, dt)
	}
	return upload(dev, dt, raw, shape)
}

// FromBuffer wraps an existing device allocation without copying. The
// buffer must be at least as large as the shape requires and stays owned
// by the returned tensor.
func FromBuffer(dev device.Device, buf device.Buffer, dt DType, shape ...int) (*Tensor, error) {
	_, bytes, err := checkShape(dt, shape)
	if err != nil {
		return nil, err
	}
	if buf.Size() < bytes {
		return nil, fmt.Errorf("%w: buffer holds %d bytes, shape %v needs %d", errRawSizeMismatch, buf.Size(), shape, bytes)
	}
	return &Tensor{Dev: dev, Buf: buf, DType: dt, Layout: Contiguous(shape...)}, nil
}

func upload(dev device.Device, dt DType, raw []byte, shape []int) (*Tensor, error) {
	buf, err := dev.Alloc(len(raw))
	if err != nil {
		return nil, err
	}
	if err := dev.CopyToDevice(buf, raw); err != nil {
		buf.Free()
		return nil, err
	}
	return &Tensor{Dev: dev, Buf: buf, DType: dt, Layout: Contiguous(shape...)}, nil
}

// Shape returns the tensor dimensions. The slice is shared, not copied.
func (t *Tensor) Shape() []int {
	return t.Layout.Shape
}

func (t *Tensor) Elems() int {
	return t.Layout.Elems()
}

// Floats downloads the tensor and returns its elements as float32 in
// row-major coordinate order, decoding halves when the tensor is f16.
// Views gather through their strides.
func (t *Tensor) Floats() ([]float32, error) {
	linear, err := t.hostF32()
	if err != nil {
		return nil, err
	}
	l := t.Layout
	if l.span() > len(linear) {
		return nil, errViewOutOfRange
	}
	if l.Offset == 0 && l.IsContiguous() {
		return linear[:l.Elems()], nil
	}
	return gather(linear, l), nil
}

// Close releases the device buffer. Safe to call more than once.
func (t *Tensor) Close() error {
	if t.Buf == nil {
		return nil
	}
	err := t.Buf.Free()
	t.Buf = nil
	return err
}

// hostF32 downloads the full backing buffer and widens it to float32
// element by element, preserving linear indices so strides stay valid.
func (t *Tensor) hostF32() ([]float32, error) {
	raw := make([]byte, t.Buf.Size())
	if err := t.Dev.CopyFromDevice(raw, t.Buf); err != nil {
		return nil, err
	}
	switch t.DType {
	case F32:
		out := make([]float32, len(raw)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case F16:
		out := make([]float32, len(raw)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
		return out, nil
	}
	return nil, errUnsupportedDType
}

// gather walks the layout in row-major coordinate order, copying elements
// out of the linear buffer. The odometer carries the running offset so no
// per-element index math is needed.
func gather(src []float32, l Layout) []float32 {
	out := make([]float32, l.Elems())
	if len(out) == 0 {
		return out
	}
	coords := make([]int, l.Rank())
	off := l.Offset
	for i := range out {
		out[i] = src[off]
		for ax := l.Rank() - 1; ax >= 0; ax-- {
			coords[ax]++
			off += l.Strides[ax]
			if coords[ax] < l.Shape[ax] {
				break
			}
			off -= l.Strides[ax] * l.Shape[ax]
			coords[ax] = 0
		}
	}
	return out
}
