// Package qstore keeps quantized tensors resident on a device and runs the
// operations that touch their packed bytes: quantize, dequantize, and the
// matmul dispatcher with its two vector strategies. Block semantics come
// from pkg/qblock; launch geometry from internal/device.
package qstore

import (
	"fmt"

	"github.com/samcharles93/crucible/internal/device"
	"github.com/samcharles93/crucible/internal/tensor"
	"github.com/samcharles93/crucible/pkg/qblock"
)

// Storage is one quantized tensor in device memory: a packed payload, the
// scheme that decodes it, and the element count it represents. Methods are
// not safe for concurrent use with Quantize on the same Storage.
type Storage struct {
	dev    device.Device
	buf    device.Buffer
	scheme qblock.Scheme
	elems  int
}

// Zeros allocates storage for elemCount elements of scheme, zero filled.
// Partial trailing blocks are allocated whole.
func Zeros(dev device.Device, scheme qblock.Scheme, elemCount int) (*Storage, error) {
	if elemCount < 0 {
		return nil, fmt.Errorf("%w: %d elements", ErrUnsupportedSource, elemCount)
	}
	buf, err := dev.AllocZeros(scheme.StorageSize(elemCount))
	if err != nil {
		return nil, err
	}
	return &Storage{dev: dev, buf: buf, scheme: scheme, elems: elemCount}, nil
}

// Load uploads an existing packed payload. The payload length must match
// the scheme's storage size for elemCount exactly.
func Load(dev device.Device, scheme qblock.Scheme, payload []byte, elemCount int) (*Storage, error) {
	if elemCount < 0 {
		return nil, fmt.Errorf("%w: %d elements", ErrUnsupportedSource, elemCount)
	}
	if want := scheme.StorageSize(elemCount); len(payload) != want {
		return nil, fmt.Errorf("%w: %s payload is %d bytes, want %d for %d elements",
			qblock.ErrPayload, scheme, len(payload), want, elemCount)
	}
	buf, err := dev.Alloc(len(payload))
	if err != nil {
		return nil, err
	}
	if err := dev.CopyToDevice(buf, payload); err != nil {
		buf.Free()
		return nil, err
	}
	return &Storage{dev: dev, buf: buf, scheme: scheme, elems: elemCount}, nil
}

// Scheme returns the block format of the packed payload.
func (s *Storage) Scheme() qblock.Scheme {
	return s.scheme
}

// ElemCount returns the number of logical elements stored.
func (s *Storage) ElemCount() int {
	return s.elems
}

// SizeInBytes returns the packed payload size: whole blocks, including a
// partial trailing block rounded up.
func (s *Storage) SizeInBytes() int {
	return s.scheme.StorageSize(s.elems)
}

// Device returns the device the payload lives on.
func (s *Storage) Device() device.Device {
	return s.dev
}

// Bytes downloads the packed payload.
func (s *Storage) Bytes() ([]byte, error) {
	out := make([]byte, s.buf.Size())
	if err := s.dev.CopyFromDevice(out, s.buf); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the device buffer. Safe to call more than once.
func (s *Storage) Close() error {
	if s.buf == nil {
		return nil
	}
	err := s.buf.Free()
	s.buf = nil
	return err
}

// Quantize encodes src into the storage scheme, replacing the payload.
// The source must be a float32 tensor holding exactly the storage's
// element count; the encode itself runs on the host.
func (s *Storage) Quantize(src *tensor.Tensor) error {
	if src.DType != tensor.F32 {
		return fmt.Errorf("%w: %s tensor", ErrUnsupportedSource, src.DType)
	}
	if src.Elems() != s.elems {
		return fmt.Errorf("%w: %d elements, storage holds %d", ErrUnsupportedSource, src.Elems(), s.elems)
	}
	vals, err := src.Floats()
	if err != nil {
		return err
	}
	return s.QuantizeFloats(vals)
}

// QuantizeFloats is Quantize for host-resident values.
func (s *Storage) QuantizeFloats(vals []float32) error {
	if len(vals) != s.elems {
		return fmt.Errorf("%w: %d values, storage holds %d elements", ErrUnsupportedSource, len(vals), s.elems)
	}
	if bs := s.scheme.BlockSize(); s.elems%bs != 0 {
		return fmt.Errorf("%w: %d elements is not whole %s blocks of %d", ErrUnsupportedDtype, s.elems, s.scheme, bs)
	}
	packed, err := qblock.Encode(s.scheme, vals)
	if err != nil {
		return err
	}
	return s.dev.CopyToDevice(s.buf, packed)
}

// Dequantize expands the payload into a device-resident float32 tensor of
// shape [elemCount]. Schemes with a device decoder take the kernel path;
// f32, f16 and q8_1 payloads decode on the host and upload.
func (s *Storage) Dequantize() (*tensor.Tensor, error) {
	if bs := s.scheme.BlockSize(); s.elems%bs != 0 {
		return nil, fmt.Errorf("%w: cannot dequantize %d elements of %s (block size %d)",
			ErrUnsupportedDtype, s.elems, s.scheme, bs)
	}
	if l, ok := device.DequantizeLaunch(s.scheme, s.elems); ok {
		out, err := s.dev.Alloc(4 * s.elems)
		if err != nil {
			return nil, err
		}
		if err := s.dev.Launch(l.Kernel, l.Config, []device.Buffer{s.buf, out}, l.Scalars); err != nil {
			out.Free()
			return nil, err
		}
		return tensor.FromBuffer(s.dev, out, tensor.F32, s.elems)
	}

	packed, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	vals, err := qblock.Decode(s.scheme, packed, s.elems)
	if err != nil {
		return nil, err
	}
	return tensor.FromFloats(s.dev, vals, s.elems)
}

// DequantizeFloats is Dequantize followed by a host download.
func (s *Storage) DequantizeFloats() ([]float32, error) {
	t, err := s.Dequantize()
	if err != nil {
		return nil, err
	}
	defer t.Close()
	return t.Floats()
}
