package qblock

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrLength reports an element count that is not a whole number of blocks.
	ErrLength = errors.New("qblock: element count not a multiple of block size")
	// ErrPayload reports a packed payload whose byte length does not match the
	// element count it claims to encode.
	ErrPayload = errors.New("qblock: payload size mismatch")
)

// Decode expands a packed payload into elemCount float32 values.
func Decode(s Scheme, packed []byte, elemCount int) ([]float32, error) {
	out := make([]float32, elemCount)
	if err := DecodeInto(s, packed, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeInto decodes packed into out. len(out) must be a multiple of the
// scheme's block size and packed must hold exactly the matching blocks.
func DecodeInto(s Scheme, packed []byte, out []float32) error {
	bs := s.BlockSize()
	if len(out)%bs != 0 {
		return fmt.Errorf("%w: %s decode of %d elements (block size %d)", ErrLength, s, len(out), bs)
	}
	if want := s.StorageSize(len(out)); len(packed) != want {
		return fmt.Errorf("%w: %s payload is %d bytes, want %d for %d elements", ErrPayload, s, len(packed), want, len(out))
	}
	ts := s.TypeSize()
	for i := 0; i < len(out)/bs; i++ {
		decodeBlock(s, packed[i*ts:(i+1)*ts], out[i*bs:(i+1)*bs])
	}
	return nil
}

// Encode packs src into freshly allocated blocks. len(src) must be a multiple
// of the scheme's block size.
func Encode(s Scheme, src []float32) ([]byte, error) {
	dst := make([]byte, s.StorageSize(len(src)))
	if err := EncodeInto(s, src, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// EncodeInto packs src into dst, which must hold exactly the matching blocks.
func EncodeInto(s Scheme, src []float32, dst []byte) error {
	bs := s.BlockSize()
	if len(src)%bs != 0 {
		return fmt.Errorf("%w: %s encode of %d elements (block size %d)", ErrLength, s, len(src), bs)
	}
	if want := s.StorageSize(len(src)); len(dst) != want {
		return fmt.Errorf("%w: %s destination is %d bytes, want %d for %d elements", ErrPayload, s, len(dst), want, len(src))
	}
	ts := s.TypeSize()
	for i := 0; i < len(src)/bs; i++ {
		encodeBlock(s, src[i*bs:(i+1)*bs], dst[i*ts:(i+1)*ts])
	}
	return nil
}

func decodeBlock(s Scheme, b []byte, out []float32) {
	switch s {
	case F32:
		out[0] = math.Float32frombits(binary.LittleEndian.Uint32(b))
	case F16:
		out[0] = f16dec(binary.LittleEndian.Uint16(b))
	case Q4_0:
		decodeQ4_0(b, out)
	case Q4_1:
		decodeQ4_1(b, out)
	case Q5_0:
		decodeQ5_0(b, out)
	case Q5_1:
		decodeQ5_1(b, out)
	case Q8_0:
		decodeQ8_0(b, out)
	case Q8_1:
		decodeQ8_1(b, out)
	case Q2_K:
		decodeQ2K(b, out)
	case Q3_K:
		decodeQ3K(b, out)
	case Q4_K:
		decodeQ4K(b, out)
	case Q5_K:
		decodeQ5K(b, out)
	case Q6_K:
		decodeQ6K(b, out)
	case Q8_K:
		decodeQ8K(b, out)
	default:
		panic(fmt.Sprintf("qblock: unknown scheme %d", uint8(s)))
	}
}

func encodeBlock(s Scheme, src []float32, b []byte) {
	switch s {
	case F32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(src[0]))
	case F16:
		binary.LittleEndian.PutUint16(b, f16enc(src[0]))
	case Q4_0:
		encodeQ4_0(src, b)
	case Q4_1:
		encodeQ4_1(src, b)
	case Q5_0:
		encodeQ5_0(src, b)
	case Q5_1:
		encodeQ5_1(src, b)
	case Q8_0:
		encodeQ8_0(src, b)
	case Q8_1:
		encodeQ8_1(src, b)
	case Q2_K:
		encodeQ2K(src, b)
	case Q3_K:
		encodeQ3K(src, b)
	case Q4_K:
		encodeQ4K(src, b)
	case Q5_K:
		encodeQ5K(src, b)
	case Q6_K:
		encodeQ6K(src, b)
	case Q8_K:
		encodeQ8K(src, b)
	default:
		panic(fmt.Sprintf("qblock: unknown scheme %d", uint8(s)))
	}
}

// nearestInt rounds half away from zero, the rule every encoder here uses.
func nearestInt(v float32) int {
	return int(math.Round(float64(v)))
}
