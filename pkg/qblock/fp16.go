package qblock

import "github.com/x448/float16"

// f16dec decodes an IEEE 754 half stored as raw bits.
func f16dec(bits uint16) float32 {
	return float16.Frombits(bits).Float32()
}

// f16enc encodes v as IEEE 754 half bits, round to nearest even.
func f16enc(v float32) uint16 {
	return float16.Fromfloat32(v).Bits()
}

// f16round runs v through half precision and back, matching what a decoder
// will reconstruct from a stored scale.
func f16round(v float32) float32 {
	return f16dec(f16enc(v))
}
