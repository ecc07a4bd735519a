package qblock

import "encoding/binary"

// Q8_0: 8-bit symmetric. Half-precision scale d, then 32 signed bytes.
// Reconstruction is q * d.

func decodeQ8_0(b []byte, out []float32) {
	d := f16dec(binary.LittleEndian.Uint16(b[0:2]))
	for j := 0; j < QK; j++ {
		out[j] = float32(int8(b[2+j])) * d
	}
}

func encodeQ8_0(src []float32, b []byte) {
	var amax float32
	for _, v := range src {
		if v < 0 {
			v = -v
		}
		if v > amax {
			amax = v
		}
	}
	d := amax / 127
	id := float32(0)
	if d != 0 {
		id = 1 / d
	}
	binary.LittleEndian.PutUint16(b[0:2], f16enc(d))
	for j := 0; j < QK; j++ {
		b[2+j] = byte(quantInt8(src[j] * id))
	}
}

// Q8_1: Q8_0 plus a second half-precision field s = d * sum(q), kept so
// integer dot kernels can fold a weight block's offset term without touching
// the quantized values. Activation target only; never a weight format.

func decodeQ8_1(b []byte, out []float32) {
	d := f16dec(binary.LittleEndian.Uint16(b[0:2]))
	for j := 0; j < QK; j++ {
		out[j] = float32(int8(b[4+j])) * d
	}
}

func encodeQ8_1(src []float32, b []byte) {
	var amax float32
	for _, v := range src {
		if v < 0 {
			v = -v
		}
		if v > amax {
			amax = v
		}
	}
	d := amax / 127
	id := float32(0)
	if d != 0 {
		id = 1 / d
	}
	sum := 0
	for j := 0; j < QK; j++ {
		q := quantInt8(src[j] * id)
		b[4+j] = byte(q)
		sum += int(q)
	}
	binary.LittleEndian.PutUint16(b[0:2], f16enc(d))
	binary.LittleEndian.PutUint16(b[2:4], f16enc(d*float32(sum)))
}

// Q8_1Fields reads the d and s metadata of one Q8_1 block.
func Q8_1Fields(b []byte) (d, s float32) {
	return f16dec(binary.LittleEndian.Uint16(b[0:2])), f16dec(binary.LittleEndian.Uint16(b[2:4]))
}

func quantInt8(v float32) int8 {
	q := nearestInt(v)
	if q < -128 {
		q = -128
	}
	if q > 127 {
		q = 127
	}
	return int8(q)
}
