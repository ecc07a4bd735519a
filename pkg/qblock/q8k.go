package qblock

import (
	"encoding/binary"
	"math"
)

// Q8_K: 8-bit super-block of 256 elements with a single float32 scale and
// per-16 code sums. The sums let integer dot kernels fold a subtrahend
// without revisiting the codes.

func decodeQ8K(b []byte, out []float32) {
	d := math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))
	qs := b[4:260]
	for i := 0; i < QKK; i++ {
		out[i] = d * float32(int8(qs[i]))
	}
}

func encodeQ8K(src []float32, b []byte) {
	qs := b[4:260]
	bsums := b[260:292]

	var amax, max float32
	for _, v := range src {
		a := v
		if a < 0 {
			a = -a
		}
		if a > amax {
			amax = a
			max = v
		}
	}
	if amax == 0 {
		for i := range b {
			b[i] = 0
		}
		return
	}

	iscale := -128 / max
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(1/iscale))
	for i, v := range src {
		q := nearestInt(iscale * v)
		if q > 127 {
			q = 127
		}
		qs[i] = uint8(int8(q))
	}
	for j := 0; j < 16; j++ {
		var sum int
		for l := 0; l < 16; l++ {
			sum += int(int8(qs[16*j+l]))
		}
		binary.LittleEndian.PutUint16(bsums[2*j:], uint16(int16(sum)))
	}
}
