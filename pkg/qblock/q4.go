package qblock

import "encoding/binary"

// Q4_0: 4-bit symmetric. One half-precision scale d, then 16 bytes of packed
// nibbles; element j sits in the low nibble of byte j, element j+16 in the
// high nibble. Reconstruction is (q - 8) * d.

func decodeQ4_0(b []byte, out []float32) {
	d := f16dec(binary.LittleEndian.Uint16(b[0:2]))
	qs := b[2:18]
	for j := 0; j < QK/2; j++ {
		out[j] = (float32(qs[j]&0xF) - 8) * d
		out[j+QK/2] = (float32(qs[j]>>4) - 8) * d
	}
}

func encodeQ4_0(src []float32, b []byte) {
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
	d := max / -8
	id := float32(0)
	if d != 0 {
		id = 1 / d
	}
	binary.LittleEndian.PutUint16(b[0:2], f16enc(d))
	qs := b[2:18]
	for j := 0; j < QK/2; j++ {
		lo := quantNibble(src[j]*id + 8.5)
		hi := quantNibble(src[j+QK/2]*id + 8.5)
		qs[j] = lo | hi<<4
	}
}

// Q4_1: 4-bit affine. Half-precision scale d and offset m, then packed
// nibbles in the Q4_0 split layout. Reconstruction is q*d + m.

func decodeQ4_1(b []byte, out []float32) {
	d := f16dec(binary.LittleEndian.Uint16(b[0:2]))
	m := f16dec(binary.LittleEndian.Uint16(b[2:4]))
	qs := b[4:20]
	for j := 0; j < QK/2; j++ {
		out[j] = float32(qs[j]&0xF)*d + m
		out[j+QK/2] = float32(qs[j]>>4)*d + m
	}
}

func encodeQ4_1(src []float32, b []byte) {
	mn, mx := src[0], src[0]
	for _, v := range src[1:] {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	d := (mx - mn) / 15
	id := float32(0)
	if d != 0 {
		id = 1 / d
	}
	binary.LittleEndian.PutUint16(b[0:2], f16enc(d))
	binary.LittleEndian.PutUint16(b[2:4], f16enc(mn))
	qs := b[4:20]
	for j := 0; j < QK/2; j++ {
		lo := quantNibble((src[j]-mn)*id + 0.5)
		hi := quantNibble((src[j+QK/2]-mn)*id + 0.5)
		qs[j] = lo | hi<<4
	}
}

// quantNibble truncates v into a 4-bit code, clamping both ends. The caller
// bakes the rounding bias into v.
func quantNibble(v float32) uint8 {
	if v < 0 {
		return 0
	}
	q := uint8(v)
	if q > 15 {
		q = 15
	}
	return q
}
