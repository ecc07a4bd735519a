package qblock

import "encoding/binary"

// Q5_0: 5-bit symmetric. Half-precision scale d, a 32-bit word qh carrying
// each element's fifth bit, then 16 nibble bytes in the split layout. Bit j of
// qh extends element j, bit j+16 extends element j+16. Reconstruction is
// (q5 - 16) * d.

func decodeQ5_0(b []byte, out []float32) {
	d := f16dec(binary.LittleEndian.Uint16(b[0:2]))
	qh := binary.LittleEndian.Uint32(b[2:6])
	qs := b[6:22]
	for j := 0; j < QK/2; j++ {
		xh0 := uint8((qh>>j)<<4) & 0x10
		xh1 := uint8(qh>>(j+12)) & 0x10
		out[j] = (float32(qs[j]&0xF|xh0) - 16) * d
		out[j+QK/2] = (float32(qs[j]>>4|xh1) - 16) * d
	}
}

func encodeQ5_0(src []float32, b []byte) {
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
	d := max / -16
	id := float32(0)
	if d != 0 {
		id = 1 / d
	}
	binary.LittleEndian.PutUint16(b[0:2], f16enc(d))
	var qh uint32
	qs := b[6:22]
	for j := 0; j < QK/2; j++ {
		q0 := quant5(src[j]*id + 16.5)
		q1 := quant5(src[j+QK/2]*id + 16.5)
		qs[j] = q0&0xF | (q1&0xF)<<4
		qh |= uint32(q0>>4) << j
		qh |= uint32(q1>>4) << (j + QK/2)
	}
	binary.LittleEndian.PutUint32(b[2:6], qh)
}

// Q5_1: 5-bit affine. Scale d, offset m, qh word, nibble bytes.
// Reconstruction is q5*d + m.

func decodeQ5_1(b []byte, out []float32) {
	d := f16dec(binary.LittleEndian.Uint16(b[0:2]))
	m := f16dec(binary.LittleEndian.Uint16(b[2:4]))
	qh := binary.LittleEndian.Uint32(b[4:8])
	qs := b[8:24]
	for j := 0; j < QK/2; j++ {
		xh0 := uint8((qh>>j)<<4) & 0x10
		xh1 := uint8(qh>>(j+12)) & 0x10
		out[j] = float32(qs[j]&0xF|xh0)*d + m
		out[j+QK/2] = float32(qs[j]>>4|xh1)*d + m
	}
}

func encodeQ5_1(src []float32, b []byte) {
	mn, mx := src[0], src[0]
	for _, v := range src[1:] {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	d := (mx - mn) / 31
	id := float32(0)
	if d != 0 {
		id = 1 / d
	}
	binary.LittleEndian.PutUint16(b[0:2], f16enc(d))
	binary.LittleEndian.PutUint16(b[2:4], f16enc(mn))
	var qh uint32
	qs := b[8:24]
	for j := 0; j < QK/2; j++ {
		q0 := quant5((src[j]-mn)*id + 0.5)
		q1 := quant5((src[j+QK/2]-mn)*id + 0.5)
		qs[j] = q0&0xF | (q1&0xF)<<4
		qh |= uint32(q0>>4) << j
		qh |= uint32(q1>>4) << (j + QK/2)
	}
	binary.LittleEndian.PutUint32(b[4:8], qh)
}

func quant5(v float32) uint8 {
	if v < 0 {
		return 0
	}
	q := uint8(v)
	if q > 31 {
		q = 31
	}
	return q
}
