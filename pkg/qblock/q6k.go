package qblock

import "encoding/binary"

// Q6_K: 6-bit super-block of 256 elements in sixteen sub-blocks of 16.
// Layout: ql[128] (lower 4 bits), qh[64] (upper 2 bits), scales[16] int8,
// d half. Reconstruction is d*sc*(q-32).

func decodeQ6K(b []byte, out []float32) {
	ql := b[0:128]
	qh := b[128:192]
	scales := b[192:208]
	d := f16dec(binary.LittleEndian.Uint16(b[208:210]))

	for n := 0; n < 2; n++ {
		lo := ql[64*n : 64*n+64]
		hi := qh[32*n : 32*n+32]
		sc := scales[8*n : 8*n+8]
		o := out[128*n : 128*n+128]
		for l := 0; l < 32; l++ {
			is := l / 16
			q1 := int8(lo[l]&0x0F|(hi[l]&3)<<4) - 32
			q2 := int8(lo[l+32]&0x0F|((hi[l]>>2)&3)<<4) - 32
			q3 := int8(lo[l]>>4|((hi[l]>>4)&3)<<4) - 32
			q4 := int8(lo[l+32]>>4|((hi[l]>>6)&3)<<4) - 32
			o[l] = d * float32(int8(sc[is])) * float32(q1)
			o[l+32] = d * float32(int8(sc[is+2])) * float32(q2)
			o[l+64] = d * float32(int8(sc[is+4])) * float32(q3)
			o[l+96] = d * float32(int8(sc[is+6])) * float32(q4)
		}
	}
}

func encodeQ6K(src []float32, b []byte) {
	ql := b[0:128]
	qh := b[128:192]
	scales := b[192:208]

	var sub [16]float32
	var maxAbs, maxScale float32
	for j := 0; j < 16; j++ {
		sub[j] = fitScale(src[16*j:16*j+16], 32)
		a := sub[j]
		if a < 0 {
			a = -a
		}
		if a > maxAbs {
			maxAbs = a
			maxScale = sub[j]
		}
	}
	if maxAbs < groupMaxEps {
		for i := range b {
			b[i] = 0
		}
		return
	}

	d := maxScale / -128
	iscale := -128 / maxScale
	binary.LittleEndian.PutUint16(b[208:210], f16enc(d))
	for j := 0; j < 16; j++ {
		l := nearestInt(iscale * sub[j])
		if l > 127 {
			l = 127
		}
		if l < -128 {
			l = -128
		}
		scales[j] = uint8(int8(l))
	}

	dDec := f16round(d)
	var codes [QKK]uint8
	for j := 0; j < 16; j++ {
		dl := dDec * float32(int8(scales[j]))
		for l := 0; l < 16; l++ {
			var q int
			if dl != 0 {
				q = nearestInt(src[16*j+l] / dl)
				if q < -32 {
					q = -32
				}
				if q > 31 {
					q = 31
				}
			}
			codes[16*j+l] = uint8(q + 32)
		}
	}

	for n := 0; n < 2; n++ {
		lo := ql[64*n : 64*n+64]
		hi := qh[32*n : 32*n+32]
		c := codes[128*n : 128*n+128]
		for l := 0; l < 32; l++ {
			lo[l] = c[l]&0x0F | (c[l+64]&0x0F)<<4
			lo[l+32] = c[l+32]&0x0F | (c[l+96]&0x0F)<<4
			hi[l] = c[l]>>4 | (c[l+32]>>4)<<2 | (c[l+64]>>4)<<4 | (c[l+96]>>4)<<6
		}
	}
}
