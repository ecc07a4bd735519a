package qblock

import "encoding/binary"

// Q4_K: 4-bit super-block of 256 elements in eight sub-blocks of 32.
// Layout: d half, dmin half, scales[12] (eight 6-bit scale/min pairs),
// qs[128]. Sub-block pairs share 32 bytes, first of the pair in the low
// nibbles. Reconstruction is d*sc*q - dmin*mn.

func decodeQ4K(b []byte, out []float32) {
	d := f16dec(binary.LittleEndian.Uint16(b[0:2]))
	dmin := f16dec(binary.LittleEndian.Uint16(b[2:4]))
	scales := b[4:16]
	qs := b[16:144]

	idx, is := 0, 0
	q := qs
	for j := 0; j < QKK; j += 64 {
		sc1, mn1 := scaleMinK4(is, scales)
		sc2, mn2 := scaleMinK4(is+1, scales)
		d1, m1 := d*float32(sc1), dmin*float32(mn1)
		d2, m2 := d*float32(sc2), dmin*float32(mn2)
		for l := 0; l < 32; l++ {
			out[idx] = d1*float32(q[l]&0x0F) - m1
			idx++
		}
		for l := 0; l < 32; l++ {
			out[idx] = d2*float32(q[l]>>4) - m2
			idx++
		}
		q = q[32:]
		is += 2
	}
}

func encodeQ4K(src []float32, b []byte) {
	scales := b[4:16]
	qs := b[16:144]
	d, dmin := encodeKScaleMins(src, 15, scales)
	binary.LittleEndian.PutUint16(b[0:2], f16enc(d))
	binary.LittleEndian.PutUint16(b[2:4], f16enc(dmin))
	for i := range qs {
		qs[i] = 0
	}

	dDec := f16round(d)
	dminDec := f16round(dmin)
	for s := 0; s < 8; s++ {
		sc, mn := scaleMinK4(s, scales)
		dl := dDec * float32(sc)
		ml := dminDec * float32(mn)
		for l := 0; l < 32; l++ {
			var q int
			if dl != 0 {
				q = nearestInt((src[32*s+l] + ml) / dl)
				if q < 0 {
					q = 0
				}
				if q > 15 {
					q = 15
				}
			}
			qs[32*(s/2)+l] |= uint8(q) << (4 * uint(s%2))
		}
	}
}

// Q5_K: 5-bit super-block of 256 elements in eight sub-blocks of 32.
// Layout: d half, dmin half, scales[12], qh[32] (fifth bits, two bits per
// byte lane per sub-block pair), qs[128].

func decodeQ5K(b []byte, out []float32) {
	d := f16dec(binary.LittleEndian.Uint16(b[0:2]))
	dmin := f16dec(binary.LittleEndian.Uint16(b[2:4]))
	scales := b[4:16]
	qh := b[16:48]
	qs := b[48:176]

	idx, is := 0, 0
	u1, u2 := uint8(1), uint8(2)
	ql := qs
	for j := 0; j < QKK; j += 64 {
		sc1, mn1 := scaleMinK4(is, scales)
		sc2, mn2 := scaleMinK4(is+1, scales)
		d1, m1 := d*float32(sc1), dmin*float32(mn1)
		d2, m2 := d*float32(sc2), dmin*float32(mn2)
		for l := 0; l < 32; l++ {
			v := float32(ql[l] & 0x0F)
			if qh[l]&u1 != 0 {
				v += 16
			}
			out[idx] = d1*v - m1
			idx++
		}
		for l := 0; l < 32; l++ {
			v := float32(ql[l] >> 4)
			if qh[l]&u2 != 0 {
				v += 16
			}
			out[idx] = d2*v - m2
			idx++
		}
		ql = ql[32:]
		is += 2
		u1 <<= 2
		u2 <<= 2
	}
}

func encodeQ5K(src []float32, b []byte) {
	scales := b[4:16]
	qh := b[16:48]
	qs := b[48:176]
	d, dmin := encodeKScaleMins(src, 31, scales)
	binary.LittleEndian.PutUint16(b[0:2], f16enc(d))
	binary.LittleEndian.PutUint16(b[2:4], f16enc(dmin))
	for i := range qh {
		qh[i] = 0
	}
	for i := range qs {
		qs[i] = 0
	}

	dDec := f16round(d)
	dminDec := f16round(dmin)
	for s := 0; s < 8; s++ {
		sc, mn := scaleMinK4(s, scales)
		dl := dDec * float32(sc)
		ml := dminDec * float32(mn)
		bit := uint8(1) << uint(s)
		for l := 0; l < 32; l++ {
			var q int
			if dl != 0 {
				q = nearestInt((src[32*s+l] + ml) / dl)
				if q < 0 {
					q = 0
				}
				if q > 31 {
					q = 31
				}
			}
			qs[32*(s/2)+l] |= uint8(q&0x0F) << (4 * uint(s%2))
			if q >= 16 {
				qh[l] |= bit
			}
		}
	}
}

// encodeKScaleMins fits per-sub-block affine codes for the eight 32-element
// sub-blocks of a Q4_K/Q5_K super-block, packs them as 6-bit pairs, and
// returns the super scales.
func encodeKScaleMins(src []float32, levels int, scales []byte) (d, dmin float32) {
	var subScale, subMin [8]float32
	var maxScale, maxMin float32
	for s := 0; s < 8; s++ {
		subScale[s], subMin[s] = fitScaleMin(src[32*s:32*s+32], levels)
		if subScale[s] > maxScale {
			maxScale = subScale[s]
		}
		if subMin[s] > maxMin {
			maxMin = subMin[s]
		}
	}
	d = maxScale / 63
	dmin = maxMin / 63
	for i := range scales {
		scales[i] = 0
	}
	for s := 0; s < 8; s++ {
		var ls, lm uint8
		if d != 0 {
			ls = clampCode(nearestInt(subScale[s]/d), 63)
		}
		if dmin != 0 {
			lm = clampCode(nearestInt(subMin[s]/dmin), 63)
		}
		packScaleMinK4(s, scales, ls, lm)
	}
	return d, dmin
}
