package qblock

import "encoding/binary"

// Q2_K: 2-bit super-block of 256 elements in sixteen sub-blocks of 16.
// Layout: scales[16] (low nibble scale code, high nibble min code), qs[64]
// (2-bit values), then super-scales d and dmin as halves. Reconstruction per
// sub-block is d*sc*q - dmin*mn.

func decodeQ2K(b []byte, out []float32) {
	scales := b[0:16]
	qs := b[16:80]
	d := f16dec(binary.LittleEndian.Uint16(b[80:82]))
	dmin := f16dec(binary.LittleEndian.Uint16(b[82:84]))

	idx, is := 0, 0
	for n := 0; n < QKK; n += 128 {
		shift := uint(0)
		for j := 0; j < 4; j++ {
			sc := scales[is]
			is++
			dl := d * float32(sc&0xF)
			ml := dmin * float32(sc>>4)
			for l := 0; l < 16; l++ {
				out[idx] = dl*float32((qs[n/4+l]>>shift)&3) - ml
				idx++
			}
			sc = scales[is]
			is++
			dl = d * float32(sc&0xF)
			ml = dmin * float32(sc>>4)
			for l := 0; l < 16; l++ {
				out[idx] = dl*float32((qs[n/4+16+l]>>shift)&3) - ml
				idx++
			}
			shift += 2
		}
	}
}

func encodeQ2K(src []float32, b []byte) {
	var subScale, subMin [16]float32
	var maxScale, maxMin float32
	for j := 0; j < 16; j++ {
		subScale[j], subMin[j] = fitScaleMin(src[16*j:16*j+16], 3)
		if subScale[j] > maxScale {
			maxScale = subScale[j]
		}
		if subMin[j] > maxMin {
			maxMin = subMin[j]
		}
	}

	d := maxScale / 15
	dmin := maxMin / 15
	scales := b[0:16]
	qs := b[16:80]
	binary.LittleEndian.PutUint16(b[80:82], f16enc(d))
	binary.LittleEndian.PutUint16(b[82:84], f16enc(dmin))
	for i := range qs {
		qs[i] = 0
	}

	dDec := f16round(d)
	dminDec := f16round(dmin)
	for j := 0; j < 16; j++ {
		var ls, lm uint8
		if d != 0 {
			ls = clampCode(nearestInt(subScale[j]/d), 15)
		}
		if dmin != 0 {
			lm = clampCode(nearestInt(subMin[j]/dmin), 15)
		}
		scales[j] = ls | lm<<4

		dl := dDec * float32(ls)
		ml := dminDec * float32(lm)
		base := 32*(j/8) + 16*(j%2)
		shift := 2 * uint((j%8)/2)
		for l := 0; l < 16; l++ {
			var q int
			if dl != 0 {
				q = nearestInt((src[16*j+l] + ml) / dl)
				if q < 0 {
					q = 0
				}
				if q > 3 {
					q = 3
				}
			}
			qs[base+l] |= uint8(q) << shift
		}
	}
}

func clampCode(v, max int) uint8 {
	if v < 0 {
		return 0
	}
	if v > max {
		return uint8(max)
	}
	return uint8(v)
}
