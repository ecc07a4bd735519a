package qblock

import "encoding/binary"

// Q3_K: 3-bit super-block of 256 elements in sixteen sub-blocks of 16.
// Layout: hmask[32] (third bit per element), qs[64] (low two bits),
// scales[12] (sixteen 6-bit codes, bias 32), d half. A clear hmask bit
// subtracts 4 from the 2-bit value, giving q in [-4, 3].

func decodeQ3K(b []byte, out []float32) {
	hmask := b[0:32]
	qs := b[32:96]
	var scales [16]int8
	unpackScalesQ3K(b[96:108], &scales)
	d := f16dec(binary.LittleEndian.Uint16(b[108:110]))

	idx, is := 0, 0
	m := uint8(1)
	q := qs
	for n := 0; n < QKK; n += 128 {
		shift := uint(0)
		for j := 0; j < 4; j++ {
			dl := d * float32(scales[is]-32)
			is++
			for l := 0; l < 16; l++ {
				v := int8((q[l] >> shift) & 3)
				if hmask[l]&m == 0 {
					v -= 4
				}
				out[idx] = dl * float32(v)
				idx++
			}
			dl = d * float32(scales[is]-32)
			is++
			for l := 0; l < 16; l++ {
				v := int8((q[l+16] >> shift) & 3)
				if hmask[l+16]&m == 0 {
					v -= 4
				}
				out[idx] = dl * float32(v)
				idx++
			}
			shift += 2
			m <<= 1
		}
		q = q[32:]
	}
}

func encodeQ3K(src []float32, b []byte) {
	var subScale [16]float32
	var maxScale, maxAbsScale float32
	for j := 0; j < 16; j++ {
		sc := fitScale(src[16*j:16*j+16], 4)
		subScale[j] = sc
		a := sc
		if a < 0 {
			a = -a
		}
		if a > maxAbsScale {
			maxAbsScale = a
			maxScale = sc
		}
	}

	hmask := b[0:32]
	qs := b[32:96]
	for i := range hmask {
		hmask[i] = 0
	}
	for i := range qs {
		qs[i] = 0
	}

	var codes [16]uint8
	var d float32
	if maxAbsScale >= groupMaxEps {
		iscale := -32 / maxScale
		d = 1 / iscale
		for j := 0; j < 16; j++ {
			l := nearestInt(iscale * subScale[j])
			if l < -32 {
				l = -32
			}
			if l > 31 {
				l = 31
			}
			codes[j] = uint8(l + 32)
		}
	}
	packScalesQ3K(&codes, b[96:108])
	binary.LittleEndian.PutUint16(b[108:110], f16enc(d))

	dDec := f16round(d)
	for j := 0; j < 16; j++ {
		dl := dDec * float32(int(codes[j])-32)
		half := j / 8
		quarter := (j % 8) / 2
		sec := j % 2
		base := 32*half + 16*sec
		shift := 2 * uint(quarter)
		bit := uint8(1) << uint(4*half+quarter)
		for l := 0; l < 16; l++ {
			var q int
			if dl != 0 {
				q = nearestInt(src[16*j+l] / dl)
				if q < -4 {
					q = -4
				}
				if q > 3 {
					q = 3
				}
			}
			qs[base+l] |= (uint8(q+4) & 3) << shift
			if q >= 0 {
				hmask[16*sec+l] |= bit
			}
		}
	}
}
