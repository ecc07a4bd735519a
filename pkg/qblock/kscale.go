package qblock

// Shared scale machinery for the K-family super-block formats. Q4_K and Q5_K
// pack eight 6-bit (scale, min) pairs into 12 bytes; Q3_K packs sixteen 6-bit
// scales into 12 bytes. The pack/unpack pairs below are exact mutual inverses
// and match the wire layout the decoders expect.

// scaleMinK4 extracts the 6-bit scale and min of sub-block j from a 12-byte
// Q4_K/Q5_K scale field.
func scaleMinK4(j int, scales []byte) (sc, mn uint8) {
	if j < 4 {
		return scales[j] & 63, scales[j+4] & 63
	}
	sc = (scales[j+4] & 0x0F) | ((scales[j-4] >> 6) << 4)
	mn = (scales[j+4] >> 4) | ((scales[j] >> 6) << 4)
	return sc, mn
}

// packScaleMinK4 stores a 6-bit scale and min for sub-block j into a 12-byte
// Q4_K/Q5_K scale field. The field must start zeroed.
func packScaleMinK4(j int, scales []byte, sc, mn uint8) {
	if j < 4 {
		scales[j] = sc
		scales[j+4] = mn
		return
	}
	scales[j+4] = (sc & 0x0F) | (mn&0x0F)<<4
	scales[j-4] |= (sc >> 4) << 6
	scales[j] |= (mn >> 4) << 6
}

const (
	kmask1 = uint32(0x03030303)
	kmask2 = uint32(0x0f0f0f0f)
)

// unpackScalesQ3K expands the 12-byte Q3_K scale field into sixteen 6-bit
// values (0..63, bias 32 not yet removed).
func unpackScalesQ3K(field []byte, out *[16]int8) {
	var aux [4]uint32
	aux[0] = uint32(field[0]) | uint32(field[1])<<8 | uint32(field[2])<<16 | uint32(field[3])<<24
	aux[1] = uint32(field[4]) | uint32(field[5])<<8 | uint32(field[6])<<16 | uint32(field[7])<<24
	tmp := uint32(field[8]) | uint32(field[9])<<8 | uint32(field[10])<<16 | uint32(field[11])<<24

	aux[2] = ((aux[0] >> 4) & kmask2) | (((tmp >> 4) & kmask1) << 4)
	aux[3] = ((aux[1] >> 4) & kmask2) | (((tmp >> 6) & kmask1) << 4)
	aux[0] = (aux[0] & kmask2) | (((tmp >> 0) & kmask1) << 4)
	aux[1] = (aux[1] & kmask2) | (((tmp >> 2) & kmask1) << 4)

	for i := 0; i < 4; i++ {
		out[i*4+0] = int8(aux[i])
		out[i*4+1] = int8(aux[i] >> 8)
		out[i*4+2] = int8(aux[i] >> 16)
		out[i*4+3] = int8(aux[i] >> 24)
	}
}

// packScalesQ3K stores sixteen 6-bit scale codes (0..63) into the 12-byte
// Q3_K scale field: low nibbles of codes 0..7 in bytes 0..7, low nibbles of
// codes 8..15 in the high halves of bytes 0..7, and the top two bits of every
// code spread across bytes 8..11.
func packScalesQ3K(codes *[16]uint8, field []byte) {
	for i := range field {
		field[i] = 0
	}
	for j := 0; j < 16; j++ {
		l := codes[j]
		if j < 8 {
			field[j] = l & 0x0F
		} else {
			field[j-8] |= (l & 0x0F) << 4
		}
		l >>= 4
		field[j%4+8] |= l << (2 * uint(j/4))
	}
}

const groupMaxEps = 1e-15

// fitScale fits a signed linear scale for one sub-block so that
// x ≈ scale * q with q in [-nmax, nmax-1]. Least-squares weighted by x², the
// same refinement rule the reference encoders use for Q3_K and Q6_K.
func fitScale(x []float32, nmax int) float32 {
	var amax, max float32
	for _, v := range x {
		a := v
		if a < 0 {
			a = -a
		}
		if a > amax {
			amax = a
			max = v
		}
	}
	if amax < groupMaxEps {
		return 0
	}
	iscale := -float32(nmax) / max
	var sumlx, suml2 float64
	for _, v := range x {
		l := nearestInt(iscale * v)
		if l < -nmax {
			l = -nmax
		}
		if l > nmax-1 {
			l = nmax - 1
		}
		w := float64(v) * float64(v)
		sumlx += w * float64(v) * float64(l)
		suml2 += w * float64(l) * float64(l)
	}
	if suml2 == 0 {
		return 0
	}
	return float32(sumlx / suml2)
}

// fitScaleMin fits an affine code for one sub-block so that
// x ≈ scale*q - min with q in [0, levels] and min >= 0.
func fitScaleMin(x []float32, levels int) (scale, min float32) {
	mn, mx := x[0], x[0]
	for _, v := range x[1:] {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	if mn < 0 {
		min = -mn
	}
	scale = (mx + min) / float32(levels)
	if scale < 0 {
		scale = 0
	}
	return scale, min
}
