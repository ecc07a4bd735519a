package qblock

import (
	"errors"
	"testing"
)

// rampData fills n elements with a repeating ramp over roughly [-0.77, 0.77].
// The period is coprime to the block sizes so sub-blocks see shifted windows.
func rampData(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%23-11) * 0.07
	}
	return out
}

func assertCloseSlice(t *testing.T, got, want []float32, tol float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: %d != %d", len(got), len(want))
	}
	for i := range got {
		diff := got[i] - want[i]
		if diff < -tol || diff > tol {
			t.Fatalf("idx %d: got %v want %v (tol %v)", i, got[i], want[i], tol)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	const elems = 512
	src := rampData(elems)

	tests := []struct {
		scheme Scheme
		tol    float32
	}{
		{F32, 0},
		{F16, 1e-3},
		{Q4_0, 0.20},
		{Q4_1, 0.10},
		{Q5_0, 0.10},
		{Q5_1, 0.05},
		{Q8_0, 0.01},
		{Q8_1, 0.01},
		{Q2_K, 0.45},
		{Q3_K, 0.35},
		{Q4_K, 0.10},
		{Q5_K, 0.08},
		{Q6_K, 0.08},
		{Q8_K, 0.01},
	}
	if len(tests) != int(schemeCount) {
		t.Fatalf("round trip covers %d schemes, want %d", len(tests), schemeCount)
	}
	for _, tc := range tests {
		t.Run(tc.scheme.String(), func(t *testing.T) {
			packed, err := Encode(tc.scheme, src)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if len(packed) != tc.scheme.StorageSize(elems) {
				t.Fatalf("packed size: got %d want %d", len(packed), tc.scheme.StorageSize(elems))
			}
			got, err := Decode(tc.scheme, packed, elems)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			assertCloseSlice(t, got, src, tc.tol)
		})
	}
}

func TestEncodeDecodeZeros(t *testing.T) {
	t.Parallel()

	src := make([]float32, 512)
	for _, s := range Schemes() {
		packed, err := Encode(s, src)
		if err != nil {
			t.Fatalf("%s encode: %v", s, err)
		}
		got, err := Decode(s, packed, len(src))
		if err != nil {
			t.Fatalf("%s decode: %v", s, err)
		}
		for i, v := range got {
			if v != 0 {
				t.Fatalf("%s idx %d: got %v want 0", s, i, v)
			}
		}
	}
}

// The packed byte layouts are a wire format shared with other runtimes, so a
// few blocks are checked against hand-assembled bytes.

func TestDecodeQ4_0KnownBytes(t *testing.T) {
	t.Parallel()

	b := make([]byte, Q4_0.TypeSize())
	b[0], b[1] = 0x00, 0x38 // d = 0.5
	for i := 2; i < 18; i++ {
		b[i] = 0x98 // low nibble 8, high nibble 9
	}
	out := make([]float32, QK)
	if err := DecodeInto(Q4_0, b, out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for j := 0; j < 16; j++ {
		if out[j] != 0 {
			t.Fatalf("el %d: got %v want 0", j, out[j])
		}
		if out[j+16] != 0.5 {
			t.Fatalf("el %d: got %v want 0.5", j+16, out[j+16])
		}
	}
}

func TestDecodeQ4_1KnownBytes(t *testing.T) {
	t.Parallel()

	b := make([]byte, Q4_1.TypeSize())
	b[0], b[1] = 0x00, 0x38 // d = 0.5
	b[2], b[3] = 0x00, 0xC4 // m = -4
	for i := 4; i < 20; i++ {
		b[i] = 0xF0 // low nibble 0, high nibble 15
	}
	out := make([]float32, QK)
	if err := DecodeInto(Q4_1, b, out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for j := 0; j < 16; j++ {
		if out[j] != -4 {
			t.Fatalf("el %d: got %v want -4", j, out[j])
		}
		if out[j+16] != 3.5 {
			t.Fatalf("el %d: got %v want 3.5", j+16, out[j+16])
		}
	}
}

func TestDecodeQ5_0KnownBytes(t *testing.T) {
	t.Parallel()

	b := make([]byte, Q5_0.TypeSize())
	b[0], b[1] = 0x00, 0x3C                   // d = 1.0
	b[2], b[3], b[4], b[5] = 0x00, 0x00, 0xFF, 0xFF // fifth bit set for els 16..31
	out := make([]float32, QK)
	if err := DecodeInto(Q5_0, b, out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for j := 0; j < 16; j++ {
		if out[j] != -16 {
			t.Fatalf("el %d: got %v want -16", j, out[j])
		}
		if out[j+16] != 0 {
			t.Fatalf("el %d: got %v want 0", j+16, out[j+16])
		}
	}
}

func TestDecodeQ8_0KnownBytes(t *testing.T) {
	t.Parallel()

	b := make([]byte, Q8_0.TypeSize())
	b[0], b[1] = 0x00, 0x34 // d = 0.25
	for j := 0; j < QK; j++ {
		b[2+j] = byte(int8(j - 16))
	}
	out := make([]float32, QK)
	if err := DecodeInto(Q8_0, b, out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for j := 0; j < QK; j++ {
		want := float32(j-16) * 0.25
		if out[j] != want {
			t.Fatalf("el %d: got %v want %v", j, out[j], want)
		}
	}
}

func TestEncodeQ4_0Extremes(t *testing.T) {
	t.Parallel()

	src := make([]float32, QK)
	for i := range src {
		src[i] = float32(i)
	}
	packed, err := Encode(Q4_0, src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// amax is 31, so d is exactly -31/8 and survives the half round trip.
	if got := f16dec(uint16(packed[0]) | uint16(packed[1])<<8); got != -3.875 {
		t.Fatalf("scale: got %v want -3.875", got)
	}
	out, err := Decode(Q4_0, packed, QK)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out[0] != 0 {
		t.Fatalf("el 0: got %v want 0", out[0])
	}
	if out[16] != 15.5 {
		t.Fatalf("el 16: got %v want 15.5", out[16])
	}
	if out[31] != 31 {
		t.Fatalf("el 31: got %v want 31", out[31])
	}
}

func TestEncodeQ8_1SumField(t *testing.T) {
	t.Parallel()

	src := rampData(QK)
	packed, err := Encode(Q8_1, src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	d, s := Q8_1Fields(packed)
	sum := 0
	for j := 0; j < QK; j++ {
		sum += int(int8(packed[4+j]))
	}
	if want := f16round(d * float32(sum)); s != want {
		t.Fatalf("sum field: got %v want %v", s, want)
	}
}

func TestCodecLengthErrors(t *testing.T) {
	t.Parallel()

	if _, err := Encode(Q4_0, make([]float32, 33)); !errors.Is(err, ErrLength) {
		t.Fatalf("encode of 33 elements: got %v want ErrLength", err)
	}
	if _, err := Encode(Q6_K, make([]float32, 255)); !errors.Is(err, ErrLength) {
		t.Fatalf("encode of 255 elements: got %v want ErrLength", err)
	}
	if _, err := Decode(Q4_0, make([]byte, 18), 31); !errors.Is(err, ErrLength) {
		t.Fatalf("decode of 31 elements: got %v want ErrLength", err)
	}
	if _, err := Decode(Q4_0, make([]byte, 17), 32); !errors.Is(err, ErrPayload) {
		t.Fatalf("decode of short payload: got %v want ErrPayload", err)
	}
	if err := EncodeInto(Q8_0, make([]float32, 32), make([]byte, 33)); !errors.Is(err, ErrPayload) {
		t.Fatalf("encode into short buffer: got %v want ErrPayload", err)
	}
	if err := DecodeInto(Q8_0, make([]byte, 34), make([]float32, 64)); !errors.Is(err, ErrPayload) {
		t.Fatalf("decode into oversized output: got %v want ErrPayload", err)
	}
}

func TestEncodeIntoDirtyBuffer(t *testing.T) {
	t.Parallel()

	src := rampData(QKK)
	clean, err := Encode(Q5_K, src)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dirty := make([]byte, Q5_K.TypeSize())
	for i := range dirty {
		dirty[i] = 0xFF
	}
	if err := EncodeInto(Q5_K, src, dirty); err != nil {
		t.Fatalf("encode into: %v", err)
	}
	for i := range dirty {
		if dirty[i] != clean[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, dirty[i], clean[i])
		}
	}
}

func BenchmarkEncodeQ4_0(b *testing.B) {
	src := rampData(4096)
	dst := make([]byte, Q4_0.StorageSize(len(src)))
	for b.Loop() {
		if err := EncodeInto(Q4_0, src, dst); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncodeQ6K(b *testing.B) {
	src := rampData(4096)
	dst := make([]byte, Q6_K.StorageSize(len(src)))
	for b.Loop() {
		if err := EncodeInto(Q6_K, src, dst); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeQ6K(b *testing.B) {
	src := rampData(4096)
	packed, err := Encode(Q6_K, src)
	if err != nil {
		b.Fatal(err)
	}
	out := make([]float32, len(src))
	for b.Loop() {
		if err := DecodeInto(Q6_K, packed, out); err != nil {
			b.Fatal(err)
		}
	}
}
