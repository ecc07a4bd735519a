package device

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/samcharles93/crucible/pkg/qblock"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", Auto, false},
		{"auto", Auto, false},
		{"cpu", CPU, false},
		{" CPU ", CPU, false},
		{"Cuda", CUDA, false},
		{"tpu", "", true},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Normalize(%q) accepted", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Normalize(%q): %v", tt.in, err)
		} else if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAvailableListsCPU(t *testing.T) {
	if !strings.Contains(Available(), CPU) {
		t.Fatalf("Available() = %q", Available())
	}
}

func TestNewCPU(t *testing.T) {
	dev, err := New(CPU)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(dev.Name(), "cpu") {
		t.Errorf("Name() = %q", dev.Name())
	}
	if err := dev.Synchronize(); err != nil {
		t.Errorf("Synchronize: %v", err)
	}
}

func TestNewAutoAlwaysOpens(t *testing.T) {
	dev, err := New(Auto)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Name() == "" {
		t.Error("empty device name")
	}
}

func TestBufferRoundTrip(t *testing.T) {
	dev, err := New(CPU)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := dev.Alloc(64)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Size() != 64 {
		t.Fatalf("Size() = %d", buf.Size())
	}

	src := make([]byte, 64)
	for i := range src {
		src[i] = byte(i * 3)
	}
	if err := dev.CopyToDevice(buf, src); err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, 64)
	if err := dev.CopyFromDevice(dst, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(src, dst) {
		t.Error("round trip mismatch")
	}

	if err := dev.CopyToDevice(buf, make([]byte, 63)); err == nil {
		t.Error("short upload accepted")
	}
	if err := dev.CopyFromDevice(make([]byte, 65), buf); err == nil {
		t.Error("long download accepted")
	}

	if err := buf.Free(); err != nil {
		t.Fatal(err)
	}
	if buf.Size() != 0 {
		t.Errorf("Size() after Free = %d", buf.Size())
	}
}

func TestAllocNegative(t *testing.T) {
	dev, err := New(CPU)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.Alloc(-1); !errors.Is(err, ErrAllocation) {
		t.Errorf("err = %v, want ErrAllocation", err)
	}
}

func TestZerosAllocIsZero(t *testing.T) {
	dev, err := New(CPU)
	if err != nil {
		t.Fatal(err)
	}
	buf, err := dev.AllocZeros(32)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 32)
	if err := dev.CopyFromDevice(got, buf); err != nil {
		t.Fatal(err)
	}
	for i, b := range got {
		if b != 0 {
			t.Fatalf("byte %d = %#x", i, b)
		}
	}
}

type foreignBuffer struct{}

func (foreignBuffer) Size() int   { return 0 }
func (foreignBuffer) Free() error { return nil }

func TestLaunchRejectsForeignBuffer(t *testing.T) {
	dev, err := New(CPU)
	if err != nil {
		t.Fatal(err)
	}
	plan := QuantizeQ8_1Launch(32)
	err = dev.Launch(plan.Kernel, plan.Config, []Buffer{foreignBuffer{}, foreignBuffer{}}, plan.Scalars)
	if err == nil {
		t.Fatal("foreign buffer accepted")
	}
}

func TestQuantizeQ8_1Kernel(t *testing.T) {
	dev, err := New(CPU)
	if err != nil {
		t.Fatal(err)
	}

	const kx = 100
	plan := QuantizeQ8_1Launch(kx)
	padded := int(plan.Scalars[1])
	if padded != MatrixRowPadding {
		t.Fatalf("padded = %d", padded)
	}

	vec := signedRamp(kx)
	src := mustAlloc(t, dev, 4*kx)
	uploadF32(t, dev, src, vec)
	dst := mustAlloc(t, dev, qblock.Q8_1.StorageSize(padded))

	if err := dev.Launch(plan.Kernel, plan.Config, []Buffer{src, dst}, plan.Scalars); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, dst.Size())
	if err := dev.CopyFromDevice(got, dst); err != nil {
		t.Fatal(err)
	}

	// Every 32-element window must encode exactly as the codec does, with
	// elements past kx read as zero.
	full := make([]float32, padded)
	copy(full, vec)
	want, err := qblock.Encode(qblock.Q8_1, full)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("kernel output differs from codec encoding")
	}

	// The last padded block holds no live elements at all.
	tail := got[len(got)-36:]
	for i, b := range tail {
		if b != 0 {
			t.Fatalf("tail byte %d = %#x", i, b)
		}
	}
}

func TestDequantizeKernelsMatchCodec(t *testing.T) {
	dev, err := New(CPU)
	if err != nil {
		t.Fatal(err)
	}

	const n = 512
	vec := signedRamp(n)
	for _, s := range qblock.Schemes() {
		plan, ok := DequantizeLaunch(s, n)
		if !ok {
			continue
		}
		t.Run(s.String(), func(t *testing.T) {
			payload, err := qblock.Encode(s, vec)
			if err != nil {
				t.Fatal(err)
			}
			want, err := qblock.Decode(s, payload, n)
			if err != nil {
				t.Fatal(err)
			}

			in := mustAlloc(t, dev, len(payload))
			if err := dev.CopyToDevice(in, payload); err != nil {
				t.Fatal(err)
			}
			out := mustAlloc(t, dev, 4*n)
			if err := dev.Launch(plan.Kernel, plan.Config, []Buffer{in, out}, plan.Scalars); err != nil {
				t.Fatal(err)
			}
			got := downloadF32(t, dev, out, n)

			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("element %d: kernel %v, codec %v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestDmmvKernelsMatchDecodedDot(t *testing.T) {
	dev, err := New(CPU)
	if err != nil {
		t.Fatal(err)
	}

	const (
		cols = 256
		rows = 4
	)
	y := signedRamp(cols)
	for _, s := range []qblock.Scheme{qblock.Q4_0, qblock.Q5_1, qblock.Q8_0, qblock.Q2_K, qblock.Q6_K} {
		t.Run(s.String(), func(t *testing.T) {
			payload, want := encodeMatrix(t, s, rows, cols, y)

			plan, ok := DmmvLaunch(s, cols, rows)
			if !ok {
				t.Fatalf("no dmmv launch for %s", s)
			}
			data := mustAlloc(t, dev, len(payload))
			if err := dev.CopyToDevice(data, payload); err != nil {
				t.Fatal(err)
			}
			yBuf := mustAlloc(t, dev, 4*cols)
			uploadF32(t, dev, yBuf, y)
			dst := mustAlloc(t, dev, 4*rows)

			if err := dev.Launch(plan.Kernel, plan.Config, []Buffer{data, yBuf, dst}, plan.Scalars); err != nil {
				t.Fatal(err)
			}
			got := downloadF32(t, dev, dst, rows)
			for r := range got {
				assertWithin(t, got[r], want[r], 1e-3)
			}
		})
	}
}

func TestMmvqKernelsTrackFloatPath(t *testing.T) {
	dev, err := New(CPU)
	if err != nil {
		t.Fatal(err)
	}

	const (
		cols = 256
		rows = 3
	)
	y := positiveRamp(cols)
	for _, s := range []qblock.Scheme{qblock.Q4_0, qblock.Q4_1, qblock.Q5_0, qblock.Q8_0, qblock.Q4_K, qblock.Q6_K} {
		t.Run(s.String(), func(t *testing.T) {
			payload, _ := encodeMatrix(t, s, rows, cols, y)

			// Stage the activation through the quantize kernel, exactly as
			// the quantized-dot pipeline does.
			qPlan := QuantizeQ8_1Launch(cols)
			padded := int(qPlan.Scalars[1])
			src := mustAlloc(t, dev, 4*cols)
			uploadF32(t, dev, src, y)
			yq := mustAlloc(t, dev, qblock.Q8_1.StorageSize(padded))
			if err := dev.Launch(qPlan.Kernel, qPlan.Config, []Buffer{src, yq}, qPlan.Scalars); err != nil {
				t.Fatal(err)
			}

			// Reference: decoded weights against the decoded quantized
			// activation. The kernel folds the same products through block
			// scale identities, so only rounding of the stored code sums
			// and summation order separate the two.
			yqRaw := make([]byte, yq.Size())
			if err := dev.CopyFromDevice(yqRaw, yq); err != nil {
				t.Fatal(err)
			}
			aDec, err := qblock.Decode(qblock.Q8_1, yqRaw[:qblock.Q8_1.StorageSize(cols)], cols)
			if err != nil {
				t.Fatal(err)
			}
			want := make([]float32, rows)
			wantAbs := make([]float32, rows)
			rowBytes := s.StorageSize(cols)
			for r := 0; r < rows; r++ {
				decoded, err := qblock.Decode(s, payload[r*rowBytes:(r+1)*rowBytes], cols)
				if err != nil {
					t.Fatal(err)
				}
				for i := range decoded {
					term := decoded[i] * aDec[i]
					want[r] += term
					wantAbs[r] += abs32(term)
				}
			}

			plan, ok := MmvqLaunch(s, cols, rows)
			if !ok {
				t.Fatalf("no mmvq launch for %s", s)
			}
			data := mustAlloc(t, dev, len(payload))
			if err := dev.CopyToDevice(data, payload); err != nil {
				t.Fatal(err)
			}
			dst := mustAlloc(t, dev, 4*rows)
			if err := dev.Launch(plan.Kernel, plan.Config, []Buffer{data, yq, dst}, plan.Scalars); err != nil {
				t.Fatal(err)
			}
			got := downloadF32(t, dev, dst, rows)

			for r := range got {
				assertWithin(t, got[r], want[r], 1e-2*wantAbs[r]+1e-2)
			}
		})
	}
}

func TestLaunchValidatesArguments(t *testing.T) {
	dev, err := New(CPU)
	if err != nil {
		t.Fatal(err)
	}
	buf := mustAlloc(t, dev, 4*256)

	plan, ok := DmmvLaunch(qblock.Q4_0, 256, 1)
	if !ok {
		t.Fatal("no launch")
	}
	if err := dev.Launch(plan.Kernel, plan.Config, []Buffer{buf, buf}, plan.Scalars); err == nil {
		t.Error("missing buffer accepted")
	}
	if err := dev.Launch(plan.Kernel, plan.Config, []Buffer{buf, buf, buf}, []int32{256}); err == nil {
		t.Error("missing scalar accepted")
	}
	if err := dev.Launch(plan.Kernel, plan.Config, []Buffer{buf, buf, buf}, []int32{100, 1}); err == nil {
		t.Error("unaligned ncols accepted")
	}
}

func mustAlloc(t *testing.T, dev Device, n int) Buffer {
	t.Helper()
	buf, err := dev.Alloc(n)
	if err != nil {
		t.Fatal(err)
	}
	return buf
}

func uploadF32(t *testing.T, dev Device, buf Buffer, vals []float32) {
	t.Helper()
	raw := make([]byte, 4*len(vals))
	for i, v := range vals {
		storeF32(raw, i, v)
	}
	if err := dev.CopyToDevice(buf, raw); err != nil {
		t.Fatal(err)
	}
}

func downloadF32(t *testing.T, dev Device, buf Buffer, n int) []float32 {
	t.Helper()
	raw := make([]byte, 4*n)
	if err := dev.CopyFromDevice(raw, buf); err != nil {
		t.Fatal(err)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = loadF32(raw, i)
	}
	return out
}

// encodeMatrix packs rows x cols values row by row and returns the payload
// together with the float dot of each decoded row against y.
func encodeMatrix(t *testing.T, s qblock.Scheme, rows, cols int, y []float32) ([]byte, []float32) {
	t.Helper()
	base := signedRamp(cols)
	rowBytes := s.StorageSize(cols)
	payload := make([]byte, 0, rows*rowBytes)
	want := make([]float32, rows)
	for r := 0; r < rows; r++ {
		row := make([]float32, cols)
		for i := range row {
			row[i] = base[i] * (1 + 0.25*float32(r))
		}
		packed, err := qblock.Encode(s, row)
		if err != nil {
			t.Fatal(err)
		}
		payload = append(payload, packed...)

		decoded, err := qblock.Decode(s, packed, cols)
		if err != nil {
			t.Fatal(err)
		}
		var acc float32
		for i := range decoded {
			acc += decoded[i] * y[i]
		}
		want[r] = acc
	}
	return payload, want
}

func signedRamp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%23-11) * 0.07
	}
	return out
}

func positiveRamp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.5 + float32(i%13)*0.05
	}
	return out
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func assertWithin(t *testing.T, got, want, tol float32) {
	t.Helper()
	if d := abs32(got - want); d > tol {
		t.Fatalf("got %v, want %v (diff %v, tol %v)", got, want, d, tol)
	}
}
