// Package device defines the execution contract quantized storage runs on:
// buffers, kernel launches with explicit grid and block geometry, and the
// closed descriptor table naming every kernel the runtime may submit. The
// always-available cpu device lives here too; an optional cuda adapter is
// compiled in with the cuda build tag.
package device

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CPU  = "cpu"
	CUDA = "cuda"
	Auto = "auto"
)

// Launch geometry shared with the kernel library. Changing any of these
// changes the numeric output of the launch plans built in kernels.go.
const (
	// WarpSize is the thread-block X width of the matvec kernels.
	WarpSize = 32

	// MmvY is the per-block row count of a dmmv launch.
	MmvY = 1

	// QuantizeBlockSize is the thread count of one quantize_q8_1 block.
	QuantizeBlockSize = 256

	// DequantizeBlockSize is the thread count of the wide dequantize blocks.
	DequantizeBlockSize = 256

	// MatrixRowPadding pads activation rows before Q8_1 encoding so the
	// fixed-width quantize kernel never writes out of bounds; the tail
	// encodes as zero.
	MatrixRowPadding = 512
)

var (
	ErrAllocation      = errors.New("device: allocation failed")
	ErrCUDAUnavailable = errors.New("device: cuda support not built in (rebuild with -tags cuda)")
)

// Buffer is one device allocation. Free is idempotent; the buffer must not
// be used after it.
type Buffer interface {
	Size() int
	Free() error
}

// Dim3 is a three-axis launch extent.
type Dim3 struct {
	X, Y, Z int
}

// LaunchConfig fixes the geometry of one kernel launch.
type LaunchConfig struct {
	Grid  Dim3
	Block Dim3
}

// Device is an execution context with an in-order work queue. Launches are
// observed in submission order; CopyFromDevice sees the effect of every
// launch submitted before it.
type Device interface {
	Name() string
	Alloc(n int) (Buffer, error)
	AllocZeros(n int) (Buffer, error)
	CopyToDevice(dst Buffer, src []byte) error
	CopyFromDevice(dst []byte, src Buffer) error
	Launch(k Kernel, cfg LaunchConfig, bufs []Buffer, scalars []int32) error
	Synchronize() error
}

// Normalize canonicalizes a device name from flags or config.
func Normalize(name string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(name))
	if d == "" {
		return Auto, nil
	}
	switch d {
	case CPU, CUDA, Auto:
		return d, nil
	default:
		return "", fmt.Errorf("unknown device %q (expected auto, cpu, or cuda)", d)
	}
}

// Available returns a comma-separated list of devices this build can open.
func Available() string {
	entries := []string{CPU}
	if cudaEnabled {
		entries = append(entries, CUDA)
	}
	return strings.Join(entries, ",")
}

// New opens the named device. Auto prefers cuda when the build carries it
// and a device responds, falling back to cpu.
func New(name string) (Device, error) {
	normalized, err := Normalize(name)
	if err != nil {
		return nil, err
	}
	switch normalized {
	case Auto:
		if cudaEnabled {
			if dev, cudaErr := newCUDA(); cudaErr == nil {
				return dev, nil
			}
		}
		return newCPU(), nil
	case CPU:
		return newCPU(), nil
	default:
		return newCUDA()
	}
}

func ceilDiv(p, q int) int {
	return (p + q - 1) / q
}

// Pad rounds n up to a multiple of q.
func Pad(n, q int) int {
	return ceilDiv(n, q) * q
}
