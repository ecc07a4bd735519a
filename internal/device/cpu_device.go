package device

import (
	"fmt"

	"golang.org/x/sys/cpu"
)

// cpuDevice executes launches synchronously on the calling goroutine, which
// trivially satisfies the in-order queue contract. Independent grid blocks of
// a single launch fan out across cores; their output regions are disjoint.
type cpuDevice struct {
	name string
}

func newCPU() Device {
	return &cpuDevice{name: cpuName()}
}

func cpuName() string {
	switch {
	case cpu.X86.HasAVX512F:
		return "cpu/avx512"
	case cpu.X86.HasAVX2:
		return "cpu/avx2"
	case cpu.ARM64.HasASIMD:
		return "cpu/neon"
	}
	return "cpu"
}

func (d *cpuDevice) Name() string {
	return d.name
}

type cpuBuffer struct {
	data []byte
}

func (b *cpuBuffer) Size() int {
	return len(b.data)
}

func (b *cpuBuffer) Free() error {
	b.data = nil
	return nil
}

func (d *cpuDevice) Alloc(n int) (Buffer, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrAllocation, n)
	}
	return &cpuBuffer{data: make([]byte, n)}, nil
}

func (d *cpuDevice) AllocZeros(n int) (Buffer, error) {
	return d.Alloc(n)
}

func (d *cpuDevice) CopyToDevice(dst Buffer, src []byte) error {
	buf, ok := dst.(*cpuBuffer)
	if !ok {
		return fmt.Errorf("cpu copy: foreign buffer %T", dst)
	}
	if len(src) != len(buf.data) {
		return fmt.Errorf("cpu copy: %d bytes into buffer of %d", len(src), len(buf.data))
	}
	copy(buf.data, src)
	return nil
}

func (d *cpuDevice) CopyFromDevice(dst []byte, src Buffer) error {
	buf, ok := src.(*cpuBuffer)
	if !ok {
		return fmt.Errorf("cpu copy: foreign buffer %T", src)
	}
	if len(dst) != len(buf.data) {
		return fmt.Errorf("cpu copy: %d bytes from buffer of %d", len(dst), len(buf.data))
	}
	copy(dst, buf.data)
	return nil
}

func (d *cpuDevice) Launch(k Kernel, cfg LaunchConfig, bufs []Buffer, scalars []int32) error {
	raw := make([][]byte, len(bufs))
	for i, b := range bufs {
		buf, ok := b.(*cpuBuffer)
		if !ok {
			return fmt.Errorf("launch %s: foreign buffer %T", k, b)
		}
		raw[i] = buf.data
	}
	if err := runKernel(k, cfg, raw, scalars); err != nil {
		return fmt.Errorf("launch %s: %w", k, err)
	}
	return nil
}

func (d *cpuDevice) Synchronize() error {
	return nil
}
