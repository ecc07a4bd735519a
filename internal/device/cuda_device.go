//go:build cuda

package device

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/samcharles93/crucible/internal/device/native"
)

const cudaEnabled = true

// kernelModuleEnv names the compiled kernel module (cubin, ptx or fatbin)
// holding every symbol in the descriptor table.
const kernelModuleEnv = "CRUCIBLE_KERNEL_MODULE"

type cudaDevice struct {
	ctx  native.Context
	mod  native.Module
	fns  [kernelCount]native.Function
	name string
}

func newCUDA() (Device, error) {
	if err := native.Init(); err != nil {
		return nil, err
	}
	count, err := native.DeviceCount()
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("no cuda device present")
	}

	ctx, err := native.Open(0)
	if err != nil {
		return nil, err
	}
	name, err := ctx.Name()
	if err != nil {
		_ = ctx.Release()
		return nil, err
	}

	path := os.Getenv(kernelModuleEnv)
	if path == "" {
		_ = ctx.Release()
		return nil, fmt.Errorf("%s not set: point it at the compiled kernel module", kernelModuleEnv)
	}
	mod, err := ctx.LoadModule(path)
	if err != nil {
		_ = ctx.Release()
		return nil, err
	}

	dev := &cudaDevice{ctx: ctx, mod: mod, name: "cuda/" + name}
	for k := Kernel(0); k < kernelCount; k++ {
		fn, err := mod.Function(k.Descriptor().Symbol)
		if err != nil {
			_ = mod.Unload()
			_ = ctx.Release()
			return nil, err
		}
		dev.fns[k] = fn
	}
	return dev, nil
}

func (d *cudaDevice) Name() string {
	return d.name
}

type cudaBuffer struct {
	mem  native.DeviceBuffer
	size int
}

func (b *cudaBuffer) Size() int {
	return b.size
}

func (b *cudaBuffer) Free() error {
	if b.size == 0 {
		return nil
	}
	err := b.mem.Free()
	b.mem = native.DeviceBuffer{}
	b.size = 0
	return err
}

func (d *cudaDevice) Alloc(n int) (Buffer, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrAllocation, n)
	}
	if n == 0 {
		return &cudaBuffer{}, nil
	}
	mem, err := d.ctx.AllocDevice(int64(n))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	return &cudaBuffer{mem: mem, size: n}, nil
}

func (d *cudaDevice) AllocZeros(n int) (Buffer, error) {
	buf, err := d.Alloc(n)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		cb := buf.(*cudaBuffer)
		if err := native.MemsetD8(cb.mem, 0, int64(n)); err != nil {
			_ = cb.Free()
			return nil, err
		}
	}
	return buf, nil
}

func (d *cudaDevice) CopyToDevice(dst Buffer, src []byte) error {
	buf, ok := dst.(*cudaBuffer)
	if !ok {
		return fmt.Errorf("cuda copy: foreign buffer %T", dst)
	}
	if len(src) != buf.size {
		return fmt.Errorf("cuda copy: %d bytes into buffer of %d", len(src), buf.size)
	}
	if len(src) == 0 {
		return nil
	}
	return native.MemcpyHtoD(buf.mem, unsafe.Pointer(&src[0]), int64(len(src)))
}

func (d *cudaDevice) CopyFromDevice(dst []byte, src Buffer) error {
	buf, ok := src.(*cudaBuffer)
	if !ok {
		return fmt.Errorf("cuda copy: foreign buffer %T", src)
	}
	if len(dst) != buf.size {
		return fmt.Errorf("cuda copy: %d bytes from buffer of %d", len(dst), buf.size)
	}
	if len(dst) == 0 {
		return nil
	}
	return native.MemcpyDtoH(unsafe.Pointer(&dst[0]), buf.mem, int64(len(dst)))
}

func (d *cudaDevice) Launch(k Kernel, cfg LaunchConfig, bufs []Buffer, scalars []int32) error {
	if k >= kernelCount {
		return fmt.Errorf("launch: unknown kernel %d", uint8(k))
	}
	mems := make([]native.DeviceBuffer, len(bufs))
	for i, b := range bufs {
		buf, ok := b.(*cudaBuffer)
		if !ok {
			return fmt.Errorf("launch %s: foreign buffer %T", k, b)
		}
		mems[i] = buf.mem
	}
	err := native.LaunchKernel(d.fns[k],
		cfg.Grid.X, cfg.Grid.Y, cfg.Grid.Z,
		cfg.Block.X, cfg.Block.Y, cfg.Block.Z,
		0, mems, scalars)
	if err != nil {
		return fmt.Errorf("launch %s: %w", k, err)
	}
	return nil
}

func (d *cudaDevice) Synchronize() error {
	return d.ctx.Synchronize()
}
