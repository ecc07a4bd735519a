//go:build cuda

package native

/*
#cgo LDFLAGS: -lcuda

// Minimal CUDA driver API forward declarations to avoid requiring headers at
// compile time. The linker still needs libcuda when building with the cuda tag.
typedef unsigned long long CUdeviceptr;
typedef int CUdevice;
typedef int CUresult;
typedef void* CUcontext;
typedef void* CUmodule;
typedef void* CUfunction;
typedef void* CUstream;

extern void free(void* ptr);

extern CUresult cuInit(unsigned int flags);
extern CUresult cuGetErrorString(CUresult error, const char** str);
extern CUresult cuDeviceGetCount(int* count);
extern CUresult cuDeviceGet(CUdevice* device, int ordinal);
extern CUresult cuDeviceGetName(char* name, int len, CUdevice dev);
extern CUresult cuDevicePrimaryCtxRetain(CUcontext* pctx, CUdevice dev);
extern CUresult cuDevicePrimaryCtxRelease_v2(CUdevice dev);
extern CUresult cuCtxPushCurrent_v2(CUcontext ctx);
extern CUresult cuCtxPopCurrent_v2(CUcontext* pctx);
extern CUresult cuCtxSynchronize(void);
extern CUresult cuModuleLoad(CUmodule* module, const char* fname);
extern CUresult cuModuleUnload(CUmodule mod);
extern CUresult cuModuleGetFunction(CUfunction* fn, CUmodule mod, const char* name);
extern CUresult cuMemAlloc_v2(CUdeviceptr* dptr, unsigned long long size);
extern CUresult cuMemFree_v2(CUdeviceptr dptr);
extern CUresult cuMemsetD8_v2(CUdeviceptr dptr, unsigned char value, unsigned long long n);
extern CUresult cuMemcpyHtoD_v2(CUdeviceptr dst, const void* src, unsigned long long n);
extern CUresult cuMemcpyDtoH_v2(void* dst, CUdeviceptr src, unsigned long long n);
extern CUresult cuLaunchKernel(
	CUfunction f,
	unsigned int gridDimX,
	unsigned int gridDimY,
	unsigned int gridDimZ,
	unsigned int blockDimX,
	unsigned int blockDimY,
	unsigned int blockDimZ,
	unsigned int sharedMemBytes,
	CUstream stream,
	void** kernelParams,
	void** extra);

static const char* crucibleCuErrorString(int code) {
	const char* s = 0;
	cuGetErrorString((CUresult)code, &s);
	return s;
}

static int crucibleCuInit(void) {
	return (int)cuInit(0);
}

static int crucibleCuDeviceGetCount(int* out) {
	return (int)cuDeviceGetCount(out);
}

static int crucibleCuDeviceGet(CUdevice* out, int ordinal) {
	return (int)cuDeviceGet(out, ordinal);
}

static int crucibleCuDeviceGetName(char* name, int len, CUdevice dev) {
	return (int)cuDeviceGetName(name, len, dev);
}

static int crucibleCuPrimaryCtxRetain(CUcontext* out, CUdevice dev) {
	return (int)cuDevicePrimaryCtxRetain(out, dev);
}

static int crucibleCuPrimaryCtxRelease(CUdevice dev) {
	return (int)cuDevicePrimaryCtxRelease_v2(dev);
}

// Every context-scoped call pushes the context for exactly the duration of
// one cgo call. Goroutines migrate between OS threads, so a thread-sticky
// "current context" set once at open time would not survive.

static int crucibleCuCtxSynchronize(CUcontext ctx) {
	CUcontext prev;
	CUresult rc = cuCtxPushCurrent_v2(ctx);
	if (rc != 0) {
		return (int)rc;
	}
	rc = cuCtxSynchronize();
	cuCtxPopCurrent_v2(&prev);
	return (int)rc;
}

static int crucibleCuModuleLoad(CUcontext ctx, CUmodule* out, const char* path) {
	CUcontext prev;
	CUresult rc = cuCtxPushCurrent_v2(ctx);
	if (rc != 0) {
		return (int)rc;
	}
	rc = cuModuleLoad(out, path);
	cuCtxPopCurrent_v2(&prev);
	return (int)rc;
}

static int crucibleCuModuleUnload(CUcontext ctx, CUmodule mod) {
	CUcontext prev;
	CUresult rc = cuCtxPushCurrent_v2(ctx);
	if (rc != 0) {
		return (int)rc;
	}
	rc = cuModuleUnload(mod);
	cuCtxPopCurrent_v2(&prev);
	return (int)rc;
}

static int crucibleCuModuleGetFunction(CUcontext ctx, CUfunction* out, CUmodule mod, const char* name) {
	CUcontext prev;
	CUresult rc = cuCtxPushCurrent_v2(ctx);
	if (rc != 0) {
		return (int)rc;
	}
	rc = cuModuleGetFunction(out, mod, name);
	cuCtxPopCurrent_v2(&prev);
	return (int)rc;
}

static int crucibleCuMemAlloc(CUcontext ctx, CUdeviceptr* out, unsigned long long size) {
	CUcontext prev;
	CUresult rc = cuCtxPushCurrent_v2(ctx);
	if (rc != 0) {
		return (int)rc;
	}
	rc = cuMemAlloc_v2(out, size);
	cuCtxPopCurrent_v2(&prev);
	return (int)rc;
}

static int crucibleCuMemFree(CUcontext ctx, CUdeviceptr dptr) {
	CUcontext prev;
	CUresult rc = cuCtxPushCurrent_v2(ctx);
	if (rc != 0) {
		return (int)rc;
	}
	rc = cuMemFree_v2(dptr);
	cuCtxPopCurrent_v2(&prev);
	return (int)rc;
}

static int crucibleCuMemsetD8(CUcontext ctx, CUdeviceptr dptr, unsigned char value, unsigned long long n) {
	CUcontext prev;
	CUresult rc = cuCtxPushCurrent_v2(ctx);
	if (rc != 0) {
		return (int)rc;
	}
	rc = cuMemsetD8_v2(dptr, value, n);
	cuCtxPopCurrent_v2(&prev);
	return (int)rc;
}

static int crucibleCuMemcpyHtoD(CUcontext ctx, CUdeviceptr dst, const void* src, unsigned long long n) {
	CUcontext prev;
	CUresult rc = cuCtxPushCurrent_v2(ctx);
	if (rc != 0) {
		return (int)rc;
	}
	rc = cuMemcpyHtoD_v2(dst, src, n);
	cuCtxPopCurrent_v2(&prev);
	return (int)rc;
}

static int crucibleCuMemcpyDtoH(CUcontext ctx, void* dst, CUdeviceptr src, unsigned long long n) {
	CUcontext prev;
	CUresult rc = cuCtxPushCurrent_v2(ctx);
	if (rc != 0) {
		return (int)rc;
	}
	rc = cuMemcpyDtoH_v2(dst, src, n);
	cuCtxPopCurrent_v2(&prev);
	return (int)rc;
}

static int crucibleCuLaunchKernel(
	CUcontext ctx,
	CUfunction f,
	unsigned int gx, unsigned int gy, unsigned int gz,
	unsigned int bx, unsigned int by, unsigned int bz,
	unsigned int shared,
	void** params) {
	CUcontext prev;
	CUresult rc = cuCtxPushCurrent_v2(ctx);
	if (rc != 0) {
		return (int)rc;
	}
	rc = cuLaunchKernel(f, gx, gy, gz, bx, by, bz, shared, (CUstream)0, params, (void**)0);
	cuCtxPopCurrent_v2(&prev);
	return (int)rc;
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Init must succeed once per process before any other call.
func Init() error {
	return cuErr(C.crucibleCuInit())
}

func DeviceCount() (int, error) {
	var count C.int
	if err := cuErr(C.crucibleCuDeviceGetCount(&count)); err != nil {
		return 0, err
	}
	return int(count), nil
}

// Context is a retained primary context on one device.
type Context struct {
	dev C.CUdevice
	ctx C.CUcontext
}

func Open(ordinal int) (Context, error) {
	var dev C.CUdevice
	if err := cuErr(C.crucibleCuDeviceGet(&dev, C.int(ordinal))); err != nil {
		return Context{}, err
	}
	var ctx C.CUcontext
	if err := cuErr(C.crucibleCuPrimaryCtxRetain(&ctx, dev)); err != nil {
		return Context{}, err
	}
	return Context{dev: dev, ctx: ctx}, nil
}

func (c Context) Release() error {
	if c.ctx == nil {
		return nil
	}
	return cuErr(C.crucibleCuPrimaryCtxRelease(c.dev))
}

func (c Context) Name() (string, error) {
	var buf [256]C.char
	if err := cuErr(C.crucibleCuDeviceGetName(&buf[0], C.int(len(buf)), c.dev)); err != nil {
		return "", err
	}
	return C.GoString(&buf[0]), nil
}

func (c Context) Synchronize() error {
	return cuErr(C.crucibleCuCtxSynchronize(c.ctx))
}

// Module is a loaded device code image (cubin, ptx or fatbin).
type Module struct {
	ptr C.CUmodule
	ctx C.CUcontext
}

func (c Context) LoadModule(path string) (Module, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	var mod C.CUmodule
	if err := cuErr(C.crucibleCuModuleLoad(c.ctx, &mod, cpath)); err != nil {
		return Module{}, err
	}
	return Module{ptr: mod, ctx: c.ctx}, nil
}

func (m Module) Unload() error {
	if m.ptr == nil {
		return nil
	}
	return cuErr(C.crucibleCuModuleUnload(m.ctx, m.ptr))
}

// Function is one kernel entry point resolved from a module.
type Function struct {
	ptr C.CUfunction
	ctx C.CUcontext
}

func (m Module) Function(name string) (Function, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	var fn C.CUfunction
	if err := cuErr(C.crucibleCuModuleGetFunction(m.ctx, &fn, m.ptr, cname)); err != nil {
		return Function{}, fmt.Errorf("kernel %q: %w", name, err)
	}
	return Function{ptr: fn, ctx: m.ctx}, nil
}

type DeviceBuffer struct {
	dptr C.CUdeviceptr
	ctx  C.CUcontext
}

func (c Context) AllocDevice(bytes int64) (DeviceBuffer, error) {
	if bytes <= 0 {
		return DeviceBuffer{}, fmt.Errorf("device alloc size must be > 0")
	}
	var dptr C.CUdeviceptr
	if err := cuErr(C.crucibleCuMemAlloc(c.ctx, &dptr, C.ulonglong(bytes))); err != nil {
		return DeviceBuffer{}, err
	}
	return DeviceBuffer{dptr: dptr, ctx: c.ctx}, nil
}

func (b DeviceBuffer) Free() error {
	if b.dptr == 0 {
		return nil
	}
	return cuErr(C.crucibleCuMemFree(b.ctx, b.dptr))
}

func (b DeviceBuffer) Ptr() uint64 {
	return uint64(b.dptr)
}

func MemsetD8(dst DeviceBuffer, value byte, bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	return cuErr(C.crucibleCuMemsetD8(dst.ctx, dst.dptr, C.uchar(value), C.ulonglong(bytes)))
}

func MemcpyHtoD(dst DeviceBuffer, src unsafe.Pointer, bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	return cuErr(C.crucibleCuMemcpyHtoD(dst.ctx, dst.dptr, src, C.ulonglong(bytes)))
}

func MemcpyDtoH(dst unsafe.Pointer, src DeviceBuffer, bytes int64) error {
	if bytes <= 0 {
		return nil
	}
	return cuErr(C.crucibleCuMemcpyDtoH(src.ctx, dst, src.dptr, C.ulonglong(bytes)))
}

// LaunchKernel submits fn with the given geometry. Kernel arguments are the
// buffer device pointers followed by the int32 scalars, in order. Argument
// values are staged in C memory so no Go pointers cross the launch.
func LaunchKernel(fn Function, gridX, gridY, gridZ, blockX, blockY, blockZ, sharedBytes int, bufs []DeviceBuffer, scalars []int32) error {
	nargs := len(bufs) + len(scalars)
	if nargs == 0 {
		return cuErr(C.crucibleCuLaunchKernel(
			fn.ctx, fn.ptr,
			C.uint(gridX), C.uint(gridY), C.uint(gridZ),
			C.uint(blockX), C.uint(blockY), C.uint(blockZ),
			C.uint(sharedBytes), nil))
	}

	const slot = 8
	vals := C.malloc(C.size_t(nargs * slot))
	defer C.free(vals)
	ptrSize := unsafe.Sizeof(unsafe.Pointer(nil))
	params := C.malloc(C.size_t(uintptr(nargs) * ptrSize))
	defer C.free(params)

	for i, b := range bufs {
		*(*C.ulonglong)(unsafe.Add(vals, i*slot)) = C.ulonglong(b.dptr)
	}
	for i, s := range scalars {
		*(*C.int)(unsafe.Add(vals, (len(bufs)+i)*slot)) = C.int(s)
	}
	for i := 0; i < nargs; i++ {
		*(*unsafe.Pointer)(unsafe.Add(params, uintptr(i)*ptrSize)) = unsafe.Add(vals, i*slot)
	}

	return cuErr(C.crucibleCuLaunchKernel(
		fn.ctx, fn.ptr,
		C.uint(gridX), C.uint(gridY), C.uint(gridZ),
		C.uint(blockX), C.uint(blockY), C.uint(blockZ),
		C.uint(sharedBytes), (*unsafe.Pointer)(params)))
}

func cuErr(code C.int) error {
	if code == 0 {
		return nil
	}
	msg := C.GoString(C.crucibleCuErrorString(code))
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Errorf("cuda driver error %d: %s", int(code), msg)
}
