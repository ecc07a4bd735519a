//go:build !cuda

package device

const cudaEnabled = false

func newCUDA() (Device, error) {
	return nil, ErrCUDAUnavailable
}
