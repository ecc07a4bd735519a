// Prints the host capabilities crucible dispatches on, as JSON. Useful when
// comparing bench numbers across machines.
package main

import (
	"fmt"
	"os"
	"runtime"

	json "github.com/goccy/go-json"
	"golang.org/x/sys/cpu"

	"github.com/samcharles93/crucible/internal/device"
)

type report struct {
	GoVersion string          `json:"go_version"`
	GoOS      string          `json:"go_os"`
	GoArch    string          `json:"go_arch"`
	CPUs      int             `json:"cpus"`
	Devices   string          `json:"devices"`
	CPUDevice string          `json:"cpu_device"`
	Features  map[string]bool `json:"features"`
}

func main() {
	dev, err := device.New(device.CPU)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open cpu device: %v\n", err)
		os.Exit(1)
	}

	features := map[string]bool{
		"AVX":     cpu.X86.HasAVX,
		"AVX2":    cpu.X86.HasAVX2,
		"FMA":     cpu.X86.HasFMA,
		"AVX512F": cpu.X86.HasAVX512F,
		"NEON":    cpu.ARM64.HasASIMD,
	}

	out := report{
		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
		Devices:   device.Available(),
		CPUDevice: dev.Name(),
		Features:  features,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}
