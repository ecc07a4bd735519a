package main

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/crucible/internal/device"
	"github.com/samcharles93/crucible/internal/qstore"
	"github.com/samcharles93/crucible/internal/tensor"
	"github.com/samcharles93/crucible/pkg/qblock"
)

func benchCmd() *cli.Command {
	var (
		schemeName string
		rows       int64
		cols       int64
		warmupRuns int64
		benchRuns  int64
	)

	flags := append([]cli.Flag{}, commonDeviceFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "scheme",
			Aliases:     []string{"s"},
			Usage:       "quantization scheme",
			Value:       "q4_0",
			Destination: &schemeName,
		},
		&cli.Int64Flag{
			Name:        "rows",
			Usage:       "weight matrix rows",
			Value:       512,
			Destination: &rows,
		},
		&cli.Int64Flag{
			Name:        "cols",
			Usage:       "weight matrix cols",
			Value:       2048,
			Destination: &cols,
		},
		&cli.Int64Flag{
			Name:        "warmup",
			Usage:       "number of warmup runs",
			Value:       2,
			Destination: &warmupRuns,
		},
		&cli.Int64Flag{
			Name:        "runs",
			Usage:       "number of timed runs per strategy",
			Value:       50,
			Destination: &benchRuns,
		},
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Benchmark matvec strategies on synthetic data",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyBenchConfig(cmd, LoadConfig(), &rows, &cols, &benchRuns)
			log := newLogger()

			scheme, err := qblock.ParseScheme(schemeName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if cols <= 0 || cols%int64(scheme.BlockSize()) != 0 {
				return cli.Exit(fmt.Sprintf("error: cols must be a positive multiple of %d for %s", scheme.BlockSize(), scheme), 1)
			}
			if rows <= 0 || benchRuns <= 0 {
				return cli.Exit("error: rows and runs must be positive", 1)
			}
			dev, err := device.New(deviceName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			r, c := int(rows), int(cols)
			rng := rand.New(rand.NewSource(42))
			weights := make([]float32, r*c)
			for i := range weights {
				weights[i] = rng.Float32()*2 - 1
			}
			input := make([]float32, c)
			for i := range input {
				input[i] = rng.Float32()*2 - 1
			}

			st, err := qstore.Zeros(dev, scheme, r*c)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer st.Close()
			if err := st.QuantizeFloats(weights); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			rhs, err := tensor.FromFloats(dev, input, 1, c)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer rhs.Close()

			fmt.Println("=== Crucible Bench ===")
			fmt.Printf("Scheme:   %s (%d bytes / %d weights)\n", scheme, scheme.TypeSize(), scheme.BlockSize())
			fmt.Printf("Matrix:   %d x %d\n", r, c)
			fmt.Printf("Device:   %s\n", dev.Name())
			fmt.Printf("CPUs:     %d (GOMAXPROCS %d)\n", runtime.NumCPU(), runtime.GOMAXPROCS(0))
			fmt.Printf("Warmup:   %d runs\n", warmupRuns)
			fmt.Printf("Runs:     %d\n", benchRuns)
			fmt.Println()

			run := func(strategy qstore.Strategy) (time.Duration, error) {
				start := time.Now()
				out, err := st.Forward(r, c, rhs, strategy)
				if err != nil {
					return 0, err
				}
				elapsed := time.Since(start)
				return elapsed, out.Close()
			}

			flops := 2 * float64(r) * float64(c)
			fmt.Printf("%-14s %12s %12s %10s\n", "Strategy", "Best", "Avg", "GFLOP/s")
			for _, strategy := range []qstore.Strategy{qstore.StrategyDequantize, qstore.StrategyQuantizedDot} {
				unavailable := false
				for range int(warmupRuns) {
					if _, err := run(strategy); err != nil {
						log.Warn("strategy unavailable", "strategy", strategy.String(), "err", err)
						unavailable = true
						break
					}
				}
				if unavailable {
					fmt.Printf("%-14s %12s\n", strategy.String(), "n/a")
					continue
				}

				var total, best time.Duration
				for range int(benchRuns) {
					d, err := run(strategy)
					if err != nil {
						return cli.Exit(fmt.Sprintf("error: %v", err), 1)
					}
					total += d
					if best == 0 || d < best {
						best = d
					}
				}
				avg := total / time.Duration(benchRuns)
				gflops := flops / best.Seconds() / 1e9
				fmt.Printf("%-14s %12s %12s %10.2f\n",
					strategy.String(), best.Round(time.Microsecond), avg.Round(time.Microsecond), gflops)
			}

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))

			return nil
		},
	}
}
