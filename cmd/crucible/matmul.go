package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/crucible/internal/device"
	"github.com/samcharles93/crucible/internal/qstore"
	"github.com/samcharles93/crucible/internal/tensor"
	"github.com/samcharles93/crucible/pkg/qblock"
)

func matmulCmd() *cli.Command {
	var (
		weightsPath  string
		inputPath    string
		outPath      string
		strategyName string
	)

	flags := append([]cli.Flag{}, commonDeviceFlags()...)
	flags = append(flags, loggingFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "weights",
			Aliases:     []string{"w"},
			Usage:       "QTNS container holding the rows x cols weight matrix",
			Required:    true,
			Destination: &weightsPath,
		},
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "input JSON file (vector of cols numbers)",
			Required:    true,
			Destination: &inputPath,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "output JSON file (stdout when omitted)",
			Destination: &outPath,
		},
		&cli.StringFlag{
			Name:        "strategy",
			Usage:       "matvec strategy (auto, dequantize, quantized-dot)",
			Value:       "auto",
			Destination: &strategyName,
		},
	)

	return &cli.Command{
		Name:  "matmul",
		Usage: "Multiply a quantized weight container by a dense vector",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyMatMulConfig(cmd, LoadConfig(), &strategyName)
			log := newLogger()

			strategy, err := qstore.ParseStrategy(strategyName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			data, err := os.ReadFile(weightsPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			ct, err := qblock.ParseContainer(data)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %s: %v", weightsPath, err), 1)
			}
			input, err := readFloats(inputPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			cols := len(input)
			if ct.ElemCount%cols != 0 {
				return cli.Exit(fmt.Sprintf("error: container holds %d elements, not divisible into rows of %d", ct.ElemCount, cols), 1)
			}
			rows := ct.ElemCount / cols

			dev, err := device.New(deviceName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			st, err := qstore.Load(dev, ct.Scheme, ct.Payload, ct.ElemCount)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer st.Close()

			rhs, err := tensor.FromFloats(dev, input, 1, cols)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer rhs.Close()

			out, err := st.Forward(rows, cols, rhs, strategy)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			defer out.Close()

			vals, err := out.Floats()
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			log.Info("matvec complete",
				"scheme", ct.Scheme.String(),
				"rows", rows,
				"cols", cols,
				"strategy", strategy.String(),
				"device", dev.Name(),
			)
			return writeFloats(outPath, vals)
		},
	}
}
