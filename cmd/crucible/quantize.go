package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/crucible/pkg/qblock"
)

func quantizeCmd() *cli.Command {
	var (
		schemeName string
		inPath     string
		outPath    string
	)

	flags := append([]cli.Flag{}, loggingFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "scheme",
			Aliases:     []string{"s"},
			Usage:       "quantization scheme (see crucible schemes)",
			Value:       "q4_0",
			Destination: &schemeName,
		},
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "input JSON file (array of numbers)",
			Required:    true,
			Destination: &inPath,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "output .qtns container file",
			Required:    true,
			Destination: &outPath,
		},
	)

	return &cli.Command{
		Name:  "quantize",
		Usage: "Quantize a JSON array of floats into a QTNS container",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyQuantizeConfig(cmd, LoadConfig(), &schemeName)
			log := newLogger()

			scheme, err := qblock.ParseScheme(schemeName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			vals, err := readFloats(inPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			payload, err := qblock.Encode(scheme, vals)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			framed, err := qblock.PackContainer(scheme, len(vals), payload)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := os.WriteFile(outPath, framed, 0o644); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			log.Info("quantized tensor",
				"scheme", scheme.String(),
				"elems", len(vals),
				"payload_bytes", len(payload),
				"compression", fmt.Sprintf("%.2fx", float64(len(vals)*4)/float64(len(payload))),
				"output", outPath,
			)
			return nil
		},
	}
}
