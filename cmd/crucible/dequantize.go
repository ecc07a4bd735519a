package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/crucible/pkg/qblock"
)

func dequantizeCmd() *cli.Command {
	var (
		inPath  string
		outPath string
	)

	flags := append([]cli.Flag{}, loggingFlags()...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "input .qtns container file",
			Required:    true,
			Destination: &inPath,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "output JSON file (stdout when omitted)",
			Destination: &outPath,
		},
	)

	return &cli.Command{
		Name:  "dequantize",
		Usage: "Decode a QTNS container back to a JSON array of floats",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyCommonConfig(cmd, LoadConfig())
			log := newLogger()

			data, err := os.ReadFile(inPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			ct, err := qblock.ParseContainer(data)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %s: %v", inPath, err), 1)
			}
			vals, err := qblock.Decode(ct.Scheme, ct.Payload, ct.ElemCount)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := writeFloats(outPath, vals); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			log.Debug("dequantized container",
				"scheme", ct.Scheme.String(),
				"elems", ct.ElemCount,
			)
			return nil
		},
	}
}
