package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/crucible/pkg/qblock"
)

func inspectCmd() *cli.Command {
	var (
		inPath string
		asJSON bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print QTNS container metadata",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "input .qtns container file",
				Required:    true,
				Destination: &inPath,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit metadata as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			data, err := os.ReadFile(inPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			ct, err := qblock.ParseContainer(data)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %s: %v", inPath, err), 1)
			}

			scheme := ct.Scheme
			blocks := scheme.BlockCount(ct.ElemCount)
			bits := float64(scheme.TypeSize()*8) / float64(scheme.BlockSize())

			if asJSON {
				out := struct {
					File        string  `json:"file"`
					Scheme      string  `json:"scheme"`
					ElemCount   int     `json:"elem_count"`
					Blocks      int     `json:"blocks"`
					BlockSize   int     `json:"block_size"`
					TypeSize    int     `json:"type_size"`
					PayloadSize int     `json:"payload_size"`
					BitsPerWt   float64 `json:"bits_per_weight"`
				}{
					File:        inPath,
					Scheme:      scheme.String(),
					ElemCount:   ct.ElemCount,
					Blocks:      blocks,
					BlockSize:   scheme.BlockSize(),
					TypeSize:    scheme.TypeSize(),
					PayloadSize: len(ct.Payload),
					BitsPerWt:   bits,
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			fmt.Printf("file:        %s\n", inPath)
			fmt.Printf("scheme:      %s\n", scheme)
			fmt.Printf("elements:    %d\n", ct.ElemCount)
			fmt.Printf("blocks:      %d x %d bytes (block size %d)\n", blocks, scheme.TypeSize(), scheme.BlockSize())
			fmt.Printf("payload:     %d bytes\n", len(ct.Payload))
			fmt.Printf("bits/weight: %.2f\n", bits)
			return nil
		},
	}
}
