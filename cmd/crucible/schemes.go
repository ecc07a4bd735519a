package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/crucible/pkg/qblock"
)

func schemesCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "schemes",
		Usage: "List supported quantization schemes",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit the listing as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			schemes := qblock.Schemes()

			if asJSON {
				type entry struct {
					Name      string  `json:"name"`
					BlockSize int     `json:"block_size"`
					TypeSize  int     `json:"type_size"`
					BitsPerWt float64 `json:"bits_per_weight"`
				}
				out := make([]entry, 0, len(schemes))
				for _, s := range schemes {
					out = append(out, entry{
						Name:      s.String(),
						BlockSize: s.BlockSize(),
						TypeSize:  s.TypeSize(),
						BitsPerWt: float64(s.TypeSize()*8) / float64(s.BlockSize()),
					})
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			fmt.Printf("%-8s %8s %10s %14s\n", "scheme", "block", "bytes", "bits/weight")
			for _, s := range schemes {
				bits := float64(s.TypeSize()*8) / float64(s.BlockSize())
				fmt.Printf("%-8s %8d %10d %14.2f\n", s.String(), s.BlockSize(), s.TypeSize(), bits)
			}
			return nil
		},
	}
}
