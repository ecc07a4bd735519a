package main

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"
)

// readFloats parses a JSON array of numbers from path.
func readFloats(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var vals []float32
	if err := json.Unmarshal(data, &vals); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%s: no values", path)
	}
	return vals, nil
}

// writeFloats writes vals as a JSON array to path, or to stdout when path
// is empty.
func writeFloats(path string, vals []float32) error {
	data, err := json.Marshal(vals)
	if err != nil {
		return err
	}
	if path == "" {
		_, err = fmt.Printf("%s\n", data)
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
