package main

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestReadWriteFloatsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vals.json")

	want := []float32{-1.5, 0, 0.25, 3}
	if err := writeFloats(path, want); err != nil {
		t.Fatalf("writeFloats: %v", err)
	}
	got, err := readFloats(path)
	if err != nil {
		t.Fatalf("readFloats: %v", err)
	}
	if !slices.Equal(got, want) {
		t.Fatalf("round trip: got %v, want %v", got, want)
	}
}

func TestReadFloatsErrors(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readFloats(empty); err == nil {
		t.Fatal("expected error for empty array")
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readFloats(bad); err == nil {
		t.Fatal("expected error for malformed JSON")
	}

	if _, err := readFloats(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
