package tensor

import (
	"slices"
	"testing"
)

func TestContiguousStrides(t *testing.T) {
	tests := []struct {
		name    string
		shape   []int
		strides []int
	}{
		{"vector", []int{4}, []int{1}},
		{"matrix", []int{3, 5}, []int{5, 1}},
		{"batched", []int{2, 3, 4}, []int{12, 4, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Contiguous(tt.shape...)
			if !slices.Equal(l.Strides, tt.strides) {
				t.Fatalf("strides = %v, want %v", l.Strides, tt.strides)
			}
			if l.Offset != 0 {
				t.Fatalf("offset = %d, want 0", l.Offset)
			}
		})
	}
}

func TestIsContiguous(t *testing.T) {
	tests := []struct {
		name string
		l    Layout
		want bool
	}{
		{"row major", Contiguous(3, 5), true},
		{"transposed", Layout{Shape: []int{5, 3}, Strides: []int{1, 5}}, false},
		{"unit axis ignores stride", Layout{Shape: []int{1, 7}, Strides: []int{99, 1}}, true},
		{"offset does not matter", Layout{Shape: []int{4}, Strides: []int{1}, Offset: 8}, true},
		{"gapped rows", Layout{Shape: []int{2, 3}, Strides: []int{4, 1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.l.IsContiguous(); got != tt.want {
				t.Fatalf("IsContiguous() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLayoutElems(t *testing.T) {
	if got := Contiguous(2, 3).Elems(); got != 6 {
		t.Fatalf("Elems() = %d, want 6", got)
	}
	if got := Contiguous(2, 0, 3).Elems(); got != 0 {
		t.Fatalf("Elems() with empty axis = %d, want 0", got)
	}
}

func TestLayoutSpan(t *testing.T) {
	tests := []struct {
		name string
		l    Layout
		want int
	}{
		{"contiguous", Contiguous(2, 3), 6},
		{"strided window", Layout{Shape: []int{2, 2}, Strides: []int{1, 4}, Offset: 3}, 9},
		{"empty axis", Layout{Shape: []int{0, 4}, Strides: []int{4, 1}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.l.span(); got != tt.want {
				t.Fatalf("span() = %d, want %d", got, tt.want)
			}
		})
	}
}
