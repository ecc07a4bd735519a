package tensor

// Layout maps tensor coordinates onto a linear element buffer. Strides are
// in elements, not bytes, and Offset is the element index of the first
// coordinate. A view over an existing buffer is just another Layout.
type Layout struct {
	Shape   []int
	Strides []int
	Offset  int
}

// Contiguous builds the row-major layout for shape with offset zero.
func Contiguous(shape ...int) Layout {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return Layout{Shape: append([]int(nil), shape...), Strides: strides}
}

func (l Layout) Rank() int {
	return len(l.Shape)
}

// Elems is the number of addressable coordinates, zero if any axis is empty.
func (l Layout) Elems() int {
	n := 1
	for _, d := range l.Shape {
		n *= d
	}
	return n
}

// IsContiguous reports whether walking the layout in row-major coordinate
// order visits consecutive buffer elements. Axes of size one cannot change
// the walk, so their strides are ignored.
func (l Layout) IsContiguous() bool {
	acc := 1
	for i := len(l.Shape) - 1; i >= 0; i-- {
		if l.Shape[i] != 1 && l.Strides[i] != acc {
			return false
		}
		acc *= l.Shape[i]
	}
	return true
}

// span is the linear buffer length the layout can touch: one past the
// largest reachable element index, or zero when the layout is empty.
func (l Layout) span() int {
	end := l.Offset
	for i := range l.Shape {
		if l.Shape[i] == 0 {
			return 0
		}
		end += (l.Shape[i] - 1) * l.Strides[i]
	}
	return end + 1
}
