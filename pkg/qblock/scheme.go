// Package qblock defines the quantization block formats used by crucible:
// the scheme table (block geometry, byte layout) and the host encode/decode
// codecs that fix the numeric semantics of every format. All multi-byte
// fields are little-endian; scale and min metadata is IEEE 754 half unless a
// scheme states otherwise.
package qblock

import (
	"fmt"
	"strings"
)

// Scheme identifies one block encoding. The set is closed: every scheme is
// enumerated here and carries fixed BlockSize/TypeSize attributes.
type Scheme uint8

const (
	F32 Scheme = iota
	F16
	Q4_0
	Q4_1
	Q5_0
	Q5_1
	Q8_0
	Q8_1
	Q2_K
	Q3_K
	Q4_K
	Q5_K
	Q6_K
	Q8_K

	schemeCount
)

// QK is the element count of the simple block families.
const QK = 32

// QKK is the element count of a K-family super-block.
const QKK = 256

// BlockSize returns the number of elements one encoded block holds.
func (s Scheme) BlockSize() int {
	switch s {
	case F32, F16:
		return 1
	case Q4_0, Q4_1, Q5_0, Q5_1, Q8_0, Q8_1:
		return QK
	case Q2_K, Q3_K, Q4_K, Q5_K, Q6_K, Q8_K:
		return QKK
	default:
		panic(fmt.Sprintf("qblock: unknown scheme %d", uint8(s)))
	}
}

// TypeSize returns the byte length of one encoded block, metadata included.
func (s Scheme) TypeSize() int {
	switch s {
	case F32:
		return 4
	case F16:
		return 2
	case Q4_0:
		return 2 + QK/2
	case Q4_1:
		return 4 + QK/2
	case Q5_0:
		return 6 + QK/2
	case Q5_1:
		return 8 + QK/2
	case Q8_0:
		return 2 + QK
	case Q8_1:
		return 4 + QK
	case Q2_K:
		return QKK/16 + QKK/4 + 4
	case Q3_K:
		return QKK/8 + QKK/4 + 12 + 2
	case Q4_K:
		return 4 + 12 + QKK/2
	case Q5_K:
		return 4 + 12 + QKK/8 + QKK/2
	case Q6_K:
		return QKK/2 + QKK/4 + QKK/16 + 2
	case Q8_K:
		return 4 + QKK + QKK/8
	default:
		panic(fmt.Sprintf("qblock: unknown scheme %d", uint8(s)))
	}
}

func (s Scheme) String() string {
	switch s {
	case F32:
		return "F32"
	case F16:
		return "F16"
	case Q4_0:
		return "Q4_0"
	case Q4_1:
		return "Q4_1"
	case Q5_0:
		return "Q5_0"
	case Q5_1:
		return "Q5_1"
	case Q8_0:
		return "Q8_0"
	case Q8_1:
		return "Q8_1"
	case Q2_K:
		return "Q2_K"
	case Q3_K:
		return "Q3_K"
	case Q4_K:
		return "Q4_K"
	case Q5_K:
		return "Q5_K"
	case Q6_K:
		return "Q6_K"
	case Q8_K:
		return "Q8_K"
	default:
		return fmt.Sprintf("scheme(%d)", uint8(s))
	}
}

// Schemes returns every defined scheme in tag order.
func Schemes() []Scheme {
	out := make([]Scheme, 0, schemeCount)
	for s := Scheme(0); s < schemeCount; s++ {
		out = append(out, s)
	}
	return out
}

// ParseScheme resolves a case-insensitive scheme name ("q4_0", "Q6_K", ...).
func ParseScheme(name string) (Scheme, error) {
	want := strings.ToUpper(strings.TrimSpace(name))
	for s := Scheme(0); s < schemeCount; s++ {
		if s.String() == want {
			return s, nil
		}
	}
	return 0, fmt.Errorf("qblock: unknown scheme %q", name)
}

// StorageSize returns the byte length of a packed buffer holding elemCount
// elements: ceil(elemCount/BlockSize) whole blocks of TypeSize bytes each.
func (s Scheme) StorageSize(elemCount int) int {
	bs := s.BlockSize()
	return (elemCount + bs - 1) / bs * s.TypeSize()
}

// BlockCount returns the number of whole blocks needed for elemCount elements.
func (s Scheme) BlockCount(elemCount int) int {
	bs := s.BlockSize()
	return (elemCount + bs - 1) / bs
}
