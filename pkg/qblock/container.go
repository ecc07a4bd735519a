package qblock

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Container framing constants must never change.
const (
	// MagicQTNS is the frame magic for packed tensors, encoded as "QTNS".
	MagicQTNS = "QTNS"

	// ContainerVersion: any change indicates a breaking frame change.
	ContainerVersion uint16 = 1

	containerHeaderSize = 24
)

var (
	ErrInvalidMagic       = errors.New("invalid container magic")
	ErrUnsupportedVersion = errors.New("unsupported container version")
	ErrCorruptContainer   = errors.New("corrupt container")
)

// Container frames one packed tensor for files and wire transfer. The frame
// is magic, version, scheme, element count, payload size and the raw
// payload, all little endian.
type Container struct {
	Scheme    Scheme
	ElemCount int
	Payload   []byte
}

// PackContainer frames a packed payload. The payload length must match the
// scheme's storage size for elemCount.
func PackContainer(s Scheme, elemCount int, payload []byte) ([]byte, error) {
	if s >= schemeCount {
		return nil, fmt.Errorf("%w: scheme %d", ErrCorruptContainer, uint8(s))
	}
	if elemCount < 0 || len(payload) != s.StorageSize(elemCount) {
		return nil, fmt.Errorf("%w: payload %d bytes for %d %s elements",
			ErrCorruptContainer, len(payload), elemCount, s)
	}
	out := make([]byte, containerHeaderSize+len(payload))
	copy(out[0:4], MagicQTNS)
	binary.LittleEndian.PutUint16(out[4:6], ContainerVersion)
	binary.LittleEndian.PutUint16(out[6:8], uint16(s))
	binary.LittleEndian.PutUint64(out[8:16], uint64(elemCount))
	binary.LittleEndian.PutUint64(out[16:24], uint64(len(payload)))
	copy(out[containerHeaderSize:], payload)
	return out, nil
}

// ParseContainer validates a frame and returns its contents.
// The payload aliases data; the caller must not mutate data while the
// parsed container is in use.
func ParseContainer(data []byte) (*Container, error) {
	if len(data) < containerHeaderSize {
		return nil, ErrCorruptContainer
	}
	if string(data[0:4]) != MagicQTNS {
		return nil, ErrInvalidMagic
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != ContainerVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	raw := binary.LittleEndian.Uint16(data[6:8])
	if raw >= uint16(schemeCount) {
		return nil, fmt.Errorf("%w: unknown scheme %d", ErrCorruptContainer, raw)
	}
	s := Scheme(raw)
	elems := binary.LittleEndian.Uint64(data[8:16])
	if elems > uint64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: element count out of range", ErrCorruptContainer)
	}
	want := s.StorageSize(int(elems))
	if size := binary.LittleEndian.Uint64(data[16:24]); size != uint64(want) {
		return nil, fmt.Errorf("%w: payload size %d, want %d", ErrCorruptContainer, size, want)
	}
	if len(data)-containerHeaderSize != want {
		return nil, fmt.Errorf("%w: frame %d bytes, want %d",
			ErrCorruptContainer, len(data), containerHeaderSize+want)
	}
	return &Container{
		Scheme:    s,
		ElemCount: int(elems),
		Payload:   data[containerHeaderSize:],
	}, nil
}
