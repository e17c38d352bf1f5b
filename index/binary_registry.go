package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

const (
	// HeaderSize is the fixed size of the binary structure header.
	HeaderSize = 64

	// Magic identifies a facevault structure stream ("FVIX").
	Magic uint32 = 0x46564958

	// FormatVersion is the current binary format version.
	FormatVersion uint16 = 1
)

// Header is the fixed-size prefix of every serialized structure.
//
// Layout (little endian):
//
//	[0:4]   magic
//	[4:6]   format version
//	[8]     kind
//	[12:16] dimension
//	[16:24] vector count
type Header struct {
	Version   uint16
	Kind      Kind
	Dimension int
	Count     uint64
}

// MarshalBinary encodes the header into HeaderSize bytes.
func (h Header) MarshalBinary() ([]byte, error) {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	buf[8] = byte(h.Kind)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(h.Dimension))
	binary.LittleEndian.PutUint64(buf[16:24], h.Count)
	return buf[:], nil
}

// UnmarshalBinary decodes a header, validating magic and version.
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("header too short: %d bytes", len(data))
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != Magic {
		return fmt.Errorf("invalid magic number: expected 0x%08x, got 0x%08x", Magic, magic)
	}
	h.Version = binary.LittleEndian.Uint16(data[4:6])
	if h.Version == 0 || h.Version > FormatVersion {
		return fmt.Errorf("unsupported format version: %d", h.Version)
	}
	h.Kind = Kind(data[8])
	h.Dimension = int(binary.LittleEndian.Uint32(data[12:16]))
	h.Count = binary.LittleEndian.Uint64(data[16:24])
	return nil
}

// WriteHeader writes h to w.
func WriteHeader(w io.Writer, h Header) (int64, error) {
	if h.Version == 0 {
		h.Version = FormatVersion
	}
	b, _ := h.MarshalBinary()
	n, err := w.Write(b)
	return int64(n), err
}

// ReadHeader reads and validates a header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, fmt.Errorf("failed to read header: %w", err)
	}
	var h Header
	if err := h.UnmarshalBinary(buf[:]); err != nil {
		return Header{}, err
	}
	return h, nil
}

// BinaryLoader constructs an index instance by reading its binary representation
// from r. The reader will begin at the start of the binary index stream.
type BinaryLoader func(r io.Reader) (Index, error)

var (
	binaryLoaderMu sync.RWMutex
	binaryLoaders  = map[Kind]BinaryLoader{}
)

// RegisterBinaryLoader registers a loader for a specific structure kind.
//
// Structure implementations should call this from an init() function.
func RegisterBinaryLoader(kind Kind, loader BinaryLoader) {
	binaryLoaderMu.Lock()
	defer binaryLoaderMu.Unlock()
	binaryLoaders[kind] = loader
}

// LoadBinaryIndex reads a structure from r.
//
// It peeks the header to detect the kind, then dispatches to a registered
// loader which receives the full stream including the header.
func LoadBinaryIndex(r io.Reader) (Index, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var h Header
	if err := h.UnmarshalBinary(header[:]); err != nil {
		return nil, err
	}

	binaryLoaderMu.RLock()
	loader, ok := binaryLoaders[h.Kind]
	binaryLoaderMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown index kind: %d", h.Kind)
	}

	return loader(io.MultiReader(bytes.NewReader(header[:]), r))
}
