package flat

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hupe1980/facevault/index"
)

// maxVectorFloats bounds allocations when reading untrusted headers.
const maxVectorFloats = 1 << 34

func init() {
	index.RegisterBinaryLoader(index.KindFlat, func(r io.Reader) (index.Index, error) {
		return Load(r)
	})
}

// WriteTo writes the header followed by the raw little-endian vector arena.
func (f *Flat) WriteTo(w io.Writer) (int64, error) {
	n, err := index.WriteHeader(w, index.Header{
		Kind:      index.KindFlat,
		Dimension: f.dim,
		Count:     uint64(f.Len()),
	})
	if err != nil {
		return n, err
	}
	if err := binary.Write(w, binary.LittleEndian, f.vectors); err != nil {
		return n, err
	}
	return n + int64(len(f.vectors)*4), nil
}

// Load reads a flat index written by WriteTo.
func Load(r io.Reader) (*Flat, error) {
	br := bufio.NewReader(r)
	h, err := index.ReadHeader(br)
	if err != nil {
		return nil, err
	}
	if h.Kind != index.KindFlat {
		return nil, fmt.Errorf("flat: unexpected kind %s", h.Kind)
	}

	f, err := New(h.Dimension)
	if err != nil {
		return nil, err
	}

	total := h.Count * uint64(h.Dimension)
	if total > maxVectorFloats {
		return nil, fmt.Errorf("flat: implausible vector count %d", h.Count)
	}
	f.vectors = make([]float32, total)
	if err := binary.Read(br, binary.LittleEndian, f.vectors); err != nil {
		return nil, fmt.Errorf("flat: failed to read vectors: %w", err)
	}
	return f, nil
}
