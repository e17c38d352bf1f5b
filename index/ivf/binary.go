package ivf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hupe1980/facevault/index"
)

const maxFloats = 1 << 34

func init() {
	index.RegisterBinaryLoader(index.KindIVF, func(r io.Reader) (index.Index, error) {
		return Load(r)
	})
}

// paramsBlock follows the common header.
//
// Layout (little endian):
//
//	[0:4]   lists (learned centroid count, 0 if untrained)
//	[4:8]   probes
//	[8:12]  max iterations
//	[12:20] seed
type paramsBlock struct {
	Lists         uint32
	Probes        uint32
	MaxIterations uint32
	Seed          int64
}

// WriteTo writes header, params, centroids, the vector arena and list assignments.
func (x *IVF) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}

	if _, err := index.WriteHeader(cw, index.Header{
		Kind:      index.KindIVF,
		Dimension: x.dim,
		Count:     uint64(x.Len()),
	}); err != nil {
		return cw.n, err
	}

	p := paramsBlock{
		Lists:         uint32(x.Lists()),
		Probes:        uint32(x.opts.Probes),
		MaxIterations: uint32(x.opts.MaxIterations),
		Seed:          x.opts.Seed,
	}
	for _, v := range []any{p, x.centroids, x.vectors, x.assign} {
		if err := binary.Write(cw, binary.LittleEndian, v); err != nil {
			return cw.n, err
		}
	}

	if err := bw.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// Load reads an IVF index written by WriteTo.
func Load(r io.Reader) (*IVF, error) {
	br := bufio.NewReader(r)
	h, err := index.ReadHeader(br)
	if err != nil {
		return nil, err
	}
	if h.Kind != index.KindIVF {
		return nil, fmt.Errorf("ivf: unexpected kind %s", h.Kind)
	}

	var p paramsBlock
	if err := binary.Read(br, binary.LittleEndian, &p); err != nil {
		return nil, fmt.Errorf("ivf: failed to read params: %w", err)
	}

	x, err := New(h.Dimension, func(o *Options) {
		if p.Lists > 0 {
			o.Lists = int(p.Lists)
		}
		o.Probes = int(p.Probes)
		o.MaxIterations = int(p.MaxIterations)
		o.Seed = p.Seed
	})
	if err != nil {
		return nil, err
	}

	centroidFloats := uint64(p.Lists) * uint64(h.Dimension)
	vectorFloats := h.Count * uint64(h.Dimension)
	if centroidFloats > maxFloats || vectorFloats > maxFloats {
		return nil, fmt.Errorf("ivf: implausible sizes lists=%d count=%d", p.Lists, h.Count)
	}
	if p.Lists == 0 && h.Count > 0 {
		return nil, fmt.Errorf("ivf: untrained index with %d vectors", h.Count)
	}

	if p.Lists > 0 {
		x.centroids = make([]float32, centroidFloats)
		if err := binary.Read(br, binary.LittleEndian, x.centroids); err != nil {
			return nil, fmt.Errorf("ivf: failed to read centroids: %w", err)
		}
		x.lists = make([][]uint32, p.Lists)
	}

	x.vectors = make([]float32, vectorFloats)
	if err := binary.Read(br, binary.LittleEndian, x.vectors); err != nil {
		return nil, fmt.Errorf("ivf: failed to read vectors: %w", err)
	}

	x.assign = make([]uint32, h.Count)
	if err := binary.Read(br, binary.LittleEndian, x.assign); err != nil {
		return nil, fmt.Errorf("ivf: failed to read assignments: %w", err)
	}

	for slot, list := range x.assign {
		if list >= p.Lists {
			return nil, fmt.Errorf("ivf: slot %d assigned to unknown list %d", slot, list)
		}
		x.lists[list] = append(x.lists[list], uint32(slot))
	}

	return x, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
