package graph

import (
	"bufio"
	"fmt"
	"io"

	"github.com/hupe1980/facevault/index"
)

func init() {
	index.RegisterBinaryLoader(index.KindGraph, func(r io.Reader) (index.Index, error) {
		return Load(r)
	})
}

// WriteTo writes the common header followed by the hnsw export stream.
func (x *Graph) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}

	if _, err := index.WriteHeader(cw, index.Header{
		Kind:      index.KindGraph,
		Dimension: x.dim,
		Count:     uint64(x.Len()),
	}); err != nil {
		return cw.n, err
	}
	if err := x.g.Export(cw); err != nil {
		return cw.n, fmt.Errorf("graph: export: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

// Load reads a graph index written by WriteTo.
func Load(r io.Reader) (*Graph, error) {
	br := bufio.NewReader(r)
	h, err := index.ReadHeader(br)
	if err != nil {
		return nil, err
	}
	if h.Kind != index.KindGraph {
		return nil, fmt.Errorf("graph: unexpected kind %s", h.Kind)
	}

	x, err := New(h.Dimension)
	if err != nil {
		return nil, err
	}
	if err := x.g.Import(br); err != nil {
		return nil, fmt.Errorf("graph: import: %w", err)
	}
	if uint64(x.Len()) != h.Count {
		return nil, fmt.Errorf("graph: header declares %d nodes, stream holds %d", h.Count, x.Len())
	}
	x.opts.M = x.g.M
	x.opts.EfSearch = x.g.EfSearch
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
