package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/facevault/codec"
	"github.com/hupe1980/facevault/index"
	"github.com/hupe1980/facevault/metadata"
	"github.com/hupe1980/facevault/persistence"

	// Register structure loaders.
	_ "github.com/hupe1980/facevault/index/flat"
	_ "github.com/hupe1980/facevault/index/graph"
	_ "github.com/hupe1980/facevault/index/ivf"
)

const (
	// IndexFile holds the serialized search structure.
	IndexFile = "index.bin"
	// MetadataFile holds the records, inactive set and structure checksum.
	MetadataFile = "metadata.bin"
)

// metadataMagic prefixes the metadata blob ("FVMD").
const metadataMagic uint32 = 0x46564d44

const metadataVersion = 1

// snapshotMeta is the codec-encoded body of metadata.bin.
type snapshotMeta struct {
	Version       int               `json:"version"`
	Kind          string            `json:"kind"`
	Dimension     int               `json:"dimension"`
	Count         int               `json:"count"`
	IndexChecksum uint32            `json:"index_checksum"`
	Records       []metadata.Record `json:"records"`
	Inactive      []byte            `json:"inactive,omitempty"`
	SavedAt       time.Time         `json:"saved_at"`
}

// SaveTo writes a snapshot of the index into dir. Concurrent saves are
// serialized; each encodes the state current when it acquires the turn.
func (x *Index) SaveTo(ctx context.Context, dir string) error {
	x.saveMu.Lock()
	defer x.saveMu.Unlock()

	start := time.Now()

	indexBlob, metaBlob, err := x.encodeSnapshot()
	if err == nil {
		err = persistence.AtomicSaveToDir(dir, []persistence.File{
			{Name: IndexFile, Write: writeBlob(indexBlob)},
			{Name: MetadataFile, Write: writeBlob(metaBlob)},
		})
	}

	size := int64(len(indexBlob) + len(metaBlob))
	x.opts.Metrics.OnSnapshot("save", size, time.Since(start), err)
	x.opts.Logger.LogSnapshot(ctx, "save", dir, x.Size(), err)
	return err
}

// Persist saves to the handle's home directory.
func (x *Index) Persist(ctx context.Context) error {
	if x.opts.Home == "" {
		return ErrNoHome
	}
	return x.SaveTo(ctx, x.opts.Home)
}

func writeBlob(b []byte) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	}
}

// encodeSnapshot serializes both files under the read lock so the pair is consistent.
func (x *Index) encodeSnapshot() ([]byte, []byte, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	var raw bytes.Buffer
	if _, err := x.structure.WriteTo(&raw); err != nil {
		return nil, nil, fmt.Errorf("engine: encode structure: %w", err)
	}
	indexBlob, err := persistence.EncodeFrame(raw.Bytes(), x.opts.Compression)
	if err != nil {
		return nil, nil, err
	}

	inactive, err := x.inactive.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("engine: encode inactive set: %w", err)
	}

	meta := snapshotMeta{
		Version:       metadataVersion,
		Kind:          x.kind.String(),
		Dimension:     x.dim,
		Count:         x.table.Len(),
		IndexChecksum: persistence.Checksum(indexBlob),
		Records:       x.table.Records(),
		SavedAt:       time.Now().UTC(),
	}
	if !x.inactive.IsEmpty() {
		meta.Inactive = inactive
	}

	body, err := x.opts.Codec.Marshal(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("engine: encode metadata: %w", err)
	}

	name := x.opts.Codec.Name()
	raw.Reset()
	var prefix [5]byte
	binary.LittleEndian.PutUint32(prefix[0:4], metadataMagic)
	prefix[4] = byte(len(name))
	raw.Write(prefix[:])
	raw.WriteString(name)
	raw.Write(body)

	metaBlob, err := persistence.EncodeFrame(raw.Bytes(), x.opts.Compression)
	if err != nil {
		return nil, nil, err
	}
	return indexBlob, metaBlob, nil
}

// Load reads the snapshot in dir. The returned handle uses dir as its home
// unless WithHome overrides it.
//
// A missing file yields ErrNoSnapshot; any other failure wraps ErrCorruptSnapshot.
func Load(dir string, opts ...Option) (*Index, error) {
	start := time.Now()
	o := applyOptions(append([]Option{WithHome(dir)}, opts...))

	x, size, err := load(dir, o)
	o.Metrics.OnSnapshot("load", size, time.Since(start), err)
	return x, err
}

func load(dir string, o Options) (*Index, int64, error) {
	metaBlob, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, 0, classifyReadErr(err)
	}
	indexBlob, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, 0, classifyReadErr(err)
	}
	size := int64(len(metaBlob) + len(indexBlob))

	meta, err := decodeMeta(metaBlob)
	if err != nil {
		return nil, size, corrupt(err)
	}
	if err := persistence.VerifyChecksum(indexBlob, meta.IndexChecksum); err != nil {
		return nil, size, corrupt(fmt.Errorf("index file does not belong to metadata file: %w", err))
	}

	raw, err := persistence.DecodeFrame(indexBlob)
	if err != nil {
		return nil, size, corrupt(err)
	}
	s, err := index.LoadBinaryIndex(bytes.NewReader(raw))
	if err != nil {
		return nil, size, corrupt(err)
	}

	kind, err := index.ParseKind(meta.Kind)
	if err != nil {
		return nil, size, corrupt(err)
	}
	switch {
	case s.Kind() != kind:
		return nil, size, corrupt(fmt.Errorf("structure kind %s, metadata says %s", s.Kind(), kind))
	case s.Dimension() != meta.Dimension:
		return nil, size, corrupt(fmt.Errorf("structure dimension %d, metadata says %d", s.Dimension(), meta.Dimension))
	case s.Len() != len(meta.Records) || meta.Count != len(meta.Records):
		return nil, size, corrupt(fmt.Errorf("structure holds %d entries, metadata %d", s.Len(), len(meta.Records)))
	}

	inactive := metadata.NewSlotSet()
	if err := inactive.UnmarshalBinary(meta.Inactive); err != nil {
		return nil, size, corrupt(fmt.Errorf("inactive set: %w", err))
	}

	return &Index{
		dim:       meta.Dimension,
		kind:      kind,
		opts:      o,
		structure: s,
		table:     metadata.FromRecords(meta.Records),
		inactive:  inactive,
	}, size, nil
}

func decodeMeta(blob []byte) (snapshotMeta, error) {
	var meta snapshotMeta

	raw, err := persistence.DecodeFrame(blob)
	if err != nil {
		return meta, err
	}
	if len(raw) < 5 || binary.LittleEndian.Uint32(raw[0:4]) != metadataMagic {
		return meta, errors.New("metadata: bad magic")
	}
	n := int(raw[4])
	if len(raw) < 5+n {
		return meta, errors.New("metadata: truncated codec name")
	}
	name := string(raw[5 : 5+n])
	c, err := codec.Lookup(name)
	if err != nil {
		return meta, fmt.Errorf("metadata: %w", err)
	}
	if err := c.Unmarshal(raw[5+n:], &meta); err != nil {
		return meta, fmt.Errorf("metadata: %w", err)
	}
	if meta.Version != metadataVersion {
		return meta, fmt.Errorf("metadata: unsupported version %d", meta.Version)
	}
	return meta, nil
}

func classifyReadErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNoSnapshot
	}
	return corrupt(err)
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
}

// Open loads the snapshot in dir or creates an empty index.
//
// A missing snapshot yields a fresh index. A corrupt snapshot is logged at
// WARN and also yields a fresh index; a later rebuild restores consistency.
// A snapshot of a different dimension or kind is a configuration error.
// loaded reports whether a snapshot was used.
func Open(dir string, dim int, kind index.Kind, opts ...Option) (x *Index, loaded bool, err error) {
	if err := index.ValidateDimension(dim); err != nil {
		return nil, false, err
	}

	x, err = Load(dir, opts...)
	switch {
	case err == nil:
		if x.dim != dim || x.kind != kind {
			return nil, false, fmt.Errorf("%w: stored %s/%d, configured %s/%d",
				ErrSnapshotMismatch, x.kind, x.dim, kind, dim)
		}
		x.opts.Logger.LogSnapshot(context.Background(), "load", dir, x.Size(), nil)
		return x, true, nil
	case errors.Is(err, ErrNoSnapshot):
	case errors.Is(err, ErrCorruptSnapshot):
		o := applyOptions(opts)
		o.Logger.Warn("snapshot unusable, rebuild recommended", "dir", dir, "error", err)
	default:
		return nil, false, err
	}

	x, err = New(dim, kind, append([]Option{WithHome(dir)}, opts...)...)
	return x, false, err
}
