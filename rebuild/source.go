package rebuild

import (
	"context"
	"iter"
	"sync"

	"github.com/hupe1980/facevault/core"
	"github.com/hupe1980/facevault/metadata"
)

// Record is one identity row of the system of record.
type Record struct {
	metadata.Record

	// HasDetectedFace is the store's flag that a face was found at ingestion.
	HasDetectedFace bool

	// Inactive marks identities whose slots are excluded from matches.
	Inactive bool
}

// Eligible reports whether the record takes part in a rebuild.
func (r Record) Eligible() bool {
	return r.HasDetectedFace && r.ArtifactPath != ""
}

// Source is the external system of record the index is rebuilt from.
type Source interface {
	// Records yields every identity record. A non-nil error aborts the
	// rebuild.
	Records(ctx context.Context) iter.Seq2[Record, error]

	// SetSlot overwrites the slot back-reference of identityKey. A nil slot
	// clears it.
	SetSlot(ctx context.Context, identityKey string, slot *core.SlotID) error
}

// SliceSource is an in-memory Source.
type SliceSource struct {
	mu      sync.Mutex
	records []Record
	slots   map[string]*core.SlotID
}

// NewSliceSource creates a source over records.
func NewSliceSource(records ...Record) *SliceSource {
	return &SliceSource{records: records, slots: make(map[string]*core.SlotID)}
}

// Records implements Source.
func (s *SliceSource) Records(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		s.mu.Lock()
		records := append([]Record(nil), s.records...)
		s.mu.Unlock()

		for _, r := range records {
			if err := ctx.Err(); err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// SetSlot implements Source.
func (s *SliceSource) SetSlot(_ context.Context, identityKey string, slot *core.SlotID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slots[identityKey] = slot
	return nil
}

// Slot returns the last slot written for identityKey and whether SetSlot was
// called for it.
func (s *SliceSource) Slot(identityKey string) (*core.SlotID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[identityKey]
	return slot, ok
}
