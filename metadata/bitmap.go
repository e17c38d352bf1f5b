package metadata

import (
	"bytes"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/facevault/core"
)

// SlotSet is a compressed set of slot ids backed by a Roaring bitmap.
// It is not safe for concurrent mutation.
type SlotSet struct {
	rb *roaring.Bitmap
}

// NewSlotSet creates a new empty set.
func NewSlotSet() *SlotSet {
	return &SlotSet{
		rb: roaring.New(),
	}
}

// Add adds a slot to the set.
func (s *SlotSet) Add(id core.SlotID) {
	s.rb.Add(uint32(id))
}

// Remove removes a slot from the set.
func (s *SlotSet) Remove(id core.SlotID) {
	s.rb.Remove(uint32(id))
}

// Contains checks if a slot is in the set.
func (s *SlotSet) Contains(id core.SlotID) bool {
	return s.rb.Contains(uint32(id))
}

// IsEmpty returns true if the set is empty.
func (s *SlotSet) IsEmpty() bool {
	return s.rb.IsEmpty()
}

// Cardinality returns the number of slots in the set.
func (s *SlotSet) Cardinality() int {
	return int(s.rb.GetCardinality())
}

// Clone returns a deep copy of the set.
func (s *SlotSet) Clone() *SlotSet {
	return &SlotSet{
		rb: s.rb.Clone(),
	}
}

// All returns an ascending iterator over the set.
func (s *SlotSet) All() iter.Seq[core.SlotID] {
	return func(yield func(core.SlotID) bool) {
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(core.SlotID(it.Next())) {
				return
			}
		}
	}
}

// Clear removes all slots from the set.
func (s *SlotSet) Clear() {
	s.rb.Clear()
}

// MarshalBinary encodes the set in the portable Roaring format.
func (s *SlotSet) MarshalBinary() ([]byte, error) {
	s.rb.RunOptimize()
	return s.rb.ToBytes()
}

// UnmarshalBinary decodes a set written by MarshalBinary.
func (s *SlotSet) UnmarshalBinary(data []byte) error {
	rb := roaring.New()
	if len(data) > 0 {
		if _, err := rb.ReadFrom(bytes.NewReader(data)); err != nil {
			return err
		}
	}
	s.rb = rb
	return nil
}
