// Package core holds identifier types shared by every facevault package.
package core

import "strconv"

// SlotID is the dense, insertion-ordered handle assigned by the similarity index.
// Slot ids are never reused; the arena only grows until it is cleared by a rebuild.
type SlotID uint32

// MaxSlotID is the largest representable slot id.
const MaxSlotID = ^SlotID(0)

// String implements fmt.Stringer.
func (s SlotID) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// SlotPtr returns a pointer to a copy of s.
// Useful for optional back-references (nil meaning "no slot").
func SlotPtr(s SlotID) *SlotID {
	return &s
}
