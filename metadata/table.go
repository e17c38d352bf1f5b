package metadata

import (
	"fmt"

	"github.com/hupe1980/facevault/core"
)

// Table is a dense slot-addressed record store. Slot i holds records[i].
type Table struct {
	records []Record
}

// NewTable creates an empty table with room for capacity records.
func NewTable(capacity int) *Table {
	return &Table{records: make([]Record, 0, capacity)}
}

// FromRecords builds a table that takes ownership of records.
func FromRecords(records []Record) *Table {
	return &Table{records: records}
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.records) }

// Append stores rec under slot, which must equal Len.
func (t *Table) Append(slot core.SlotID, rec Record) error {
	if int(slot) != len(t.records) {
		return fmt.Errorf("metadata: slot %d out of sequence, expected %d", slot, len(t.records))
	}
	t.records = append(t.records, rec)
	return nil
}

// Get returns the record for slot.
func (t *Table) Get(slot core.SlotID) (Record, bool) {
	if int(slot) >= len(t.records) {
		return Record{}, false
	}
	return t.records[slot], true
}

// SlotsFor returns every slot whose record has the given identity key, ascending.
func (t *Table) SlotsFor(identityKey string) []core.SlotID {
	var slots []core.SlotID
	for i := range t.records {
		if t.records[i].IdentityKey == identityKey {
			slots = append(slots, core.SlotID(i))
		}
	}
	return slots
}

// Records returns the backing slice. Callers must not modify it.
func (t *Table) Records() []Record { return t.records }

// Reset drops every record.
func (t *Table) Reset() {
	t.records = t.records[:0:0]
}
