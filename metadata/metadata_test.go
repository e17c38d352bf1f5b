package metadata

import (
	"slices"
	"testing"

	"github.com/hupe1980/facevault/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	tbl := NewTable(4)

	require.NoError(t, tbl.Append(0, Record{IdentityKey: "1", DisplayName: "A"}))
	require.NoError(t, tbl.Append(1, Record{IdentityKey: "2", DisplayName: "B"}))
	require.NoError(t, tbl.Append(2, Record{IdentityKey: "1", DisplayName: "A again"}))
	assert.Equal(t, 3, tbl.Len())

	assert.Error(t, tbl.Append(5, Record{}), "out of sequence slots are rejected")

	rec, ok := tbl.Get(1)
	require.True(t, ok)
	assert.Equal(t, "B", rec.DisplayName)

	_, ok = tbl.Get(3)
	assert.False(t, ok)

	assert.Equal(t, []core.SlotID{0, 2}, tbl.SlotsFor("1"))
	assert.Empty(t, tbl.SlotsFor("missing"))

	tbl.Reset()
	assert.Equal(t, 0, tbl.Len())
	require.NoError(t, tbl.Append(0, Record{}))
}

func TestSlotSet(t *testing.T) {
	s := NewSlotSet()
	assert.True(t, s.IsEmpty())

	s.Add(3)
	s.Add(1)
	s.Add(1000000)
	assert.Equal(t, 3, s.Cardinality())
	assert.True(t, s.Contains(3))
	assert.False(t, s.Contains(2))

	assert.Equal(t, []core.SlotID{1, 3, 1000000}, slices.Collect(s.All()))

	c := s.Clone()
	s.Remove(3)
	assert.True(t, c.Contains(3))
	assert.False(t, s.Contains(3))

	data, err := c.MarshalBinary()
	require.NoError(t, err)

	var decoded SlotSet
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, slices.Collect(c.All()), slices.Collect(decoded.All()))

	var empty SlotSet
	require.NoError(t, empty.UnmarshalBinary(nil))
	assert.True(t, empty.IsEmpty())

	s.Clear()
	assert.True(t, s.IsEmpty())
}
