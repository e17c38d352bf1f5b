// Package metadata holds the identity records attached to index slots.
//
// A Table maps every slot id to exactly one Record and grows in lockstep with
// the similarity index. A SlotSet tracks slots whose identity was marked
// inactive by the external system of record.
//
// Neither type synchronizes access; the engine serializes mutation.
package metadata
