// Package queue provides the bounded priority queue used to collect k-nearest results.
package queue

import (
	"sort"

	"github.com/hupe1980/facevault/core"
)

// Item is a candidate (slot, distance) pair.
type Item struct {
	Slot     core.SlotID
	Distance float32
}

// Less orders items by ascending distance, breaking ties by the lower slot id.
func Less(a, b Item) bool {
	if a.Distance == b.Distance {
		return a.Slot < b.Slot
	}
	return a.Distance < b.Distance
}

// TopK keeps the k best items seen so far.
// Internally it is a max-heap on Less so the current worst item sits at the top.
type TopK struct {
	k     int
	items []Item
}

// NewTopK creates a collector for the k best items.
func NewTopK(k int) *TopK {
	capacity := k
	if capacity > 1024 {
		capacity = 1024
	}
	return &TopK{
		k:     k,
		items: make([]Item, 0, capacity),
	}
}

// Len returns the number of collected items.
func (q *TopK) Len() int { return len(q.items) }

// Push offers an item; it is kept only if it beats the current worst.
func (q *TopK) Push(item Item) {
	if q.k <= 0 {
		return
	}
	if len(q.items) < q.k {
		q.items = append(q.items, item)
		q.siftUp(len(q.items) - 1)
		return
	}
	if !Less(item, q.items[0]) {
		return
	}
	q.items[0] = item
	q.siftDown(0)
}

// Sorted drains the collector and returns the items nearest first.
func (q *TopK) Sorted() []Item {
	out := q.items
	q.items = nil
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// worse reports whether items[i] ranks after items[j].
func (q *TopK) worse(i, j int) bool {
	return Less(q.items[j], q.items[i])
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !q.worse(i, p) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		worst := l
		r := l + 1
		if r < n && q.worse(r, l) {
			worst = r
		}
		if !q.worse(worst, i) {
			return
		}
		q.items[i], q.items[worst] = q.items[worst], q.items[i]
		i = worst
	}
}
