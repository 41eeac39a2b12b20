package stream

import (
	"container/heap"
	"sort"
)

// Sort orders a segment by timestamp, keeping the arrival order of
// equal timestamps.
func Sort(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Ts < records[j].Ts
	})
}

// Merge combines per-collector segments into one timestamp-ordered
// slice. Each segment must already be sorted by Ts; records with equal
// timestamps come out in segment order, so passing segments in
// presentation order makes the merge deterministic.
func Merge(segments ...[]Record) []Record {
	total := 0
	h := make(mergeHeap, 0, len(segments))
	for seg, records := range segments {
		total += len(records)
		if len(records) > 0 {
			h = append(h, cursor{records: records, seg: seg})
		}
	}

	if total == 0 {
		return nil
	}

	heap.Init(&h)

	out := make([]Record, 0, total)
	for h.Len() > 0 {
		c := &h[0]
		out = append(out, c.records[c.next])
		c.next++
		if c.next == len(c.records) {
			heap.Pop(&h)
			continue
		}
		heap.Fix(&h, 0)
	}

	return out
}

// cursor walks one sorted segment during the merge.
type cursor struct {
	records []Record
	next    int
	seg     int
}

type mergeHeap []cursor

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	ri, rj := h[i].records[h[i].next], h[j].records[h[j].next]
	if ri.Ts != rj.Ts {
		return ri.Ts < rj.Ts
	}

	return h[i].seg < h[j].seg
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(cursor)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]

	return x
}
