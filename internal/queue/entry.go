// Package queue implements the scheduler's in-memory time-ordered priority
// queue: a min-heap of QueueEntry keyed by scheduled fire instant, with a
// side index for O(log n) removal by job ID.
//
// Grounded on other_examples/c8822d43_cnotch-scheduler's jobQueue: a
// container/heap.Interface implementation where each element carries its own
// heap index so heap.Remove can be used directly, avoiding a linear scan.
package queue

import "time"

// Entry is one planned occurrence or retry sitting in the queue, waiting to
// be dispatched. At most one Entry per JobID is ever present in a queue at
// once — Push enforces this by removing any existing entry for the job
// first.
type Entry struct {
	JobID              string
	ScheduledFor       time.Time
	Attempt            int
	OriginScheduledFor time.Time

	// ExecutionID is pre-assigned by dispatch_now so its caller can return
	// the execution_id synchronously, before the scheduler loop actually
	// dispatches the entry. Left empty for normally-scheduled entries; the
	// scheduler loop generates one when it is empty.
	ExecutionID string

	index int // maintained by entryHeap; -1 when not in the heap
}

// entryHeap is the container/heap.Interface implementation backing
// PriorityQueue. Heap order is (ScheduledFor, JobID) with JobID as the
// deterministic tiebreak.
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if !a.ScheduledFor.Equal(b.ScheduledFor) {
		return a.ScheduledFor.Before(b.ScheduledFor)
	}
	return a.JobID < b.JobID
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
