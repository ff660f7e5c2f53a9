package event

import (
	"container/heap"
	"time"
)

// Manual is a virtual clock for tests. Nothing runs until Advance is called;
// callbacks then execute synchronously, ordered by due time and, for equal
// due times, by scheduling order.
type Manual struct {
	now   time.Duration
	seq   uint64
	tasks manualHeap
}

func NewManual() *Manual {
	return &Manual{}
}

type manualTask struct {
	due      time.Duration
	seq      uint64
	fn       func()
	canceled bool
}

func (t *manualTask) Cancel() { t.canceled = true }

func (m *Manual) Schedule(d time.Duration, fn func()) Task {
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTask{due: m.now + d, seq: m.seq, fn: fn}
	heap.Push(&m.tasks, t)
	return t
}

// Advance moves the clock forward by d, running every task that becomes due,
// including tasks scheduled by callbacks within the window.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	for m.tasks.Len() > 0 && m.tasks[0].due <= target {
		t := heap.Pop(&m.tasks).(*manualTask)
		if t.canceled {
			continue
		}
		m.now = t.due
		t.fn()
	}
	m.now = target
}

func (m *Manual) Now() time.Duration {
	return m.now
}

// Pending counts scheduled tasks that are neither run nor cancelled.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.tasks {
		if !t.canceled {
			n++
		}
	}
	return n
}

type manualHeap []*manualTask

func (h manualHeap) Len() int { return len(h) }
func (h manualHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}
func (h manualHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *manualHeap) Push(x any)   { *h = append(*h, x.(*manualTask)) }
func (h *manualHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
