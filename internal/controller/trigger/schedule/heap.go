package schedule

import (
	"container/heap"
	"time"

	"github.com/hashicorp/cronexpr"
)

// entry is one cron expression of a schedule block.
type entry struct {
	schedule *Config
	cron     string
	expr     *cronexpr.Expression
	nextRun  time.Time
	index    int
}

// runQueue orders entries by their next run time. It is not safe for
// concurrent use.
type runQueue struct {
	entries entryHeap
}

func newRunQueue() *runQueue {
	q := runQueue{}
	heap.Init(&q.entries)
	return &q
}

func (q *runQueue) len() int { return q.entries.Len() }

func (q *runQueue) push(e *entry) { heap.Push(&q.entries, e) }

// peek returns the entry due first without removing it.
func (q *runQueue) peek() (*entry, bool) {
	if q.entries.Len() == 0 {
		return nil, false
	}
	return q.entries[0], true
}

// advance moves e to its next match after now. Entries whose expression has
// no future match are dropped and advance reports false.
func (q *runQueue) advance(e *entry, now time.Time) bool {
	e.nextRun = e.expr.Next(now)
	if e.nextRun.IsZero() {
		heap.Remove(&q.entries, e.index)
		return false
	}
	heap.Fix(&q.entries, e.index)
	return true
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool { return h[i].nextRun.Before(h[j].nextRun) }

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
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
