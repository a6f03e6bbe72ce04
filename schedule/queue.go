// Package schedule holds pre-rendered framebuffer operations keyed by
// their target wall-clock second and fires them exactly at second
// boundaries.
package schedule

import (
	"image"
	"sync"

	"github.com/google/btree"

	"github.com/jyellick/web2fb-sub000/fbdev"
)

// Kind selects the device write an operation performs.
type Kind int

const (
	KindFull Kind = iota
	KindPartial
)

// Operation is one scheduled write. It is consumed exactly once or
// reported dropped.
type Operation struct {
	Kind   Kind
	Pix    []byte
	Raw    fbdev.RawImage
	Region image.Rectangle // partial only
	Second int64           // target wall-clock second
}

// Queue is an ordered map from target second to operation, indexed by a
// btree for O(log n) insert and remove. Safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	ops    *btree.BTreeG[*Operation]
	window int
}

// NewQueue returns a queue that considers itself underfilled when fewer
// than window operations are queued at or after the current second.
func NewQueue(window int) *Queue {
	if window < 1 {
		window = 1
	}
	return &Queue{
		ops:    btree.NewG(2, func(a, b *Operation) bool { return a.Second < b.Second }),
		window: window,
	}
}

// Enqueue stores op under op.Second, overwriting any existing entry for
// that second.
func (q *Queue) Enqueue(op *Operation) {
	if op == nil {
		return
	}
	q.mu.Lock()
	q.ops.ReplaceOrInsert(op)
	q.mu.Unlock()
}

// Dequeue atomically removes and returns the operation for second, or nil.
func (q *Queue) Dequeue(second int64) *Operation {
	q.mu.Lock()
	op, ok := q.ops.Delete(&Operation{Second: second})
	q.mu.Unlock()
	if !ok {
		return nil
	}
	return op
}

// NeedsMore reports whether fewer than the window size operations are
// queued at or after current.
func (q *Queue) NeedsMore(current int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	q.ops.AscendGreaterOrEqual(&Operation{Second: current}, func(op *Operation) bool {
		n++
		return n < q.window
	})
	return n < q.window
}

// NextUnqueuedSecond returns the smallest second >= current that has no
// queued operation.
func (q *Queue) NextUnqueuedSecond(current int64) int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	next := current
	q.ops.AscendGreaterOrEqual(&Operation{Second: current}, func(op *Operation) bool {
		if op.Second != next {
			return false
		}
		next++
		return true
	})
	return next
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ops.Len()
}

// Clear drops every queued operation, used when a transition or recovery
// invalidates pre-rendered output.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.ops.Clear(false)
	q.mu.Unlock()
}
