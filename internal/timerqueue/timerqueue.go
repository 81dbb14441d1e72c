// Package timerqueue implements the priority timer queue that
// client2/arq.go drives its resend schedule from (a.timerQueue.Push,
// .Peek, .Pop, .Len). The teacher imports its TimerQueue from
// client.TimerQueue, whose source is not present in this retrieval; this is
// a from-scratch min-heap implementation matching the observed call
// contract: entries are ordered by an ascending uint64 priority (a UnixNano
// deadline) and a single worker goroutine fires a callback for every entry
// whose deadline has elapsed.
package timerqueue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/mattcspeights/ghostframes/internal/worker"
)

// Entry is one scheduled item.
type Entry struct {
	Priority uint64 // UnixNano deadline
	Value    interface{}
}

type entryHeap []*Entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].Priority < h[j].Priority }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(*Entry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// TimerQueue runs a callback for every entry whose deadline has elapsed,
// checked on a short poll interval. Start must be called before use, and
// Halt/Wait stop the worker goroutine.
type TimerQueue struct {
	worker.Worker

	mu       sync.Mutex
	h        entryHeap
	wakeCh   chan struct{}
	fn       func(interface{})
	pollWait time.Duration
}

// NewTimerQueue creates a queue that invokes fn for each entry as its
// deadline elapses.
func NewTimerQueue(fn func(interface{})) *TimerQueue {
	return &TimerQueue{
		h:        make(entryHeap, 0),
		wakeCh:   make(chan struct{}, 1),
		fn:       fn,
		pollWait: 10 * time.Millisecond,
	}
}

// Start starts the queue's worker goroutine.
func (q *TimerQueue) Start() {
	q.Go(q.worker)
}

// Push schedules value to fire at the given UnixNano priority.
func (q *TimerQueue) Push(priority uint64, value interface{}) {
	q.mu.Lock()
	heap.Push(&q.h, &Entry{Priority: priority, Value: value})
	q.mu.Unlock()
	q.Wake()
}

// Peek returns the earliest-deadline entry without removing it, or nil if
// the queue is empty.
func (q *TimerQueue) Peek() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0]
}

// Pop removes and returns the earliest-deadline entry.
func (q *TimerQueue) Pop() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*Entry)
}

// Remove removes the first entry whose Value equals value (by ==).
// Reports whether an entry was removed.
func (q *TimerQueue) Remove(value interface{}) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.h {
		if e.Value == value {
			heap.Remove(&q.h, i)
			return true
		}
	}
	return false
}

// Len returns the number of entries currently scheduled.
func (q *TimerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}

// Wake nudges the worker loop to re-check for due entries immediately,
// instead of waiting for its next poll tick. Exported so callers outside
// the package (internal/reliability's condition-variable bridge) can
// trigger the same early wakeup a Push does.
func (q *TimerQueue) Wake() {
	select {
	case q.wakeCh <- struct{}{}:
	default:
	}
}

func (q *TimerQueue) worker() {
	ticker := time.NewTicker(q.pollWait)
	defer ticker.Stop()
	for {
		select {
		case <-q.HaltCh():
			return
		case <-q.wakeCh:
		case <-ticker.C:
		}
		q.fireDue()
	}
}

func (q *TimerQueue) fireDue() {
	now := uint64(time.Now().UnixNano())
	for {
		q.mu.Lock()
		if len(q.h) == 0 || q.h[0].Priority > now {
			q.mu.Unlock()
			return
		}
		e := heap.Pop(&q.h).(*Entry)
		q.mu.Unlock()
		q.fn(e.Value)
	}
}
