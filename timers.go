/*
@Language: Go 1.23.4
*/

package norm

import (
	"container/heap"
	"sync"
	"time"
)

// timedFunc is a callback armed for a specific deadline.
type timedFunc struct {
	id      int
	execute func()
	ts      time.Time
}

type timeFuncHeap []timedFunc

func (h timeFuncHeap) Len() int            { return len(h) }
func (h timeFuncHeap) Less(i, j int) bool  { return h[i].ts.Before(h[j].ts) }
func (h timeFuncHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timeFuncHeap) Push(x any)         { *h = append(*h, x.(timedFunc)) }
func (h *timeFuncHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// Timer is the session's single-threaded deadline scheduler. Unlike a
// general-purpose timer pool, it never spawns a goroutine per
// callback: due tasks are delivered one at a time over Ready so the
// session's event loop runs every timer callback on its own goroutine,
// one after another (spec §5). Socket dispatch runs on the session's
// separate receive goroutine; the two share state under Session.mu.
type Timer struct {
	mu       sync.Mutex
	pending  []timedFunc
	notify   chan struct{}
	ready    chan timedFunc
	nextID   int
	canceled map[int]bool

	closeOnce sync.Once
	close     chan struct{}
}

// NewTimer starts the scheduling goroutine. Ready delivers due
// callbacks; the caller's event loop must drain it and invoke each
// callback itself.
func NewTimer() *Timer {
	t := &Timer{
		notify:   make(chan struct{}, 1),
		ready:    make(chan timedFunc),
		close:    make(chan struct{}),
		canceled: make(map[int]bool),
	}
	go t.schedule()
	return t
}

// Ready delivers due callbacks for the caller's event loop to invoke.
func (t *Timer) Ready() <-chan timedFunc { return t.ready }

// Put arms f to fire at deadline, returning a handle Cancel can use
// to suppress it before it fires.
func (t *Timer) Put(f func(), deadline time.Time) int {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.pending = append(t.pending, timedFunc{id: id, execute: f, ts: deadline})
	t.mu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}
	return id
}

// Cancel suppresses a previously-armed callback if it hasn't fired.
func (t *Timer) Cancel(id int) {
	t.mu.Lock()
	t.canceled[id] = true
	t.mu.Unlock()
}

func (t *Timer) schedule() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var tasks timeFuncHeap
	armed := false

	drainNew := func() {
		t.mu.Lock()
		tasks = append(tasks, t.pending...)
		t.pending = t.pending[:0]
		t.mu.Unlock()
		heap.Init(&tasks)
	}

	for {
		select {
		case <-t.notify:
			drainNew()
			if tasks.Len() > 0 {
				if armed {
					timer.Stop()
				}
				timer.Reset(time.Until(tasks[0].ts))
				armed = true
			}
		case now := <-timer.C:
			armed = false
			for tasks.Len() > 0 && !now.Before(tasks[0].ts) {
				task := heap.Pop(&tasks).(timedFunc)
				t.mu.Lock()
				skip := t.canceled[task.id]
				delete(t.canceled, task.id)
				t.mu.Unlock()
				if skip {
					continue
				}
				select {
				case t.ready <- task:
				case <-t.close:
					return
				}
			}
			if tasks.Len() > 0 {
				timer.Reset(time.Until(tasks[0].ts))
				armed = true
			}
		case <-t.close:
			return
		}
	}
}

// Close shuts down the scheduling goroutine. Safe to call multiple
// times.
func (t *Timer) Close() {
	t.closeOnce.Do(func() { close(t.close) })
}
