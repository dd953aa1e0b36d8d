// Package sim runs streaming clients against a simulated server over a
// shared bottleneck link. Everything is driven by one discrete-event
// Scheduler in simulated microseconds; nothing here touches the wall clock.
package sim

import (
	"container/heap"
	"context"
)

// Scheduler is a discrete-event queue. Events due at the same time run in
// the order they were scheduled.
type Scheduler struct {
	now     int64
	seq     uint64
	pq      eventHeap
	stopped bool
}

// NewScheduler returns a scheduler at time 0.
func NewScheduler() *Scheduler {
	s := &Scheduler{}
	heap.Init(&s.pq)
	return s
}

// Now returns the simulated time in µs.
func (s *Scheduler) Now() int64 { return s.now }

// Schedule runs fn after delay µs. Negative delays run at Now.
func (s *Scheduler) Schedule(delay int64, fn func()) {
	s.At(s.now+max(delay, 0), fn)
}

// At runs fn at absolute time at, or at Now if at is in the past.
func (s *Scheduler) At(at int64, fn func()) {
	s.seq++
	heap.Push(&s.pq, &event{at: max(at, s.now), seq: s.seq, fn: fn})
}

// Pending returns the number of queued events.
func (s *Scheduler) Pending() int { return s.pq.Len() }

// Stop makes Run return after the current event.
func (s *Scheduler) Stop() { s.stopped = true }

// Run executes events in time order until the queue drains, the next event
// is later than until, Stop is called or ctx is done. Now is left at until
// when the horizon is reached. It returns the number of events executed.
func (s *Scheduler) Run(ctx context.Context, until int64) (int, error) {
	s.stopped = false
	n := 0
	for s.pq.Len() > 0 && !s.stopped {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		if s.pq[0].at > until {
			s.now = until
			return n, nil
		}
		ev := heap.Pop(&s.pq).(*event)
		s.now = ev.at
		ev.fn()
		n++
	}
	return n, nil
}

type event struct {
	at  int64
	seq uint64
	fn  func()
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}
