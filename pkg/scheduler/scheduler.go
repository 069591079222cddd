// Package scheduler implements the activity-aware cooperative task
// scheduler that throttles Weaver (and other background) work: a
// single dispatch goroutine draining four priority queues, gated by
// the current ActivityLevel. The dispatch loop pairs a trigger
// channel (work just arrived) with a ticker (re-check eligibility as
// activity degrades).
package scheduler

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

// Priority orders queued tasks. Urgent always outranks Normal, which
// outranks Low, which outranks Batch.
type Priority int

const (
	Urgent Priority = iota
	Normal
	Low
	Batch
	numPriorities
)

func (p Priority) String() string {
	switch p {
	case Urgent:
		return "Urgent"
	case Normal:
		return "Normal"
	case Low:
		return "Low"
	case Batch:
		return "Batch"
	default:
		return "unknown"
	}
}

// maxPriorityFor returns the lowest-ranked priority Level is willing
// to dispatch: HighActivity pops Urgent only; LowActivity pops
// Urgent/Normal/Low; SleepMode pops everything including Batch.
func maxPriorityFor(level ActivityLevel) Priority {
	switch level {
	case HighActivity:
		return Urgent
	case LowActivity:
		return Low
	case SleepMode:
		return Batch
	default:
		return Urgent
	}
}

// Task is one unit of background work.
type Task struct {
	// ID is a caller-assigned identifier, used only for logging/stats.
	ID string
	// Kind names the task's category, for per-kind timeout lookup.
	Kind string
	// Priority is this task's dispatch priority.
	Priority Priority
	// Timeout bounds how long Run may block before being reported as
	// Timeout (the task itself is not forcibly killed — Go has no
	// preemptive task cancellation — but a task that blows its
	// timeout is logged and does not block the dispatcher from moving
	// on to the next one).
	Timeout time.Duration
	// Run performs the task's work. It should check ctx.Done() at
	// cooperative yield points.
	Run func(ctx context.Context) error
}

// Config tunes Scheduler's backpressure behavior.
type Config struct {
	// SoftCap bounds the total number of queued tasks across all
	// priorities before backpressure kicks in. 0 disables the cap.
	SoftCap int
	// OnWarning receives backpressure/timeout/slow-task notices. A nil
	// OnWarning silently drops them.
	OnWarning func(msg string)
}

// Scheduler is the single-goroutine cooperative dispatcher.
type Scheduler struct {
	activity *ActivityDetector
	config   Config

	mu     sync.Mutex
	queues [numPriorities]*list.List

	trigger chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	statsMu   sync.Mutex
	completed int
	failed    int
	timedOut  int
	dropped   int
}

// New creates a Scheduler over activity and starts its dispatch
// goroutine.
func New(activity *ActivityDetector, config Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		activity: activity,
		config:   config,
		trigger:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := range s.queues {
		s.queues[i] = list.New()
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Enqueue adds task to its priority's FIFO queue, applying
// backpressure if the scheduler is over its soft cap: queued Batch
// tasks are dropped first, with a warning.
func (s *Scheduler) Enqueue(task Task) {
	s.mu.Lock()
	if s.config.SoftCap > 0 && s.totalQueuedLocked() >= s.config.SoftCap {
		s.dropBatchLocked()
	}
	s.queues[task.Priority].PushBack(task)
	s.mu.Unlock()

	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) totalQueuedLocked() int {
	n := 0
	for _, q := range s.queues {
		n += q.Len()
	}
	return n
}

// dropBatchLocked discards the oldest queued Batch task, if any,
// warning the caller. Assumes s.mu held.
func (s *Scheduler) dropBatchLocked() {
	q := s.queues[Batch]
	if front := q.Front(); front != nil {
		q.Remove(front)
		s.statsMu.Lock()
		s.dropped++
		s.statsMu.Unlock()
		s.warn("scheduler: soft cap exceeded, dropped queued Batch task")
	}
}

func (s *Scheduler) warn(msg string) {
	if s.config.OnWarning != nil {
		s.config.OnWarning(msg)
	}
}

// Stats reports dispatch counters for observability.
type Stats struct {
	Completed int
	Failed    int
	TimedOut  int
	Dropped   int
}

// Stats returns a snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return Stats{Completed: s.completed, Failed: s.failed, TimedOut: s.timedOut, Dropped: s.dropped}
}

// Close stops the dispatch goroutine, allowing any in-flight task to
// finish. Uncooperative tasks are never forcibly killed.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.trigger:
			s.dispatchUntilIdle()
		case <-ticker.C:
			s.dispatchUntilIdle()
		}
	}
}

// dispatchUntilIdle pops and runs eligible tasks until none remain at
// or above the current activity level's floor.
func (s *Scheduler) dispatchUntilIdle() {
	for {
		task, ok := s.popNext()
		if !ok {
			return
		}
		s.runTask(task)
		select {
		case <-s.ctx.Done():
			return
		default:
		}
	}
}

// popNext removes and returns the highest-priority eligible task, if
// any. Eligibility is bounded by the current activity level's
// max-priority floor.
func (s *Scheduler) popNext() (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ceiling := maxPriorityFor(s.activity.Level())
	for p := Urgent; p <= ceiling; p++ {
		q := s.queues[p]
		if front := q.Front(); front != nil {
			q.Remove(front)
			return front.Value.(Task), true
		}
	}
	return Task{}, false
}

func (s *Scheduler) runTask(task Task) {
	ctx := s.ctx
	var cancel context.CancelFunc
	if task.Timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, task.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- task.Run(ctx)
	}()

	select {
	case err := <-done:
		s.statsMu.Lock()
		if err != nil {
			s.failed++
		} else {
			s.completed++
		}
		s.statsMu.Unlock()
	case <-ctx.Done():
		s.statsMu.Lock()
		s.timedOut++
		s.statsMu.Unlock()
		s.warn(fmt.Sprintf("scheduler: task %s (%s) exceeded its timeout", task.ID, task.Kind))
	}
}
