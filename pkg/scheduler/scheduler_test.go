package scheduler

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxPriorityForDispatchEligibilityTable(t *testing.T) {
	assert.Equal(t, Urgent, maxPriorityFor(HighActivity))
	assert.Equal(t, Low, maxPriorityFor(LowActivity))
	assert.Equal(t, Batch, maxPriorityFor(SleepMode))
}

func countingTask(priority Priority, counter *int32) Task {
	return Task{ID: "t", Priority: priority, Run: func(ctx context.Context) error {
		atomic.AddInt32(counter, 1)
		return nil
	}}
}

func TestHighActivityDispatchesOnlyUrgent(t *testing.T) {
	det := NewActivityDetector(DefaultActivityConfig())
	s := New(det, Config{})
	defer s.Close()

	var urgentRuns, batchRuns int32
	s.Enqueue(countingTask(Urgent, &urgentRuns))
	s.Enqueue(countingTask(Batch, &batchRuns))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&urgentRuns) == 1 }, time.Second, 2*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&batchRuns), "Batch must not dispatch while HighActivity holds")
}

func TestBatchDrainsAfterSleepModeOverride(t *testing.T) {
	det := NewActivityDetector(DefaultActivityConfig())
	s := New(det, Config{})
	defer s.Close()

	var batchRuns int32
	s.Enqueue(countingTask(Batch, &batchRuns))
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&batchRuns))

	det.SetLevel(SleepMode)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&batchRuns) == 1 }, time.Second, 2*time.Millisecond)
}

// TestIdleTimerFiringTwiceDrainsBatch: enqueue one
// Urgent and many Batch tasks, record activity, confirm only Urgent
// completes within one dispatch tick, then simulate the idle timer
// firing twice and confirm Batch begins to drain.
func TestIdleTimerFiringTwiceDrainsBatch(t *testing.T) {
	realNow := now
	var mu sync.Mutex
	clock := time.Now()
	now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}
	defer func() { now = realNow }()

	cfg := ActivityConfig{IdleThreshold: time.Minute, SleepThreshold: 2 * time.Minute}
	det := NewActivityDetector(cfg)
	s := New(det, Config{})
	defer s.Close()

	det.RecordActivity()

	var urgentRuns int32
	var batchRuns int32
	s.Enqueue(countingTask(Urgent, &urgentRuns))
	for i := 0; i < 5; i++ {
		s.Enqueue(countingTask(Batch, &batchRuns))
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&urgentRuns) == 1 }, time.Second, 2*time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&batchRuns), "Batch must stay queued under HighActivity")

	// First idle-timer firing: advance past IdleThreshold, short of
	// SleepThreshold. Still not eligible for Batch (LowActivity caps at Low).
	mu.Lock()
	clock = clock.Add(90 * time.Second)
	mu.Unlock()
	det.Update()
	assert.Equal(t, LowActivity, det.Level())
	time.Sleep(30 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&batchRuns))

	// Second idle-timer firing: advance past SleepThreshold.
	mu.Lock()
	clock = clock.Add(2 * time.Minute)
	mu.Unlock()
	det.Update()
	assert.Equal(t, SleepMode, det.Level())

	require.Eventually(t, func() bool { return atomic.LoadInt32(&batchRuns) == 5 }, time.Second, 2*time.Millisecond)
}

func TestEnqueueBackpressureDropsOldestBatchFirst(t *testing.T) {
	det := NewActivityDetector(DefaultActivityConfig())
	det.SetLevel(HighActivity) // keep everything queued, nothing dispatches
	var warnings []string
	s := &Scheduler{} // constructed manually to queue without a live dispatcher
	s.activity = det
	s.config = Config{SoftCap: 2, OnWarning: func(msg string) { warnings = append(warnings, msg) }}
	s.trigger = make(chan struct{}, 1)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for i := range s.queues {
		s.queues[i] = list.New()
	}

	noop := Task{Run: func(ctx context.Context) error { return nil }}
	batch1 := noop
	batch1.Priority = Batch
	batch2 := noop
	batch2.Priority = Batch
	urgent := noop
	urgent.Priority = Urgent

	s.mu.Lock()
	s.queues[Batch].PushBack(batch1)
	s.queues[Batch].PushBack(batch2)
	s.mu.Unlock()

	s.mu.Lock()
	if s.config.SoftCap > 0 && s.totalQueuedLocked() >= s.config.SoftCap {
		s.dropBatchLocked()
	}
	s.queues[Urgent].PushBack(urgent)
	s.mu.Unlock()

	assert.Equal(t, 1, s.queues[Batch].Len(), "oldest queued Batch task should have been dropped")
	assert.Equal(t, 1, s.queues[Urgent].Len())
	require.Len(t, warnings, 1)
}

func TestRunTaskReportsTimeoutWithoutBlockingDispatcher(t *testing.T) {
	det := NewActivityDetector(DefaultActivityConfig())
	s := New(det, Config{})
	defer s.Close()

	release := make(chan struct{})
	slow := Task{ID: "slow", Priority: Urgent, Timeout: 10 * time.Millisecond, Run: func(ctx context.Context) error {
		<-release
		return nil
	}}
	var fastRuns int32
	fast := countingTask(Urgent, &fastRuns)

	s.Enqueue(slow)
	s.Enqueue(fast)

	require.Eventually(t, func() bool { return s.Stats().TimedOut == 1 }, time.Second, 2*time.Millisecond)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fastRuns) == 1 }, time.Second, 2*time.Millisecond)
	close(release)
}
