package core

// limiter.go bounds how many pipeline runs execute at once.
//
// Every trigger (HTTP, interval, CLI) takes a RunSlot before it lists the
// input location and gives it back when the batch is done. A trigger that
// cannot get a slot within maxWait fails with ErrTooManyRuns; the interval
// trigger uses TryAcquire and simply skips its tick. Both count as rejected
// in Status.

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyRuns is returned when every run slot stays taken for the whole
// wait. Trigger again later.
var ErrTooManyRuns = errors.New("too many concurrent runs, please try again later")

const (
	// DefaultMaxConcurrentRuns keeps runs over one input location serial.
	DefaultMaxConcurrentRuns = 1

	// DefaultMaxWaitTime is how long Acquire waits for a slot.
	DefaultMaxWaitTime = 5 * time.Second
)

// RunLimiter hands out run slots.
type RunLimiter struct {
	sem     *semaphore.Weighted
	size    int
	maxWait time.Duration

	mu       sync.Mutex
	runs     map[*RunSlot]struct{}
	rejected int
	idle     chan struct{} // closed while no slot is held
}

// RunSlot is one held run slot. Release may be called more than once.
type RunSlot struct {
	Trigger   string
	StartedAt time.Time

	limiter *RunLimiter
	once    sync.Once
}

// NewRunLimiter creates a limiter with maxConcurrent slots. Non-positive
// arguments take the defaults.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	idle := make(chan struct{})
	close(idle)
	return &RunLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		size:    maxConcurrent,
		maxWait: maxWait,
		runs:    make(map[*RunSlot]struct{}),
		idle:    idle,
	}
}

// Acquire waits up to the limiter's max wait for a slot. The slot is
// labelled with the trigger stored on ctx. A cancelled ctx returns its own
// error rather than ErrTooManyRuns.
func (l *RunLimiter) Acquire(ctx context.Context) (*RunSlot, error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.reject()
		return nil, ErrTooManyRuns
	}
	return l.hold(TriggerFromContext(ctx)), nil
}

// TryAcquire takes a slot only if one is free right now.
func (l *RunLimiter) TryAcquire(ctx context.Context) (*RunSlot, bool) {
	if !l.sem.TryAcquire(1) {
		l.reject()
		return nil, false
	}
	return l.hold(TriggerFromContext(ctx)), true
}

func (l *RunLimiter) hold(trigger string) *RunSlot {
	slot := &RunSlot{Trigger: trigger, StartedAt: time.Now(), limiter: l}

	l.mu.Lock()
	if len(l.runs) == 0 {
		l.idle = make(chan struct{})
	}
	l.runs[slot] = struct{}{}
	l.mu.Unlock()
	return slot
}

func (l *RunLimiter) reject() {
	l.mu.Lock()
	l.rejected++
	l.mu.Unlock()
}

// Release gives the slot back.
func (s *RunSlot) Release() {
	s.once.Do(func() {
		l := s.limiter
		l.mu.Lock()
		delete(l.runs, s)
		if len(l.runs) == 0 {
			close(l.idle)
		}
		l.mu.Unlock()
		l.sem.Release(1)
	})
}

// ActiveCount returns the number of held slots.
func (l *RunLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.runs)
}

// MaxConcurrent returns the number of slots.
func (l *RunLimiter) MaxConcurrent() int {
	return l.size
}

// WaitForDrain blocks until no slot is held or ctx is done.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveRun describes one held slot.
type ActiveRun struct {
	Trigger   string    `json:"trigger"`
	StartedAt time.Time `json:"started_at"`
}

// RunLimiterStatus is a snapshot for the health endpoint and ledger page.
type RunLimiterStatus struct {
	Active        int         `json:"active"`
	MaxConcurrent int         `json:"max_concurrent"`
	Rejected      int         `json:"rejected"`
	Runs          []ActiveRun `json:"runs"`
}

// Status returns the held slots, oldest first, and how many triggers were
// turned away since start.
func (l *RunLimiter) Status() RunLimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	runs := make([]ActiveRun, 0, len(l.runs))
	for slot := range l.runs {
		runs = append(runs, ActiveRun{Trigger: slot.Trigger, StartedAt: slot.StartedAt})
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })

	return RunLimiterStatus{
		Active:        len(runs),
		MaxConcurrent: l.size,
		Rejected:      l.rejected,
		Runs:          runs,
	}
}
