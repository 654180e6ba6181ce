package negotiation

import (
	"context"
	"time"
)

// Clock abstracts wall-clock time so tests can drive the duration budget
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns the wall clock
func RealClock() Clock { return realClock{} }

// Pacer inserts the optional between-round delay. The delay is a pure
// simulation artifact: it must not affect any decision outcome, and it
// must abort promptly when the caller cancels the session.
type Pacer interface {
	Pace(ctx context.Context, d time.Duration) error
}

type sleepPacer struct{}

// SleepPacer returns a pacer that sleeps for the configured delay,
// waking early on context cancellation
func SleepPacer() Pacer { return sleepPacer{} }

func (sleepPacer) Pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type noopPacer struct{}

// NoopPacer returns a pacer that never sleeps, for tests and batch runs
func NoopPacer() Pacer { return noopPacer{} }

func (noopPacer) Pace(ctx context.Context, d time.Duration) error { return ctx.Err() }
