package lobby

import (
	"context"
	"sync"
)

// Status is the terminal state of an Attempt.
type Status int

const (
	Pending Status = iota
	Succeeded
	Failed
	TimedOut
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is how an Attempt ended. Code is set for Succeeded, Reason for Failed and Cancelled.
type Outcome struct {
	Status Status
	Code   string
	Reason string
}

// Attempt is a single room:create awaiting its outcome.
type Attempt struct {
	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

func newAttempt() *Attempt {
	return &Attempt{done: make(chan struct{})}
}

// resolve records o unless an outcome was already recorded.
func (a *Attempt) resolve(o Outcome) bool {
	resolved := false
	a.once.Do(func() {
		a.outcome = o
		close(a.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the outcome is known.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Outcome blocks until the attempt resolves.
func (a *Attempt) Outcome() Outcome {
	<-a.done
	return a.outcome
}

// Wait returns the outcome, or ctx's error if ctx ends first. The attempt keeps running.
func (a *Attempt) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-a.done:
		return a.outcome, nil
	case <-ctx.Done():
		return Outcome{Status: Pending}, ctx.Err()
	}
}
