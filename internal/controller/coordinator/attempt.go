package coordinator

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Triggered is the outcome of a build accepted by the CI service.
type Triggered struct {
	// Body is the raw response body, kept for display.
	Body string
}

// Outcome holds exactly one of Triggered or Err.
type Outcome struct {
	Triggered *Triggered
	Err       error
}

// Attempt tracks a single submitted trigger request.
type Attempt struct {
	ID ulid.ULID

	done    chan struct{}
	outcome *Outcome
}

func newAttempt() *Attempt {
	return &Attempt{
		ID:   ulid.Make(),
		done: make(chan struct{}),
	}
}

// Done is closed once the outcome has been published.
func (a *Attempt) Done() <-chan struct{} { return a.done }

// Outcome returns nil until Done is closed.
func (a *Attempt) Outcome() *Outcome {
	select {
	case <-a.done:
		return a.outcome
	default:
		return nil
	}
}

// Wait blocks until the attempt completes or ctx is done.
func (a *Attempt) Wait(ctx context.Context) (*Outcome, error) {
	select {
	case <-a.done:
		return a.outcome, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Attempt) finish(o *Outcome) {
	a.outcome = o
	close(a.done)
}
