package guards

import (
	"context"
)

// Outcome is a guard decision that is either known at once or still pending on a refresh.
type Outcome struct {
	done      chan struct{}
	allowed   bool
	immediate bool
}

func decided(allowed bool) *Outcome {
	o := &Outcome{done: make(chan struct{}), allowed: allowed, immediate: true}
	close(o.done)
	return o
}

func pending() *Outcome {
	return &Outcome{done: make(chan struct{})}
}

// resolve must be called exactly once on a pending outcome
func (o *Outcome) resolve(allowed bool) {
	o.allowed = allowed
	close(o.done)
}

// Immediate returns the decision when it was made synchronously; ok is false while pending
// and for decisions that were made asynchronously.
func (o *Outcome) Immediate() (allowed, ok bool) {
	if !o.immediate {
		return false, false
	}
	return o.allowed, true
}

// Done is closed once the decision is known
func (o *Outcome) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the decision is known or ctx ends. An abandoned wait leaves the
// refresh running.
func (o *Outcome) Wait(ctx context.Context) (bool, error) {
	select {
	case <-o.done:
		return o.allowed, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
