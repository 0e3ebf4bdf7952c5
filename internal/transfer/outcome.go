package transfer

import (
	"context"
	"encoding/json"
)

// Outcome is the terminal value of a transfer. It is resolved exactly once,
// either with the Done result or with the first fatal error.
type Outcome struct {
	done   chan struct{}
	result json.RawMessage
	err    error
}

func newOutcome() *Outcome {
	return &Outcome{done: make(chan struct{})}
}

// resolve must be called at most once; the engine guarantees this through its
// terminal-state check.
func (o *Outcome) resolve(result json.RawMessage, err error) {
	o.result = result
	o.err = err
	close(o.done)
}

// Done is closed when the outcome is resolved.
func (o *Outcome) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the outcome resolves or ctx ends. A ctx error does not
// resolve the outcome.
func (o *Outcome) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-o.done:
		return o.result, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
