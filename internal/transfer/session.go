package transfer

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jaywantadh/pullsrc/internal/protocol"
)

// Transfer is one running transfer over a channel.
type Transfer struct {
	*Engine
	ch Channel
	wg sync.WaitGroup
}

// StartTransfer serves res over ch until the puller sends Done, the channel
// fails or ctx ends. The channel is closed once the outcome resolves.
func StartTransfer(ctx context.Context, ch Channel, res Resource, onProgress ProgressFunc, options ...OptionFunc) *Transfer {
	t := &Transfer{
		Engine: NewEngine(res, onProgress, ch, options...),
		ch:     ch,
	}

	t.wg.Add(2)
	go func() {
		defer t.wg.Done()
		err := ch.Serve(t.Engine)
		if err == nil {
			err = &protocol.ChannelError{Err: protocol.ErrClosedBeforeDone}
		}
		// No-op when the outcome already resolved.
		t.HandleError(err)
	}()
	go func() {
		defer t.wg.Done()
		select {
		case <-t.outcome.Done():
		case <-ctx.Done():
			t.HandleError(&protocol.ChannelError{Op: "cancel", Err: ctx.Err()})
		}
		if err := ch.Close(); err != nil {
			t.log.WithError(err).Debug("Channel close failed")
		}
	}()
	return t
}

// Wait blocks until the outcome resolves and the channel and every in-flight
// read have been torn down.
func (t *Transfer) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-t.outcome.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	t.wg.Wait()
	t.Engine.Wait()
	return t.outcome.result, t.outcome.err
}
