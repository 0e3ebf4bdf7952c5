package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/jaywantadh/pullsrc/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartTransferCompletes(t *testing.T) {
	ch := newFakeChannel()
	progress := &progressLog{}
	tr := StartTransfer(context.Background(), ch, letters(), progress.record, WithTransferID("t-1"))
	assert.Equal(t, "t-1", tr.ID())

	ch.in <- frame(protocol.CommandSize, `1`, `{}`)
	assert.JSONEq(t, `{"size":10}`, string(expectFrame(t, ch.sent).Param))

	ch.in <- frame(protocol.CommandReadAt, `2`, `{"offset":0,"length":10}`)
	assert.Equal(t, "ABCDEFGHIJ", decodeData(t, expectFrame(t, ch.sent)))

	ch.in <- frame(protocol.CommandDone, `3`, `{"result":"ok"}`)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	result, err := tr.Wait(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":"ok"}`, string(result))
	assert.Equal(t, StatusCompleted, tr.Status())

	select {
	case <-ch.closed:
	default:
		t.Fatal("channel must be closed after the outcome resolves")
	}
}

func TestStartTransferChannelClosedBeforeDone(t *testing.T) {
	ch := newFakeChannel()
	tr := StartTransfer(context.Background(), ch, letters(), nil)

	ch.in <- frame(protocol.CommandSize, `1`, `{}`)
	expectFrame(t, ch.sent)
	require.NoError(t, ch.Close())

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err := tr.Wait(ctx)
	var chErr *protocol.ChannelError
	require.True(t, errors.As(err, &chErr))
	assert.Equal(t, StatusFailed, tr.Status())
	expectNoFrame(t, ch.sent)
}

func TestStartTransferDecodeError(t *testing.T) {
	ch := newFakeChannel()
	tr := StartTransfer(context.Background(), ch, letters(), nil)

	_, decErr := protocol.DecodeFrame([]byte("{{"))
	ch.in <- decErr

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err := tr.Wait(ctx)
	var target *protocol.DecodeError
	assert.True(t, errors.As(err, &target))
}

func TestStartTransferCanceled(t *testing.T) {
	ch := newFakeChannel()
	ctx, cancel := context.WithCancel(context.Background())
	tr := StartTransfer(ctx, ch, letters(), nil)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), waitTimeout)
	defer waitCancel()
	_, err := tr.Wait(waitCtx)
	assert.ErrorIs(t, err, context.Canceled)
	var chErr *protocol.ChannelError
	assert.True(t, errors.As(err, &chErr))
}

func TestTransferWaitContext(t *testing.T) {
	ch := newFakeChannel()
	tr := StartTransfer(context.Background(), ch, letters(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusActive, tr.Status())

	ch.in <- frame(protocol.CommandDone, `1`, `{}`)
	_, err = tr.Wait(context.Background())
	assert.NoError(t, err)
}
