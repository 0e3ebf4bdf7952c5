package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jaywantadh/pullsrc/internal/protocol"
	"github.com/jaywantadh/pullsrc/internal/resource"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitTimeout = 2 * time.Second

func frame(cmd protocol.CommandType, id string, param string) protocol.Frame {
	f := protocol.Frame{Command: cmd, RequestID: json.RawMessage(id)}
	if param != "" {
		f.Param = json.RawMessage(param)
	}
	return f
}

// fakeChannel is an in-memory Channel. Inbound events are protocol.Frame or
// error values pushed on in.
type fakeChannel struct {
	in        chan any
	sent      chan protocol.Frame
	sendErr   error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		in:     make(chan any, 16),
		sent:   make(chan protocol.Frame, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeChannel) Send(f protocol.Frame) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent <- f
	return nil
}

func (c *fakeChannel) Serve(h protocol.Handler) error {
	h.HandleOpen()
	for {
		select {
		case ev := <-c.in:
			switch v := ev.(type) {
			case protocol.Frame:
				h.HandleFrame(v)
			case error:
				h.HandleError(v)
				var chErr *protocol.ChannelError
				if errors.As(v, &chErr) {
					return v
				}
			}
		case <-c.closed:
			return &protocol.ChannelError{Op: "read", Err: net.ErrClosed}
		}
	}
}

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// sender records responses synchronously.
type sender struct {
	frames chan protocol.Frame
	err    error
}

func newSender() *sender {
	return &sender{frames: make(chan protocol.Frame, 64)}
}

func (s *sender) Send(f protocol.Frame) error {
	if s.err != nil {
		return s.err
	}
	s.frames <- f
	return nil
}

func expectFrame(t *testing.T, frames <-chan protocol.Frame) protocol.Frame {
	t.Helper()
	select {
	case f := <-frames:
		return f
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a response frame")
		return protocol.Frame{}
	}
}

func expectNoFrame(t *testing.T, frames <-chan protocol.Frame) {
	t.Helper()
	select {
	case f := <-frames:
		t.Fatalf("unexpected frame: command=%s requestId=%s param=%s", f.Command, f.RequestID, f.Param)
	case <-time.After(50 * time.Millisecond):
	}
}

func decodeData(t *testing.T, f protocol.Frame) string {
	t.Helper()
	var r protocol.ReadAtResult
	require.NoError(t, json.Unmarshal(f.Param, &r))
	data, err := protocol.DecodeData(r.Data)
	require.NoError(t, err)
	return string(data)
}

type progressEvent struct {
	loaded, total int64
}

type progressLog struct {
	mu     sync.Mutex
	events []progressEvent
}

func (p *progressLog) record(loaded, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, progressEvent{loaded, total})
}

func (p *progressLog) all() []progressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]progressEvent(nil), p.events...)
}

func (p *progressLog) last() progressEvent {
	events := p.all()
	if len(events) == 0 {
		return progressEvent{-1, -1}
	}
	return events[len(events)-1]
}

func letters() *resource.Bytes {
	return resource.NewBytes("letters.txt", []byte("ABCDEFGHIJ"))
}

// gatedResource blocks reads at chosen offsets until released, honoring ctx.
type gatedResource struct {
	*resource.Bytes
	gates map[int64]chan struct{}
	err   error
}

func (g *gatedResource) ReadAt(ctx context.Context, offset, length int64) ([]byte, error) {
	if gate, ok := g.gates[offset]; ok {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.Bytes.ReadAt(ctx, offset, length)
}
