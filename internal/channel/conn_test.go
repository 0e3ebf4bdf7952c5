package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jaywantadh/pullsrc/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const waitTimeout = 2 * time.Second

// newPeer starts a websocket server running script against each accepted
// connection and returns its ws:// address.
func newPeer(t *testing.T, script func(r *http.Request, ws *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload/ws" {
			http.NotFound(w, r)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		script(r, ws)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/upload/ws"
}

type recorder struct {
	opened chan struct{}
	frames chan protocol.Frame
	errs   chan error
}

func newRecorder() *recorder {
	return &recorder{
		opened: make(chan struct{}, 1),
		frames: make(chan protocol.Frame, 16),
		errs:   make(chan error, 16),
	}
}

func (r *recorder) HandleOpen()                  { r.opened <- struct{}{} }
func (r *recorder) HandleFrame(f protocol.Frame) { r.frames <- f }
func (r *recorder) HandleError(err error)        { r.errs <- err }

func dial(t *testing.T, endpoint string, options ...OptionFunc) *Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	c, err := Dial(ctx, endpoint, options...)
	require.NoError(t, err)
	return c
}

func serve(c *Conn, h protocol.Handler) <-chan error {
	done := make(chan error, 1)
	go func() { done <- c.Serve(h) }()
	return done
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out")
		return nil
	}
}

func TestConnRoundTrip(t *testing.T) {
	replies := make(chan string, 1)
	endpoint := newPeer(t, func(r *http.Request, ws *websocket.Conn) {
		if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"command":2,"requestId":"a","param":{}}`)); err != nil {
			return
		}
		_, data, err := ws.ReadMessage()
		if err == nil {
			replies <- string(data)
		}
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	c := dial(t, endpoint)
	defer c.Close()
	rec := newRecorder()
	done := serve(c, rec)

	<-rec.opened
	f := <-rec.frames
	assert.Equal(t, protocol.CommandSize, f.Command)

	resp, err := protocol.NewResponse(f, protocol.SizeResult{Size: 10})
	require.NoError(t, err)
	require.NoError(t, c.Send(resp))
	assert.JSONEq(t, `{"command":2,"requestId":"a","param":{"size":10}}`, <-replies)

	err = waitErr(t, done)
	var chErr *protocol.ChannelError
	require.True(t, errors.As(err, &chErr))
	assert.ErrorIs(t, err, protocol.ErrClosedBeforeDone)
	assert.Equal(t, err, <-rec.errs)
}

func TestConnMalformedFrameSurfacesDecodeError(t *testing.T) {
	endpoint := newPeer(t, func(r *http.Request, ws *websocket.Conn) {
		ws.WriteMessage(websocket.TextMessage, []byte(`{"command":`))
		ws.WriteMessage(websocket.TextMessage, []byte(`   `))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"command":3,"requestId":7}`))
		ws.ReadMessage()
	})

	c := dial(t, endpoint)
	rec := newRecorder()
	done := serve(c, rec)

	err := <-rec.errs
	var decErr *protocol.DecodeError
	assert.True(t, errors.As(err, &decErr))

	f := <-rec.frames
	assert.Equal(t, protocol.CommandName, f.Command)
	assert.JSONEq(t, `7`, string(f.RequestID))

	require.NoError(t, c.Close())
	err = waitErr(t, done)
	var chErr *protocol.ChannelError
	assert.True(t, errors.As(err, &chErr))
	assert.Empty(t, rec.frames, "the blank message must be skipped")
}

func TestConnReadLimit(t *testing.T) {
	endpoint := newPeer(t, func(r *http.Request, ws *websocket.Conn) {
		ws.WriteMessage(websocket.TextMessage, []byte(`{"command":2,"requestId":"`+strings.Repeat("x", 256)+`"}`))
		ws.ReadMessage()
	})

	c := dial(t, endpoint, WithMaxFrameSize(64))
	defer c.Close()
	err := waitErr(t, serve(c, newRecorder()))
	assert.ErrorIs(t, err, websocket.ErrReadLimit)
}

func TestConnHandshakeHeader(t *testing.T) {
	got := make(chan string, 1)
	endpoint := newPeer(t, func(r *http.Request, ws *websocket.Conn) {
		got <- r.Header.Get("X-Transfer-Id")
	})

	c := dial(t, endpoint, WithHeader("X-Transfer-Id", "t-42"))
	defer c.Close()
	assert.Equal(t, "t-42", <-got)
}

func TestDialFailure(t *testing.T) {
	endpoint := newPeer(t, func(r *http.Request, ws *websocket.Conn) {})

	_, err := Dial(context.Background(), strings.Replace(endpoint, "/api/upload/ws", "/nope", 1))
	var chErr *protocol.ChannelError
	require.True(t, errors.As(err, &chErr))
	assert.Equal(t, "dial", chErr.Op)
	assert.Contains(t, err.Error(), "404")
}

func TestNewConnOnAcceptedSocket(t *testing.T) {
	accepted := newRecorder()
	served := make(chan error, 1)
	endpoint := newPeer(t, func(_ *http.Request, ws *websocket.Conn) {
		c := NewConn(ws, WithWriteTimeout(time.Second), WithMaxFrameSize(1<<10))
		done := serve(c, accepted)
		<-accepted.opened
		served <- c.Send(protocol.Frame{Command: protocol.CommandSize, RequestID: []byte(`7`)})
		<-done
	})

	c := dial(t, endpoint)
	rec := newRecorder()
	done := serve(c, rec)

	select {
	case f := <-rec.frames:
		assert.Equal(t, protocol.CommandSize, f.Command)
		assert.Equal(t, "7", string(f.RequestID))
	case <-time.After(waitTimeout):
		t.Fatal("no frame from accepted side")
	}
	require.NoError(t, waitErr(t, served))

	require.NoError(t, c.Send(protocol.Frame{Command: protocol.CommandDone, RequestID: []byte(`7`), Param: []byte(`{}`)}))
	select {
	case f := <-accepted.frames:
		assert.Equal(t, protocol.CommandDone, f.Command)
	case <-time.After(waitTimeout):
		t.Fatal("no frame on accepted side")
	}

	require.NoError(t, c.Close())
	waitErr(t, done)
}
