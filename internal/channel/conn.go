// Package channel carries protocol frames over a websocket. Each frame is one
// text message; ordering and framing come from the websocket itself.
package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jaywantadh/pullsrc/internal/protocol"
	"github.com/jaywantadh/pullsrc/pkg/logging"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultMaxFrameSize     = 16 << 20
)

// Options configures a Conn.
type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	MaxFrameSize     int64
	Header           http.Header
	Logger           *logrus.Entry
}

type OptionFunc func(*Options)

func newOptions(options ...OptionFunc) Options {
	o := Options{
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		MaxFrameSize:     DefaultMaxFrameSize,
		Header:           http.Header{},
	}
	for _, option := range options {
		option(&o)
	}
	if o.Logger == nil {
		o.Logger = logging.Entry()
	}
	return o
}

func WithHandshakeTimeout(d time.Duration) OptionFunc {
	return func(o *Options) { o.HandshakeTimeout = d }
}

func WithWriteTimeout(d time.Duration) OptionFunc {
	return func(o *Options) { o.WriteTimeout = d }
}

// WithMaxFrameSize limits inbound messages. A larger message fails the channel.
func WithMaxFrameSize(n int64) OptionFunc {
	return func(o *Options) { o.MaxFrameSize = n }
}

// WithHeader adds a header to the opening handshake.
func WithHeader(key, value string) OptionFunc {
	return func(o *Options) { o.Header.Add(key, value) }
}

func WithLogger(logger *logrus.Entry) OptionFunc {
	return func(o *Options) { o.Logger = logger }
}

// Conn is one websocket channel. Send may be called from several goroutines;
// Serve must be called at most once.
type Conn struct {
	ws   *websocket.Conn
	opts Options
	log  *logrus.Entry

	writeMu   sync.Mutex
	closeOnce sync.Once
	closing   chan struct{}
}

// Dial opens the channel at endpoint.
func Dial(ctx context.Context, endpoint string, options ...OptionFunc) (*Conn, error) {
	opts := newOptions(options...)
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	ws, resp, err := dialer.DialContext(ctx, endpoint, opts.Header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (handshake status %s)", err, resp.Status)
		}
		return nil, &protocol.ChannelError{Op: "dial", Err: err}
	}
	c := newConn(ws, opts)
	c.log.Info("🔌 Channel open")
	return c, nil
}

// NewConn wraps an established websocket, for instance one accepted by an
// http.Handler through websocket.Upgrader.
func NewConn(ws *websocket.Conn, options ...OptionFunc) *Conn {
	return newConn(ws, newOptions(options...))
}

func newConn(ws *websocket.Conn, opts Options) *Conn {
	ws.SetReadLimit(opts.MaxFrameSize)
	return &Conn{
		ws:      ws,
		opts:    opts,
		log:     opts.Logger.WithField("remote", ws.RemoteAddr().String()),
		closing: make(chan struct{}),
	}
}

// Send writes f as one text message.
func (c *Conn) Send(f protocol.Frame) error {
	data, err := protocol.EncodeFrame(f)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.opts.WriteTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return &protocol.ChannelError{Op: "send", Err: err}
		}
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return &protocol.ChannelError{Op: "send", Err: err}
	}
	return nil
}

// Serve reports the open channel to h, then reads until the channel ends.
// Undecodable frames are reported through HandleError and reading continues;
// the handler decides whether they are fatal. Empty messages are skipped.
func (c *Conn) Serve(h protocol.Handler) error {
	h.HandleOpen()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			chErr := c.readError(err)
			h.HandleError(chErr)
			return chErr
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		f, err := protocol.DecodeFrame(data)
		if err != nil {
			c.log.WithError(err).Warn("⚠️ Undecodable frame")
			h.HandleError(err)
			continue
		}
		h.HandleFrame(f)
	}
}

func (c *Conn) readError(err error) *protocol.ChannelError {
	select {
	case <-c.closing:
		return &protocol.ChannelError{Op: "read", Err: fmt.Errorf("channel closed locally: %w", err)}
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return &protocol.ChannelError{Op: "read", Err: fmt.Errorf("%w: %v", protocol.ErrClosedBeforeDone, err)}
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return &protocol.ChannelError{Op: "read", Err: fmt.Errorf("frame exceeds %d bytes: %w", c.opts.MaxFrameSize, err)}
	}
	return &protocol.ChannelError{Op: "read", Err: err}
}

// Close sends a close frame on a best-effort basis and closes the connection.
// Serve returns once Close has been called.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closing)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		deadline := time.Now().Add(time.Second)
		if werr := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil {
			c.log.WithError(werr).Debug("Close frame not sent")
		}
		err = c.ws.Close()
		c.log.Debug("Channel closed")
	})
	return err
}
