package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jaywantadh/pullsrc/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Engine answers the commands of one transfer. It is single-use: once the
// outcome resolves every later event is ignored.
//
// Inbound events are handled one at a time by the channel's dispatch loop.
// ReadAt is the only command that suspends; its read runs on its own goroutine
// and answers with the request id it was issued for.
type Engine struct {
	res         Resource
	size        int64
	onProgress  ProgressFunc
	out         Sender
	id          string
	readTimeout time.Duration
	log         *logrus.Entry

	// ctx is canceled on the terminal transition and aborts in-flight reads.
	ctx    context.Context
	cancel context.CancelFunc
	reads  sync.WaitGroup

	mu      sync.Mutex
	status  TransferStatus
	loaded  int64
	outcome *Outcome
}

var _ protocol.Handler = (*Engine)(nil)

// NewEngine binds res and onProgress to a new engine in the Idle state.
// Responses are written to out.
func NewEngine(res Resource, onProgress ProgressFunc, out Sender, options ...OptionFunc) *Engine {
	cfg := NewConfig(options...)
	if onProgress == nil {
		onProgress = func(int64, int64) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		res:         res,
		size:        res.Size(),
		onProgress:  onProgress,
		out:         out,
		id:          cfg.TransferID,
		readTimeout: cfg.ReadTimeout,
		log:         cfg.Logger,
		ctx:         ctx,
		cancel:      cancel,
		status:      StatusIdle,
		outcome:     newOutcome(),
	}
}

func (e *Engine) ID() string { return e.id }

func (e *Engine) Outcome() *Outcome { return e.outcome }

func (e *Engine) Status() TransferStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Loaded returns the highest byte count reported so far.
func (e *Engine) Loaded() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Wait blocks until every in-flight read has returned.
func (e *Engine) Wait() {
	e.reads.Wait()
}

// HandleOpen moves the engine from Idle to Active.
func (e *Engine) HandleOpen() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusIdle {
		return
	}
	e.status = StatusActive
	e.log.WithFields(logrus.Fields{"name": e.res.Name(), "size": e.size}).Info("📡 Transfer active")
}

// HandleFrame answers one inbound command.
func (e *Engine) HandleFrame(f protocol.Frame) {
	if status := e.Status(); status != StatusActive {
		e.log.WithFields(logrus.Fields{"command": f.Command, "status": status}).Debug("Ignoring frame outside active state")
		return
	}
	log := e.log.WithFields(logrus.Fields{"command": f.Command, "request_id": string(f.RequestID)})
	if !f.Command.Known() {
		log.Debug("Ignoring unknown command")
		return
	}
	log.Debug("Command received")

	switch f.Command {
	case protocol.CommandSize:
		e.respond(f, protocol.SizeResult{Size: uint64(e.size)}, -1)
	case protocol.CommandName:
		e.respond(f, protocol.NameResult{Name: e.res.Name()}, -1)
	case protocol.CommandReadAt:
		e.handleReadAt(f)
	case protocol.CommandDone:
		e.complete(f.Result())
	}
}

// HandleError fails the transfer. Errors other than decode errors are reported
// as channel errors.
func (e *Engine) HandleError(err error) {
	var decErr *protocol.DecodeError
	var chErr *protocol.ChannelError
	if !errors.As(err, &decErr) && !errors.As(err, &chErr) {
		err = &protocol.ChannelError{Err: err}
	}
	e.fail(err)
}

func (e *Engine) handleReadAt(f protocol.Frame) {
	p, err := f.DecodeReadAt()
	if err != nil {
		e.fail(err)
		return
	}

	size := uint64(e.size)
	end := p.Offset + p.Length
	if end < p.Offset || end > size {
		end = size
	}
	if end <= p.Offset {
		// Past the end: an empty payload tells the puller there is no more data.
		e.respond(f, protocol.ReadAtResult{Data: ""}, int64(end))
		return
	}

	e.reads.Add(1)
	go func() {
		defer e.reads.Done()
		e.serveRead(f, int64(p.Offset), int64(end-p.Offset))
	}()
}

type readResult struct {
	data []byte
	err  error
}

func (e *Engine) serveRead(f protocol.Frame, offset, length int64) {
	ctx := e.ctx
	if e.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.readTimeout)
		defer cancel()
	}

	done := make(chan readResult, 1)
	go func() {
		data, err := e.res.ReadAt(ctx, offset, length)
		done <- readResult{data: data, err: err}
	}()

	var r readResult
	select {
	case r = <-done:
	case <-ctx.Done():
		r.err = ctx.Err()
	}
	if r.err != nil {
		switch {
		case e.ctx.Err() != nil:
			// Transfer already finished.
		case errors.Is(r.err, context.DeadlineExceeded):
			e.fail(&protocol.ChannelError{Op: "read_at", Err: protocol.ErrReadTimeout})
		default:
			e.fail(&protocol.ResourceError{Offset: offset, Length: length, Err: r.err})
		}
		return
	}

	e.respond(f, protocol.ReadAtResult{Data: protocol.EncodeData(r.data)}, offset+length)
}

// respond sends the response to req and, when loaded is not negative, reports
// progress. Nothing is sent once the transfer is terminal.
func (e *Engine) respond(req protocol.Frame, param any, loaded int64) {
	resp, err := protocol.NewResponse(req, param)
	if err != nil {
		e.fail(err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusActive {
		return
	}
	if err := e.out.Send(resp); err != nil {
		e.finishLocked(nil, &protocol.ChannelError{Op: "send", Err: err})
		return
	}
	if loaded >= 0 {
		e.reportLocked(loaded)
	}
}

// reportLocked keeps loaded non-decreasing when reads finish out of order.
func (e *Engine) reportLocked(loaded int64) {
	if loaded > e.loaded {
		e.loaded = loaded
	}
	e.onProgress(e.loaded, e.size)
}

func (e *Engine) complete(result json.RawMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusActive {
		return
	}
	e.reportLocked(e.size)
	e.finishLocked(result, nil)
}

func (e *Engine) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finishLocked(nil, err)
}

func (e *Engine) finishLocked(result json.RawMessage, err error) {
	if e.status.Terminal() {
		return
	}
	if err != nil {
		e.status = StatusFailed
		e.log.WithError(err).Error("❌ Transfer failed")
	} else {
		e.status = StatusCompleted
		e.log.WithField("loaded", e.loaded).Info("✅ Transfer completed")
	}
	e.cancel()
	e.outcome.resolve(result, err)
}
