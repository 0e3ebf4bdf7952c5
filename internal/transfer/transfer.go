// Package transfer implements the source side of the pull protocol: a
// reactive state machine that answers Size, Name and ReadAt commands from a
// remote puller and resolves once the puller sends Done.
package transfer

import (
	"context"

	"github.com/jaywantadh/pullsrc/internal/protocol"
)

// TransferStatus is the state of one transfer.
type TransferStatus string

const (
	StatusIdle      TransferStatus = "idle"
	StatusActive    TransferStatus = "active"
	StatusCompleted TransferStatus = "completed"
	StatusFailed    TransferStatus = "failed"
)

// Terminal reports whether no further frames are processed in this state.
func (s TransferStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Resource is the read-only handle served during a transfer. ReadAt returns at
// most length bytes starting at offset, clipped to Size, and may be called
// concurrently.
type Resource interface {
	Name() string
	Size() int64
	ReadAt(ctx context.Context, offset, length int64) ([]byte, error)
}

// ProgressFunc receives the cumulative byte count observed by the puller.
// It is called synchronously and must not block.
type ProgressFunc func(loaded, total int64)

// Sender delivers outbound frames.
type Sender interface {
	Send(frame protocol.Frame) error
}

// Channel is one duplex message connection.
type Channel interface {
	Sender
	// Serve dispatches channel events to h until the channel ends and returns
	// the cause.
	Serve(h protocol.Handler) error
	Close() error
}
