package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrClosedBeforeDone = errors.New("channel closed before done")
	ErrReadTimeout      = errors.New("resource read timed out")
)

// ChannelError is a transport-level failure or an unexpected close before Done.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("channel error: %v", e.Err)
	}
	return fmt.Sprintf("channel error: %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// DecodeError means an inbound frame or its param could not be parsed.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error: %v (frame %q)", e.Err, e.Raw)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ResourceError means the resource could not produce the requested range.
type ResourceError struct {
	Offset int64
	Length int64
	Err    error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource read [%d, +%d) failed: %v", e.Offset, e.Length, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
