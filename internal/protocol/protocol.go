// Package protocol defines the frames exchanged between a puller and a source
// over one duplex message channel.
//
// Every frame is a single JSON text message:
//
//	{"command": <int>, "requestId": <any JSON value>, "param": <object>}
//
// Chunk bytes travel as standard base64 (RFC 4648, padded) in the "data"
// field of a ReadAt response. An empty "data" string means no more data.
package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
)

// CommandType is the frame discriminant.
type CommandType int

const (
	CommandUnknown CommandType = 0
	CommandReadAt  CommandType = 1
	CommandSize    CommandType = 2
	CommandName    CommandType = 3
	CommandDone    CommandType = 4
)

func (c CommandType) String() string {
	switch c {
	case CommandReadAt:
		return "read_at"
	case CommandSize:
		return "size"
	case CommandName:
		return "name"
	case CommandDone:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Known reports whether c is one of the commands a source answers.
func (c CommandType) Known() bool {
	return c >= CommandReadAt && c <= CommandDone
}

// UnmarshalJSON accepts any JSON value. Anything other than an integral
// number in int32 range decodes as CommandUnknown, so a well-formed frame with
// a foreign discriminant is ignored rather than rejected.
func (c *CommandType) UnmarshalJSON(data []byte) error {
	*c = CommandUnknown
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		// out-of-range numbers
		return nil
	}
	n, ok := v.(float64)
	if !ok || n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
		return nil
	}
	*c = CommandType(n)
	return nil
}

// Frame is the wire unit. RequestID is opaque to the source and echoed verbatim.
type Frame struct {
	Command   CommandType     `json:"command"`
	RequestID json.RawMessage `json:"requestId,omitempty"`
	Param     json.RawMessage `json:"param,omitempty"`
}

// ReadAtParam is the inbound param of a ReadAt command.
type ReadAtParam struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// ReadAtResult is the outbound param of a ReadAt response.
type ReadAtResult struct {
	Data string `json:"data"`
}

// SizeResult is the outbound param of a Size response.
type SizeResult struct {
	Size uint64 `json:"size"`
}

// NameResult is the outbound param of a Name response.
type NameResult struct {
	Name string `json:"name"`
}

// DecodeFrame parses one inbound message. Only text that is not a JSON object
// of the frame shape is a DecodeError; unknown command values decode
// successfully and it is up to the caller to ignore them.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, &DecodeError{Raw: truncate(data), Err: err}
	}
	return f, nil
}

// EncodeFrame serializes f for the wire.
func EncodeFrame(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", f.Command, err)
	}
	return data, nil
}

// DecodeReadAt decodes the param of a ReadAt frame.
func (f Frame) DecodeReadAt() (ReadAtParam, error) {
	var p ReadAtParam
	param := bytes.TrimSpace(f.Param)
	if len(param) == 0 || bytes.Equal(param, []byte("null")) {
		return p, &DecodeError{Raw: truncate(f.Param), Err: fmt.Errorf("read_at frame without param")}
	}
	if err := json.Unmarshal(param, &p); err != nil {
		return p, &DecodeError{Raw: truncate(f.Param), Err: err}
	}
	return p, nil
}

// Result returns the caller-defined payload carried by a Done frame. A Done
// frame without param yields JSON null.
func (f Frame) Result() json.RawMessage {
	if len(bytes.TrimSpace(f.Param)) == 0 {
		return json.RawMessage("null")
	}
	out := make(json.RawMessage, len(f.Param))
	copy(out, f.Param)
	return out
}

// NewResponse builds the response to req, echoing its command and request id.
func NewResponse(req Frame, param any) (Frame, error) {
	raw, err := json.Marshal(param)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode %s param: %w", req.Command, err)
	}
	return Frame{
		Command:   req.Command,
		RequestID: req.RequestID,
		Param:     raw,
	}, nil
}

func EncodeData(chunk []byte) string {
	return base64.StdEncoding.EncodeToString(chunk)
}

func DecodeData(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}

func truncate(data []byte) string {
	const max = 128
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
