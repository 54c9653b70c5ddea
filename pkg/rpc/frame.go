package rpc

import (
	"encoding/json"

	"github.com/cuemby/vcp/pkg/apperr"
)

// MaxFrameSize is the largest single frame either side will send or
// accept; larger payloads must be streamed or transferred out of band.
const MaxFrameSize = 10 << 20 // 10 MiB

// FrameType is the discriminator on the wire frame.
type FrameType string

const (
	FrameRequest      FrameType = "request"
	FrameResponse     FrameType = "response"
	FrameNotification FrameType = "notification"
	FrameStream       FrameType = "stream"
)

// FrameError is the wire form of apperr.Error.
type FrameError struct {
	Code    apperr.Code       `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Frame is one JSON text message on the agent websocket connection.
// A response or stream frame reuses the id of the request it answers;
// a notification carries a fresh id and expects no reply.
type Frame struct {
	ID      string          `json:"id"`
	Type    FrameType       `json:"type"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *FrameError     `json:"error,omitempty"`
}

// streamPayload is the shape isTerminalStream inspects to decide whether a
// stream frame is terminal.
type streamPayload struct {
	Completed bool `json:"completed"`
}

// isTerminalStream reports whether a stream frame's payload sets
// completed: true, per the wire contract.
func isTerminalStream(f Frame) bool {
	if f.Type != FrameStream || len(f.Payload) == 0 {
		return false
	}
	var p streamPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return false
	}
	return p.Completed
}

// errorFromFrame converts a frame's error field into an *apperr.Error.
func errorFromFrame(fe *FrameError) *apperr.Error {
	if fe == nil {
		return nil
	}
	kind := apperr.KindDriver
	switch fe.Code {
	case apperr.InvalidRequest, apperr.MethodNotFound, apperr.VMNotFound,
		apperr.VolumeNotFound, apperr.NetworkNotFound, apperr.NodeNotFound:
		kind = apperr.KindValidation
	case apperr.PreconditionFailed:
		kind = apperr.KindPrecondition
	case apperr.Timeout, apperr.TransportClosed, apperr.TransportSuperseded, apperr.NodeOffline:
		kind = apperr.KindTransport
	case apperr.Internal:
		kind = apperr.KindInfra
	}
	return &apperr.Error{Code: fe.Code, Kind: kind, Message: fe.Message}
}

// frameError converts an *apperr.Error into its wire form.
func frameError(err *apperr.Error) *FrameError {
	if err == nil {
		return nil
	}
	return &FrameError{Code: err.Code, Message: err.Message}
}
