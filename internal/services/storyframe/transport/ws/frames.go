// Package ws carries the storyframe transport over WebSockets.
//
// The authority runs a Hub; followers connect with a Client. Every frame is a
// JSON object {type, request_id, payload}. Requests from a peer are
// correlated with their result or error by request_id; pushes carry none.
package ws

import (
	"encoding/json"
	"errors"
	"log"

	apperrors "github.com/louisbranch/storyframe/internal/platform/errors"
)

// Frame types.
const (
	FrameExecute = "storyframe.execute"
	FrameResult  = "storyframe.result"
	FrameError   = "storyframe.error"
	FramePush    = "storyframe.push"
)

const (
	maxFramePayloadBytes   = 256 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type executePayload struct {
	Op   string          `json:"op"`
	Args json.RawMessage `json:"args,omitempty"`
}

type resultPayload struct {
	Result json.RawMessage `json:"result"`
}

type pushPayload struct {
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string            `json:"code"`
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Details   map[string]string `json:"details,omitempty"`
}

// errorFrom builds the wire error for err. Errors without a domain code are
// reported as UNKNOWN with a generic message.
func errorFrom(err error) wsError {
	code := apperrors.CodeOf(err)
	message := "internal error"
	var details map[string]string
	if code != apperrors.CodeUnknown {
		message = err.Error()
		var domainErr *apperrors.Error
		if errors.As(err, &domainErr) {
			details = domainErr.Metadata
		}
	}
	return wsError{
		Code:      string(code),
		Status:    code.GRPCCode().String(),
		Message:   message,
		Retryable: code.Retryable(),
		Details:   details,
	}
}

// toError turns a wire error back into a domain error.
func (e wsError) toError() error {
	code := apperrors.Code(e.Code)
	if code == "" {
		code = apperrors.CodeUnknown
	}
	return apperrors.WithMetadata(code, e.Message, e.Details)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("storyframe: failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
