package backend

import (
	"errors"
	"fmt"
)

// ErrRequestFailed matches every failed exchange: transport errors, non-2xx
// statuses and undecodable bodies.
var ErrRequestFailed = errors.New("chat request failed")

// ErrMissingMessage is returned for a 2xx reply without a message field.
var ErrMissingMessage = fmt.Errorf("%w: response has no message", ErrRequestFailed)

type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
)

const maxErrorBody = 512

type RequestError struct {
	Kind      Kind
	RequestID string
	Status    int // 0 when no response arrived
	Body      string
	Err       error
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s request %s", e.Kind, e.RequestID)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *RequestError) Unwrap() error { return e.Err }

func (e *RequestError) Is(target error) bool { return target == ErrRequestFailed }

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}
