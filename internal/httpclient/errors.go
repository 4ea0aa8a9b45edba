package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoResponse marks failures where the request went out but no response
// came back: connection errors, timeouts, cancelled contexts.
var ErrNoResponse = errors.New("no response")

// Error is the single shape every failed call is reported in. Status is set
// only when the server answered with an error status, so callers can branch
// on Status != 0 alone.
type Error struct {
	Status  int
	Message string
	Code    string
	Payload map[string]any
	Err     error

	noResponse bool
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.noResponse {
		errs = append(errs, ErrNoResponse)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// HasStatus reports whether a response with an error status was received.
func (e *Error) HasStatus() bool {
	return e.Status != 0
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func noResponseError(cause error) *Error {
	return &Error{Message: ErrNoResponse.Error(), Err: cause, noResponse: true}
}

func clientError(cause error) *Error {
	return &Error{Message: cause.Error(), Err: cause}
}

// statusError builds the error for a received response. A JSON object body
// becomes the payload and its "message" and "code" fields are lifted.
func statusError(status int, body []byte) *Error {
	e := &Error{Status: status}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil && payload != nil {
		e.Payload = payload
		if msg, ok := payload["message"].(string); ok {
			e.Message = msg
		}
		if code, ok := payload["code"].(string); ok {
			e.Code = code
		}
	} else if text := strings.TrimSpace(string(body)); text != "" {
		e.Message = text
	}

	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
