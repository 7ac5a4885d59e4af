// Package graph is the OneDrive side of the transfer: it lists a folder,
// streams item content, and deletes transferred items through the Microsoft
// Graph API.
package graph

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Status classes. Check with errors.Is(err, graph.ErrNotFound).
var (
	ErrBadRequest   = errors.New("graph: bad request")
	ErrUnauthorized = errors.New("graph: unauthorized")
	ErrForbidden    = errors.New("graph: forbidden")
	ErrNotFound     = errors.New("graph: not found")
	ErrGone         = errors.New("graph: resource gone")
	ErrThrottled    = errors.New("graph: throttled")
	ErrLocked       = errors.New("graph: resource locked")
	ErrServerError  = errors.New("graph: server error")
)

var statusClasses = map[int]error{
	http.StatusBadRequest:      ErrBadRequest,
	http.StatusUnauthorized:    ErrUnauthorized,
	http.StatusForbidden:       ErrForbidden,
	http.StatusNotFound:        ErrNotFound,
	http.StatusGone:            ErrGone,
	http.StatusTooManyRequests: ErrThrottled,
	http.StatusLocked:          ErrLocked,
}

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// GraphError is a non-2xx response. Err is the status class, if any.
type GraphError struct {
	StatusCode int
	RequestID  string
	Message    string
	Err        error
}

func (e *GraphError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("graph: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("graph: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// newGraphError drains and closes resp.Body.
func newGraphError(resp *http.Response) *GraphError {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	msg := string(body)
	if err != nil {
		msg = "(failed to read response body)"
	}

	return &GraphError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("request-id"),
		Message:    msg,
		Err:        classifyStatus(resp.StatusCode),
	}
}

// classifyStatus maps a non-2xx status to its class, or nil.
func classifyStatus(code int) error {
	if err, ok := statusClasses[code]; ok {
		return err
	}

	if code >= http.StatusInternalServerError {
		return ErrServerError
	}

	return nil
}

// isRetryable reports whether a status is transient. 429 is not: pacing
// between batches is the only throttling response.
func isRetryable(code int) bool {
	return code == http.StatusRequestTimeout || code >= http.StatusInternalServerError && code != http.StatusNotImplemented
}
