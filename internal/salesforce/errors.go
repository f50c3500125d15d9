package salesforce

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"sfextract/internal/datasource/httpds"
)

// APIError is an error answer from the REST or async API.
type APIError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("salesforce: %s: %s: %s (status %d)", e.Op, e.Code, msg, e.StatusCode)
	}
	return fmt.Sprintf("salesforce: %s: %s (status %d)", e.Op, msg, e.StatusCode)
}

// transientCodes are exception codes for rate limiting, timeouts and busy
// servers.
var transientCodes = map[string]bool{
	"ExceededQuota":          true,
	"REQUEST_LIMIT_EXCEEDED": true,
	"ServerUnavailable":      true,
	"SERVER_UNAVAILABLE":     true,
	"TooManyLockFailure":     true,
	"Timeout":                true,
	"UNABLE_TO_LOCK_ROW":     true,
}

// Temporary reports whether retrying the same call later may succeed.
func (e *APIError) Temporary() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return true
	}
	return transientCodes[e.Code]
}

// restError is one element of a REST API error array.
type restError struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// asyncError is the async API error document.
type asyncError struct {
	ExceptionCode    string `json:"exceptionCode"`
	ExceptionMessage string `json:"exceptionMessage"`
}

// apiError turns an httpds failure into an *APIError carrying the remote
// error code. Transport errors pass through unchanged.
func apiError(op string, err error) error {
	var se *httpds.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("salesforce: %s: %w", op, err)
	}
	ae := &APIError{Op: op, StatusCode: se.StatusCode}
	ae.Code, ae.Message = decodeErrorBody(se.Body)
	return ae
}

func decodeErrorBody(b []byte) (code, msg string) {
	var rest []restError
	if json.Unmarshal(b, &rest) == nil && len(rest) > 0 {
		return rest[0].ErrorCode, rest[0].Message
	}
	var async asyncError
	if json.Unmarshal(b, &async) == nil && async.ExceptionCode != "" {
		return async.ExceptionCode, async.ExceptionMessage
	}
	return "", string(b)
}
