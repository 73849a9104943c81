package authapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrUnauthorized classifies rejected credentials or tokens (401/403).
	ErrUnauthorized = errors.New("auth api: unauthorized")
	// ErrBadRequest classifies requests the server refused as invalid (4xx).
	ErrBadRequest = errors.New("auth api: bad request")
	// ErrUnavailable classifies transport failures and 5xx answers.
	ErrUnavailable = errors.New("auth api: unavailable")
	// ErrMalformedResponse is returned when a 2xx body cannot be used.
	ErrMalformedResponse = errors.New("auth api: malformed response")
)

// Error is a non-2xx answer from the Auth API.
type Error struct {
	Status    int
	Detail    string
	RequestID string
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth api error %d: %s", e.Status, e.Detail)
}

// Unwrap returns the class sentinel for the status code.
func (e *Error) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrUnauthorized
	case e.Status >= 400 && e.Status < 500:
		return ErrBadRequest
	default:
		return ErrUnavailable
	}
}

// Message returns the detail text, falling back to the status text.
func (e *Error) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return http.StatusText(e.Status)
}

// errorBody is the FastAPI error envelope. detail is either a string or a
// list of validation issues.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type validationIssue struct {
	Msg string `json:"msg"`
}

func convertError(status int, body []byte, requestID string) *Error {
	e := &Error{Status: status, RequestID: requestID}

	var env errorBody
	if err := json.Unmarshal(body, &env); err != nil || len(env.Detail) == 0 {
		e.Detail = strings.TrimSpace(string(body))
		return e
	}

	var detail string
	if err := json.Unmarshal(env.Detail, &detail); err == nil {
		e.Detail = detail
		return e
	}

	var issues []validationIssue
	if err := json.Unmarshal(env.Detail, &issues); err == nil {
		msgs := make([]string, 0, len(issues))
		for _, issue := range issues {
			if issue.Msg != "" {
				msgs = append(msgs, issue.Msg)
			}
		}
		e.Detail = strings.Join(msgs, "; ")
		return e
	}

	e.Detail = string(env.Detail)
	return e
}
