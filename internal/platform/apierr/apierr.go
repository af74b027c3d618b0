package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an error with the HTTP status and machine code it renders as.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NotFound(code string, err error) *Error   { return New(http.StatusNotFound, code, err) }
func Conflict(code string, err error) *Error   { return New(http.StatusConflict, code, err) }
func BadRequest(code string, err error) *Error { return New(http.StatusBadRequest, code, err) }

// Rule maps every error matching Target to a status and code.
type Rule struct {
	Target error
	Status int
	Code   string
}

// Classify returns err as an *Error. Errors already carrying a status keep
// it; otherwise the first matching rule wins and anything else is a 500.
func Classify(err error, rules ...Rule) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	for _, r := range rules {
		if errors.Is(err, r.Target) {
			return New(r.Status, r.Code, err)
		}
	}
	return New(http.StatusInternalServerError, "internal_error", err)
}
