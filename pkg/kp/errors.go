package kp

import (
	"errors"
	"net/http"
)

// Error carries the HTTP status an error page is rendered with.
type Error struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(status int, message string, err error) *Error {
	return &Error{Message: message, StatusCode: status, Err: err}
}

var ErrNotFound = &Error{Message: "Not Found", StatusCode: http.StatusNotFound}

// StatusOf returns the status carried by err, or 500.
func StatusOf(err error) int {
	var kerr *Error
	if errors.As(err, &kerr) && kerr.StatusCode != 0 {
		return kerr.StatusCode
	}
	return http.StatusInternalServerError
}
