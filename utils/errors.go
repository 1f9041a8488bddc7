package utils

import (
	"errors"
	"net/http"
)

// Kind classifies a failure for the HTTP layer.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindDependency
)

// AppError carries a client-safe message next to the underlying cause.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

// Validation reports bad client input (400).
func Validation(message string, err error) *AppError {
	return &AppError{Kind: KindValidation, Message: message, Err: err}
}

// NotFound reports a missing target (404).
func NotFound(message string, err error) *AppError {
	return &AppError{Kind: KindNotFound, Message: message, Err: err}
}

// Dependency reports a failing disk or mail relay (500).
func Dependency(message string, err error) *AppError {
	return &AppError{Kind: KindDependency, Message: message, Err: err}
}

// StatusOf maps err to an HTTP status. Unclassified errors are 500.
func StatusOf(err error) int {
	var ae *AppError
	if !errors.As(err, &ae) {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// MessageOf returns the client-facing message of err, or fallback when err carries none.
func MessageOf(err error, fallback string) string {
	var ae *AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return fallback
}
