package tasks

import (
	"errors"
	"net/http"
	"strings"
)

// Error kinds. Every error leaving a Repository is either one of these
// (wrapped in *Error) or treated as unknown.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("task not found")
	ErrUnavailable = errors.New("store unavailable")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Kind    error
	Op      string
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Kind != nil:
		b.WriteString(e.Kind.Error())
	default:
		b.WriteString("unexpected error")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

func validationError(op, msg string, fields ...FieldError) error {
	return &Error{Kind: ErrValidation, Op: op, Message: msg, Fields: fields}
}

func notFoundError(op string) error {
	return &Error{Kind: ErrNotFound, Op: op, Message: "task not found"}
}

func unavailableError(op string, err error) error {
	return &Error{Kind: ErrUnavailable, Op: op, Err: err}
}

func unknownError(op string, err error) error {
	return &Error{Op: op, Err: err}
}

// HTTPStatus maps an error to the one status code its kind answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FieldErrors returns the per-field details carried by a validation error.
func FieldErrors(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
