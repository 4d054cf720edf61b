// Package apperr defines the error kinds surfaced by the prediction pipeline
// and how each maps onto an HTTP status.
package apperr

import (
	"errors"
	"net/http"
)

type Kind uint8

const (
	Unknown Kind = iota
	// Format means the upload could not be parsed as delimited text.
	Format
	// Validation means the upload parsed but failed a shape check.
	Validation
	// Unavailable means the model or label codec never loaded.
	Unavailable
	// Attribution is internal to the attribution engine and is always
	// recovered there.
	Attribution
	// Decode means a class id fell outside the fitted label domain.
	Decode
	// Processing is the catch-all for unexpected prediction failures.
	Processing
)

var kindNames = map[Kind]string{
	Unknown:     "unknown",
	Format:      "format_error",
	Validation:  "validation_error",
	Unavailable: "service_unavailable",
	Attribution: "attribution_failure",
	Decode:      "decode_error",
	Processing:  "processing_error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// HTTPStatus returns the response status used when an error of this kind
// terminates a request.
func (k Kind) HTTPStatus() int {
	switch k {
	case Format, Validation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the user-facing message of err: the Msg of the outermost
// *Error when present, otherwise err.Error().
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}
