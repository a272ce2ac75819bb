// Package apperr defines the error kinds a capture-to-transcription run
// can end with.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies a pipeline failure.
type Code string

const (
	CaptureDenied       Code = "CAPTURE_DENIED"
	NoVideoFound        Code = "NO_VIDEO_FOUND"
	ImageDecodeFailed   Code = "IMAGE_DECODE_FAILED"
	TranscriptionFailed Code = "TRANSCRIPTION_FAILED"
	EmptyResult         Code = "EMPTY_RESULT"
	Busy                Code = "BUSY"
	SelectionCancelled  Code = "SELECTION_CANCELLED"
	InvalidInput        Code = "INVALID_INPUT"
)

// Error is a classified error. StatusCode is only set for
// TranscriptionFailed raised by a non-2xx backend response.
type Error struct {
	Code       Code
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.StatusCode != 0 {
		s += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(": %v", e.Cause)
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error with the same Code, so sentinel values such
// as ErrBusy work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Cause == nil
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: err}
}

// Status builds a TranscriptionFailed error for an HTTP status.
func Status(statusCode int, msg string) *Error {
	return &Error{Code: TranscriptionFailed, Message: msg, StatusCode: statusCode}
}

// Sentinels for errors.Is comparisons.
var (
	ErrCaptureDenied       = &Error{Code: CaptureDenied}
	ErrNoVideoFound        = &Error{Code: NoVideoFound}
	ErrImageDecodeFailed   = &Error{Code: ImageDecodeFailed}
	ErrTranscriptionFailed = &Error{Code: TranscriptionFailed}
	ErrEmptyResult         = &Error{Code: EmptyResult}
	ErrBusy                = &Error{Code: Busy}
	ErrSelectionCancelled  = &Error{Code: SelectionCancelled}
)

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries code anywhere in its chain.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// StatusCode returns the HTTP status attached to err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// Informational reports whether err describes an outcome the user should
// see as a notice rather than a failure.
func Informational(err error) bool {
	switch CodeOf(err) {
	case EmptyResult, SelectionCancelled:
		return true
	default:
		return false
	}
}
