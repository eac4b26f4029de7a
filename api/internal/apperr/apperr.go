package apperr

import (
	"errors"
	"net/http"
)

// Error is a failure that can be shown to the user as is. The debug error is
// logged but never sent to clients.
type Error struct {
	code       string
	msgToUser  string
	debug      error
	httpStatus int
}

func (e *Error) Error() string { return e.msgToUser }

func (e *Error) Code() string { return e.code }

func (e *Error) Debug() error { return e.debug }

func (e *Error) Unwrap() error { return e.debug }

func (e *Error) WithDebug(err error) *Error {
	e.debug = err
	return e
}

func (e *Error) HTTPStatus() int {
	if e.httpStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.httpStatus
}

func (e *Error) WithHTTPStatus(code int) *Error {
	e.httpStatus = code
	return e
}

func New(code, msgToUser string) *Error {
	return &Error{code: code, msgToUser: msgToUser}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

const (
	CodeBadRequest          = "bad_request"
	CodeEmptySubmission     = "empty_submission"
	CodeUnsupportedFileType = "unsupported_file_type"
	CodeFileTooLarge        = "file_too_large"
	CodeUnknownEngine       = "unknown_engine"
	CodeEngineFailure       = "engine_failure"
	CodeInternal            = "internal_server_error"
)

func EmptySubmission() *Error {
	return New(CodeEmptySubmission, "Please provide either text or a file with readable content").
		WithHTTPStatus(http.StatusBadRequest)
}

func UnsupportedFileType() *Error {
	return New(CodeUnsupportedFileType, "Unsupported file type. Please upload a PNG, JPEG, PDF or TXT file.").
		WithHTTPStatus(http.StatusBadRequest)
}

func FileTooLarge() *Error {
	return New(CodeFileTooLarge, "File is too large.").
		WithHTTPStatus(http.StatusRequestEntityTooLarge)
}

func UnknownEngine(name string) *Error {
	return New(CodeUnknownEngine, "Unknown engine: "+name).
		WithHTTPStatus(http.StatusBadRequest)
}

// EngineFailure wraps an LLM failure the way clients expect it:
// "Error processing request: <cause>".
func EngineFailure(err error) *Error {
	return New(CodeEngineFailure, "Error processing request: "+err.Error()).
		WithHTTPStatus(http.StatusInternalServerError).
		WithDebug(err)
}

func Internal() *Error {
	return New(CodeInternal, http.StatusText(http.StatusInternalServerError)).
		WithHTTPStatus(http.StatusInternalServerError)
}
