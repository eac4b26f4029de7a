package submission

import (
	"errors"
	"strings"
)

// Failure kinds. Every error returned by Submit or by a Solver matches
// exactly one of them with errors.Is.
var (
	ErrValidationSkip    = errors.New("validation skip")
	ErrTransport         = errors.New("transport failure")
	ErrService           = errors.New("service failure")
	ErrMalformedResponse = errors.New("malformed response")
)

// Reasons a request is refused locally. They never change state.
var (
	ErrEmptyInput      = errors.New("nothing to submit")
	ErrInProgress      = errors.New("submission already in progress")
	ErrUnsupportedType = errors.New("unsupported file type")
)

// ErrEmptySolution is wrapped in the ErrMalformedResponse failure returned
// when the service answered 2xx without a solution.
var ErrEmptySolution = errors.New("response has no solution")

// SubmitError carries a failure kind plus, when the service supplied one, a
// message meant for the user.
type SubmitError struct {
	Kind    error
	Message string
	Status  int // HTTP status, 0 when no response was received
	Err     error
}

func (e *SubmitError) Error() string {
	var b strings.Builder
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("submission failed")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Message != "" {
		b.WriteString(" (")
		b.WriteString(e.Message)
		b.WriteString(")")
	}
	return b.String()
}

func (e *SubmitError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func skip(reason error) error {
	return &SubmitError{Kind: ErrValidationSkip, Err: reason}
}

// asSubmitError classifies err, treating anything unknown as a transport
// failure.
func asSubmitError(err error) *SubmitError {
	var se *SubmitError
	if errors.As(err, &se) {
		if se.Kind != nil {
			return se
		}
		cp := *se
		cp.Kind = ErrTransport
		return &cp
	}
	return &SubmitError{Kind: ErrTransport, Err: err}
}
