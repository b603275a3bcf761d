package voice

import (
	"context"
	"errors"
)

// Error is the normalized failure type for voice operations. The advisory
// flags are derived solely from the code when the error is constructed and
// do not change afterwards.
type Error struct {
	Code    Code
	Message string
	// Cause is the underlying engine or transport error, when one exists.
	Cause error
	// Op names the operation that produced the failure.
	Op string

	// UserAction marks failures caused by a deliberate user action.
	UserAction bool
	// NeedsPermission marks failures a permission grant could resolve.
	NeedsPermission bool
	// Recoverable marks failures worth retrying.
	Recoverable bool
}

type ErrorOption func(*Error)

// WithCause attaches the underlying error.
func WithCause(cause error) ErrorOption {
	return func(e *Error) { e.Cause = cause }
}

// WithOp names the operation that failed.
func WithOp(op string) ErrorOption {
	return func(e *Error) { e.Op = op }
}

// New constructs an Error and derives its advisory flags from code.
func New(code Code, message string, opts ...ErrorOption) *Error {
	e := &Error{Code: code, Message: message}
	for _, opt := range opts {
		opt(e)
	}

	switch code {
	case CodeAborted:
		e.UserAction = true
		e.Recoverable = false
	case CodeNoSpeech:
		e.UserAction = false
		e.Recoverable = true
	case CodePermissionDenied, CodeNotSupported, CodeTTSNotAvailable, CodeSTTNotAvailable:
		e.Recoverable = true
		e.NeedsPermission = true
	case CodeTTSFailed, CodeSTTFailed, CodeAudioCaptureFailed, CodeConversationError, CodeNetworkError:
		e.Recoverable = true
	case CodeInvalidState:
		e.Recoverable = false
	}

	return e
}

// Wrap constructs an Error with cause as the underlying error.
func Wrap(code Code, message string, cause error, opts ...ErrorOption) *Error {
	return New(code, message, append([]ErrorOption{WithCause(cause)}, opts...)...)
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches voice errors by code, so errors.Is can test for a code without
// caring about the rest of the error.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// AsError extracts a voice error from err's chain.
func AsError(err error) (*Error, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// Convert normalizes err: voice errors pass through unchanged, context
// cancellation becomes ABORTED, anything else is wrapped with the fallback
// code.
func Convert(err error, fallback Code, opts ...ErrorOption) *Error {
	if err == nil {
		return nil
	}
	if verr, ok := AsError(err); ok {
		return verr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeAborted, "", err, opts...)
	}
	return Wrap(fallback, "", err, opts...)
}
