package bridge

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes bridge errors.
type ErrorCode string

const (
	// ErrCodeTransportFailed indicates the transport refused an envelope.
	ErrCodeTransportFailed ErrorCode = "TRANSPORT_FAILED"

	// ErrCodeSerializeFailed indicates a payload could not be serialized.
	ErrCodeSerializeFailed ErrorCode = "SERIALIZE_FAILED"

	// ErrCodeStoreCreateFailed indicates the wrapped store creator failed.
	ErrCodeStoreCreateFailed ErrorCode = "STORE_CREATE_FAILED"
)

var (
	// ErrUnknownInstance is returned for commands addressed to an id the
	// registry does not hold.
	ErrUnknownInstance = errors.New("unknown instance")

	// ErrNoTransport is returned by New when ModeRelay has no transport.
	ErrNoTransport = errors.New("relay mode requires a transport")
)

// Error is a failure of a collaborator the bridge talks to on behalf of
// one instance.
type Error struct {
	Code       ErrorCode
	Message    string
	InstanceID int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.InstanceID > 0 {
		msg = fmt.Sprintf("%s (instance=%d)", msg, e.InstanceID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, id int, err error, format string, args ...any) *Error {
	return &Error{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		InstanceID: id,
		Err:        err,
	}
}

func hasCode(err error, code ErrorCode) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsTransportFailed reports whether err is a transport failure.
func IsTransportFailed(err error) bool {
	return hasCode(err, ErrCodeTransportFailed)
}

// IsSerializeFailed reports whether err is a serialization failure.
func IsSerializeFailed(err error) bool {
	return hasCode(err, ErrCodeSerializeFailed)
}

// IsStoreCreateFailed reports whether err came from the wrapped creator.
func IsStoreCreateFailed(err error) bool {
	return hasCode(err, ErrCodeStoreCreateFailed)
}
