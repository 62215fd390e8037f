package radio

import (
	"errors"
	"fmt"
)

// ErrNotReady indicates the device-info characteristic still holds its
// empty/sentinel value: the light has not joined WiFi yet. Polling callers
// treat it as "try again".
var ErrNotReady = errors.New("device info not available yet")

// ErrClosed indicates the link was disconnected while an operation was in
// flight.
var ErrClosed = errors.New("radio link closed")

// ProtocolError indicates the device sent a payload we could not use:
// malformed JSON or a device-info payload missing required fields.
type ProtocolError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol violation: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("protocol violation: %s", e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolViolation checks whether err is a malformed-payload error.
func IsProtocolViolation(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
