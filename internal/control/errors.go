package control

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeTransport indicates a network-level error (connection refused,
	// unreachable host, etc.)
	ErrTypeTransport ErrorType = iota
	// ErrTypeTimeout indicates the request timed out
	ErrTypeTimeout
	// ErrTypeHTTP indicates an HTTP-level error (non-2xx status code)
	ErrTypeHTTP
	// ErrTypeParse indicates a parsing error (malformed JSON response)
	ErrTypeParse
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeTransport:
		return "Transport Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// DeviceError represents an error that occurred while talking to a light
// over the IP control channel.
type DeviceError struct {
	Type       ErrorType // Category of error
	Message    string    // Human-readable error message
	StatusCode int       // HTTP status code (if applicable)
	Err        error     // Underlying error (if any)
	DeviceIP   string    // Device IP address (for context)
	Retryable  bool      // Whether the error is retryable
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// classifyTransportError analyzes an error and returns a DeviceError with a
// more specific type.
func classifyTransportError(message string, err error, deviceIP string) *DeviceError {
	if os.IsTimeout(err) {
		return &DeviceError{
			Type:      ErrTypeTimeout,
			Message:   message,
			Err:       err,
			DeviceIP:  deviceIP,
			Retryable: true,
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &DeviceError{
			Type:      ErrTypeTimeout,
			Message:   message,
			Err:       err,
			DeviceIP:  deviceIP,
			Retryable: true,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return &DeviceError{
				Type:      ErrTypeTransport,
				Message:   "device refused connection",
				Err:       err,
				DeviceIP:  deviceIP,
				Retryable: true,
			}
		}
		if errors.Is(opErr.Err, syscall.EHOSTUNREACH) || errors.Is(opErr.Err, syscall.ENETUNREACH) {
			return &DeviceError{
				Type:      ErrTypeTransport,
				Message:   "device unreachable",
				Err:       err,
				DeviceIP:  deviceIP,
				Retryable: true,
			}
		}
	}

	return &DeviceError{
		Type:      ErrTypeTransport,
		Message:   message,
		Err:       err,
		DeviceIP:  deviceIP,
		Retryable: true,
	}
}

// newHTTPError creates an HTTP-level error. Every non-2xx status from a
// light is treated as "device offline" by callers, so they are all
// retryable on the next poll tick.
func newHTTPError(statusCode int, message string, deviceIP string) *DeviceError {
	return &DeviceError{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		DeviceIP:   deviceIP,
		Retryable:  true,
	}
}

// newParseError creates a parsing error.
func newParseError(message string, err error, deviceIP string) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeParse,
		Message:   message,
		Err:       err,
		DeviceIP:  deviceIP,
		Retryable: false,
	}
}

// IsOffline reports whether err means the device should be treated as
// offline: a transport failure, a timeout, or any non-2xx HTTP response.
func IsOffline(err error) bool {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Type == ErrTypeTransport ||
			devErr.Type == ErrTypeTimeout ||
			devErr.Type == ErrTypeHTTP
	}
	return false
}

// IsTimeout reports whether err is a request timeout.
func IsTimeout(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Type == ErrTypeTimeout
}

// IsParseError reports whether err is a malformed-response error.
func IsParseError(err error) bool {
	var devErr *DeviceError
	return errors.As(err, &devErr) && devErr.Type == ErrTypeParse
}

// IsRetryable reports whether the operation may be retried on the next tick.
func IsRetryable(err error) bool {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Retryable
	}
	return false
}
