package panel

import (
	"errors"
	"fmt"
)

// TransportError reports a failed exchange with the panel. Code is the HTTP
// status for error responses and zero when no response was received.
type TransportError struct {
	Code    int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("panel request failed: %s", e.Message)
	}
	return fmt.Sprintf("panel request failed (HTTP %d): %s", e.Code, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError reports an argument rejected before any request was made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PanelError reports an error banner found in an otherwise successful panel
// response. Only produced when response verification is enabled.
type PanelError struct {
	Action  Action
	Domain  string
	Message string
}

func (e *PanelError) Error() string {
	return fmt.Sprintf("panel rejected %s of %s: %s", e.Action, e.Domain, e.Message)
}

// ErrorCode returns the transport code carried by err, or zero if err is not
// a transport failure.
func ErrorCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Code
	}
	return 0
}

// Kind names the tier an error belongs to, for structured logging.
func Kind(err error) string {
	var (
		te *TransportError
		ve *ValidationError
		pe *PanelError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &te):
		return "transport"
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &pe):
		return "panel"
	default:
		return "internal"
	}
}
