package repositories

import "fmt"

// CounterErrorCode classifies counter failures.
type CounterErrorCode string

// CounterErrorInvalidInput is returned for an empty counter id or a non-positive step.
const CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"

// CounterError reports a failed counter increment.
type CounterError struct {
	Op      string
	Code    CounterErrorCode
	Message string
	Err     error
}

func (e *CounterError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op == "":
		return e.Message
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound is always false; counters are created on first use.
func (e *CounterError) IsNotFound() bool { return false }

// IsConflict is always false.
func (e *CounterError) IsConflict() bool { return false }

// IsUnavailable is always false; transport failures surface through Err.
func (e *CounterError) IsUnavailable() bool { return false }

// NewCounterError builds a CounterError, defaulting the message to the code.
func NewCounterError(op string, code CounterErrorCode, message string, err error) *CounterError {
	if message == "" {
		message = string(code)
	}
	return &CounterError{Op: op, Code: code, Message: message, Err: err}
}
