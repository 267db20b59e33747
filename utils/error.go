package utils

import (
	"errors"
	"fmt"
)

var (
	ErrorRecordNotFound  = errors.New("record not found")
	ErrorSessionNotFound = errors.New("correction session not found")
	ErrorRateNotFound    = errors.New("index rate not found")
)

// ValidationError is returned for caller mistakes (bad ids, status guard
// violations). It never leaves the session mutated.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
