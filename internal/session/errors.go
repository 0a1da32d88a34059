package session

import (
	"errors"
	"fmt"
)

var ErrSessionNotFound = errors.New("session not found")

// TransformFailedError wraps whatever made the completion call fail.
type TransformFailedError struct {
	Err error
}

func (e *TransformFailedError) Error() string {
	return fmt.Sprintf("transform failed: %v", e.Err)
}

func (e *TransformFailedError) Unwrap() error {
	return e.Err
}
