package services

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *ValidationError through errors.Is
var ErrValidation = errors.New("validation failed")

// ValidationError reports malformed caller input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// UpstreamError wraps a failure of the AI responder or the outbound messenger.
// It is logged and absorbed, never returned to the webhook caller.
type UpstreamError struct {
	Collaborator string
	Err          error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
