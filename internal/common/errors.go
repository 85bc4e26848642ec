package common

import (
	"errors"
	"fmt"

	"github.com/freightflow/extractd/constants"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Orchestration-level errors. Provider-level failures never surface here;
// they are absorbed as ProviderResults and scored.
var (
	ErrUnreadableDocument   = errors.New("document unreadable by all extraction methods")
	ErrNoProvidersAvailable = errors.New("no extraction providers available")
	ErrCancelled            = errors.New("job cancelled")
	ErrNotFound             = errors.New("resource not found")
	ErrNotReady             = errors.New("result not ready")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInternal             = errors.New("internal error")
)

func NewAppError(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ReasonFor maps an orchestration error to the stable reason code stored
// on failed jobs and returned to callers.
func ReasonFor(err error) constants.FailureReason {
	switch {
	case err == nil:
		return constants.ReasonNone
	case errors.Is(err, ErrUnreadableDocument):
		return constants.ReasonUnreadableDocument
	case errors.Is(err, ErrNoProvidersAvailable):
		return constants.ReasonNoProvidersAvailable
	case errors.Is(err, ErrCancelled):
		return constants.ReasonCancelled
	default:
		return constants.ReasonInternal
	}
}
