package service

import (
	"errors"
	"fmt"

	"klee-ai/internal/llm"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	// Every ValidationError matches it under errors.Is.
	ErrInvalidInput = errors.New("invalid input")

	// errClientGone marks a sink write failure; the session treats it as a disconnect.
	errClientGone = errors.New("client gone")
)

// Error codes stored on failed assistant messages.
const (
	CodeChatError          = "chat_error"
	CodeClientDisconnected = "client_disconnected"
)

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrInvalidInput) match any validation error.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// errorCode returns the code to store for a generation failure: the remote
// body's code when the backend sent one, chat_error otherwise.
func errorCode(err error) string {
	var se *llm.StatusError
	if errors.As(err, &se) && se.Code != "" {
		return se.Code
	}
	return CodeChatError
}
