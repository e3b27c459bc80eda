// Package apperr defines the stable error kinds surfaced to callers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned for environment or setup problems.
	ErrConfig = errors.New("config error")
	// ErrPersistence is returned when an index store is corrupt or unwritable.
	ErrPersistence = errors.New("persistence error")
	// ErrModelLoad is returned when a provider or model is unavailable.
	ErrModelLoad = errors.New("model load error")
	// ErrNotFound is returned for a missing source, task or message.
	ErrNotFound = errors.New("not found")
	// ErrConcurrencyExhausted is returned when optimistic retries run out.
	ErrConcurrencyExhausted = errors.New("concurrency retries exhausted")
	// ErrGeneration is returned for a mid-stream provider failure.
	ErrGeneration = errors.New("generation error")
)

var kinds = []error{
	ErrConfig,
	ErrPersistence,
	ErrModelLoad,
	ErrNotFound,
	ErrConcurrencyExhausted,
	ErrGeneration,
}

// Error attaches a kind and the failing operation to an underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap tags err with kind. It returns nil when err is nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// New returns a kind-tagged error without an underlying cause.
func New(kind error, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// KindOf returns the taxonomy kind carried by err, or nil if it has none.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Code returns a short machine-readable name for the kind of err.
func Code(err error) string {
	switch KindOf(err) {
	case ErrConfig:
		return "config_error"
	case ErrPersistence:
		return "persistence_error"
	case ErrModelLoad:
		return "model_load_error"
	case ErrNotFound:
		return "not_found"
	case ErrConcurrencyExhausted:
		return "concurrency_exhausted"
	case ErrGeneration:
		return "generation_error"
	default:
		return "internal_error"
	}
}
