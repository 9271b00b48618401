package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures for retry and reporting decisions.
type ErrorKind string

const (
	KindTransient        ErrorKind = "transient"
	KindPermanent        ErrorKind = "permanent"
	KindUnknown          ErrorKind = "unknown"
	KindStoreUnavailable ErrorKind = "store_unavailable"
	KindConfiguration    ErrorKind = "configuration"
)

// Retryable reports whether the retry policy may try again.
// Unknown is treated conservatively as transient.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindUnknown
}

var (
	// ErrStoreUnavailable wraps every fetch/write-back infrastructure failure.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConfiguration wraps invalid settings detected at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidConcurrency is returned for a concurrency limit below one.
	ErrInvalidConcurrency = fmt.Errorf("%w: concurrency limit must be >= 1", ErrConfiguration)
)

// ClassifyError is returned by classifier implementations.
type ClassifyError struct {
	Kind ErrorKind
	Err  error
}

// Error implements the error interface
func (e *ClassifyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error
func (e *ClassifyError) Unwrap() error {
	return e.Err
}

// Transient marks err as retryable.
func Transient(err error) error {
	return &ClassifyError{Kind: KindTransient, Err: err}
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	return &ClassifyError{Kind: KindPermanent, Err: err}
}

// Unknown marks err as unclassified.
func Unknown(err error) error {
	return &ClassifyError{Kind: KindUnknown, Err: err}
}

// KindOf extracts the error kind. Deadline errors are transient;
// anything not classified is unknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *ClassifyError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	}
	return KindUnknown
}

// StoreUnavailable wraps err with ErrStoreUnavailable.
func StoreUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
