package collector

import (
	"errors"
	"fmt"
)

// Kind classifies a collection failure for the retry machinery.
type Kind int

const (
	// KindTransient failures may succeed on a subsequent attempt:
	// 5xx, timeouts, connection resets, unclassified I/O errors.
	KindTransient Kind = iota
	// KindPermanent failures will never succeed: 4xx in the permanent set,
	// DNS for non-existent domains, TLS verification, redirect loops.
	KindPermanent
)

// Error is a classified collection failure. The fetcher is the only place
// classification happens; both the synchronous create path and the worker
// act on the same Kind.
type Error struct {
	URL    string
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to collect metadata for '%s': %s", e.URL, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a classified permanent failure.
func IsPermanent(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == KindPermanent
}

// IsTransient reports whether err is a classified transient failure.
// Unclassified errors are not transient in this sense; callers treat
// anything non-permanent as retryable.
func IsTransient(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == KindTransient
}
