// Package retry implements the capped exponential backoff retry policy and
// the transient/non-retryable error classification it depends on. The
// backoff schedule itself is delegated to cenkalti/backoff/v4, already a
// transitive dependency of the teacher's go.mod, promoted here to a direct,
// exercised one.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Classification describes whether an error is worth retrying.
type Classification int

const (
	// NonRetryable errors must never be retried: insufficient balance,
	// invalid address, guard blocks, validation errors, circuit-open.
	NonRetryable Classification = iota
	// Transient errors may be retried: upstream timeouts, connection
	// refused, 5xx responses, explicit rate-limit signals.
	Transient
)

// Classifier decides whether an error returned by the operation under retry
// is transient. Components wire in their own classifier (e.g. the
// orchestrator's adapterErrorClassifier classifies adapter errors by kind).
type Classifier func(err error) Classification

// transientError, when wrapped around an error via MarkTransient, lets a
// caller flag an error as retryable without needing a full Classifier.
type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// MarkTransient wraps err so DefaultClassifier (or any classifier calling
// IsMarkedTransient) treats it as retryable.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsMarkedTransient reports whether err (or anything it wraps) was flagged
// via MarkTransient.
func IsMarkedTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// DefaultClassifier treats anything wrapped with MarkTransient as
// transient and everything else as non-retryable. Components with richer
// error taxonomies (HTTP status codes, RPC error kinds) should supply their
// own Classifier instead.
func DefaultClassifier(err error) Classification {
	if IsMarkedTransient(err) {
		return Transient
	}
	return NonRetryable
}

// Policy is a capped exponential backoff retry policy: base 1s, multiplier
// 2, cap 5 attempts (waits 1, 2, 4, 8s between them; total wait 15s), per
// spec.md §4.7.
type Policy struct {
	classifier  Classifier
	maxAttempts int
	newBackoff  func() backoff.BackOff
}

// New builds a Policy with the spec defaults. classifier may be nil, in
// which case DefaultClassifier is used.
func New(classifier Classifier) *Policy {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	return &Policy{
		classifier:  classifier,
		maxAttempts: 5,
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.Multiplier = 2
			b.RandomizationFactor = 0
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Do runs op, retrying while the classifier calls the returned error
// transient, up to the configured attempt cap. It stops immediately, and
// returns without retrying, on the first non-retryable error, and it
// respects ctx cancellation between attempts.
func (p *Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempt := 0
	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackoff(), uint64(p.maxAttempts-1)), ctx)

	return backoff.Retry(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.classifier(err) != Transient {
			return backoff.Permanent(err)
		}
		if attempt >= p.maxAttempts {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
