// Package breaker implements the per-service circuit breaker that guards
// the payment core's outbound calls to custody/transport services. The
// state-machine mechanics (failure counting, half-open single-probe
// admission, recovery timing) come from sony/gobreaker's
// TwoStepCircuitBreaker, whose Allow/Done split matches this package's own
// Allow/Success/Failure call shape. Because gobreaker's counters are
// in-process only, every transition is mirrored into the storage
// abstraction so a trip seen by one process is visible, and honored, by
// every other process sharing the same store.
package breaker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/agentpay/corepay/pkg/log"
	"github.com/agentpay/corepay/pkg/storage"
)

// State mirrors the three states spec'd for the breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned by Allow when the circuit is open, locally or as last
// reported by another process.
var ErrOpen = fmt.Errorf("breaker: circuit open")

// Config parameterizes a single named breaker.
type Config struct {
	// FailureThreshold is F: the leaky failure count (a failure adds one, a
	// success subtracts one, floor zero) at which the breaker trips.
	FailureThreshold int
	// RecoveryTimeout is R: how long the breaker stays open before probing.
	RecoveryTimeout time.Duration
	// RollingWindow is W, passed to gobreaker as its Interval, which clears
	// gobreaker's own Counts while closed. The leaky failure count that
	// decides the trip is not reset by it: that count falls only through
	// successes or a return to closed.
	RollingWindow time.Duration
}

// DefaultConfig matches spec.md §4.6's defaults (F=5, R=30s, W=60s).
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		RollingWindow:    60 * time.Second,
	}
}

// persistedState is the cross-process-visible snapshot stored under each
// service's storage key, written after every local transition.
type persistedState struct {
	State      State     `json:"state"`
	RecoveryAt time.Time `json:"recovery_at"`
}

// Breaker guards one named downstream service (e.g. an adapter's service
// name, "transfer", "http402", "crosschain"). done is the callback handed
// back by the last Allow call; Success/Failure invoke it to report the
// outcome to the local gobreaker state machine.
//
// gobreaker's own Counts.ConsecutiveFailures resets to 0 on any single
// success, which doesn't match spec.md §4.6's leaky-counter model (a
// success only decrements the failure count by one, floor zero, so
// failures separated by occasional successes still accumulate toward the
// trip threshold). failures tracks that leaky count directly; ReadyToTrip
// reads it instead of gobreaker's own Counts.
type Breaker struct {
	service string
	cfg     Config
	store   storage.Store
	local   *gobreaker.TwoStepCircuitBreaker
	log     log.Logger

	mu       sync.Mutex
	failures int
}

// New creates a Breaker for service, backed by store for cross-process
// visibility and logging through lg.
func New(service string, cfg Config, store storage.Store, lg log.Logger) *Breaker {
	b := &Breaker{
		service: service,
		cfg:     cfg,
		store:   store,
		log:     lg.NewSystem("breaker").With("service", service),
	}
	b.local = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Interval:    cfg.RollingWindow,
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return b.currentFailures() >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateClosed {
				b.resetFailures()
			}
			b.log.Info("breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	return b
}

// recordOutcome folds success into the leaky failure counter: a success
// decrements by one, floor zero; a failure increments by one.
func (b *Breaker) recordOutcome(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		if b.failures > 0 {
			b.failures--
		}
		return
	}
	b.failures++
}

func (b *Breaker) currentFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) resetFailures() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

func (b *Breaker) key() string {
	return "circuit:" + b.service
}

// Allow checks the local gobreaker state machine and, only once it has
// already decided to admit the call, cross-checks the storage-persisted
// state so a trip recorded by another process is still honored. It returns
// a done func to report the outcome, matching TwoStepCircuitBreaker's own
// shape.
func (b *Breaker) Allow(ctx context.Context) (done func(success bool), err error) {
	localDone, localErr := b.local.Allow()
	if localErr != nil {
		return nil, ErrOpen
	}

	remote, err := b.Current(ctx)
	if err != nil {
		return nil, err
	}
	if remote == StateOpen {
		localDone(false)
		return nil, ErrOpen
	}

	return func(success bool) {
		b.recordOutcome(success)
		localDone(success)
		b.sync(ctx)
	}, nil
}

// Success is a convenience for Allow's done(true).
func (b *Breaker) Success(ctx context.Context, done func(success bool)) {
	done(true)
}

// Failure is a convenience for Allow's done(false).
func (b *Breaker) Failure(ctx context.Context, done func(success bool)) {
	done(false)
}

// Current returns the breaker's last-synced persisted state. A missing key
// means no trip has ever been recorded, i.e. closed.
func (b *Breaker) Current(ctx context.Context) (State, error) {
	raw, err := b.store.Get(ctx, b.key())
	if err == storage.ErrNotFound {
		return StateClosed, nil
	}
	if err != nil {
		return "", err
	}
	var st persistedState
	if err := json.Unmarshal(raw, &st); err != nil {
		return "", err
	}
	if st.State == StateOpen && time.Now().After(st.RecoveryAt) {
		return StateHalfOpen, nil
	}
	return st.State, nil
}

// sync mirrors the local gobreaker state into storage so other processes
// observing this service's key see the same verdict.
func (b *Breaker) sync(ctx context.Context) {
	state := mapState(b.local.State())
	st := persistedState{State: state}
	if state == StateOpen {
		st.RecoveryAt = time.Now().Add(b.cfg.RecoveryTimeout)
	}
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := b.store.Put(ctx, b.key(), data); err != nil {
		b.log.Warn("failed to sync breaker state to storage", "error", err)
	}
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
