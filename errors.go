package corepay

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, machine-readable classification every CoreError
// carries, per spec.md §7. Callers should branch on Kind, never on the
// message text.
type ErrorKind string

const (
	ErrConfiguration    ErrorKind = "configuration_error"
	ErrValidation       ErrorKind = "validation_error"
	ErrWalletNotFound   ErrorKind = "wallet_not_found"
	ErrInsufficientFund ErrorKind = "insufficient_balance"
	ErrWalletBusy       ErrorKind = "wallet_busy"
	ErrGuardBlocked     ErrorKind = "guard_blocked"
	ErrRoutingFailed    ErrorKind = "routing_failed"
	ErrProtocol         ErrorKind = "protocol_error"
	ErrNetwork          ErrorKind = "network_error"
	ErrTimeout          ErrorKind = "timeout"
	ErrCircuitOpen      ErrorKind = "circuit_open"
	ErrIntentNotFound   ErrorKind = "intent_not_found"
	ErrIntentTerminal   ErrorKind = "intent_already_terminal"
	ErrIntentExpired    ErrorKind = "intent_expired"
)

// CoreError is the client-facing error type for the payment core, modeled
// on the teacher's RPCError: a stable Kind plus a message that is always
// safe to surface to the caller, since the core never wraps internal
// details (DB DSNs, stack traces) into one of these.
type CoreError struct {
	Kind    ErrorKind
	Guard   string // set only for ErrGuardBlocked
	message string
}

func (e *CoreError) Error() string {
	if e.Guard != "" {
		return fmt.Sprintf("%s: %s (guard=%s)", e.Kind, e.message, e.Guard)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.message)
}

// Errorf builds a CoreError of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *CoreError {
	return &CoreError{Kind: kind, message: fmt.Sprintf(format, args...)}
}

// GuardBlocked builds the one error kind that carries an extra field: which
// guard produced the block and why.
func GuardBlocked(guard, reason string) *CoreError {
	return &CoreError{Kind: ErrGuardBlocked, Guard: guard, message: reason}
}

// KindOf extracts the ErrorKind from err, or empty string if err is not (or
// does not wrap) a *CoreError.
func KindOf(err error) ErrorKind {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
