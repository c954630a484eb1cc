package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the booking lifecycle taxonomy. Callers classify with
// errors.Is: ErrInvalidTransition and ErrDuplicateEvent are expected control
// flow, ErrGatewayFailure and ErrLockTimeout are retriable with backoff,
// ErrPolicyMisconfigured aborts the operation for that tenant rather than
// guessing a default fee.
var (
	ErrInvalidTransition   = errors.New("invalid booking transition")
	ErrGatewayFailure      = errors.New("payment gateway failure")
	ErrLockTimeout         = errors.New("booking row lock timeout")
	ErrDuplicateEvent      = errors.New("duplicate gateway event")
	ErrPolicyMisconfigured = errors.New("hotel policy misconfigured")
	ErrBookingNotFound     = errors.New("booking not found")
)

// TransitionError carries the rejected transition details for user-facing
// messages ("booking is no longer awaiting approval").
type TransitionError struct {
	BookingRef string
	From       string
	Operation  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("booking %s: cannot %s while %s", e.BookingRef, e.Operation, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// GatewayError wraps a failed or timed-out gateway call. The surrounding
// transaction is always rolled back, so retrying is safe.
type GatewayError struct {
	Op  string
	Ref string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s for intent %s: %v", e.Op, e.Ref, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return ErrGatewayFailure
}
