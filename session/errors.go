package session

import (
	"context"
	"errors"

	"github.com/martinemde/oxbot/llm"
)

var (
	// ErrSessionBusy is returned when a turn is already in flight.
	ErrSessionBusy = errors.New("session: a turn is already in progress")
	// ErrSessionClosed is returned after Close.
	ErrSessionClosed = errors.New("session: closed")
	// ErrNoPendingApproval is returned by ResolveApproval when nothing waits for a decision.
	ErrNoPendingApproval = errors.New("session: no pending approval")
	// ErrContractViolation reports misuse of the approval gate.
	ErrContractViolation = errors.New("session: contract violation")
	// ErrConfigurationLocked is returned when configuration changes while a turn is in flight.
	ErrConfigurationLocked = errors.New("session: configuration cannot change during a turn")
	// ErrEmptyInput is returned by Submit for blank input.
	ErrEmptyInput = errors.New("session: empty input")
	// ErrApprovalCancelled is returned by Gate.Wait when the pending approval was cancelled.
	ErrApprovalCancelled = errors.New("session: approval cancelled")
)

// ErrorKind classifies errors surfaced to the user as Error events.
type ErrorKind string

const (
	ErrorConnection            ErrorKind = "connection"
	ErrorAuth                  ErrorKind = "auth"
	ErrorCapabilityUnsupported ErrorKind = "capability_unsupported"
	ErrorMalformedFragment     ErrorKind = "malformed_fragment"
	ErrorContractViolation     ErrorKind = "contract_violation"
)

// Classify maps an error from the engine or provider onto an ErrorKind.
func Classify(err error) ErrorKind {
	var (
		authErr   *llm.AuthenticationError
		deniedErr *llm.AccessDeniedError
		capErr    *llm.CapabilityError
		streamErr *llm.StreamErrorType
	)
	switch {
	case errors.As(err, &authErr), errors.As(err, &deniedErr):
		return ErrorAuth
	case errors.As(err, &capErr):
		return ErrorCapabilityUnsupported
	case errors.As(err, &streamErr):
		return ErrorMalformedFragment
	case errors.Is(err, ErrContractViolation), errors.Is(err, ErrNoPendingApproval):
		return ErrorContractViolation
	default:
		// Network, timeout, server, rate limit, configuration and generic
		// provider errors all mean the endpoint could not serve the turn.
		return ErrorConnection
	}
}

// isCancellation reports whether err only reflects a cancelled turn.
func isCancellation(err error) bool {
	var abortErr *llm.AbortError
	return errors.Is(err, context.Canceled) || errors.As(err, &abortErr)
}
