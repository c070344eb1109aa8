// Package engineerr defines the error taxonomy shared across the engine:
// sentinel classes wrapped with context via fmt.Errorf("%w", ...), checked
// with errors.Is/errors.As at the call sites that need to branch on class.
package engineerr

import (
	"errors"
	"fmt"
)

// Sentinel classes. Every error raised by the engine wraps exactly one of
// these so callers can branch on class with errors.Is without parsing
// strings.
var (
	// ErrConfig is malformed or missing required configuration. Fatal at
	// startup (exit code 2).
	ErrConfig = errors.New("config error")

	// ErrState is persistence corruption or an atomic-write failure. Fatal
	// mid-run (exit code 3).
	ErrState = errors.New("state store error")

	// ErrVenueTransient is a timeout, 5xx, or rate-limit from the venue or
	// a price-feed exchange. Retried with backoff; circuit-broken after
	// repeated failures.
	ErrVenueTransient = errors.New("venue transient error")

	// ErrVenueReject is an order rejected for business reasons. Not
	// retried; the snapshot is abandoned.
	ErrVenueReject = errors.New("venue rejected order")

	// ErrAgent is a single agent's Analyze call failing. The vote is
	// dropped and treated as Skip; the cycle continues.
	ErrAgent = errors.New("agent error")

	// ErrLedgerWrite is an outcome or decision insertion failing. The write
	// is not retried in place: it escalates to CRITICAL and is queued to the
	// replay spool.
	ErrLedgerWrite = errors.New("ledger write error")

	// ErrReconciliationMismatch marks a state-vs-venue balance disagreement.
	ErrReconciliationMismatch = errors.New("reconciliation mismatch")

	// ErrDependencyUnavailable is a fatal startup failure to reach a
	// required dependency (exit code 4).
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// Config returns an ErrConfig carrying the formatted description.
func Config(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConfig)
}

// State wraps err as an ErrState with a description.
func State(err error, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %w", fmt.Sprintf(format, args...), ErrState, err)
}

// VenueTransient wraps err as an ErrVenueTransient.
func VenueTransient(endpoint string, err error) error {
	return fmt.Errorf("%s: %w: %w", endpoint, ErrVenueTransient, err)
}

// VenueReject returns an ErrVenueReject carrying the rejection reason.
func VenueReject(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrVenueReject)
}

// Agent wraps err as an ErrAgent for the named agent.
func Agent(agentName string, err error) error {
	return fmt.Errorf("agent %q: %w: %w", agentName, ErrAgent, err)
}

// LedgerWrite wraps err as an ErrLedgerWrite.
func LedgerWrite(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrLedgerWrite, err)
}

// Reconciliation wraps a mismatch description as an ErrReconciliationMismatch.
func Reconciliation(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrReconciliationMismatch)
}

// DependencyUnavailable wraps err as an ErrDependencyUnavailable.
func DependencyUnavailable(dep string, err error) error {
	return fmt.Errorf("%s: %w: %w", dep, ErrDependencyUnavailable, err)
}

// ExitCode maps a top-level startup/runtime error to the process exit code
// defined in the external-interfaces contract. Returns 1 for anything
// unclassified.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrConfig):
		return 2
	case errors.Is(err, ErrState):
		return 3
	case errors.Is(err, ErrDependencyUnavailable):
		return 4
	default:
		return 1
	}
}
