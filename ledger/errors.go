/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers wrap these errors with additional context where useful.

ERROR CATEGORIES:
  1. Chain errors - Opening balance resolution failures
  2. Validation errors - Malformed events rejected at the log boundary
  3. Store errors - Snapshot and event persistence failures

USAGE:
  if errors.Is(err, ledger.ErrNoOpeningBalance) {
      // the snapshot chain ran out before the seeded epoch
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoOpeningBalance is returned when chain resolution recursed past the
	// seeded epoch without finding a snapshot. Fatal to the caller: defaulting
	// to zero here would corrupt every downstream balance.
	ErrNoOpeningBalance = errors.New("no opening balance")

	// ErrStaleSnapshot is returned when a persisted snapshot disagrees with a
	// recomputation of its month. Mutating operations invalidate eagerly, so
	// seeing this means an invalidation was missed.
	ErrStaleSnapshot = errors.New("stale month snapshot")

	// ErrSnapshotExists is returned by write-once snapshot stores when a
	// snapshot for (month, vehicle, grade) is already persisted.
	ErrSnapshotExists = errors.New("snapshot already exists")

	// ErrNegativeQuantity is returned for events carrying a negative quantity.
	// Rejected at the transaction log boundary; never reaches the accumulator.
	ErrNegativeQuantity = errors.New("negative quantity")

	// ErrEventNotFound is returned when deleting an unknown event ID.
	ErrEventNotFound = errors.New("event not found")

	// ErrUnknownGrade is returned for events naming a grade outside the fixed set.
	ErrUnknownGrade = errors.New("unknown product grade")

	// ErrUnknownPartition is returned for billing outside PLANT/DEPOT.
	ErrUnknownPartition = errors.New("unknown dealer partition")

	// ErrUnknownSource is returned for billing outside direct/other_dealer.
	ErrUnknownSource = errors.New("unknown billing source")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NoOpeningBalanceError reports where chain resolution gave up.
type NoOpeningBalanceError struct {
	Vehicle Vehicle
	Grade   Grade
	Month   Month
}

func (e *NoOpeningBalanceError) Error() string {
	return fmt.Sprintf("no opening balance for %s/%s at %s: chain reached past the seeded epoch",
		e.Vehicle, e.Grade, e.Month)
}

func (e *NoOpeningBalanceError) Unwrap() error { return ErrNoOpeningBalance }

// NegativeQuantityError reports the offending event input.
type NegativeQuantityError struct {
	Vehicle  Vehicle
	Date     Day
	Quantity Quantity
}

func (e *NegativeQuantityError) Error() string {
	return fmt.Sprintf("negative quantity %s for %s on %s", e.Quantity, e.Vehicle, e.Date)
}

func (e *NegativeQuantityError) Unwrap() error { return ErrNegativeQuantity }

// StaleSnapshotError reports the disagreement found by a chain verification.
type StaleSnapshotError struct {
	Snapshot   MonthSnapshot
	Recomputed Quantity
}

func (e *StaleSnapshotError) Error() string {
	return fmt.Sprintf("stale snapshot for %s/%s %s: stored %s, recomputed %s",
		e.Snapshot.Vehicle, e.Snapshot.Grade, e.Snapshot.Month, e.Snapshot.Closing, e.Recomputed)
}

func (e *StaleSnapshotError) Unwrap() error { return ErrStaleSnapshot }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNegativeQuantity) ||
		errors.Is(err, ErrUnknownGrade) ||
		errors.Is(err, ErrUnknownPartition) ||
		errors.Is(err, ErrUnknownSource)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound) || errors.Is(err, ErrNoOpeningBalance)
}
