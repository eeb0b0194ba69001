/*
log.go - Transaction log and snapshot store interfaces

PURPOSE:
  The transaction log is the source of truth for all balances. Billing and
  unloading events are recorded once and read back in date order; every
  balance is a replayable fold over this log. The ledger components only
  read; the surrounding application owns how events enter the log.

MUTATION CONTRACT:
  Insert and delete are the only mutations, and both report the affected
  (vehicle, grade, date) so the caller can eagerly invalidate every month
  snapshot at or after that date. Deletion is NOT a subtraction: because
  daily balances clamp at zero, removing a historical event requires
  re-deriving all downstream days from the log.

VALIDATION:
  Implementations must call the events' Validate() before persisting, so a
  negative quantity never reaches the accumulator.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory, for tests and development
  - store/sqlite/sqlite.go: Production SQLite
*/
package ledger

import "context"

// =============================================================================
// TRANSACTION LOG - Read side
// =============================================================================

// TransactionLog is the read-only view the ledger components consume.
// Events are returned in ascending date order.
type TransactionLog interface {
	// BillingsInRange returns billing events for a vehicle in [from, to],
	// from both direct and other-dealer sources.
	BillingsInRange(ctx context.Context, vehicle Vehicle, from, to Day) ([]BillingEvent, error)

	// UnloadingsInRange returns unloading events for a vehicle in [from, to].
	UnloadingsInRange(ctx context.Context, vehicle Vehicle, from, to Day) ([]UnloadingEvent, error)

	// VehiclesInRange returns every vehicle with at least one event in
	// [from, to]. Order is unspecified.
	VehiclesInRange(ctx context.Context, from, to Day) ([]Vehicle, error)
}

// =============================================================================
// EVENT STORE - Mutation side
// =============================================================================

// Mutation identifies the ledger key a write touched. Every snapshot for
// months at or after Date.MonthOf() must be invalidated.
type Mutation struct {
	Vehicle Vehicle
	Grade   Grade
	Date    Day
}

// EventStore extends the log with its two mutations.
type EventStore interface {
	TransactionLog

	// RecordBilling validates and appends a billing event, assigning its ID.
	RecordBilling(ctx context.Context, ev BillingEvent) (EventID, error)

	// RecordUnloading validates and appends an unloading event, assigning its ID.
	RecordUnloading(ctx context.Context, ev UnloadingEvent) (EventID, error)

	// LookupEvent reports the key an event would affect, without mutating.
	// Callers that need to serialize a deletion against readers of the same
	// key look the key up first and delete under its lock.
	// Returns ErrEventNotFound for unknown IDs.
	LookupEvent(ctx context.Context, id EventID) (Mutation, error)

	// DeleteEvent removes a billing or unloading event by ID and reports the
	// key it affected. Returns ErrEventNotFound for unknown IDs.
	DeleteEvent(ctx context.Context, id EventID) (Mutation, error)
}

// =============================================================================
// SNAPSHOT STORE - Month-end closing balances
// =============================================================================

// SnapshotStore persists month-end closing balances. Write-once per
// (month, vehicle, grade): Save fails with ErrSnapshotExists rather than
// silently recomputing a persisted value.
type SnapshotStore interface {
	// Save persists a snapshot. Returns ErrSnapshotExists if one is already
	// stored for the same (month, vehicle, grade).
	Save(ctx context.Context, snap MonthSnapshot) error

	// Get returns the snapshot for (month, vehicle, grade), or nil if absent.
	Get(ctx context.Context, vehicle Vehicle, grade Grade, month Month) (*MonthSnapshot, error)

	// List returns all snapshots for a month across vehicles and grades.
	List(ctx context.Context, month Month) ([]MonthSnapshot, error)

	// EpochMonth returns the earliest month with any snapshot (the seeded
	// epoch), or nil if nothing has been seeded. A vehicle with no snapshot
	// at the epoch had nothing pending there; a query before the epoch has
	// no known opening at all.
	EpochMonth(ctx context.Context) (*Month, error)

	// DeleteFrom removes every snapshot for (vehicle, grade) at or after the
	// given month. This is the invalidation path for log mutations.
	DeleteFrom(ctx context.Context, vehicle Vehicle, grade Grade, from Month) error
}
