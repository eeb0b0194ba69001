/*
chain.go - Month boundary chaining via write-once snapshots

PURPOSE:
  Resolves a month's opening balance for a vehicle/grade. The opening of a
  month is the closing of the previous month, recursively, terminating at a
  manually seeded epoch snapshot (the earliest known opening, entered once
  as ground truth). Closings are persisted as snapshots so the chain need
  not be recomputed from the epoch on every query.

WRITE-ONCE:
  Snapshot creation is write-once per (month, vehicle, grade). Once
  persisted it is reused, never silently recalculated - otherwise the chain
  would drift if the log changed after the fact. The ONLY way a snapshot
  goes away is an explicit Invalidate, which every log mutation on past
  dates performs eagerly for all months at or after the mutated date.

RECURSION BOUND:
  If the epoch seed is missing the recursion would walk back forever, so
  MaxDepth bounds it; overrunning the bound surfaces ErrNoOpeningBalance
  rather than silently defaulting to zero.
*/
package ledger

import (
	"context"
	"errors"
)

// DefaultMaxChainDepth bounds opening-balance recursion to three years of
// months before concluding the epoch seed is missing.
const DefaultMaxChainDepth = 36

// =============================================================================
// MONTH BOUNDARY CHAINER
// =============================================================================

// MonthChainer resolves opening balances and owns all snapshot writes.
type MonthChainer struct {
	Log         TransactionLog
	Snapshots   SnapshotStore
	Accumulator *BalanceAccumulator

	// MaxDepth bounds recursion; 0 means DefaultMaxChainDepth.
	MaxDepth int
}

func NewMonthChainer(log TransactionLog, snapshots SnapshotStore) *MonthChainer {
	return &MonthChainer{
		Log:         log,
		Snapshots:   snapshots,
		Accumulator: &BalanceAccumulator{Log: log},
	}
}

// OpeningBalance returns the authoritative opening balance of a month.
// Resolution order: stored snapshot, else recurse to the previous month,
// fold that month via the accumulator, persist its closing and return it.
func (c *MonthChainer) OpeningBalance(ctx context.Context, vehicle Vehicle, grade Grade, month Month) (Quantity, error) {
	snap, err := c.resolve(ctx, vehicle, grade, month, c.maxDepth())
	if err != nil {
		return Quantity{}, err
	}
	return snap.Closing, nil
}

// OpeningSnapshot is OpeningBalance plus the dealer code carried by the
// snapshot (the dealer last associated with the vehicle that month).
func (c *MonthChainer) OpeningSnapshot(ctx context.Context, vehicle Vehicle, grade Grade, month Month) (MonthSnapshot, error) {
	snap, err := c.resolve(ctx, vehicle, grade, month, c.maxDepth())
	if err != nil {
		return MonthSnapshot{}, err
	}
	return snap, nil
}

func (c *MonthChainer) resolve(ctx context.Context, vehicle Vehicle, grade Grade, month Month, depth int) (MonthSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return MonthSnapshot{}, err
	}
	if depth <= 0 {
		return MonthSnapshot{}, &NoOpeningBalanceError{Vehicle: vehicle, Grade: grade, Month: month}
	}

	existing, err := c.Snapshots.Get(ctx, vehicle, grade, month)
	if err != nil {
		return MonthSnapshot{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	epoch, err := c.Snapshots.EpochMonth(ctx)
	if err != nil {
		return MonthSnapshot{}, err
	}
	if epoch == nil || month.Before(*epoch) {
		// Nothing seeded, or asking for a month before the seeded epoch.
		return MonthSnapshot{}, &NoOpeningBalanceError{Vehicle: vehicle, Grade: grade, Month: month}
	}
	if month == *epoch {
		// The vehicle has no seed row at the epoch: it carried nothing in.
		return MonthSnapshot{Month: month, Vehicle: vehicle, Grade: grade, Closing: ZeroQty()}, nil
	}

	// No snapshot: derive it from the previous month's opening.
	prev := month.Prev()
	opening, err := c.resolve(ctx, vehicle, grade, prev, depth-1)
	if err != nil {
		return MonthSnapshot{}, err
	}

	closing, err := c.Accumulator.Closing(ctx, vehicle, grade, opening.Closing, prev.Start(), prev.End())
	if err != nil {
		return MonthSnapshot{}, err
	}

	dealer, err := c.lastDealer(ctx, vehicle, grade, prev)
	if err != nil {
		return MonthSnapshot{}, err
	}
	if dealer == "" {
		dealer = opening.DealerCode
	}

	snap := MonthSnapshot{
		Month:      month,
		Vehicle:    vehicle,
		Grade:      grade,
		Closing:    closing,
		DealerCode: dealer,
	}
	if err := c.Snapshots.Save(ctx, snap); err != nil {
		if errors.Is(err, ErrSnapshotExists) {
			// A concurrent resolver won the write; reuse its value.
			stored, getErr := c.Snapshots.Get(ctx, vehicle, grade, month)
			if getErr != nil {
				return MonthSnapshot{}, getErr
			}
			if stored != nil {
				return *stored, nil
			}
		}
		return MonthSnapshot{}, err
	}
	return snap, nil
}

// SeedEpoch records the earliest known opening balance as ground truth.
// The chain's recursion terminates here.
func (c *MonthChainer) SeedEpoch(ctx context.Context, snap MonthSnapshot) error {
	if snap.Closing.IsNegative() {
		return &NegativeQuantityError{Vehicle: snap.Vehicle, Date: snap.Month.Start(), Quantity: snap.Closing}
	}
	if !snap.Grade.Valid() {
		return ErrUnknownGrade
	}
	return c.Snapshots.Save(ctx, snap)
}

// Invalidate removes every snapshot for (vehicle, grade) at or after the
// month containing the mutated date. Called eagerly on every log mutation
// of past dates; relying on "delete and let it regenerate" alone is how
// stale snapshots were historically served.
func (c *MonthChainer) Invalidate(ctx context.Context, m Mutation) error {
	// A mutation inside month M changes M's closing, which is M+1's opening.
	return c.Snapshots.DeleteFrom(ctx, m.Vehicle, m.Grade, m.Date.MonthOf().Next())
}

// VerifyChain recomputes a month's closing from its opening and compares it
// with the persisted snapshot of the following month. A mismatch means an
// invalidation was missed somewhere.
func (c *MonthChainer) VerifyChain(ctx context.Context, vehicle Vehicle, grade Grade, month Month) error {
	next, err := c.Snapshots.Get(ctx, vehicle, grade, month.Next())
	if err != nil {
		return err
	}
	if next == nil {
		return nil // nothing persisted, nothing to be stale
	}

	opening, err := c.OpeningBalance(ctx, vehicle, grade, month)
	if err != nil {
		return err
	}
	closing, err := c.Accumulator.Closing(ctx, vehicle, grade, opening, month.Start(), month.End())
	if err != nil {
		return err
	}
	if !closing.Equal(next.Closing) {
		return &StaleSnapshotError{Snapshot: *next, Recomputed: closing}
	}
	return nil
}

// lastDealer returns the dealer code of the vehicle's last billing in the
// month, preferring direct billing over other-dealer entries.
func (c *MonthChainer) lastDealer(ctx context.Context, vehicle Vehicle, grade Grade, month Month) (DealerCode, error) {
	billings, err := c.Log.BillingsInRange(ctx, vehicle, month.Start(), month.End())
	if err != nil {
		return "", err
	}
	var last DealerCode
	var lastDirect DealerCode
	for _, ev := range billings {
		if ev.Grade != grade {
			continue
		}
		last = ev.DealerCode
		if ev.Source == SourceDirect {
			lastDirect = ev.DealerCode
		}
	}
	if lastDirect != "" {
		return lastDirect, nil
	}
	return last, nil
}

func (c *MonthChainer) maxDepth() int {
	if c.MaxDepth > 0 {
		return c.MaxDepth
	}
	return DefaultMaxChainDepth
}
