/*
accumulator.go - Day-by-day running balance fold

PURPOSE:
  Computes the per-vehicle-per-grade pending balance for every day in a
  range, from a known opening balance. This is the central calculation the
  month chainer and the allocation engine both build on.

THE FOLD:
  balance[d] = max(0, balance[d-1] + billed[d] - unloaded[d])

  billed[d] sums billing events from both direct and other-dealer sources;
  unloaded[d] sums unloading events for the same grade. Clamping at zero is
  business policy, not an error.

ZERO-ACTIVITY DAYS:
  The series includes every calendar day in range, including days with no
  events. A vehicle that legitimately reaches zero pending mid-period must
  register as zero on that day - a "most recent balance" lookup that skips
  zero days would incorrectly re-derive a non-zero value from an older date.

REPLAYABILITY:
  The fold is deterministic and replayable from any known opening balance.
  It is not an incremental diff on a mutable counter: deleting or editing a
  historical event re-derives all downstream days correctly by re-running
  the fold.
*/
package ledger

import "context"

// =============================================================================
// BALANCE ACCUMULATOR
// =============================================================================

// BalanceAccumulator folds the transaction log into daily pending balances.
type BalanceAccumulator struct {
	Log TransactionLog
}

// Series computes the balance for every day in [from, to] given the pending
// balance as of the start of 'from'. The result has exactly
// DaysBetween(from, to)+1 entries, one per calendar day, no gaps.
func (a *BalanceAccumulator) Series(ctx context.Context, vehicle Vehicle, grade Grade, opening Quantity, from, to Day) ([]DailyBalance, error) {
	if to.Before(from) {
		return nil, nil
	}

	billed, unloaded, err := a.dayTotals(ctx, vehicle, grade, from, to)
	if err != nil {
		return nil, err
	}

	series := make([]DailyBalance, 0, DaysBetween(from, to)+1)
	balance := opening.ClampZero()
	for d := from; d.BeforeOrEqual(to); d = d.Next() {
		balance = balance.Add(billed[d]).Sub(unloaded[d]).ClampZero()
		series = append(series, DailyBalance{
			Date:    d,
			Vehicle: vehicle,
			Grade:   grade,
			Pending: balance,
		})
	}
	return series, nil
}

// Closing computes the balance at the end of [from, to]. Equivalent to the
// last entry of Series.
func (a *BalanceAccumulator) Closing(ctx context.Context, vehicle Vehicle, grade Grade, opening Quantity, from, to Day) (Quantity, error) {
	series, err := a.Series(ctx, vehicle, grade, opening, from, to)
	if err != nil {
		return Quantity{}, err
	}
	if len(series) == 0 {
		return opening.ClampZero(), nil
	}
	return series[len(series)-1].Pending, nil
}

// BilledOn sums billing recorded for (vehicle, grade) on a single day.
// Used by the allocation engine's ceiling rule.
func (a *BalanceAccumulator) BilledOn(ctx context.Context, vehicle Vehicle, grade Grade, day Day) (Quantity, error) {
	billed, _, err := a.dayTotals(ctx, vehicle, grade, day, day)
	if err != nil {
		return Quantity{}, err
	}
	return billed[day], nil
}

// dayTotals aggregates the log into per-day billed and unloaded maps.
// Missing keys read as zero via the map zero value's ClampZero-safe use.
func (a *BalanceAccumulator) dayTotals(ctx context.Context, vehicle Vehicle, grade Grade, from, to Day) (map[Day]Quantity, map[Day]Quantity, error) {
	billings, err := a.Log.BillingsInRange(ctx, vehicle, from, to)
	if err != nil {
		return nil, nil, err
	}
	unloadings, err := a.Log.UnloadingsInRange(ctx, vehicle, from, to)
	if err != nil {
		return nil, nil, err
	}

	billed := make(map[Day]Quantity)
	unloaded := make(map[Day]Quantity)
	for _, ev := range billings {
		if ev.Grade != grade {
			continue
		}
		billed[ev.Date] = billed[ev.Date].Add(ev.Quantity)
	}
	for _, ev := range unloadings {
		if ev.Grade != grade {
			continue
		}
		unloaded[ev.Date] = unloaded[ev.Date].Add(ev.Quantity)
	}
	return billed, unloaded, nil
}
