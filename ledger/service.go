/*
service.go - Facade wiring the ledger components behind the external API

PURPOSE:
  Wires the transaction log, month chainer, balance accumulator, allocation
  engine and card materializer into the operations the surrounding
  application consumes: record/delete events, opening balances, daily
  balances, and cards.

INVALIDATION:
  Every mutating operation eagerly invalidates month snapshots at or after
  the affected date before returning. A stale snapshot must never be served
  after an insert or delete of a historical event.

CONCURRENCY:
  A keyed mutex guarantees at most one in-flight recomputation per
  (vehicle, grade). Vehicles are independent; the bulk card listing fans
  out one goroutine per vehicle.
*/
package ledger

import (
	"context"
	"sync"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service exposes the ledger engine's external operations.
type Service struct {
	Events    EventStore
	Snapshots SnapshotStore

	chainer     *MonthChainer
	accumulator *BalanceAccumulator
	locks       *keyMutex
}

func NewService(events EventStore, snapshots SnapshotStore) *Service {
	return &Service{
		Events:      events,
		Snapshots:   snapshots,
		chainer:     NewMonthChainer(events, snapshots),
		accumulator: &BalanceAccumulator{Log: events},
		locks:       newKeyMutex(),
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// RecordBilling appends a billing event and invalidates dependent snapshots.
func (s *Service) RecordBilling(ctx context.Context, ev BillingEvent) (EventID, error) {
	ev.Vehicle = NormalizeVehicle(string(ev.Vehicle))
	if err := ev.Validate(); err != nil {
		return "", err
	}

	unlock := s.locks.Lock(ev.Vehicle, ev.Grade)
	defer unlock()

	id, err := s.Events.RecordBilling(ctx, ev)
	if err != nil {
		return "", err
	}
	return id, s.chainer.Invalidate(ctx, Mutation{Vehicle: ev.Vehicle, Grade: ev.Grade, Date: ev.Date})
}

// RecordUnloading appends an unloading event and invalidates dependent snapshots.
func (s *Service) RecordUnloading(ctx context.Context, ev UnloadingEvent) (EventID, error) {
	ev.Vehicle = NormalizeVehicle(string(ev.Vehicle))
	if err := ev.Validate(); err != nil {
		return "", err
	}

	unlock := s.locks.Lock(ev.Vehicle, ev.Grade)
	defer unlock()

	id, err := s.Events.RecordUnloading(ctx, ev)
	if err != nil {
		return "", err
	}
	return id, s.chainer.Invalidate(ctx, Mutation{Vehicle: ev.Vehicle, Grade: ev.Grade, Date: ev.Date})
}

// DeleteEvent removes an event by ID. Deletion is not a subtraction: all
// balances and snapshots at or after the event's date are re-derived on
// the next read because of non-negativity clamping.
func (s *Service) DeleteEvent(ctx context.Context, id EventID) error {
	// Resolve the key first so the delete and the invalidation happen under
	// the same lock a concurrent reader of this key would contend on.
	key, err := s.Events.LookupEvent(ctx, id)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(key.Vehicle, key.Grade)
	defer unlock()

	m, err := s.Events.DeleteEvent(ctx, id)
	if err != nil {
		return err
	}
	return s.chainer.Invalidate(ctx, m)
}

// SeedOpening records a manually entered epoch opening balance, the ground
// truth the snapshot chain terminates at.
func (s *Service) SeedOpening(ctx context.Context, snap MonthSnapshot) error {
	snap.Vehicle = NormalizeVehicle(string(snap.Vehicle))

	unlock := s.locks.Lock(snap.Vehicle, snap.Grade)
	defer unlock()
	return s.chainer.SeedEpoch(ctx, snap)
}

// =============================================================================
// READS
// =============================================================================

// OpeningBalance resolves a month's opening balance for a vehicle/grade.
func (s *Service) OpeningBalance(ctx context.Context, vehicle Vehicle, grade Grade, month Month) (Quantity, error) {
	vehicle = NormalizeVehicle(string(vehicle))

	unlock := s.locks.Lock(vehicle, grade)
	defer unlock()
	return s.chainer.OpeningBalance(ctx, vehicle, grade, month)
}

// BalanceOn returns the pending balance for a vehicle/grade on a date.
func (s *Service) BalanceOn(ctx context.Context, vehicle Vehicle, grade Grade, date Day) (Quantity, error) {
	vehicle = NormalizeVehicle(string(vehicle))

	unlock := s.locks.Lock(vehicle, grade)
	defer unlock()
	return s.pendingAt(ctx, vehicle, grade, date)
}

// DailyBalances returns the gapless day-by-day series for [from, to].
func (s *Service) DailyBalances(ctx context.Context, vehicle Vehicle, grade Grade, from, to Day) ([]DailyBalance, error) {
	vehicle = NormalizeVehicle(string(vehicle))

	unlock := s.locks.Lock(vehicle, grade)
	defer unlock()

	opening, err := s.openingFor(ctx, vehicle, grade, from)
	if err != nil {
		return nil, err
	}
	series, err := s.accumulator.Series(ctx, vehicle, grade, opening, from.MonthOf().Start(), to)
	if err != nil {
		return nil, err
	}
	// Trim the warm-up days between the month start and 'from'.
	var out []DailyBalance
	for _, b := range series {
		if b.Date.AfterOrEqual(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

// VerifyChain checks a month's persisted snapshot against a recomputation.
func (s *Service) VerifyChain(ctx context.Context, vehicle Vehicle, grade Grade, month Month) error {
	vehicle = NormalizeVehicle(string(vehicle))

	unlock := s.locks.Lock(vehicle, grade)
	defer unlock()
	return s.chainer.VerifyChain(ctx, vehicle, grade, month)
}

// =============================================================================
// CARDS - the primary read API consumed by reporting
// =============================================================================

// Cards allocates a vehicle's pending for a date and materializes cards.
func (s *Service) Cards(ctx context.Context, vehicle Vehicle, date Day) ([]Card, error) {
	vehicle = NormalizeVehicle(string(vehicle))

	carried := NewGradeTotals()
	for _, g := range Grades {
		unlock := s.locks.Lock(vehicle, g)
		pending, err := s.pendingAt(ctx, vehicle, g, date.Prev())
		unlock()
		if err != nil {
			return nil, err
		}
		carried.Set(g, pending)
	}

	billings, err := s.Events.BillingsInRange(ctx, vehicle, date, date)
	if err != nil {
		return nil, err
	}
	unloadings, err := s.Events.UnloadingsInRange(ctx, vehicle, date, date)
	if err != nil {
		return nil, err
	}

	alloc := Allocate(AllocationInput{
		Vehicle:     vehicle,
		Date:        date,
		CarriedOver: carried,
		Billings:    billings,
		Unloadings:  unloadings,
	})
	return MaterializeCards(alloc), nil
}

// CardsForDate materializes cards for every vehicle relevant to a date.
// Snapshots materialize lazily, so listing only the current month's would
// miss a vehicle carrying pending across a boundary with no fresh events:
// discovery scans events back to the epoch and unions in the seeded epoch
// snapshots. Vehicles whose pending has clamped to zero produce only
// suppressed cards. Vehicles are computed in parallel; the per-key mutex
// inside Cards keeps each ledger key serialized.
func (s *Service) CardsForDate(ctx context.Context, date Day) ([]Card, error) {
	all, err := s.relevantVehicles(ctx, date)
	if err != nil {
		return nil, err
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		cards    []Card
		firstErr error
	)
	for _, v := range all {
		wg.Add(1)
		go func(v Vehicle) {
			defer wg.Done()
			vc, err := s.Cards(ctx, v, date)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			cards = append(cards, vc...)
		}(v)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	SortCards(cards)
	return cards, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// relevantVehicles discovers every vehicle that may hold pending on 'date':
// any vehicle with an event since the epoch, any vehicle seeded at the
// epoch, and any vehicle with a snapshot already persisted for the month.
// Pending originates either from an event or from an epoch seed, so the
// union is complete regardless of which intermediate snapshots exist.
func (s *Service) relevantVehicles(ctx context.Context, date Day) ([]Vehicle, error) {
	month := date.MonthOf()

	epoch, err := s.Snapshots.EpochMonth(ctx)
	if err != nil {
		return nil, err
	}
	scanFrom := month.Start()
	if epoch != nil && epoch.Start().Before(scanFrom) {
		scanFrom = epoch.Start()
	}

	vehicles, err := s.Events.VehiclesInRange(ctx, scanFrom, date)
	if err != nil {
		return nil, err
	}

	seen := make(map[Vehicle]bool)
	var all []Vehicle
	for _, v := range vehicles {
		if !seen[v] {
			seen[v] = true
			all = append(all, v)
		}
	}

	months := []Month{month}
	if epoch != nil && *epoch != month {
		months = append(months, *epoch)
	}
	for _, m := range months {
		snaps, err := s.Snapshots.List(ctx, m)
		if err != nil {
			return nil, err
		}
		for _, snap := range snaps {
			if !seen[snap.Vehicle] {
				seen[snap.Vehicle] = true
				all = append(all, snap.Vehicle)
			}
		}
	}
	return all, nil
}

// pendingAt folds from the month's resolved opening through the date.
// Must be called with the (vehicle, grade) key held.
func (s *Service) pendingAt(ctx context.Context, vehicle Vehicle, grade Grade, date Day) (Quantity, error) {
	opening, err := s.openingFor(ctx, vehicle, grade, date)
	if err != nil {
		return Quantity{}, err
	}
	month := date.MonthOf()
	return s.accumulator.Closing(ctx, vehicle, grade, opening, month.Start(), date)
}

// openingFor resolves the opening balance of the month containing 'date'.
// ErrNoOpeningBalance propagates: defaulting to zero here would corrupt
// every downstream balance.
func (s *Service) openingFor(ctx context.Context, vehicle Vehicle, grade Grade, date Day) (Quantity, error) {
	return s.chainer.OpeningBalance(ctx, vehicle, grade, date.MonthOf())
}
