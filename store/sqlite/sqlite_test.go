package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/dispatch-ledger/ledger"
	"github.com/warp/dispatch-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func day(y int, m time.Month, d int) ledger.Day {
	return ledger.NewDay(y, m, d)
}

func billingEvent(vehicle string, d ledger.Day, grade ledger.Grade, amount string) ledger.BillingEvent {
	return ledger.BillingEvent{
		Vehicle:    ledger.Vehicle(vehicle),
		Date:       d,
		Grade:      grade,
		Quantity:   ledger.MustParseQty(amount),
		DealerCode: "DLR-1",
		Partition:  ledger.PartitionDepot,
		Source:     ledger.SourceDirect,
		Invoice:    "INV-100",
	}
}

// =============================================================================
// EVENT STORE TESTS
// =============================================================================

func TestStore_BillingRoundTrip(t *testing.T) {
	// GIVEN: A billing event with all fields set
	// WHEN: Recording and reading it back by range
	// THEN: Every field survives, including the exact decimal quantity

	store := newTestStore(t)
	ctx := context.Background()

	ev := billingEvent("RJ14GB1234", day(2026, time.January, 10), ledger.GradePPC, "12.5")
	id, err := store.RecordBilling(ctx, ev)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.BillingsInRange(ctx, "RJ14GB1234", day(2026, time.January, 1), day(2026, time.January, 31))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, id, got[0].ID)
	assert.True(t, got[0].Quantity.Equal(ledger.MustParseQty("12.5")))
	assert.Equal(t, ledger.DealerCode("DLR-1"), got[0].DealerCode)
	assert.Equal(t, ledger.PartitionDepot, got[0].Partition)
	assert.Equal(t, ledger.SourceDirect, got[0].Source)
	assert.Equal(t, "INV-100", got[0].Invoice)
	assert.True(t, got[0].Date.Equal(ev.Date))
}

func TestStore_RangeQueries_OrderedAndBounded(t *testing.T) {
	// GIVEN: Events on Jan 5, 10, 15 plus one for a different vehicle
	// WHEN: Querying Jan 5 - Jan 10
	// THEN: Only the in-range events for the vehicle, date ascending

	store := newTestStore(t)
	ctx := context.Background()

	for _, d := range []int{15, 5, 10} {
		_, err := store.RecordBilling(ctx, billingEvent("RJ14GB1234", day(2026, time.January, d), ledger.GradePPC, "1"))
		require.NoError(t, err)
	}
	_, err := store.RecordBilling(ctx, billingEvent("MH12AB0001", day(2026, time.January, 7), ledger.GradePPC, "1"))
	require.NoError(t, err)

	got, err := store.BillingsInRange(ctx, "RJ14GB1234", day(2026, time.January, 5), day(2026, time.January, 10))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2026-01-05", got[0].Date.String())
	assert.Equal(t, "2026-01-10", got[1].Date.String())
}

func TestStore_ValidatesBeforeInsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bad := billingEvent("RJ14GB1234", day(2026, time.January, 5), "PSC", "1")
	_, err := store.RecordBilling(ctx, bad)
	assert.ErrorIs(t, err, ledger.ErrUnknownGrade)

	neg := ledger.UnloadingEvent{
		Vehicle:  "RJ14GB1234",
		Date:     day(2026, time.January, 5),
		Grade:    ledger.GradePPC,
		Quantity: ledger.MustParseQty("-3"),
	}
	_, err = store.RecordUnloading(ctx, neg)
	assert.ErrorIs(t, err, ledger.ErrNegativeQuantity)
}

func TestStore_LookupEvent_ReadOnly(t *testing.T) {
	// GIVEN: A recorded billing event
	// WHEN: Looking up its key without deleting
	// THEN: The mutation names the (vehicle, grade, date) and the event is
	//       still in the log afterwards

	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.RecordBilling(ctx, billingEvent("RJ14GB1234", day(2026, time.January, 10), ledger.GradePPC, "12.5"))
	require.NoError(t, err)

	m, err := store.LookupEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.Vehicle("RJ14GB1234"), m.Vehicle)
	assert.Equal(t, ledger.GradePPC, m.Grade)
	assert.True(t, m.Date.Equal(day(2026, time.January, 10)))

	got, err := store.BillingsInRange(ctx, "RJ14GB1234", day(2026, time.January, 1), day(2026, time.January, 31))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = store.LookupEvent(ctx, "billing-424242")
	assert.ErrorIs(t, err, ledger.ErrEventNotFound)
}

func TestStore_DeleteEvent_ReturnsMutation(t *testing.T) {
	// GIVEN: A recorded unloading event
	// WHEN: Deleting it by ID
	// THEN: The mutation names the (vehicle, grade, date) needing invalidation,
	//       and the event is gone from range reads

	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.RecordUnloading(ctx, ledger.UnloadingEvent{
		Vehicle:    "RJ14GB1234",
		Date:       day(2026, time.January, 10),
		Grade:      ledger.GradeOPC,
		Quantity:   ledger.MustParseQty("4"),
		DealerCode: "DLR-1",
	})
	require.NoError(t, err)

	m, err := store.DeleteEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, ledger.Vehicle("RJ14GB1234"), m.Vehicle)
	assert.Equal(t, ledger.GradeOPC, m.Grade)
	assert.True(t, m.Date.Equal(day(2026, time.January, 10)))

	got, err := store.UnloadingsInRange(ctx, "RJ14GB1234", day(2026, time.January, 1), day(2026, time.January, 31))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_DeleteEvent_UnknownID(t *testing.T) {
	store := newTestStore(t)

	_, err := store.DeleteEvent(context.Background(), "billing-424242")
	assert.ErrorIs(t, err, ledger.ErrEventNotFound)

	_, err = store.DeleteEvent(context.Background(), "garbage")
	assert.ErrorIs(t, err, ledger.ErrEventNotFound)
}

func TestStore_VehiclesInRange_UnionOfBothTables(t *testing.T) {
	// GIVEN: One vehicle that only billed, one that only unloaded
	// WHEN: Listing vehicles for the range
	// THEN: Both appear, deduplicated and sorted

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.RecordBilling(ctx, billingEvent("RJ14GB1234", day(2026, time.January, 5), ledger.GradePPC, "1"))
	require.NoError(t, err)
	_, err = store.RecordUnloading(ctx, ledger.UnloadingEvent{
		Vehicle:  "MH12AB0001",
		Date:     day(2026, time.January, 6),
		Grade:    ledger.GradePPC,
		Quantity: ledger.MustParseQty("1"),
	})
	require.NoError(t, err)

	vehicles, err := store.VehiclesInRange(ctx, day(2026, time.January, 1), day(2026, time.January, 31))
	require.NoError(t, err)
	assert.Equal(t, []ledger.Vehicle{"MH12AB0001", "RJ14GB1234"}, vehicles)
}

// =============================================================================
// SNAPSHOT STORE TESTS
// =============================================================================

func TestStore_Snapshots_WriteOnce(t *testing.T) {
	// GIVEN: A persisted snapshot for (month, vehicle, grade)
	// WHEN: Saving a second snapshot under the same key
	// THEN: ErrSnapshotExists - the UNIQUE constraint is the chain's guarantee

	store := newTestStore(t)
	ctx := context.Background()

	snap := ledger.MonthSnapshot{
		Month:      ledger.NewMonth(2026, time.January),
		Vehicle:    "RJ14GB1234",
		Grade:      ledger.GradePPC,
		Closing:    ledger.MustParseQty("7.25"),
		DealerCode: "DLR-1",
	}
	require.NoError(t, store.Save(ctx, snap))

	snap.Closing = ledger.MustParseQty("99")
	err := store.Save(ctx, snap)
	assert.ErrorIs(t, err, ledger.ErrSnapshotExists)

	got, err := store.Get(ctx, "RJ14GB1234", ledger.GradePPC, snap.Month)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Closing.Equal(ledger.MustParseQty("7.25")), "first write must win")
	assert.Equal(t, ledger.DealerCode("DLR-1"), got.DealerCode)
}

func TestStore_Snapshots_GetMissing_ReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Get(context.Background(), "RJ14GB1234", ledger.GradePPC, ledger.NewMonth(2026, time.January))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_Snapshots_EpochMonth(t *testing.T) {
	// GIVEN: Snapshots for November 2025 and January 2026
	// WHEN: Asking for the epoch
	// THEN: The earliest month; nil when the table is empty

	store := newTestStore(t)
	ctx := context.Background()

	epoch, err := store.EpochMonth(ctx)
	require.NoError(t, err)
	assert.Nil(t, epoch, "empty store has no epoch")

	for _, m := range []ledger.Month{
		ledger.NewMonth(2026, time.January),
		ledger.NewMonth(2025, time.November),
	} {
		require.NoError(t, store.Save(ctx, ledger.MonthSnapshot{
			Month:   m,
			Vehicle: "RJ14GB1234",
			Grade:   ledger.GradePPC,
			Closing: ledger.MustParseQty("1"),
		}))
	}

	epoch, err = store.EpochMonth(ctx)
	require.NoError(t, err)
	require.NotNil(t, epoch)
	assert.Equal(t, ledger.NewMonth(2025, time.November), *epoch)
}

func TestStore_Snapshots_DeleteFrom(t *testing.T) {
	// GIVEN: Snapshots for Nov, Dec, Jan for one key plus one other key
	// WHEN: Deleting from December onward
	// THEN: Nov survives, Dec and Jan are gone, the other key is untouched

	store := newTestStore(t)
	ctx := context.Background()

	months := []ledger.Month{
		ledger.NewMonth(2025, time.November),
		ledger.NewMonth(2025, time.December),
		ledger.NewMonth(2026, time.January),
	}
	for _, m := range months {
		require.NoError(t, store.Save(ctx, ledger.MonthSnapshot{
			Month: m, Vehicle: "RJ14GB1234", Grade: ledger.GradePPC, Closing: ledger.MustParseQty("1"),
		}))
	}
	require.NoError(t, store.Save(ctx, ledger.MonthSnapshot{
		Month: months[1], Vehicle: "RJ14GB1234", Grade: ledger.GradeOPC, Closing: ledger.MustParseQty("2"),
	}))

	require.NoError(t, store.DeleteFrom(ctx, "RJ14GB1234", ledger.GradePPC, months[1]))

	for i, m := range months {
		got, err := store.Get(ctx, "RJ14GB1234", ledger.GradePPC, m)
		require.NoError(t, err)
		if i == 0 {
			assert.NotNil(t, got, "epoch month must survive")
		} else {
			assert.Nil(t, got, "month %s should be deleted", m)
		}
	}

	other, err := store.Get(ctx, "RJ14GB1234", ledger.GradeOPC, months[1])
	require.NoError(t, err)
	assert.NotNil(t, other, "other grade's snapshot must be untouched")
}

func TestStore_Snapshots_ListByMonth(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jan := ledger.NewMonth(2026, time.January)
	require.NoError(t, store.Save(ctx, ledger.MonthSnapshot{
		Month: jan, Vehicle: "RJ14GB1234", Grade: ledger.GradePPC, Closing: ledger.MustParseQty("5"),
	}))
	require.NoError(t, store.Save(ctx, ledger.MonthSnapshot{
		Month: jan, Vehicle: "MH12AB0001", Grade: ledger.GradeOPC, Closing: ledger.MustParseQty("3"),
	}))
	require.NoError(t, store.Save(ctx, ledger.MonthSnapshot{
		Month: jan.Next(), Vehicle: "RJ14GB1234", Grade: ledger.GradePPC, Closing: ledger.MustParseQty("9"),
	}))

	got, err := store.List(ctx, jan)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ledger.Vehicle("MH12AB0001"), got[0].Vehicle)
	assert.Equal(t, ledger.Vehicle("RJ14GB1234"), got[1].Vehicle)
}

// =============================================================================
// INTEGRATION: SERVICE ON SQLITE
// =============================================================================

func TestStore_ServiceIntegration(t *testing.T) {
	// GIVEN: The full service running on the SQLite store
	// WHEN: Seeding, billing, unloading and reading across a month boundary
	// THEN: The same semantics as the in-memory store

	store := newTestStore(t)
	svc := ledger.NewService(store, store)
	ctx := context.Background()

	require.NoError(t, svc.SeedOpening(ctx, ledger.MonthSnapshot{
		Month:   ledger.NewMonth(2025, time.November),
		Vehicle: "RJ14GB1234",
		Grade:   ledger.GradePPC,
		Closing: ledger.MustParseQty("12"),
	}))

	_, err := svc.RecordBilling(ctx, billingEvent("RJ14GB1234", day(2025, time.November, 10), ledger.GradePPC, "8"))
	require.NoError(t, err)
	_, err = svc.RecordUnloading(ctx, ledger.UnloadingEvent{
		Vehicle:    "RJ14GB1234",
		Date:       day(2025, time.December, 2),
		Grade:      ledger.GradePPC,
		Quantity:   ledger.MustParseQty("15"),
		DealerCode: "DLR-1",
	})
	require.NoError(t, err)

	pending, err := svc.BalanceOn(ctx, "RJ14GB1234", ledger.GradePPC, day(2025, time.December, 5))
	require.NoError(t, err)
	assert.True(t, pending.Equal(ledger.MustParseQty("5")), "12 + 8 - 15 = 5, got %s", pending)
}
