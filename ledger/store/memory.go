// Package store provides in-memory implementations of the ledger's
// persistence interfaces, for tests and development.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/dispatch-ledger/ledger"
)

// =============================================================================
// MEMORY EVENT STORE
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	billings   map[ledger.EventID]ledger.BillingEvent
	unloadings map[ledger.EventID]ledger.UnloadingEvent
	nextID     int
}

func NewMemory() *Memory {
	return &Memory{
		billings:   make(map[ledger.EventID]ledger.BillingEvent),
		unloadings: make(map[ledger.EventID]ledger.UnloadingEvent),
	}
}

func (m *Memory) RecordBilling(_ context.Context, ev ledger.BillingEvent) (ledger.EventID, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = m.newIDLocked("b")
	m.billings[ev.ID] = ev
	return ev.ID, nil
}

func (m *Memory) RecordUnloading(_ context.Context, ev ledger.UnloadingEvent) (ledger.EventID, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = m.newIDLocked("u")
	m.unloadings[ev.ID] = ev
	return ev.ID, nil
}

func (m *Memory) LookupEvent(_ context.Context, id ledger.EventID) (ledger.Mutation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if ev, ok := m.billings[id]; ok {
		return ledger.Mutation{Vehicle: ev.Vehicle, Grade: ev.Grade, Date: ev.Date}, nil
	}
	if ev, ok := m.unloadings[id]; ok {
		return ledger.Mutation{Vehicle: ev.Vehicle, Grade: ev.Grade, Date: ev.Date}, nil
	}
	return ledger.Mutation{}, ledger.ErrEventNotFound
}

func (m *Memory) DeleteEvent(_ context.Context, id ledger.EventID) (ledger.Mutation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev, ok := m.billings[id]; ok {
		delete(m.billings, id)
		return ledger.Mutation{Vehicle: ev.Vehicle, Grade: ev.Grade, Date: ev.Date}, nil
	}
	if ev, ok := m.unloadings[id]; ok {
		delete(m.unloadings, id)
		return ledger.Mutation{Vehicle: ev.Vehicle, Grade: ev.Grade, Date: ev.Date}, nil
	}
	return ledger.Mutation{}, ledger.ErrEventNotFound
}

func (m *Memory) BillingsInRange(_ context.Context, vehicle ledger.Vehicle, from, to ledger.Day) ([]ledger.BillingEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.BillingEvent
	for _, ev := range m.billings {
		if ev.Vehicle == vehicle && from.BeforeOrEqual(ev.Date) && ev.Date.BeforeOrEqual(to) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UnloadingsInRange(_ context.Context, vehicle ledger.Vehicle, from, to ledger.Day) ([]ledger.UnloadingEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.UnloadingEvent
	for _, ev := range m.unloadings {
		if ev.Vehicle == vehicle && from.BeforeOrEqual(ev.Date) && ev.Date.BeforeOrEqual(to) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) VehiclesInRange(_ context.Context, from, to ledger.Day) ([]ledger.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[ledger.Vehicle]bool)
	var out []ledger.Vehicle
	for _, ev := range m.billings {
		if from.BeforeOrEqual(ev.Date) && ev.Date.BeforeOrEqual(to) && !seen[ev.Vehicle] {
			seen[ev.Vehicle] = true
			out = append(out, ev.Vehicle)
		}
	}
	for _, ev := range m.unloadings {
		if from.BeforeOrEqual(ev.Date) && ev.Date.BeforeOrEqual(to) && !seen[ev.Vehicle] {
			seen[ev.Vehicle] = true
			out = append(out, ev.Vehicle)
		}
	}
	return out, nil
}

// newIDLocked issues sequential IDs so same-day events replay in insertion
// order.
func (m *Memory) newIDLocked(prefix string) ledger.EventID {
	m.nextID++
	return ledger.EventID(fmt.Sprintf("%s-%08d", prefix, m.nextID))
}

// =============================================================================
// MEMORY SNAPSHOT STORE
// =============================================================================

type MemorySnapshots struct {
	mu    sync.RWMutex
	snaps map[snapKey]ledger.MonthSnapshot
}

type snapKey struct {
	Month   ledger.Month
	Vehicle ledger.Vehicle
	Grade   ledger.Grade
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{snaps: make(map[snapKey]ledger.MonthSnapshot)}
}

func (m *MemorySnapshots) Save(_ context.Context, snap ledger.MonthSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := snapKey{Month: snap.Month, Vehicle: snap.Vehicle, Grade: snap.Grade}
	if _, exists := m.snaps[k]; exists {
		return ledger.ErrSnapshotExists
	}
	m.snaps[k] = snap
	return nil
}

func (m *MemorySnapshots) Get(_ context.Context, vehicle ledger.Vehicle, grade ledger.Grade, month ledger.Month) (*ledger.MonthSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if snap, ok := m.snaps[snapKey{Month: month, Vehicle: vehicle, Grade: grade}]; ok {
		return &snap, nil
	}
	return nil, nil
}

func (m *MemorySnapshots) List(_ context.Context, month ledger.Month) ([]ledger.MonthSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.MonthSnapshot
	for k, snap := range m.snaps {
		if k.Month == month {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Vehicle != out[j].Vehicle {
			return out[i].Vehicle < out[j].Vehicle
		}
		return out[i].Grade < out[j].Grade
	})
	return out, nil
}

func (m *MemorySnapshots) EpochMonth(_ context.Context) (*ledger.Month, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var earliest *ledger.Month
	for k := range m.snaps {
		if earliest == nil || k.Month.Before(*earliest) {
			month := k.Month
			earliest = &month
		}
	}
	return earliest, nil
}

func (m *MemorySnapshots) DeleteFrom(_ context.Context, vehicle ledger.Vehicle, grade ledger.Grade, from ledger.Month) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.snaps {
		if k.Vehicle == vehicle && k.Grade == grade && !k.Month.Before(from) {
			delete(m.snaps, k)
		}
	}
	return nil
}
