/*
cards.go - Card materialization (the engine's external result shape)

PURPOSE:
  Groups a vehicle's allocated buckets into display units ("cards"), each
  carrying billed/unloaded/remaining quantities. Cards are owned by the
  caller for the duration of a single report request and never persisted.

SHAPE GUARANTEES:
  - At most one card per bucket. A vehicle with prior pending that is also
    rebilled today legitimately yields TWO cards (PreviousDay + Today);
    emitting the same bucket twice would be a defect.
  - Cards with zero billed and zero unloaded are suppressed.
  - Ordering is deterministic: pending cards before fully-unloaded ones,
    previous-day before today, then by vehicle.
*/
package ledger

import "sort"

// =============================================================================
// CARD
// =============================================================================

type CardKind string

const (
	CardPreviousDay CardKind = "previous_day"
	CardToday       CardKind = "today"
)

// Card is one allocation bucket's figures for a date, display-only.
type Card struct {
	Vehicle   Vehicle
	Date      Day
	Kind      CardKind
	Partition Partition // set for today cards when billing is partitioned
	Billed    GradeTotals
	Unloaded  GradeTotals
	Remaining GradeTotals
}

// Complete reports whether nothing is left pending on the card.
func (c Card) Complete() bool { return c.Remaining.AllZero() }

// =============================================================================
// MATERIALIZER
// =============================================================================

// MaterializeCards converts an allocation into cards, suppressing buckets
// with nothing to show.
func MaterializeCards(a Allocation) []Card {
	var cards []Card
	for _, b := range a.Buckets {
		if b.Billed.AllZero() && b.Unloaded.AllZero() {
			continue
		}
		kind := CardToday
		if b.Target == TargetCarriedOver {
			kind = CardPreviousDay
		}
		cards = append(cards, Card{
			Vehicle:   a.Vehicle,
			Date:      a.Date,
			Kind:      kind,
			Partition: b.Partition,
			Billed:    b.Billed,
			Unloaded:  b.Unloaded,
			Remaining: b.Remaining,
		})
	}
	return cards
}

// SortCards orders a report: pending first, previous-day before today,
// then vehicle registration.
func SortCards(cards []Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		if a.Complete() != b.Complete() {
			return !a.Complete()
		}
		if a.Kind != b.Kind {
			return a.Kind == CardPreviousDay
		}
		return a.Vehicle < b.Vehicle
	})
}
