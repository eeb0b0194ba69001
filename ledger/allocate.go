/*
allocate.go - FIFO allocation of unloading against outstanding billing

PURPOSE:
  For a single target date, partitions a vehicle's outstanding pending
  quantity into allocation buckets and assigns each unloading event to
  exactly one bucket. This replaces the scattered "does this unloading
  belong to the previous-day card or today's card" conditionals with one
  priority-ordered resolution.

BUCKETS:
  CarriedOver:  pending from before the target date, not yet consumed
  TodayBilled:  billing dated exactly on the target date, sub-divided by
                dealer partition (PLANT / DEPOT) when billing is split

PRIORITY (temporal FIFO - oldest debt first):
  1. Any carried-over pending consumes today's unloading first; surplus
     spills into TodayBilled.
  2. No carry-over but billed today: unloading goes entirely to TodayBilled.
  3. Neither: the assignment is a trivial no-op with zero remaining.

PARTITION MATCHING:
  An unloading event belongs to the partition whose dealer-code set (from
  today's billing) contains its dealer code; unmatched unloading defaults
  to DEPOT. Partition matching is orthogonal to the temporal rule and is
  never gated on whether a carried-over balance exists.

CEILING RULE:
  Supplementary invoices raise a bucket's billed ceiling: the ceiling is
  the greater of the expected pending for the bucket and the sum of billing
  events recorded for it.

ZERO-WINS:
  A bucket whose FIFO-determined pending is exactly zero on all grades
  reports zero remaining, whatever a different quantity basis would show.

The engine is a pure function over its input; all I/O happens in the
service layer that assembles AllocationInput.
*/
package ledger

// =============================================================================
// ALLOCATION TARGETS & BUCKETS
// =============================================================================

// AllocationTarget is the tagged variant deciding which card an unloading
// event lands on.
type AllocationTarget string

const (
	TargetCarriedOver AllocationTarget = "carried_over"
	TargetTodayBilled AllocationTarget = "today_billed"
)

// Bucket is one allocation target's billed/unloaded/remaining figures.
// Partition is set for TodayBilled buckets only.
type Bucket struct {
	Target    AllocationTarget
	Partition Partition
	Billed    GradeTotals
	Unloaded  GradeTotals
	Remaining GradeTotals
}

// Allocation is the engine's result for one vehicle and date. Bucket order
// is stable: CarriedOver first, then TodayBilled PLANT, then DEPOT.
type Allocation struct {
	Vehicle Vehicle
	Date    Day
	Buckets []Bucket
}

// Bucket returns the bucket for a target/partition pair, or nil.
func (a Allocation) Bucket(target AllocationTarget, partition Partition) *Bucket {
	for i := range a.Buckets {
		b := &a.Buckets[i]
		if b.Target == target && (target == TargetCarriedOver || b.Partition == partition) {
			return b
		}
	}
	return nil
}

// =============================================================================
// ALLOCATION INPUT
// =============================================================================

// AllocationInput carries everything the engine needs for one date:
// the resolved carried-over pending (opening of the day) plus the day's
// own billing and unloading events.
type AllocationInput struct {
	Vehicle Vehicle
	Date    Day

	// CarriedOver is the FIFO-resolved pending before Date, per grade.
	CarriedOver GradeTotals

	// ExpectedToday is the expected pending from today's billing per grade,
	// when the caller has a basis independent of the raw events (ceiling
	// rule input (a)). Nil means the event sums alone form the ceiling.
	ExpectedToday GradeTotals

	// Billings and Unloadings are the events dated exactly on Date.
	Billings   []BillingEvent
	Unloadings []UnloadingEvent
}

// =============================================================================
// ALLOCATION ENGINE
// =============================================================================

// Allocate partitions the day's pending and assigns every unloading event
// to exactly one bucket.
func Allocate(in AllocationInput) Allocation {
	carried := in.CarriedOver
	if carried == nil {
		carried = NewGradeTotals()
	}

	carriedBucket := Bucket{
		Target:    TargetCarriedOver,
		Billed:    carried.Clone(),
		Unloaded:  NewGradeTotals(),
		Remaining: NewGradeTotals(),
	}

	today := buildTodayBuckets(in)

	// Running carry-over headroom per grade; consumed strictly before today.
	carriedLeft := carried.Clone()

	for _, ev := range in.Unloadings {
		qty := ev.Quantity

		take := qty.Min(carriedLeft.Get(ev.Grade))
		if take.IsPositive() {
			carriedBucket.Unloaded.Add(ev.Grade, take)
			carriedLeft.Set(ev.Grade, carriedLeft.Get(ev.Grade).Sub(take))
			qty = qty.Sub(take)
		}
		if qty.IsZero() {
			continue
		}

		// Surplus spills into today's billing - or back onto the carried
		// bucket when the vehicle is not billed today (trivial assignment,
		// remaining clamps at zero).
		if b := today.bucketFor(ev.DealerCode); b != nil {
			b.Unloaded.Add(ev.Grade, qty)
		} else {
			carriedBucket.Unloaded.Add(ev.Grade, qty)
		}
	}

	finishBucket(&carriedBucket, carried)
	buckets := []Bucket{carriedBucket}
	for _, b := range today.ordered() {
		finishBucket(b, todayPending(in, today))
		buckets = append(buckets, *b)
	}

	return Allocation{Vehicle: in.Vehicle, Date: in.Date, Buckets: buckets}
}

// finishBucket computes remaining and applies the zero-wins rule: a bucket
// whose FIFO pending is zero on all grades shows zero remaining.
func finishBucket(b *Bucket, fifoPending GradeTotals) {
	if fifoPending.AllZero() {
		for _, g := range Grades {
			b.Remaining.Set(g, ZeroQty())
		}
		return
	}
	for _, g := range Grades {
		b.Remaining.Set(g, b.Billed.Get(g).Sub(b.Unloaded.Get(g)).ClampZero())
	}
}

// todayPending is the zero-wins basis for TodayBilled buckets: the expected
// pending when provided, otherwise the event sums.
func todayPending(in AllocationInput, today *todayBuckets) GradeTotals {
	if in.ExpectedToday != nil {
		// Ceiling rule already applied per bucket; the expected basis only
		// matters for the all-zero check.
		merged := in.ExpectedToday.Clone()
		for _, b := range today.ordered() {
			for _, g := range Grades {
				if b.Billed.Get(g).IsPositive() {
					merged.Set(g, merged.Get(g).Max(b.Billed.Get(g)))
				}
			}
		}
		return merged
	}
	merged := NewGradeTotals()
	for _, b := range today.ordered() {
		for _, g := range Grades {
			merged.Add(g, b.Billed.Get(g))
		}
	}
	return merged
}

// =============================================================================
// TODAY'S BUCKETS - partition grouping and dealer affinity
// =============================================================================

type todayBuckets struct {
	plant        *Bucket
	depot        *Bucket
	plantDealers map[DealerCode]bool
}

// buildTodayBuckets groups today's billing by partition and applies the
// allocation ceiling: per bucket, billed = max(expected pending, event sum).
func buildTodayBuckets(in AllocationInput) *todayBuckets {
	tb := &todayBuckets{plantDealers: make(map[DealerCode]bool)}

	for _, ev := range in.Billings {
		var b *Bucket
		switch ev.Partition {
		case PartitionPlant:
			if tb.plant == nil {
				tb.plant = newTodayBucket(PartitionPlant)
			}
			b = tb.plant
			tb.plantDealers[ev.DealerCode] = true
		default:
			if tb.depot == nil {
				tb.depot = newTodayBucket(PartitionDepot)
			}
			b = tb.depot
		}
		b.Billed.Add(ev.Grade, ev.Quantity)
	}

	// Extra-invoice ceiling: when a single today bucket exists, its billed
	// ceiling is raised to the expected pending if that is greater. With a
	// partition split, the per-partition event sums already are the ceiling.
	if in.ExpectedToday != nil {
		if single := tb.single(); single != nil {
			for _, g := range Grades {
				single.Billed.Set(g, single.Billed.Get(g).Max(in.ExpectedToday.Get(g)))
			}
		}
	}
	return tb
}

func newTodayBucket(p Partition) *Bucket {
	return &Bucket{
		Target:    TargetTodayBilled,
		Partition: p,
		Billed:    NewGradeTotals(),
		Unloaded:  NewGradeTotals(),
		Remaining: NewGradeTotals(),
	}
}

// bucketFor resolves an unloading event's partition affinity: PLANT when the
// dealer code appears in a PLANT billing today, otherwise DEPOT. The match
// is unconditional - it does not depend on carried-over state. The DEPOT
// default presumes a DEPOT bucket exists; with PLANT-only billing today an
// unmatched dealer lands on the sole PLANT bucket rather than minting an
// empty DEPOT one.
func (tb *todayBuckets) bucketFor(dealer DealerCode) *Bucket {
	if tb.plant == nil && tb.depot == nil {
		return nil
	}
	if tb.plant != nil && tb.plantDealers[dealer] {
		return tb.plant
	}
	if tb.depot != nil {
		return tb.depot
	}
	return tb.plant
}

func (tb *todayBuckets) single() *Bucket {
	if tb.plant != nil && tb.depot == nil {
		return tb.plant
	}
	if tb.depot != nil && tb.plant == nil {
		return tb.depot
	}
	return nil
}

func (tb *todayBuckets) ordered() []*Bucket {
	var out []*Bucket
	if tb.plant != nil {
		out = append(out, tb.plant)
	}
	if tb.depot != nil {
		out = append(out, tb.depot)
	}
	return out
}
