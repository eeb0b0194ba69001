/*
Package ledger provides the vehicle material ledger and FIFO allocation engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking, per
  vehicle and per material grade, how much quantity has been invoiced
  ("billed") versus physically delivered ("unloaded"), producing an
  always-consistent "pending" balance.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: A non-negative decimal amount of material (in tonnes)
  - Grade: One of the fixed product grades (PPC, Premium, OPC)
  - Vehicle: A normalized truck registration string
  - BillingEvent / UnloadingEvent: The two transaction kinds in the log
  - GradeTotals: Per-grade quantity map (grades are never summed for
    balance purposes, only for display totals)

DESIGN PRINCIPLES:
  1. Replayability: Balances are a pure fold over the ordered event log,
     never an incremental counter - edits and deletes re-derive downstream
     days correctly.
  2. Precision: Uses decimal.Decimal to avoid floating-point errors.
  3. Non-negativity: Pending balances clamp at zero as business policy -
     unloading in excess of billed quantity is dropped, not credited.

SEE ALSO:
  - day.go: Day and Month value types
  - log.go: Transaction log interfaces
  - accumulator.go: Day-by-day balance fold
  - chain.go: Month boundary chaining via snapshots
  - allocate.go: FIFO allocation of unloading against billed quantity
*/
package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY - Decimal material amount
// =============================================================================

type Quantity struct {
	Value decimal.Decimal
}

func Qty(value float64) Quantity {
	return Quantity{Value: decimal.NewFromFloat(value)}
}

func QtyFromInt(value int) Quantity {
	return Quantity{Value: decimal.NewFromInt(int64(value))}
}

func ZeroQty() Quantity { return Quantity{Value: decimal.Zero} }

// ParseQty parses a decimal string from external input.
func ParseQty(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroQty(), fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return Quantity{Value: d}, nil
}

// MustParseQty parses a stored decimal string, treating malformed input as
// zero. Used when reading back values the store itself wrote.
func MustParseQty(s string) Quantity {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroQty()
	}
	return Quantity{Value: d}
}

func (q Quantity) Add(o Quantity) Quantity    { return Quantity{Value: q.Value.Add(o.Value)} }
func (q Quantity) Sub(o Quantity) Quantity    { return Quantity{Value: q.Value.Sub(o.Value)} }
func (q Quantity) Neg() Quantity              { return Quantity{Value: q.Value.Neg()} }
func (q Quantity) IsZero() bool               { return q.Value.IsZero() }
func (q Quantity) IsNegative() bool           { return q.Value.IsNegative() }
func (q Quantity) IsPositive() bool           { return q.Value.IsPositive() }
func (q Quantity) Equal(o Quantity) bool      { return q.Value.Equal(o.Value) }
func (q Quantity) GreaterThan(o Quantity) bool { return q.Value.GreaterThan(o.Value) }
func (q Quantity) LessThan(o Quantity) bool   { return q.Value.LessThan(o.Value) }
func (q Quantity) String() string             { return q.Value.String() }

func (q Quantity) Min(o Quantity) Quantity {
	if q.LessThan(o) {
		return q
	}
	return o
}

func (q Quantity) Max(o Quantity) Quantity {
	if q.GreaterThan(o) {
		return q
	}
	return o
}

// ClampZero returns the quantity floored at zero. Pending balances never go
// negative: excess unloading is dropped, not carried as a credit.
func (q Quantity) ClampZero() Quantity {
	if q.IsNegative() {
		return ZeroQty()
	}
	return q
}

// =============================================================================
// GRADE - Fixed product grade set
// =============================================================================

type Grade string

const (
	GradePPC     Grade = "PPC"
	GradePremium Grade = "Premium"
	GradeOPC     Grade = "OPC"
)

// Grades lists all known grades in canonical order.
var Grades = []Grade{GradePPC, GradePremium, GradeOPC}

func (g Grade) Valid() bool {
	switch g {
	case GradePPC, GradePremium, GradeOPC:
		return true
	}
	return false
}

// =============================================================================
// GRADE TOTALS - Per-grade quantities
// =============================================================================

// GradeTotals holds one quantity per grade. Balances are tracked per grade
// independently; Total() exists for display only.
type GradeTotals map[Grade]Quantity

func NewGradeTotals() GradeTotals { return make(GradeTotals) }

func (gt GradeTotals) Get(g Grade) Quantity {
	if q, ok := gt[g]; ok {
		return q
	}
	return ZeroQty()
}

func (gt GradeTotals) Add(g Grade, q Quantity) {
	gt[g] = gt.Get(g).Add(q)
}

func (gt GradeTotals) Set(g Grade, q Quantity) { gt[g] = q }

// Total sums across grades. Display only - never used as a balance basis.
func (gt GradeTotals) Total() Quantity {
	total := ZeroQty()
	for _, g := range Grades {
		total = total.Add(gt.Get(g))
	}
	return total
}

func (gt GradeTotals) AllZero() bool {
	for _, q := range gt {
		if !q.IsZero() {
			return false
		}
	}
	return true
}

func (gt GradeTotals) Clone() GradeTotals {
	out := NewGradeTotals()
	for g, q := range gt {
		out[g] = q
	}
	return out
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type Vehicle string
type DealerCode string
type EventID string

// NormalizeVehicle canonicalizes a truck registration: uppercase with
// spaces and hyphens removed, so "rj 14-gb 1234" and "RJ14GB1234" key the
// same ledger entries.
func NormalizeVehicle(raw string) Vehicle {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	return Vehicle(s)
}

// =============================================================================
// DEALER PARTITION & BILLING SOURCE
// =============================================================================

// Partition groups dealer codes into the two disjoint billing origins.
// Unloading is matched to the partition whose dealer codes include the
// unloading dealer; unmatched unloading defaults to DEPOT.
type Partition string

const (
	PartitionPlant Partition = "PLANT"
	PartitionDepot Partition = "DEPOT"
)

func (p Partition) Valid() bool { return p == PartitionPlant || p == PartitionDepot }

// Source distinguishes direct dealer billing from third-party billing.
// Both contribute to the billed side of the balance.
type Source string

const (
	SourceDirect      Source = "direct"
	SourceOtherDealer Source = "other_dealer"
)

func (s Source) Valid() bool { return s == SourceDirect || s == SourceOtherDealer }

// =============================================================================
// EVENTS - The two transaction kinds
// =============================================================================

// BillingEvent records invoiced quantity for a vehicle on a date.
// Immutable once recorded; corrections happen by deletion, which forces
// recomputation of all dependent balances.
type BillingEvent struct {
	ID         EventID
	Vehicle    Vehicle
	Date       Day
	Grade      Grade
	Quantity   Quantity
	DealerCode DealerCode
	Partition  Partition
	Source     Source
	Invoice    string
}

// UnloadingEvent records physically delivered quantity. It is matched
// against billing by grade and, where partitioning is active, by the
// unloading dealer's partition affinity.
type UnloadingEvent struct {
	ID         EventID
	Vehicle    Vehicle
	Date       Day
	Grade      Grade
	Quantity   Quantity
	DealerCode DealerCode
	Point      string
}

// Validate rejects malformed billing input at the transaction log boundary.
func (e BillingEvent) Validate() error {
	if e.Quantity.IsNegative() {
		return &NegativeQuantityError{Vehicle: e.Vehicle, Date: e.Date, Quantity: e.Quantity}
	}
	if !e.Grade.Valid() {
		return ErrUnknownGrade
	}
	if !e.Partition.Valid() {
		return ErrUnknownPartition
	}
	if !e.Source.Valid() {
		return ErrUnknownSource
	}
	return nil
}

// Validate rejects malformed unloading input at the transaction log boundary.
func (e UnloadingEvent) Validate() error {
	if e.Quantity.IsNegative() {
		return &NegativeQuantityError{Vehicle: e.Vehicle, Date: e.Date, Quantity: e.Quantity}
	}
	if !e.Grade.Valid() {
		return ErrUnknownGrade
	}
	return nil
}

// =============================================================================
// DERIVED BALANCES
// =============================================================================

// DailyBalance is the pending quantity for one vehicle/grade on one day.
// Derived, replayable from the log; may be cached but never authoritative.
type DailyBalance struct {
	Date    Day
	Vehicle Vehicle
	Grade   Grade
	Pending Quantity
}

// MonthSnapshot pins the balance a vehicle carries into a month: the prior
// month's closing, stored under the month it opens. At most one exists per
// (month, vehicle, grade); the chainer is the sole writer.
type MonthSnapshot struct {
	Month      Month
	Vehicle    Vehicle
	Grade      Grade
	Closing    Quantity
	DealerCode DealerCode
}
