/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Events:
    BillingEventRequest, UnloadingEventRequest, EventCreatedDTO

  Balances:
    BalanceDTO, DailyBalanceDTO

  Cards:
    CardDTO

  Snapshots:
    SnapshotDTO, SeedOpeningRequest

QUANTITIES:
  Quantities travel as JSON strings ("12.5"), never floats. The engine is
  exact-decimal end to end; a float64 round-trip would defeat that.

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs. DTOs
  are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain types these map to
*/
package api

import (
	"sort"

	"github.com/warp/dispatch-ledger/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// BillingEventRequest is the request to record a billing event.
type BillingEventRequest struct {
	Vehicle    string `json:"vehicle"`
	Date       string `json:"date"` // YYYY-MM-DD
	Grade      string `json:"grade"`
	Quantity   string `json:"quantity"`
	DealerCode string `json:"dealer_code"`
	Partition  string `json:"partition,omitempty"` // PLANT or DEPOT
	Source     string `json:"source,omitempty"`    // direct or other_dealer
	Invoice    string `json:"invoice,omitempty"`
}

// UnloadingEventRequest is the request to record an unloading event.
type UnloadingEventRequest struct {
	Vehicle    string `json:"vehicle"`
	Date       string `json:"date"` // YYYY-MM-DD
	Grade      string `json:"grade"`
	Quantity   string `json:"quantity"`
	DealerCode string `json:"dealer_code,omitempty"`
	Point      string `json:"point,omitempty"`
}

// EventCreatedDTO is the response after recording an event.
type EventCreatedDTO struct {
	ID string `json:"id"`
}

// BalanceDTO is a single pending balance.
type BalanceDTO struct {
	Vehicle string `json:"vehicle"`
	Grade   string `json:"grade"`
	Date    string `json:"date,omitempty"`
	Month   string `json:"month,omitempty"`
	Pending string `json:"pending"`
}

// DailyBalanceDTO is one day of a balance series.
type DailyBalanceDTO struct {
	Date    string `json:"date"`
	Pending string `json:"pending"`
}

// BalanceSeriesDTO is the response for a date-range balance query.
type BalanceSeriesDTO struct {
	Vehicle string            `json:"vehicle"`
	Grade   string            `json:"grade"`
	Days    []DailyBalanceDTO `json:"days"`
}

// CardDTO represents one pending card for the reporting frontend.
type CardDTO struct {
	Vehicle   string            `json:"vehicle"`
	Date      string            `json:"date"`
	Kind      string            `json:"kind"` // previous_day or today
	Partition string            `json:"partition,omitempty"`
	Billed    map[string]string `json:"billed"`
	Unloaded  map[string]string `json:"unloaded"`
	Remaining map[string]string `json:"remaining"`
	Complete  bool              `json:"complete"`
}

// SnapshotDTO represents a month-end closing balance.
type SnapshotDTO struct {
	Month      string `json:"month"`
	Vehicle    string `json:"vehicle"`
	Grade      string `json:"grade"`
	Closing    string `json:"closing"`
	DealerCode string `json:"dealer_code,omitempty"`
}

// SeedOpeningRequest seeds the quantity a vehicle carries into the epoch
// month, the ground truth the snapshot chain terminates at.
type SeedOpeningRequest struct {
	Month      string `json:"month"` // YYYY-MM
	Vehicle    string `json:"vehicle"`
	Grade      string `json:"grade"`
	Closing    string `json:"closing"`
	DealerCode string `json:"dealer_code,omitempty"`
}

// VerifyResultDTO is the result of a chain verification.
type VerifyResultDTO struct {
	Vehicle string `json:"vehicle"`
	Grade   string `json:"grade"`
	Month   string `json:"month"`
	OK      bool   `json:"ok"`
	Detail  string `json:"detail,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCardDTO(c ledger.Card) CardDTO {
	return CardDTO{
		Vehicle:   string(c.Vehicle),
		Date:      c.Date.String(),
		Kind:      string(c.Kind),
		Partition: string(c.Partition),
		Billed:    toGradeMap(c.Billed),
		Unloaded:  toGradeMap(c.Unloaded),
		Remaining: toGradeMap(c.Remaining),
		Complete:  c.Complete(),
	}
}

func toCardDTOs(cards []ledger.Card) []CardDTO {
	dtos := make([]CardDTO, len(cards))
	for i, c := range cards {
		dtos[i] = toCardDTO(c)
	}
	return dtos
}

// toGradeMap keeps only grades with non-zero quantities so card payloads
// stay small. Keys are emitted in a deterministic order by the JSON
// encoder (it sorts map keys), so no ordering work is needed here.
func toGradeMap(totals ledger.GradeTotals) map[string]string {
	out := make(map[string]string)
	for grade, qty := range totals {
		if qty.IsZero() {
			continue
		}
		out[string(grade)] = qty.String()
	}
	return out
}

func toSnapshotDTOs(snaps []ledger.MonthSnapshot) []SnapshotDTO {
	dtos := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = SnapshotDTO{
			Month:      s.Month.String(),
			Vehicle:    string(s.Vehicle),
			Grade:      string(s.Grade),
			Closing:    s.Closing.String(),
			DealerCode: string(s.DealerCode),
		}
	}
	sort.Slice(dtos, func(i, j int) bool {
		if dtos[i].Vehicle != dtos[j].Vehicle {
			return dtos[i].Vehicle < dtos[j].Vehicle
		}
		return dtos[i].Grade < dtos[j].Grade
	})
	return dtos
}
