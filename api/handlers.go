/*
handlers.go - HTTP API handlers for the dispatch ledger

PURPOSE:
  Exposes the vehicle pending ledger via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Events:
    POST   /api/events/billing             Record a billing event
    POST   /api/events/unloading           Record an unloading event
    DELETE /api/events/{id}                Delete an event (forces recompute)

  Vehicles:
    GET    /api/vehicles/{vehicle}/balance   Pending balance on a date
    GET    /api/vehicles/{vehicle}/balances  Day-by-day balance series
    GET    /api/vehicles/{vehicle}/opening   Opening balance of a month
    GET    /api/vehicles/{vehicle}/cards     Pending cards for a date

  Cards:
    GET    /api/cards                      Cards for every active vehicle

  Snapshots:
    GET    /api/snapshots                  Month-end snapshots for a month

  Admin:
    POST   /api/admin/seed                 Seed the epoch opening balance
    POST   /api/admin/verify               Verify a month's snapshot chain

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (service facade)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Event or opening balance not found
  - 409: Conflict (snapshot already exists)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - ledger/service.go: Domain facade the handlers delegate to
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/warp/dispatch-ledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *ledger.Service
}

// NewHandler creates a new handler around the given service.
func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{Service: svc}
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// RecordBilling records a billing event.
// POST /api/events/billing
func (h *Handler) RecordBilling(w http.ResponseWriter, r *http.Request) {
	var req BillingEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := ledger.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	qty, err := ledger.ParseQty(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}

	ev := ledger.BillingEvent{
		Vehicle:    ledger.Vehicle(req.Vehicle),
		Date:       date,
		Grade:      ledger.Grade(req.Grade),
		Quantity:   qty,
		DealerCode: ledger.DealerCode(req.DealerCode),
		Partition:  ledger.Partition(req.Partition),
		Source:     ledger.Source(req.Source),
		Invoice:    req.Invoice,
	}
	// Omitted fields take the common case. Unloadings with no matching
	// plant dealer resolve against DEPOT, so that is the billing default too.
	if ev.Partition == "" {
		ev.Partition = ledger.PartitionDepot
	}
	if ev.Source == "" {
		ev.Source = ledger.SourceDirect
	}

	id, err := h.Service.RecordBilling(r.Context(), ev)
	if err != nil {
		writeDomainError(w, "Failed to record billing", err)
		return
	}
	writeJSON(w, http.StatusCreated, EventCreatedDTO{ID: string(id)})
}

// RecordUnloading records an unloading event.
// POST /api/events/unloading
func (h *Handler) RecordUnloading(w http.ResponseWriter, r *http.Request) {
	var req UnloadingEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := ledger.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	qty, err := ledger.ParseQty(req.Quantity)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid quantity", err)
		return
	}

	ev := ledger.UnloadingEvent{
		Vehicle:    ledger.Vehicle(req.Vehicle),
		Date:       date,
		Grade:      ledger.Grade(req.Grade),
		Quantity:   qty,
		DealerCode: ledger.DealerCode(req.DealerCode),
		Point:      req.Point,
	}

	id, err := h.Service.RecordUnloading(r.Context(), ev)
	if err != nil {
		writeDomainError(w, "Failed to record unloading", err)
		return
	}
	writeJSON(w, http.StatusCreated, EventCreatedDTO{ID: string(id)})
}

// DeleteEvent deletes an event and invalidates dependent snapshots.
// DELETE /api/events/{id}
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := ledger.EventID(chi.URLParam(r, "id"))

	if err := h.Service.DeleteEvent(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete event", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalance returns the pending balance for a vehicle/grade on a date.
// GET /api/vehicles/{vehicle}/balance?grade=PPC&date=2026-01-15
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	vehicle := ledger.NormalizeVehicle(chi.URLParam(r, "vehicle"))
	grade := ledger.Grade(r.URL.Query().Get("grade"))
	if !grade.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid or missing grade", nil)
		return
	}
	date, err := ledger.ParseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	pending, err := h.Service.BalanceOn(r.Context(), vehicle, grade, date)
	if err != nil {
		writeDomainError(w, "Failed to compute balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		Vehicle: string(vehicle),
		Grade:   string(grade),
		Date:    date.String(),
		Pending: pending.String(),
	})
}

// GetBalanceSeries returns the day-by-day balance series over a range.
// GET /api/vehicles/{vehicle}/balances?grade=PPC&from=2026-01-01&to=2026-01-31
func (h *Handler) GetBalanceSeries(w http.ResponseWriter, r *http.Request) {
	vehicle := ledger.NormalizeVehicle(chi.URLParam(r, "vehicle"))
	grade := ledger.Grade(r.URL.Query().Get("grade"))
	if !grade.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid or missing grade", nil)
		return
	}
	from, err := ledger.ParseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'from' date (use YYYY-MM-DD)", err)
		return
	}
	to, err := ledger.ParseDay(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'to' date (use YYYY-MM-DD)", err)
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "'to' must not precede 'from'", nil)
		return
	}

	series, err := h.Service.DailyBalances(r.Context(), vehicle, grade, from, to)
	if err != nil {
		writeDomainError(w, "Failed to compute balances", err)
		return
	}

	days := make([]DailyBalanceDTO, len(series))
	for i, d := range series {
		days[i] = DailyBalanceDTO{Date: d.Date.String(), Pending: d.Pending.String()}
	}
	writeJSON(w, http.StatusOK, BalanceSeriesDTO{
		Vehicle: string(vehicle),
		Grade:   string(grade),
		Days:    days,
	})
}

// GetOpeningBalance returns the opening balance of a month.
// GET /api/vehicles/{vehicle}/opening?grade=PPC&month=2026-01
func (h *Handler) GetOpeningBalance(w http.ResponseWriter, r *http.Request) {
	vehicle := ledger.NormalizeVehicle(chi.URLParam(r, "vehicle"))
	grade := ledger.Grade(r.URL.Query().Get("grade"))
	if !grade.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid or missing grade", nil)
		return
	}
	month, err := ledger.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month format (use YYYY-MM)", err)
		return
	}

	opening, err := h.Service.OpeningBalance(r.Context(), vehicle, grade, month)
	if err != nil {
		writeDomainError(w, "Failed to resolve opening balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		Vehicle: string(vehicle),
		Grade:   string(grade),
		Month:   month.String(),
		Pending: opening.String(),
	})
}

// =============================================================================
// CARD HANDLERS
// =============================================================================

// GetVehicleCards returns the pending cards for one vehicle on a date.
// GET /api/vehicles/{vehicle}/cards?date=2026-01-15
func (h *Handler) GetVehicleCards(w http.ResponseWriter, r *http.Request) {
	vehicle := ledger.NormalizeVehicle(chi.URLParam(r, "vehicle"))
	date, err := ledger.ParseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	cards, err := h.Service.Cards(r.Context(), vehicle, date)
	if err != nil {
		writeDomainError(w, "Failed to materialize cards", err)
		return
	}
	writeJSON(w, http.StatusOK, toCardDTOs(cards))
}

// GetCards returns cards for every vehicle active in the date's month.
// GET /api/cards?date=2026-01-15
func (h *Handler) GetCards(w http.ResponseWriter, r *http.Request) {
	date, err := ledger.ParseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	cards, err := h.Service.CardsForDate(r.Context(), date)
	if err != nil {
		writeDomainError(w, "Failed to materialize cards", err)
		return
	}
	writeJSON(w, http.StatusOK, toCardDTOs(cards))
}

// =============================================================================
// SNAPSHOT HANDLERS
// =============================================================================

// ListSnapshots returns all month-end snapshots for a month.
// GET /api/snapshots?month=2026-01
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	month, err := ledger.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month format (use YYYY-MM)", err)
		return
	}

	snaps, err := h.Service.Snapshots.List(r.Context(), month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTOs(snaps))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// SeedOpening writes the epoch month's opening balance for a vehicle/grade.
// POST /api/admin/seed
func (h *Handler) SeedOpening(w http.ResponseWriter, r *http.Request) {
	var req SeedOpeningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	month, err := ledger.ParseMonth(req.Month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month format (use YYYY-MM)", err)
		return
	}
	closing, err := ledger.ParseQty(req.Closing)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid closing quantity", err)
		return
	}

	snap := ledger.MonthSnapshot{
		Month:      month,
		Vehicle:    ledger.NormalizeVehicle(req.Vehicle),
		Grade:      ledger.Grade(req.Grade),
		Closing:    closing,
		DealerCode: ledger.DealerCode(req.DealerCode),
	}

	if err := h.Service.SeedOpening(r.Context(), snap); err != nil {
		if errors.Is(err, ledger.ErrSnapshotExists) {
			writeError(w, http.StatusConflict, "Snapshot already exists for this month", err)
			return
		}
		writeDomainError(w, "Failed to seed opening balance", err)
		return
	}
	writeJSON(w, http.StatusCreated, SnapshotDTO{
		Month:      snap.Month.String(),
		Vehicle:    string(snap.Vehicle),
		Grade:      string(snap.Grade),
		Closing:    snap.Closing.String(),
		DealerCode: string(snap.DealerCode),
	})
}

// VerifyChain recomputes a month's closing and compares with the snapshot.
// POST /api/admin/verify?vehicle=MH12AB1234&grade=PPC&month=2026-01
func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	vehicle := ledger.NormalizeVehicle(r.URL.Query().Get("vehicle"))
	grade := ledger.Grade(r.URL.Query().Get("grade"))
	if !grade.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid or missing grade", nil)
		return
	}
	month, err := ledger.ParseMonth(r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month format (use YYYY-MM)", err)
		return
	}

	result := VerifyResultDTO{
		Vehicle: string(vehicle),
		Grade:   string(grade),
		Month:   month.String(),
		OK:      true,
	}
	if err := h.Service.VerifyChain(r.Context(), vehicle, grade, month); err != nil {
		var stale *ledger.StaleSnapshotError
		if errors.As(err, &stale) {
			result.OK = false
			result.Detail = stale.Error()
			writeJSON(w, http.StatusOK, result)
			return
		}
		writeDomainError(w, "Failed to verify chain", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps ledger errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
