/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Event recording and validation responses
- Balance and card reads end to end over HTTP
- Epoch seeding and the write-once conflict
- Event deletion and downstream recomputation
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/warp/dispatch-ledger/ledger"
	"github.com/warp/dispatch-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	svc := ledger.NewService(store, store)
	ts := httptest.NewServer(NewRouter(NewHandler(svc), nil))
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp, out.Bytes()
}

func seedEpoch(t *testing.T, ts *httptest.Server, vehicle, grade, closing string) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/admin/seed", SeedOpeningRequest{
		Month:   "2025-11",
		Vehicle: vehicle,
		Grade:   grade,
		Closing: closing,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Seed failed: %d %s", resp.StatusCode, body)
	}
}

func postBilling(t *testing.T, ts *httptest.Server, req BillingEventRequest) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/events/billing", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Billing failed: %d %s", resp.StatusCode, body)
	}
	var created EventCreatedDTO
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return created.ID
}

func postUnloading(t *testing.T, ts *httptest.Server, req UnloadingEventRequest) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/events/unloading", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Unloading failed: %d %s", resp.StatusCode, body)
	}
}

// =============================================================================
// EVENT TESTS
// =============================================================================

func TestRecordBilling_Success(t *testing.T) {
	ts := newTestServer(t)
	seedEpoch(t, ts, "RJ14GB1234", "PPC", "0")

	id := postBilling(t, ts, BillingEventRequest{
		Vehicle:    "RJ14GB1234",
		Date:       "2025-11-10",
		Grade:      "PPC",
		Quantity:   "12.5",
		DealerCode: "DLR-1",
	})
	if id == "" {
		t.Fatal("Expected a non-empty event ID")
	}
}

func TestRecordBilling_InvalidGrade(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/events/billing", BillingEventRequest{
		Vehicle:    "RJ14GB1234",
		Date:       "2025-11-10",
		Grade:      "PSC",
		Quantity:   "5",
		DealerCode: "DLR-1",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestRecordBilling_InvalidQuantity(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/events/billing", BillingEventRequest{
		Vehicle:    "RJ14GB1234",
		Date:       "2025-11-10",
		Grade:      "PPC",
		Quantity:   "twelve",
		DealerCode: "DLR-1",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestDeleteEvent_RecomputesBalance(t *testing.T) {
	// GIVEN: Two billings totalling 18 pending
	// WHEN: Deleting one over HTTP
	// THEN: 204, and the balance read reflects the replay without it

	ts := newTestServer(t)
	seedEpoch(t, ts, "RJ14GB1234", "PPC", "0")

	id := postBilling(t, ts, BillingEventRequest{
		Vehicle: "RJ14GB1234", Date: "2025-11-10", Grade: "PPC", Quantity: "10", DealerCode: "DLR-1",
	})
	postBilling(t, ts, BillingEventRequest{
		Vehicle: "RJ14GB1234", Date: "2025-11-12", Grade: "PPC", Quantity: "8", DealerCode: "DLR-1",
	})

	resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/api/events/"+id, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", resp.StatusCode)
	}

	balance := getBalance(t, ts, "RJ14GB1234", "PPC", "2025-11-30")
	if balance.Pending != "8" {
		t.Errorf("Expected pending 8 after deletion, got %s", balance.Pending)
	}
}

func TestDeleteEvent_NotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/api/events/billing-424242", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}
}

// =============================================================================
// BALANCE TESTS
// =============================================================================

func getBalance(t *testing.T, ts *httptest.Server, vehicle, grade, date string) BalanceDTO {
	t.Helper()
	url := fmt.Sprintf("%s/api/vehicles/%s/balance?grade=%s&date=%s", ts.URL, vehicle, grade, date)
	resp, body := doJSON(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Balance read failed: %d %s", resp.StatusCode, body)
	}
	var dto BalanceDTO
	if err := json.Unmarshal(body, &dto); err != nil {
		t.Fatalf("Failed to decode balance: %v", err)
	}
	return dto
}

func TestGetBalance_EndToEnd(t *testing.T) {
	// GIVEN: Seeded epoch of 12, +8 billed, -15 unloaded across a month boundary
	// WHEN: Reading the December balance
	// THEN: 12 + 8 - 15 = 5

	ts := newTestServer(t)
	seedEpoch(t, ts, "RJ14GB1234", "PPC", "12")

	postBilling(t, ts, BillingEventRequest{
		Vehicle: "RJ14GB1234", Date: "2025-11-10", Grade: "PPC", Quantity: "8", DealerCode: "DLR-1",
	})
	postUnloading(t, ts, UnloadingEventRequest{
		Vehicle: "RJ14GB1234", Date: "2025-12-02", Grade: "PPC", Quantity: "15", DealerCode: "DLR-1",
	})

	balance := getBalance(t, ts, "RJ14GB1234", "PPC", "2025-12-05")
	if balance.Pending != "5" {
		t.Errorf("Expected pending 5, got %s", balance.Pending)
	}
}

func TestGetBalance_BeforeEpoch_NotFound(t *testing.T) {
	ts := newTestServer(t)
	seedEpoch(t, ts, "RJ14GB1234", "PPC", "12")

	url := ts.URL + "/api/vehicles/RJ14GB1234/balance?grade=PPC&date=2025-10-15"
	resp, _ := doJSON(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404 for pre-epoch date, got %d", resp.StatusCode)
	}
}

func TestGetBalanceSeries_GaplessRange(t *testing.T) {
	ts := newTestServer(t)
	seedEpoch(t, ts, "RJ14GB1234", "PPC", "0")

	postBilling(t, ts, BillingEventRequest{
		Vehicle: "RJ14GB1234", Date: "2025-11-10", Grade: "PPC", Quantity: "7", DealerCode: "DLR-1",
	})

	url := ts.URL + "/api/vehicles/RJ14GB1234/balances?grade=PPC&from=2025-11-08&to=2025-11-12"
	resp, body := doJSON(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Series read failed: %d %s", resp.StatusCode, body)
	}

	var series BalanceSeriesDTO
	if err := json.Unmarshal(body, &series); err != nil {
		t.Fatalf("Failed to decode series: %v", err)
	}
	if len(series.Days) != 5 {
		t.Fatalf("Expected 5 days, got %d", len(series.Days))
	}
	if series.Days[0].Pending != "0" || series.Days[2].Pending != "7" {
		t.Errorf("Unexpected series: %+v", series.Days)
	}
}

// =============================================================================
// CARD TESTS
// =============================================================================

func TestGetCards_RebilledVehicle(t *testing.T) {
	// GIVEN: 20 pending carried over, rebilled 25 today, 45 unloaded
	// WHEN: Reading cards over HTTP
	// THEN: Two cards, previous_day first, both complete

	ts := newTestServer(t)
	seedEpoch(t, ts, "RJ14GB1234", "PPC", "0")

	postBilling(t, ts, BillingEventRequest{
		Vehicle: "RJ14GB1234", Date: "2025-11-20", Grade: "PPC", Quantity: "20", DealerCode: "DLR-1",
	})
	postBilling(t, ts, BillingEventRequest{
		Vehicle: "RJ14GB1234", Date: "2025-11-25", Grade: "PPC", Quantity: "25", DealerCode: "DLR-1",
	})
	postUnloading(t, ts, UnloadingEventRequest{
		Vehicle: "RJ14GB1234", Date: "2025-11-25", Grade: "PPC", Quantity: "45", DealerCode: "DLR-1",
	})

	url := ts.URL + "/api/vehicles/RJ14GB1234/cards?date=2025-11-25"
	resp, body := doJSON(t, http.MethodGet, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Cards read failed: %d %s", resp.StatusCode, body)
	}

	var cards []CardDTO
	if err := json.Unmarshal(body, &cards); err != nil {
		t.Fatalf("Failed to decode cards: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("Expected 2 cards, got %d", len(cards))
	}
	if cards[0].Kind != "previous_day" || cards[1].Kind != "today" {
		t.Errorf("Unexpected card kinds: %s, %s", cards[0].Kind, cards[1].Kind)
	}
	if !cards[0].Complete || !cards[1].Complete {
		t.Error("Both cards should be complete")
	}
	if cards[1].Unloaded["PPC"] != "25" {
		t.Errorf("Expected today's card to absorb the 25 surplus, got %v", cards[1].Unloaded)
	}
}

func TestGetCards_BulkForDate(t *testing.T) {
	ts := newTestServer(t)
	seedEpoch(t, ts, "RJ14GB1234", "PPC", "0")

	postBilling(t, ts, BillingEventRequest{
		Vehicle: "RJ14GB1234", Date: "2025-11-10", Grade: "PPC", Quantity: "10", DealerCode: "DLR-1",
	})
	postBilling(t, ts, BillingEventRequest{
		Vehicle: "MH12AB0001", Date: "2025-11-10", Grade: "OPC", Quantity: "6", DealerCode: "DLR-2",
	})

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/cards?date=2025-11-12", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Bulk cards read failed: %d %s", resp.StatusCode, body)
	}

	var cards []CardDTO
	if err := json.Unmarshal(body, &cards); err != nil {
		t.Fatalf("Failed to decode cards: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("Expected 2 cards, got %d", len(cards))
	}
	// Both pending previous-day cards: vehicle ascending.
	if cards[0].Vehicle != "MH12AB0001" || cards[1].Vehicle != "RJ14GB1234" {
		t.Errorf("Unexpected ordering: %s, %s", cards[0].Vehicle, cards[1].Vehicle)
	}
}

// =============================================================================
// ADMIN TESTS
// =============================================================================

func TestSeedOpening_Conflict(t *testing.T) {
	ts := newTestServer(t)
	seedEpoch(t, ts, "RJ14GB1234", "PPC", "12")

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/admin/seed", SeedOpeningRequest{
		Month: "2025-11", Vehicle: "RJ14GB1234", Grade: "PPC", Closing: "99",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Expected 409 for duplicate seed, got %d", resp.StatusCode)
	}
}

func TestVerifyChain_Clean(t *testing.T) {
	ts := newTestServer(t)
	seedEpoch(t, ts, "RJ14GB1234", "PPC", "12")

	postBilling(t, ts, BillingEventRequest{
		Vehicle: "RJ14GB1234", Date: "2025-11-10", Grade: "PPC", Quantity: "8", DealerCode: "DLR-1",
	})
	// Materialize the December snapshot.
	getBalance(t, ts, "RJ14GB1234", "PPC", "2025-12-05")

	url := ts.URL + "/api/admin/verify?vehicle=RJ14GB1234&grade=PPC&month=2025-11"
	resp, body := doJSON(t, http.MethodPost, url, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Verify failed: %d %s", resp.StatusCode, body)
	}

	var result VerifyResultDTO
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if !result.OK {
		t.Errorf("Expected clean chain, got %s", result.Detail)
	}
}
