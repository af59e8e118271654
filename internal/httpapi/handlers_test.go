package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dispatch-platform/internal/auth"
	"dispatch-platform/internal/config"
	"dispatch-platform/internal/dispatch"
	"dispatch-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

type stubGateway struct{ nextID string }

func (g stubGateway) PlaceCall(ctx context.Context, req dispatch.CallRequest) (string, error) {
	return g.nextID, nil
}

func testAuthManager(t *testing.T) *auth.Manager {
	t.Helper()
	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	return m
}

func testCredentials(userID, password string) (string, bool) {
	if userID == "ops" && password == "secret" {
		return "admin", true
	}
	return "", false
}

func do(t *testing.T, h gin.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	switch method {
	case http.MethodGet:
		r.GET("/v1/bookings/:booking_id", h)
		r.GET("/v1/reports/summary", h)
	case http.MethodPost:
		r.POST("/v1/auth/login", h)
		r.POST("/v1/bookings/:booking_id/dispatch", h)
	}
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestLogin(t *testing.T) {
	h := Handlers{Auth: testAuthManager(t), Credentials: testCredentials}

	w := do(t, h.Login, http.MethodPost, "/v1/auth/login", `{"user_id":"ops","password":"secret"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	access, _ := body["access_token"].(string)
	refresh, _ := body["refresh_token"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("expected token pair, got %v", body)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	h := Handlers{Auth: testAuthManager(t), Credentials: testCredentials}

	w := do(t, h.Login, http.MethodPost, "/v1/auth/login", `{"user_id":"ops","password":"wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLoginMissingFields(t *testing.T) {
	h := Handlers{Auth: testAuthManager(t), Credentials: testCredentials}

	w := do(t, h.Login, http.MethodPost, "/v1/auth/login", `{"user_id":"ops"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestGetBooking(t *testing.T) {
	store := dispatch.NewMemoryStore()
	store.PutBooking(dispatch.Booking{ID: "b1", PickupLocation: "12 Hill Road", Status: dispatch.BookingStatusPending})
	store.PutDriver(dispatch.Driver{ID: "d1", Name: "Asha", Phone: "+1"})
	store.PutEntry(dispatch.QueueEntry{ID: "e1", BookingID: "b1", DriverID: "d1", Position: 1, Status: dispatch.EntryStatusPending})

	h := Handlers{Store: store}
	w := do(t, h.GetBooking, http.MethodGet, "/v1/bookings/b1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decode(t, w)
	booking, ok := body["booking"].(map[string]any)
	if !ok || booking["booking_id"] != "b1" {
		t.Fatalf("expected booking in body, got %v", body)
	}
	queue, ok := body["queue"].([]any)
	if !ok || len(queue) != 1 {
		t.Fatalf("expected 1 queue entry, got %v", body["queue"])
	}
}

func TestGetBookingNotFound(t *testing.T) {
	h := Handlers{Store: dispatch.NewMemoryStore()}
	w := do(t, h.GetBooking, http.MethodGet, "/v1/bookings/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestStartDispatch(t *testing.T) {
	store := dispatch.NewMemoryStore()
	store.PutBooking(dispatch.Booking{ID: "b1", Status: dispatch.BookingStatusPending})
	store.PutDriver(dispatch.Driver{ID: "d1", Name: "Asha", Phone: "+1"})
	store.PutEntry(dispatch.QueueEntry{ID: "e1", BookingID: "b1", DriverID: "d1", Position: 1, Status: dispatch.EntryStatusPending})

	engine := dispatch.NewEngine(store, stubGateway{nextID: "exec-1"}, nil)
	h := Handlers{Engine: engine}

	w := do(t, h.StartDispatch, http.MethodPost, "/v1/bookings/b1/dispatch", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["success"] != true || body["action"] != "called_next" || body["driver_id"] != "d1" {
		t.Fatalf("unexpected body: %v", body)
	}

	// A second start must conflict: the chain is already underway.
	w = do(t, h.StartDispatch, http.MethodPost, "/v1/bookings/b1/dispatch", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on repeat, got %d", w.Code)
	}
}

func TestStartDispatchUnknownBooking(t *testing.T) {
	engine := dispatch.NewEngine(dispatch.NewMemoryStore(), stubGateway{}, nil)
	h := Handlers{Engine: engine}

	w := do(t, h.StartDispatch, http.MethodPost, "/v1/bookings/missing/dispatch", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestDispatchSummary(t *testing.T) {
	repo := reporting.NewMemoryRepo()
	calledAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.Entries = []dispatch.QueueEntry{
		{ID: "e1", Position: 1, Status: dispatch.EntryStatusAccepted, DistanceKm: 2.0, CalledAt: &calledAt},
		{ID: "e2", Position: 1, Status: dispatch.EntryStatusRejected, CalledAt: &calledAt},
	}
	h := Handlers{Reports: reporting.NewService(repo)}

	w := do(t, h.DispatchSummary, http.MethodGet,
		"/v1/reports/summary?from=2026-03-01T00:00:00Z&to=2026-03-02T00:00:00Z", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["total_attempts"] != float64(2) || body["accepted"] != float64(1) {
		t.Fatalf("unexpected summary: %v", body)
	}
}

func TestDispatchSummaryBadRange(t *testing.T) {
	h := Handlers{Reports: reporting.NewService(reporting.NewMemoryRepo())}

	w := do(t, h.DispatchSummary, http.MethodGet, "/v1/reports/summary?from=yesterday&to=now", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
