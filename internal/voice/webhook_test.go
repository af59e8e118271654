package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dispatch-platform/internal/dispatch"

	"github.com/gin-gonic/gin"
)

type scriptedGateway struct {
	nextID string
	calls  int
}

func (g *scriptedGateway) PlaceCall(ctx context.Context, req dispatch.CallRequest) (string, error) {
	g.calls++
	return g.nextID, nil
}

type countingReleaser struct{ released int }

func (r *countingReleaser) ReleaseSlot(ctx context.Context) { r.released++ }

func callbackRouter(t *testing.T, engine *dispatch.Engine, slots SlotReleaser) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/voice/callback", WebhookHandler{Engine: engine, Slots: slots}.HandleCallback)
	return r
}

func seedCallingEntry(t *testing.T, callID string) *dispatch.MemoryStore {
	t.Helper()
	store := dispatch.NewMemoryStore()
	store.PutBooking(dispatch.Booking{ID: "b1", Status: dispatch.BookingStatusPending})
	store.PutDriver(dispatch.Driver{ID: "d1", Name: "Asha", Phone: "+15550002001"})
	store.PutDriver(dispatch.Driver{ID: "d2", Name: "Binod", Phone: "+15550002002"})
	base := time.Unix(1700000000, 0).UTC()
	calledAt := base.Add(time.Minute)
	id := callID
	store.PutEntry(dispatch.QueueEntry{
		ID: "e1", BookingID: "b1", DriverID: "d1", Position: 1,
		Status: dispatch.EntryStatusCalling, CallID: &id, CalledAt: &calledAt, CreatedAt: base,
	})
	store.PutEntry(dispatch.QueueEntry{
		ID: "e2", BookingID: "b1", DriverID: "d2", Position: 2,
		Status: dispatch.EntryStatusPending, CreatedAt: base.Add(time.Second),
	})
	return store
}

func postCallback(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/callback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleCallback_MissingExecutionID(t *testing.T) {
	store := seedCallingEntry(t, "exec-1")
	engine := dispatch.NewEngine(store, &scriptedGateway{}, nil)
	r := callbackRouter(t, engine, nil)

	w := postCallback(t, r, `{"status":"success","call_status":"completed"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "Missing execution_id" {
		t.Fatalf("unexpected error body: %v", body)
	}
}

func TestHandleCallback_InvalidJSON(t *testing.T) {
	engine := dispatch.NewEngine(dispatch.NewMemoryStore(), &scriptedGateway{}, nil)
	r := callbackRouter(t, engine, nil)

	w := postCallback(t, r, `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleCallback_AcceptAssignsDriver(t *testing.T) {
	store := seedCallingEntry(t, "exec-1")
	gw := &scriptedGateway{nextID: "exec-2"}
	engine := dispatch.NewEngine(store, gw, nil)
	slots := &countingReleaser{}
	r := callbackRouter(t, engine, slots)

	w := postCallback(t, r, `{
		"execution_id": "exec-1",
		"status": "success",
		"call_status": "completed",
		"conversation_data": {"driver_response": "yes I will take it"}
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["success"] != true || body["action"] != "assigned" || body["outcome"] != "accept" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["driver_id"] != "d1" || body["driver_name"] != "Asha" || body["booking_id"] != "b1" {
		t.Fatalf("expected assignment detail in body: %v", body)
	}

	if slots.released != 1 {
		t.Fatalf("expected call slot released once, got %d", slots.released)
	}
	if gw.calls != 0 {
		t.Fatalf("accept must not place another call")
	}

	b, _ := store.Booking("b1")
	if b.Status != dispatch.BookingStatusAssigned {
		t.Fatalf("expected booking assigned, got %s", b.Status)
	}
}

func TestHandleCallback_DeclineDialsNext(t *testing.T) {
	store := seedCallingEntry(t, "exec-1")
	gw := &scriptedGateway{nextID: "exec-2"}
	engine := dispatch.NewEngine(store, gw, nil)
	r := callbackRouter(t, engine, nil)

	w := postCallback(t, r, `{
		"execution_id": "exec-1",
		"status": "success",
		"call_status": "completed",
		"conversation_data": {"driver_response": "no, I am busy"}
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["action"] != "called_next" || body["driver_id"] != "d2" {
		t.Fatalf("unexpected body: %v", body)
	}
	if gw.calls != 1 {
		t.Fatalf("expected next candidate dialed, got %d calls", gw.calls)
	}
}

func TestHandleCallback_DuplicateDeliveryIs404(t *testing.T) {
	store := seedCallingEntry(t, "exec-1")
	engine := dispatch.NewEngine(store, &scriptedGateway{nextID: "exec-2"}, nil)
	slots := &countingReleaser{}
	r := callbackRouter(t, engine, slots)

	payload := `{
		"execution_id": "exec-1",
		"status": "success",
		"call_status": "completed",
		"conversation_data": {"driver_response": "yes"}
	}`
	if w := postCallback(t, r, payload); w.Code != http.StatusOK {
		t.Fatalf("first delivery: expected 200, got %d", w.Code)
	}

	w := postCallback(t, r, payload)
	if w.Code != http.StatusNotFound {
		t.Fatalf("duplicate delivery: expected 404, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "Queue entry not found" || body["execution_id"] != "exec-1" {
		t.Fatalf("unexpected body: %v", body)
	}
	// Every delivery for a finished call frees its slot before the engine
	// sees it; the Lua counter floors at zero, so the extra release is safe.
	if slots.released != 2 {
		t.Fatalf("expected a release per delivery, got %d", slots.released)
	}
}

// cappedGateway models the provider cap: PlaceCall consumes a slot and fails
// when none are free, ReleaseSlot returns one.
type cappedGateway struct {
	slots  int
	nextID string
	events []string
}

func (g *cappedGateway) PlaceCall(ctx context.Context, req dispatch.CallRequest) (string, error) {
	if g.slots <= 0 {
		g.events = append(g.events, "rejected")
		return "", ErrProviderBusy
	}
	g.slots--
	g.events = append(g.events, "place")
	return g.nextID, nil
}

func (g *cappedGateway) ReleaseSlot(ctx context.Context) {
	g.slots++
	g.events = append(g.events, "release")
}

func TestHandleCallback_ReleasesSlotBeforeNextDial(t *testing.T) {
	store := seedCallingEntry(t, "exec-1")
	// The in-flight call holds the only slot; the decline's follow-up dial
	// can only succeed if the handler frees it first.
	gw := &cappedGateway{slots: 0, nextID: "exec-2"}
	engine := dispatch.NewEngine(store, gw, nil)
	r := callbackRouter(t, engine, gw)

	w := postCallback(t, r, `{
		"execution_id": "exec-1",
		"status": "success",
		"call_status": "completed",
		"conversation_data": {"driver_response": "no"}
	}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["action"] != "called_next" || body["success"] != true {
		t.Fatalf("expected next candidate dialed at full capacity, got %v", body)
	}

	e2, _ := store.Entry("e2")
	if e2.Status != dispatch.EntryStatusCalling {
		t.Fatalf("expected e2 calling, got %s", e2.Status)
	}

	want := []string{"release", "place"}
	if len(gw.events) != len(want) || gw.events[0] != want[0] || gw.events[1] != want[1] {
		t.Fatalf("expected slot freed before the dial, got %v", gw.events)
	}
}

func TestHandleCallback_NoAnswerCallStatus(t *testing.T) {
	store := seedCallingEntry(t, "exec-1")
	gw := &scriptedGateway{nextID: "exec-2"}
	engine := dispatch.NewEngine(store, gw, nil)
	r := callbackRouter(t, engine, nil)

	w := postCallback(t, r, `{"execution_id":"exec-1","status":"error","call_status":"no-answer"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	e1, _ := store.Entry("e1")
	if e1.Status != dispatch.EntryStatusNoAnswer {
		t.Fatalf("expected e1 no_answer, got %s", e1.Status)
	}
	if gw.calls != 1 {
		t.Fatalf("expected next candidate dialed")
	}
}
