package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"dispatch-platform/internal/config"
	"dispatch-platform/internal/dispatch"
)

func testVoiceConfig(baseURL string) config.VoiceConfig {
	return config.VoiceConfig{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		AgentID:    "agent-1",
		FromNumber: "+15550009999",
	}
}

func TestClient_PlaceCall(t *testing.T) {
	var got placeCallRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/call" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode provider request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(placeCallResponse{ExecutionID: "exec-42", Status: "queued"})
	}))
	defer srv.Close()

	client := NewClient(testVoiceConfig(srv.URL), nil)
	callID, err := client.PlaceCall(context.Background(), dispatch.CallRequest{
		BookingID:           "b1",
		EntryID:             "e1",
		DriverName:          "Asha",
		DriverPhone:         "+15550002001",
		PickupLocation:      "12 Hill Road",
		DestinationFacility: "City General Hospital",
		ContactPhone:        "+15550001111",
		DistanceKm:          2.4,
	})
	if err != nil {
		t.Fatalf("place call: %v", err)
	}
	if callID != "exec-42" {
		t.Fatalf("expected execution id exec-42, got %q", callID)
	}

	if auth != "Bearer test-key" {
		t.Fatalf("expected bearer auth, got %q", auth)
	}
	if got.AgentID != "agent-1" || got.RecipientPhone != "+15550002001" || got.FromPhone != "+15550009999" {
		t.Fatalf("unexpected provider request: %+v", got)
	}
	if got.UserData["booking_id"] != "b1" || got.UserData["driver_name"] != "Asha" {
		t.Fatalf("expected booking context in user_data: %v", got.UserData)
	}
	if got.UserData["pickup_location"] != "12 Hill Road" || got.UserData["destination_facility"] != "City General Hospital" {
		t.Fatalf("expected trip context in user_data: %v", got.UserData)
	}
}

func TestClient_PlaceCallProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(testVoiceConfig(srv.URL), nil)
	_, err := client.PlaceCall(context.Background(), dispatch.CallRequest{DriverPhone: "+15550002001"})
	if err == nil {
		t.Fatalf("expected error on 503")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected provider status in error, got %v", err)
	}
}

func TestClient_PlaceCallMissingExecutionID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"queued"}`))
	}))
	defer srv.Close()

	client := NewClient(testVoiceConfig(srv.URL), nil)
	if _, err := client.PlaceCall(context.Background(), dispatch.CallRequest{DriverPhone: "+15550002001"}); err == nil {
		t.Fatalf("expected error when provider omits execution_id")
	}
}

func TestClient_PlaceCallRequiresPhone(t *testing.T) {
	client := NewClient(testVoiceConfig("http://localhost:9"), nil)
	if _, err := client.PlaceCall(context.Background(), dispatch.CallRequest{}); err == nil {
		t.Fatalf("expected error for missing recipient phone")
	}
}
