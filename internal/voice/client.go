package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"dispatch-platform/internal/config"
	"dispatch-platform/internal/dispatch"
	"dispatch-platform/pkg/logger"
	"dispatch-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Client places outbound calls against the voice-dispatch provider's HTTP API.
// It implements dispatch.CallGateway.
//
// The provider runs the conversation (voice script built from the request
// context) and later reports the outcome to our callback endpoint, correlated
// by the execution id returned here.

var ErrProviderBusy = errors.New("voice: provider call capacity exhausted")

const (
	callCapKey = "voice:outbound_calls"

	// callCapTTL bounds a leaked slot to roughly the longest plausible call.
	callCapTTL = 10 * time.Minute
)

type Client struct {
	cfg  config.VoiceConfig
	http *http.Client

	// rdb enables the concurrent-call cap; nil disables it.
	rdb *redis.Client
}

func NewClient(cfg config.VoiceConfig, rdb *redis.Client) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
		rdb:  rdb,
	}
}

type placeCallRequest struct {
	AgentID        string         `json:"agent_id"`
	RecipientPhone string         `json:"recipient_phone_number"`
	FromPhone      string         `json:"from_phone_number"`
	UserData       map[string]any `json:"user_data"`
}

type placeCallResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

func (c *Client) PlaceCall(ctx context.Context, req dispatch.CallRequest) (string, error) {
	if req.DriverPhone == "" {
		return "", fmt.Errorf("voice: recipient phone is required")
	}

	capped := c.rdb != nil && c.cfg.MaxConcurrentCalls > 0
	if capped {
		ok, err := utils.AcquireCallCap(ctx, c.rdb, callCapKey, c.cfg.MaxConcurrentCalls, callCapTTL)
		if err != nil {
			// The cap is protection, not correctness; a Redis outage must not
			// stop dispatching.
			logger.From(ctx).Warn("call cap check failed, proceeding", "err", err)
			capped = false
		} else if !ok {
			return "", ErrProviderBusy
		}
	}

	callID, err := c.placeCall(ctx, req)
	if err != nil && capped {
		if relErr := utils.ReleaseCallCap(ctx, c.rdb, callCapKey); relErr != nil {
			logger.From(ctx).Warn("call cap release failed", "err", relErr)
		}
	}
	return callID, err
}

func (c *Client) placeCall(ctx context.Context, req dispatch.CallRequest) (string, error) {
	body := placeCallRequest{
		AgentID:        c.cfg.AgentID,
		RecipientPhone: req.DriverPhone,
		FromPhone:      c.cfg.FromNumber,
		UserData: map[string]any{
			"booking_id":           req.BookingID,
			"driver_name":          req.DriverName,
			"pickup_location":      req.PickupLocation,
			"destination_facility": req.DestinationFacility,
			"contact_phone":        req.ContactPhone,
			"distance_km":          req.DistanceKm,
		},
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("voice: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/call", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("voice: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("voice: place call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("voice: provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out placeCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("voice: decode response: %w", err)
	}
	if out.ExecutionID == "" {
		return "", fmt.Errorf("voice: provider response missing execution_id")
	}
	return out.ExecutionID, nil
}

// ReleaseSlot frees one concurrent-call slot; the webhook handler calls it
// when a placed call reaches its outcome. Best-effort, the TTL is the backstop.
func (c *Client) ReleaseSlot(ctx context.Context) {
	if c.rdb == nil || c.cfg.MaxConcurrentCalls <= 0 {
		return
	}
	if err := utils.ReleaseCallCap(ctx, c.rdb, callCapKey); err != nil {
		logger.From(ctx).Warn("call cap release failed", "err", err)
	}
}
