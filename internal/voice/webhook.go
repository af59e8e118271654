package voice

import (
	"context"
	"errors"
	"net/http"

	"dispatch-platform/internal/dispatch"
	"dispatch-platform/pkg/logger"
	"dispatch-platform/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// CallbackPayload is the JSON body the provider posts after a call attempt
// finishes. execution_id is the correlation id returned by PlaceCall.
type CallbackPayload struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	CallStatus  string `json:"call_status"`

	ConversationData *ConversationData `json:"conversation_data,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

type ConversationData struct {
	DriverResponse string `json:"driver_response"`
}

// DriverResponse returns the free-text response, if the conversation produced one.
func (p CallbackPayload) DriverResponse() string {
	if p.ConversationData == nil {
		return ""
	}
	return p.ConversationData.DriverResponse
}

// SlotReleaser frees a concurrent-call slot once a call has reached its
// outcome. Implemented by Client; optional.
type SlotReleaser interface {
	ReleaseSlot(ctx context.Context)
}

// WebhookHandler is the provider-facing callback endpoint.
//
// It is pure adaptation: parse the payload, classify the response, delegate
// to the engine, map the result to HTTP. No business decision is made here.
type WebhookHandler struct {
	Engine *dispatch.Engine
	Slots  SlotReleaser
}

func (h WebhookHandler) HandleCallback(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Engine == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "engine not configured"})
		return
	}

	var payload CallbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Warn("callback parse failed", "err", err)
		metrics.CallbacksTotal.WithLabelValues("invalid").Inc()
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}
	if payload.ExecutionID == "" {
		metrics.CallbacksTotal.WithLabelValues("invalid").Inc()
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Missing execution_id"})
		return
	}

	// The call this callback reports on ended when the provider posted its
	// outcome. Free its slot now: the engine dials the next candidate inside
	// HandleOutcome, and that dial needs the slot this call was holding.
	if h.Slots != nil {
		h.Slots.ReleaseSlot(c.Request.Context())
	}

	outcome := dispatch.ClassifyResponse(payload.Status, payload.CallStatus, payload.DriverResponse())

	result, err := h.Engine.HandleOutcome(c.Request.Context(), payload.ExecutionID, outcome, payload.DriverResponse())
	if err != nil {
		if errors.Is(err, dispatch.ErrEntryNotFound) {
			// Duplicate or stale delivery; the first one already won.
			log.Info("callback for unknown or resolved call", "execution_id", payload.ExecutionID)
			metrics.CallbacksTotal.WithLabelValues("duplicate").Inc()
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error":        "Queue entry not found",
				"execution_id": payload.ExecutionID,
			})
			return
		}
		log.Error("callback processing failed", "execution_id", payload.ExecutionID, "err", err)
		metrics.CallbacksTotal.WithLabelValues("error").Inc()
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	metrics.CallbacksTotal.WithLabelValues(string(result.Action)).Inc()

	c.JSON(http.StatusOK, callbackResponse(outcome, result))
}

func callbackResponse(outcome dispatch.Outcome, result dispatch.AssignmentResult) gin.H {
	body := gin.H{
		"success": result.Action != dispatch.ActionCallFailed,
		"outcome": outcome,
		"action":  result.Action,
	}
	switch result.Action {
	case dispatch.ActionAssigned:
		body["booking_id"] = result.Booking.ID
		body["driver_id"] = result.Driver.ID
		body["driver_name"] = result.Driver.Name
	case dispatch.ActionCalledNext:
		body["driver_id"] = result.Driver.ID
		body["driver_name"] = result.Driver.Name
	case dispatch.ActionCallFailed:
		if result.Err != nil {
			body["error"] = result.Err.Error()
		}
	}
	return body
}
