package httpapi

import (
	"errors"
	"net/http"
	"time"

	"dispatch-platform/internal/auth"
	"dispatch-platform/internal/dispatch"
	"dispatch-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

// Handlers groups operator-API handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth    *auth.Manager
	Store   dispatch.Store
	Engine  *dispatch.Engine
	Reports *reporting.Service

	// Credentials maps operator user id to (password, role). A directory
	// service can replace this without touching the handler.
	Credentials CredentialChecker
}

// CredentialChecker validates an operator login and returns the role.
type CredentialChecker func(userID, password string) (role string, ok bool)

// --- Auth ---

type loginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || h.Credentials == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and password required"})
		return
	}
	role, ok := h.Credentials(req.UserID, req.Password)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Bookings ---

func (h Handlers) GetBooking(c *gin.Context) {
	if h.Store == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store not configured"})
		return
	}
	bookingID := c.Param("booking_id")
	if bookingID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "booking_id required"})
		return
	}

	booking, err := h.Store.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		if errors.Is(err, dispatch.ErrBookingNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	entries, err := h.Store.ListEntries(c.Request.Context(), bookingID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking, "queue": entries})
}

// StartDispatch kicks off the calling chain for a booking whose candidates
// have not been attempted yet.
func (h Handlers) StartDispatch(c *gin.Context) {
	if h.Engine == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "engine not configured"})
		return
	}
	bookingID := c.Param("booking_id")
	if bookingID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "booking_id required"})
		return
	}

	result, err := h.Engine.StartDispatch(c.Request.Context(), bookingID)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrBookingNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "booking not found"})
		case errors.Is(err, dispatch.ErrAlreadyDispatched), errors.Is(err, dispatch.ErrEntryNotFound):
			// A competing operator (or callback) got there first.
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "dispatch already started"})
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	body := gin.H{"success": result.Action != dispatch.ActionCallFailed, "action": result.Action}
	if result.Driver != nil {
		body["driver_id"] = result.Driver.ID
		body["driver_name"] = result.Driver.Name
	}
	if result.Err != nil {
		body["error"] = result.Err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// --- Reports ---

func (h Handlers) DispatchSummary(c *gin.Context) {
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}

	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
		return
	}

	sum, err := h.Reports.Summary(c.Request.Context(), reporting.SummaryRequest{
		Range: reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sum)
}
