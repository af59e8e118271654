package main

import (
	"time"

	"dispatch-platform/internal/auth"
	"dispatch-platform/internal/config"
	"dispatch-platform/internal/dispatch"
	"dispatch-platform/internal/httpapi"
	"dispatch-platform/internal/rbac"
	"dispatch-platform/internal/reporting"
	"dispatch-platform/internal/voice"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	Auth    *auth.Manager
	AuthCfg config.AuthConfig
	Store   dispatch.Store
	Engine  *dispatch.Engine
	Gateway *voice.Client
	Reports *reporting.Service
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider callback (public). The provider posts from browser-embedded and
	// server contexts, so the group is CORS-enabled with OPTIONS preflight.
	// NOTE: protect with provider signature validation when the provider ships it.
	webhooks := r.Group("/webhooks")
	webhooks.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))
	{
		h := voice.WebhookHandler{Engine: deps.Engine, Slots: deps.Gateway}
		webhooks.POST("/voice/callback", h.HandleCallback)
	}

	api := httpapi.Handlers{
		Auth:        deps.Auth,
		Store:       deps.Store,
		Engine:      deps.Engine,
		Reports:     deps.Reports,
		Credentials: bootstrapCredentials(deps.AuthCfg),
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/login", api.Login)

		protected := v1.Group("")
		protected.Use(auth.RequireAccessToken(deps.Auth))
		{
			bookings := protected.Group("/bookings")
			{
				bookings.GET("/:booking_id",
					rbac.RequireAnyRole(rbac.RoleDispatcher, rbac.RoleViewer), api.GetBooking)
				bookings.POST("/:booking_id/dispatch",
					rbac.RequireAnyRole(rbac.RoleDispatcher), api.StartDispatch)
			}

			reports := protected.Group("/reports")
			reports.Use(rbac.RequireAnyRole(rbac.RoleDispatcher, rbac.RoleViewer))
			{
				reports.GET("/summary", api.DispatchSummary)
			}
		}
	}
}

// bootstrapCredentials validates against the single env-configured operator.
// A user directory can replace this checker without touching handlers.
func bootstrapCredentials(cfg config.AuthConfig) httpapi.CredentialChecker {
	return func(userID, password string) (string, bool) {
		if cfg.OperatorUserID == "" {
			return "", false
		}
		if userID != cfg.OperatorUserID || password != cfg.OperatorPassword {
			return "", false
		}
		return rbac.RoleAdmin, true
	}
}
