package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/api/handlers"
	"github.com/customeros/mailsync/api/middleware"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services"
	"github.com/customeros/mailsync/services/tracking"
)

const (
	AppSource    = "mailsync"
	APIKeyHeader = "X-CUSTOMER-OS-API-KEY"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, s *services.Services, repos *repository.Repositories, log logger.Logger, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	apiHandlers := handlers.InitHandlers(handlers.Dependencies{
		Connections:   s.ConnectionManager,
		Campaigns:     s.Scheduler,
		Codec:         s.Codec,
		SyncStates:    repos.SyncStateRepository,
		Messages:      repos.MailMessageRepository,
		CampaignStore: repos.CampaignRepository,
		Log:           log,
	})

	// Health check and status endpoints (no custom context needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(s.ConnectionManager))

	// Tracking endpoints are hit by mail clients, never behind the API key
	r.GET(tracking.OpenPath, apiHandlers.Tracking.Open())
	r.GET(tracking.ClickPath, apiHandlers.Tracking.Click())

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  APIKeyHeader,
		ValidAPIKey: apikey,
	})

	// API group with version and custom context
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.CustomContextMiddleware(AppSource)) // Add custom context for all /v1/* endpoints
	api.Use(middleware.TracingMiddleware())                // Add tracing for all /v1/* endpoints
	{
		sync := api.Group("/sync")
		{
			sync.POST("", apiHandlers.Sync.TriggerAll())
			sync.POST("/:accountId", apiHandlers.Sync.TriggerAccount())
			sync.GET("/states", apiHandlers.Sync.ListStates())
			sync.GET("/states/:accountId", apiHandlers.Sync.GetState())
		}

		api.GET("/accounts/:accountId/messages", apiHandlers.Messages.ListByAccount())
		api.GET("/threads/:threadId/messages", apiHandlers.Messages.ListByThread())

		campaigns := api.Group("/campaigns")
		{
			campaigns.GET("/:id", apiHandlers.Campaigns.Get())
			campaigns.POST("/:id/send-next-batch", apiHandlers.Campaigns.SendNextBatch())
			campaigns.POST("/:id/retry", apiHandlers.Campaigns.Retry())
			campaigns.POST("/:id/retarget", apiHandlers.Campaigns.Retarget())
			campaigns.POST("/:id/pause", apiHandlers.Campaigns.Pause())
			campaigns.POST("/:id/resume", apiHandlers.Campaigns.Resume())
			campaigns.POST("/:id/start", apiHandlers.Campaigns.StartNow())
			campaigns.POST("/:id/queue", apiHandlers.Campaigns.Queue())
		}
	}
}
