package api

import (
	"context"
	"net/http"
	"time"

	"github.com/content-syndication-pipeline/internal/config"
	"github.com/content-syndication-pipeline/internal/service"
	"github.com/content-syndication-pipeline/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// NewRouter creates and configures the Gin router
func NewRouter(services *service.Services, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware())

	// Handlers
	siteHandler := NewSiteHandler(services, cfg, log)
	sourceHandler := NewSourceHandler(services, cfg, log)
	articleHandler := NewArticleHandler(services, log)
	dashboardHandler := NewDashboardHandler(services, log)

	// Health check
	router.GET("/health", healthCheck)
	router.GET("/metrics", metricsHandler(services))

	// API v1
	v1 := router.Group("/v1")
	{
		sites := v1.Group("/sites")
		{
			sites.GET("", siteHandler.List)
			sites.POST("", siteHandler.Create)
			sites.GET("/:site_id", siteHandler.Get)
			sites.PUT("/:site_id", siteHandler.Update)
			sites.DELETE("/:site_id", siteHandler.Delete)
			sites.POST("/:site_id/test-connection", siteHandler.TestConnection)
		}

		sources := v1.Group("/sources")
		{
			sources.GET("", sourceHandler.List)
			sources.POST("", sourceHandler.Create)
			sources.GET("/:source_id", sourceHandler.Get)
			sources.PUT("/:source_id", sourceHandler.Update)
			sources.DELETE("/:source_id", sourceHandler.Delete)
			sources.POST("/:source_id/poll", sourceHandler.Poll)
		}

		articles := v1.Group("/articles")
		{
			articles.GET("", articleHandler.List)
			articles.POST("", articleHandler.Submit)
			articles.GET("/:article_id", articleHandler.Get)
			articles.DELETE("/:article_id", articleHandler.Delete)
			articles.POST("/:article_id/retry", articleHandler.Retry)
		}

		dashboard := v1.Group("/dashboard")
		{
			dashboard.GET("/stats", dashboardHandler.Stats)
			dashboard.GET("/recent", dashboardHandler.Recent)
			dashboard.GET("/daily", dashboardHandler.Daily)
		}
	}

	return router
}

// healthCheck returns the health status
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   logger.ServiceName,
	})
}

// metricsHandler returns article counts by status and upcoming scheduled runs
func metricsHandler(services *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		body := gin.H{"timestamp": time.Now().Format(time.RFC3339)}
		if stats, err := services.Stats.Stats(ctx, ""); err == nil {
			body["articles"] = stats.Articles
			body["sites"] = stats.Sites
			body["sources"] = stats.Sources
		}

		schedule := gin.H{}
		if services.Schedule != nil {
			for name, next := range services.Schedule.NextRuns() {
				if !next.IsZero() {
					schedule[name] = next.Format(time.RFC3339)
				}
			}
		}
		body["next_runs"] = schedule

		c.JSON(http.StatusOK, body)
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Msg("Panic recovered")
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// contextWithTimeout creates a context with timeout for handlers
func contextWithTimeout(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}
