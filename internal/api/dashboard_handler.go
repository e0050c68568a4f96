package api

import (
	"net/http"

	"github.com/content-syndication-pipeline/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// DashboardHandler serves aggregate views
type DashboardHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(services *service.Services, log zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		services: services,
		log:      log.With().Str("handler", "dashboard").Logger(),
	}
}

// Stats handles GET /v1/dashboard/stats?site_id=
func (h *DashboardHandler) Stats(c *gin.Context) {
	stats, err := h.services.Stats.Stats(c.Request.Context(), c.Query("site_id"))
	if err != nil {
		respondError(c, h.log, err, "load stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Recent handles GET /v1/dashboard/recent?limit=
func (h *DashboardHandler) Recent(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	items, err := h.services.Stats.Recent(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.log, err, "load recent activity")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Daily handles GET /v1/dashboard/daily?site_id=&days=
func (h *DashboardHandler) Daily(c *gin.Context) {
	days, ok := queryInt(c, "days")
	if !ok {
		return
	}
	series, err := h.services.Stats.Daily(c.Request.Context(), c.Query("site_id"), days)
	if err != nil {
		respondError(c, h.log, err, "load daily counts")
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": series})
}
