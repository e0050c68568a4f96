package api

import (
	"net/http"

	"github.com/content-syndication-pipeline/internal/config"
	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SiteHandler handles site endpoints
type SiteHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewSiteHandler creates a new SiteHandler
func NewSiteHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *SiteHandler {
	return &SiteHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "site").Logger(),
	}
}

// List handles GET /v1/sites
func (h *SiteHandler) List(c *gin.Context) {
	sites, err := h.services.Sites.List(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err, "list sites")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": sites, "total": len(sites)})
}

// Create handles POST /v1/sites
func (h *SiteHandler) Create(c *gin.Context) {
	var req models.SiteRequest
	if !bindJSON(c, &req) {
		return
	}

	site, err := h.services.Sites.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err, "create site")
		return
	}

	h.log.Info().Str("site_id", site.ID).Str("url", site.URL).Msg("Site created")
	c.JSON(http.StatusCreated, site)
}

// Get handles GET /v1/sites/:site_id
func (h *SiteHandler) Get(c *gin.Context) {
	site, err := h.services.Sites.Get(c.Request.Context(), c.Param("site_id"))
	if err != nil {
		respondError(c, h.log, err, "get site")
		return
	}
	c.JSON(http.StatusOK, site)
}

// Update handles PUT /v1/sites/:site_id.
// An empty app_password keeps the stored credential.
func (h *SiteHandler) Update(c *gin.Context) {
	var req models.SiteRequest
	if !bindJSON(c, &req) {
		return
	}

	site, err := h.services.Sites.Update(c.Request.Context(), c.Param("site_id"), &req)
	if err != nil {
		respondError(c, h.log, err, "update site")
		return
	}
	c.JSON(http.StatusOK, site)
}

// Delete handles DELETE /v1/sites/:site_id
func (h *SiteHandler) Delete(c *gin.Context) {
	id := c.Param("site_id")
	if err := h.services.Sites.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err, "delete site")
		return
	}
	h.log.Info().Str("site_id", id).Msg("Site deleted")
	c.Status(http.StatusNoContent)
}

// TestConnection handles POST /v1/sites/:site_id/test-connection
func (h *SiteHandler) TestConnection(c *gin.Context) {
	ctx, cancel := contextWithTimeout(c, h.cfg.Publisher.Timeout)
	defer cancel()

	info, err := h.services.Sites.TestConnection(ctx, c.Param("site_id"))
	if err != nil {
		respondError(c, h.log, err, "test connection")
		return
	}
	c.JSON(http.StatusOK, info)
}
