package api

import (
	"net/http"

	"github.com/content-syndication-pipeline/internal/config"
	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SourceHandler handles source endpoints
type SourceHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewSourceHandler creates a new SourceHandler
func NewSourceHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *SourceHandler {
	return &SourceHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "source").Logger(),
	}
}

// List handles GET /v1/sources?site_id=
func (h *SourceHandler) List(c *gin.Context) {
	sources, err := h.services.Sources.List(c.Request.Context(), c.Query("site_id"))
	if err != nil {
		respondError(c, h.log, err, "list sources")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": sources, "total": len(sources)})
}

// Create handles POST /v1/sources
func (h *SourceHandler) Create(c *gin.Context) {
	var req models.SourceRequest
	if !bindJSON(c, &req) {
		return
	}

	src, err := h.services.Sources.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.log, err, "create source")
		return
	}

	h.log.Info().Str("source_id", src.ID).Str("site_id", src.SiteID).Str("type", string(src.Type)).Msg("Source created")
	c.JSON(http.StatusCreated, src)
}

// Get handles GET /v1/sources/:source_id
func (h *SourceHandler) Get(c *gin.Context) {
	src, err := h.services.Sources.Get(c.Request.Context(), c.Param("source_id"))
	if err != nil {
		respondError(c, h.log, err, "get source")
		return
	}
	c.JSON(http.StatusOK, src)
}

// Update handles PUT /v1/sources/:source_id
func (h *SourceHandler) Update(c *gin.Context) {
	var req models.SourceRequest
	if !bindJSON(c, &req) {
		return
	}

	src, err := h.services.Sources.Update(c.Request.Context(), c.Param("source_id"), &req)
	if err != nil {
		respondError(c, h.log, err, "update source")
		return
	}
	c.JSON(http.StatusOK, src)
}

// Delete handles DELETE /v1/sources/:source_id
func (h *SourceHandler) Delete(c *gin.Context) {
	if err := h.services.Sources.Delete(c.Request.Context(), c.Param("source_id")); err != nil {
		respondError(c, h.log, err, "delete source")
		return
	}
	c.Status(http.StatusNoContent)
}

// Poll handles POST /v1/sources/:source_id/poll.
// The poll runs inline and ignores the source's cadence.
func (h *SourceHandler) Poll(c *gin.Context) {
	ctx, cancel := contextWithTimeout(c, h.cfg.Poller.SourceTimeout)
	defer cancel()

	result, err := h.services.Poller.PollSource(ctx, c.Param("source_id"), true)
	if err != nil {
		respondError(c, h.log, err, "poll source")
		return
	}
	c.JSON(http.StatusOK, result)
}
