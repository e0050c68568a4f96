package api

import (
	"net/http"

	"github.com/content-syndication-pipeline/internal/models"
	"github.com/content-syndication-pipeline/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ArticleHandler handles article endpoints
type ArticleHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewArticleHandler creates a new ArticleHandler
func NewArticleHandler(services *service.Services, log zerolog.Logger) *ArticleHandler {
	return &ArticleHandler{
		services: services,
		log:      log.With().Str("handler", "article").Logger(),
	}
}

// List handles GET /v1/articles
// Query params: site_id, source_id, status, page, per_page
func (h *ArticleHandler) List(c *gin.Context) {
	filter := models.ArticleFilter{
		SiteID:   c.Query("site_id"),
		SourceID: c.Query("source_id"),
		Status:   models.ArticleStatus(c.Query("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be one of: pending, processing, published, failed, duplicate"})
		return
	}

	var ok bool
	if filter.Page, ok = queryInt(c, "page"); !ok {
		return
	}
	if filter.PerPage, ok = queryInt(c, "per_page"); !ok {
		return
	}

	list, err := h.services.Articles.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.log, err, "list articles")
		return
	}
	c.JSON(http.StatusOK, list)
}

// Submit handles POST /v1/articles
func (h *ArticleHandler) Submit(c *gin.Context) {
	var candidate models.Candidate
	if !bindJSON(c, &candidate) {
		return
	}

	article, err := h.services.Articles.Submit(c.Request.Context(), &candidate)
	if err != nil {
		respondError(c, h.log, err, "submit article")
		return
	}

	h.log.Info().Str("article_id", article.ID).Str("site_id", article.SiteID).Msg("Article submitted")
	c.JSON(http.StatusAccepted, article)
}

// Get handles GET /v1/articles/:article_id
func (h *ArticleHandler) Get(c *gin.Context) {
	article, err := h.services.Articles.Get(c.Request.Context(), c.Param("article_id"))
	if err != nil {
		respondError(c, h.log, err, "get article")
		return
	}
	c.JSON(http.StatusOK, article)
}

// Delete handles DELETE /v1/articles/:article_id
func (h *ArticleHandler) Delete(c *gin.Context) {
	if err := h.services.Articles.Delete(c.Request.Context(), c.Param("article_id")); err != nil {
		respondError(c, h.log, err, "delete article")
		return
	}
	c.Status(http.StatusNoContent)
}

// Retry handles POST /v1/articles/:article_id/retry
func (h *ArticleHandler) Retry(c *gin.Context) {
	id := c.Param("article_id")
	article, err := h.services.Articles.Retry(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err, "retry article")
		return
	}

	h.log.Info().Str("article_id", id).Msg("Article retry accepted")
	c.JSON(http.StatusAccepted, article)
}
