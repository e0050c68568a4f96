package llm

import (
	"context"
	"fmt"

	"github.com/content-syndication-pipeline/internal/models"
	"github.com/rs/zerolog"
)

const inspectPrompt = `Decide whether this image is suitable as the featured image of a news article.
Reject it if it shows a visible watermark, a text overlay, a logo, or is of low quality.
Respond with JSON only:
{"clean": true or false, "has_watermark": bool, "has_text": bool, "has_logo": bool, "quality": "high|medium|low", "reason": "short explanation"}`

// Inspector screens images with a vision model.
type Inspector struct {
	client *Client
	model  string
	log    zerolog.Logger
}

// NewInspector returns an Inspector that asks model about each image.
func NewInspector(client *Client, model string, log zerolog.Logger) *Inspector {
	return &Inspector{client: client, model: model, log: log.With().Str("component", "vision").Logger()}
}

// Inspect returns the model's review of the image at imageURL.
func (i *Inspector) Inspect(ctx context.Context, imageURL string) (*models.ImageReview, error) {
	reply, err := i.client.Look(ctx, i.model, inspectPrompt, imageURL)
	if err != nil {
		return nil, err
	}
	var review models.ImageReview
	if err := decodeObject(reply, &review); err != nil {
		return nil, fmt.Errorf("parse review: %w", err)
	}
	i.log.Debug().
		Str("url", imageURL).
		Bool("clean", review.Clean).
		Str("reason", review.Reason).
		Msg("Image reviewed")
	return &review, nil
}
