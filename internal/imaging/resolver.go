package imaging

import (
	"context"
	"errors"

	"github.com/content-syndication-pipeline/internal/config"
	"github.com/content-syndication-pipeline/internal/models"
	"github.com/rs/zerolog"
)

// Resolver walks the provider chain in order. The first provider whose image
// decodes and takes the watermark wins.
type Resolver struct {
	providers []Provider
	log       zerolog.Logger
}

// NewResolver returns a resolver over providers, tried in the given order.
func NewResolver(providers []Provider, log zerolog.Logger) *Resolver {
	return &Resolver{providers: providers, log: log.With().Str("component", "images").Logger()}
}

// Build assembles the chain named in cfg.Providers. Providers that lack
// credentials are left out. A nil inspector skips screening of original images.
func Build(cfg config.ImagesConfig, gen Generator, inspector Inspector, userAgent string, log zerolog.Logger) *Resolver {
	dl := NewDownloader(cfg.Timeout, cfg.MaxBytes, userAgent)
	var chain []Provider
	for _, name := range cfg.Providers {
		switch models.ImageSource(name) {
		case models.ImageSourceOriginal:
			chain = append(chain, NewOriginal(dl, inspector))
		case models.ImageSourceBing:
			chain = append(chain, NewBing(dl, ""))
		case models.ImageSourcePexels:
			if cfg.PexelsKey == "" {
				log.Warn().Msg("Pexels provider configured without API key, skipping")
				continue
			}
			chain = append(chain, NewPexels(dl, cfg.PexelsKey, ""))
		case models.ImageSourceUnsplash:
			if cfg.UnsplashKey == "" {
				log.Warn().Msg("Unsplash provider configured without access key, skipping")
				continue
			}
			chain = append(chain, NewUnsplash(dl, cfg.UnsplashKey, ""))
		case models.ImageSourceFlux:
			if gen == nil {
				continue
			}
			chain = append(chain, NewFlux(dl, gen, cfg.FluxModel, cfg.FluxSize))
		}
	}
	return NewResolver(chain, log)
}

// Resolve never fails; when nothing works the result has source none.
func (r *Resolver) Resolve(ctx context.Context, req *models.ImageRequest) *models.ResolvedImage {
	text := ""
	if req.Site != nil {
		text = req.Site.Watermark()
	}

	for _, p := range r.providers {
		if ctx.Err() != nil {
			break
		}
		log := r.log.With().Str("provider", string(p.Name())).Logger()

		img, err := p.Find(ctx, req)
		if err != nil {
			if !errors.Is(err, models.ErrImageUnavailable) {
				log.Debug().Err(err).Msg("Image provider failed")
			}
			continue
		}

		data, err := Watermark(img.Data, text)
		if err != nil {
			log.Debug().Err(err).Str("url", img.URL).Msg("Image rejected")
			continue
		}

		alt := img.AltText
		if alt == "" {
			alt = req.Title
		}
		log.Debug().Str("url", img.URL).Int("bytes", len(data)).Msg("Image resolved")
		return &models.ResolvedImage{
			Source:      p.Name(),
			URL:         img.URL,
			Data:        data,
			ContentType: "image/jpeg",
			Filename:    Filename(req.Title),
			AltText:     alt,
		}
	}
	return &models.ResolvedImage{Source: models.ImageSourceNone}
}
