package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/quake-watch/internal/domain"
)

// QuakeNormalizer implements Normalizer using the domain normalizer with
// optional reverse geocoding enrichment.
type QuakeNormalizer struct {
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewNormalizer creates a QuakeNormalizer. Pass a nil geocoder to disable
// geocoding enrichment.
func NewNormalizer(geocoder domain.Geocoder, logger *slog.Logger) *QuakeNormalizer {
	return &QuakeNormalizer{
		geocoder: geocoder,
		logger:   logger,
	}
}

func (n *QuakeNormalizer) Normalize(ctx context.Context, raws []domain.RawRecord) []domain.Earthquake {
	quakes := domain.NormalizeAll(raws)
	if n.geocoder == nil {
		return quakes
	}
	for i := range quakes {
		if ctx.Err() != nil {
			break
		}
		quakes[i] = domain.EnrichWithGeocoding(ctx, quakes[i], n.geocoder, n.logger)
	}
	return quakes
}
