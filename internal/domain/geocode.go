package domain

import (
	"context"
	"log/slog"
)

// EnrichWithGeocoding fills PlaceName for records that have coordinates but no
// provider epicenter label. A nil geocoder or a failed lookup leaves the record
// unchanged.
func EnrichWithGeocoding(ctx context.Context, eq Earthquake, geocoder Geocoder, logger *slog.Logger) Earthquake {
	if geocoder == nil || eq.EpicenterName != nil || eq.PlaceName != "" || !eq.HasCoordinates() {
		return eq
	}

	result, err := geocoder.ReverseGeocode(ctx, eq.Latitude, eq.Longitude)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"earthquake_id", eq.ID,
			"lat", eq.Latitude,
			"lon", eq.Longitude,
			"error", err,
		)
		return eq
	}

	switch {
	case result.PlaceName != "":
		eq.PlaceName = result.PlaceName
	case result.FormattedAddress != "":
		eq.PlaceName = result.FormattedAddress
	}
	return eq
}
