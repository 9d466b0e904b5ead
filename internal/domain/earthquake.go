package domain

// RawRecord is one decoded JSON object from the upstream feed. Values keep the
// shapes produced by encoding/json (map[string]any, []any, string,
// json.Number, float64, bool, nil).
type RawRecord map[string]any

// City is the populated place nearest to an epicenter.
type City struct {
	Name           string  `json:"name"`
	Code           int     `json:"code"`
	DistanceMeters float64 `json:"distance_meters"`
	Population     int64   `json:"population"`
}

// Airport is an airport near the epicenter.
type Airport struct {
	Name           string  `json:"name"`
	DistanceMeters float64 `json:"distance_meters"`
}

// Earthquake is the canonical normalized observation.
type Earthquake struct {
	ID              string  `json:"id"`
	Provider        string  `json:"provider"`
	Title           string  `json:"title"`
	OccurredAt      string  `json:"occurred_at"`
	Magnitude       float64 `json:"magnitude"`
	DepthKm         float64 `json:"depth_km"`
	Longitude       float64 `json:"longitude"`
	Latitude        float64 `json:"latitude"`
	RecordedAtEpoch int64   `json:"recorded_at_epoch"`

	NearestCity   *City     `json:"nearest_city,omitempty"`
	EpicenterName *string   `json:"epicenter_name,omitempty"`
	Airports      []Airport `json:"airports"`

	// PlaceName is filled by reverse geocoding when the provider sent no epicenter.
	PlaceName string `json:"place_name,omitempty"`
}

// HasCoordinates reports whether the record carries a non-origin position.
func (e Earthquake) HasCoordinates() bool {
	return e.Latitude != 0 || e.Longitude != 0
}

// Epicenter returns the epicenter label, or "" when the provider sent none.
func (e Earthquake) Epicenter() string {
	if e.EpicenterName == nil {
		return ""
	}
	return *e.EpicenterName
}
