package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Normalize converts one raw feed record into an Earthquake. It never fails:
// missing keys, wrong types and short arrays degrade to zero values, and
// nested groups that are absent or malformed come back nil or empty.
func Normalize(raw RawRecord) Earthquake {
	eq := Earthquake{
		ID:         stringField(raw, "earthquake_id"),
		Provider:   stringField(raw, "provider"),
		Title:      stringField(raw, "title"),
		OccurredAt: stringField(raw, "date"),
		Magnitude:  floatOrZero(raw["mag"]),
		DepthKm:    floatOrZero(raw["depth"]),
		Airports:   []Airport{},
	}
	if eq.OccurredAt == "" {
		eq.OccurredAt = stringField(raw, "date_time")
	}

	eq.Longitude, eq.Latitude = parseCoordinates(raw["geojson"])

	eq.RecordedAtEpoch = intOrZero(raw["created_at"])
	if eq.RecordedAtEpoch == 0 {
		eq.RecordedAtEpoch = clock.Now().Unix()
	}

	if props, ok := raw["location_properties"].(map[string]any); ok {
		eq.NearestCity = parseCity(props["closestCity"])
		eq.EpicenterName = parseEpicenter(props["epiCenter"])
		eq.Airports = parseAirports(props["airports"])
	}

	return eq
}

// NormalizeAll normalizes a batch, preserving input order.
func NormalizeAll(raws []RawRecord) []Earthquake {
	out := make([]Earthquake, len(raws))
	for i, raw := range raws {
		out[i] = Normalize(raw)
	}
	return out
}

// parseCoordinates reads geojson.coordinates as [lon, lat].
func parseCoordinates(v any) (lon, lat float64) {
	geo, ok := v.(map[string]any)
	if !ok {
		return 0, 0
	}
	coords, ok := geo["coordinates"].([]any)
	if !ok {
		return 0, 0
	}
	if len(coords) > 0 {
		lon = floatOrZero(coords[0])
	}
	if len(coords) > 1 {
		lat = floatOrZero(coords[1])
	}
	return lon, lat
}

// parseCity keeps the closest-city group only when it names a city.
func parseCity(v any) *City {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	name := stringField(m, "name")
	if name == "" {
		return nil
	}
	return &City{
		Name:           name,
		Code:           int(intOrZero(m["cityCode"])),
		DistanceMeters: floatOrZero(m["distance"]),
		Population:     intOrZero(m["population"]),
	}
}

func parseEpicenter(v any) *string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	name := stringField(m, "name")
	if name == "" {
		return nil
	}
	return &name
}

// parseAirports skips entries that are not objects.
func parseAirports(v any) []Airport {
	list, ok := v.([]any)
	if !ok {
		return []Airport{}
	}
	out := make([]Airport, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, Airport{
			Name:           stringField(m, "name"),
			DistanceMeters: floatOrZero(m["distance"]),
		})
	}
	return out
}

// stringField returns m[key] as a string. Numbers are formatted so that
// numeric IDs survive; anything else yields "".
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// floatOrZero accepts JSON numbers and numeric strings, returning 0 for
// anything else, including NaN and infinities.
func floatOrZero(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// intOrZero truncates numeric values to int64.
func intOrZero(v any) int64 {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	f := floatOrZero(v)
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}
