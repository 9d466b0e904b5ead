// Package render builds map artifacts off the refresh path.
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/couchcryptid/quake-watch/internal/domain"
)

// Style is how records are drawn on the map.
type Style string

const (
	StyleMarkers Style = "markers"
	StyleCluster Style = "cluster"
	StyleHeatmap Style = "heatmap"
)

// Tiles selects the base layer.
type Tiles string

const (
	TilesStreet    Tiles = "street"
	TilesSatellite Tiles = "satellite"
)

const (
	defaultZoom   = 6
	focusZoom     = 9
	heatmapRadius = 18
)

// Default centre: central Anatolia.
var defaultCenter = LatLon{Lat: 39.0, Lon: 35.0}

// LatLon is a map position.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Focus is a single record highlighted on its own map.
type Focus struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Magnitude float64 `json:"magnitude"`
	Title     string  `json:"title"`
}

// Options control one render.
type Options struct {
	MinMagnitude float64
	Style        Style
	Tiles        Tiles
	// Focus, when set, replaces the record layer with a single marker.
	Focus *Focus
}

// ParseStyle accepts a style name; empty means markers.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case "", StyleMarkers:
		return StyleMarkers, nil
	case StyleCluster:
		return StyleCluster, nil
	case StyleHeatmap:
		return StyleHeatmap, nil
	default:
		return "", fmt.Errorf("unknown map style %q", s)
	}
}

// ParseTiles accepts a base layer name; empty means street.
func ParseTiles(s string) (Tiles, error) {
	switch Tiles(strings.ToLower(strings.TrimSpace(s))) {
	case "", TilesStreet:
		return TilesStreet, nil
	case TilesSatellite:
		return TilesSatellite, nil
	default:
		return "", fmt.Errorf("unknown tile layer %q", s)
	}
}

// TileLayer is the URL template and attribution for a base layer.
type TileLayer struct {
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
}

func tileLayer(t Tiles) TileLayer {
	if t == TilesSatellite {
		return TileLayer{
			URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
			Attribution: "Tiles © Esri",
		}
	}
	return TileLayer{
		URL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: "© OpenStreetMap contributors",
	}
}

// Artifact is a rendered map: view parameters plus a GeoJSON feature
// collection that a browser map library can draw directly.
type Artifact struct {
	Style         Style           `json:"style"`
	Center        LatLon          `json:"center"`
	Zoom          int             `json:"zoom"`
	Tiles         TileLayer       `json:"tiles"`
	HeatmapRadius int             `json:"heatmap_radius,omitempty"`
	Count         int             `json:"count"`
	Features      json.RawMessage `json:"features"`
}

// Renderer turns records into an Artifact.
type Renderer interface {
	Render(ctx context.Context, quakes []domain.Earthquake, opts Options) (Artifact, error)
}

// GeoJSONRenderer renders records as GeoJSON point features.
type GeoJSONRenderer struct{}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string         `json:"type"`
	Geometry   geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"` // [lon, lat]
}

func (GeoJSONRenderer) Render(ctx context.Context, quakes []domain.Earthquake, opts Options) (Artifact, error) {
	art := Artifact{
		Style:  opts.Style,
		Center: defaultCenter,
		Zoom:   defaultZoom,
		Tiles:  tileLayer(opts.Tiles),
	}
	if art.Style == "" {
		art.Style = StyleMarkers
	}

	fc := featureCollection{Type: "FeatureCollection", Features: []feature{}}

	if f := opts.Focus; f != nil {
		art.Style = StyleMarkers
		art.Center = LatLon{Lat: f.Lat, Lon: f.Lon}
		art.Zoom = focusZoom
		fc.Features = append(fc.Features, point(f.Lon, f.Lat, map[string]any{
			"title":     f.Title,
			"magnitude": f.Magnitude,
			"color":     domain.MagnitudeColor(f.Magnitude),
			"radius":    domain.FocusRadius(f.Magnitude),
		}))
		return finish(art, fc)
	}

	for i := range quakes {
		if err := ctx.Err(); err != nil {
			return Artifact{}, err
		}
		eq := &quakes[i]
		if eq.Magnitude < opts.MinMagnitude {
			continue
		}
		if len(fc.Features) == 0 {
			art.Center = LatLon{Lat: eq.Latitude, Lon: eq.Longitude}
		}
		fc.Features = append(fc.Features, point(eq.Longitude, eq.Latitude, properties(eq, art.Style)))
	}

	if art.Style == StyleHeatmap {
		art.HeatmapRadius = heatmapRadius
	}
	return finish(art, fc)
}

func finish(art Artifact, fc featureCollection) (Artifact, error) {
	data, err := json.Marshal(fc)
	if err != nil {
		return Artifact{}, fmt.Errorf("encode features: %w", err)
	}
	art.Count = len(fc.Features)
	art.Features = data
	return art, nil
}

func point(lon, lat float64, props map[string]any) feature {
	return feature{
		Type:       "Feature",
		Geometry:   geometry{Type: "Point", Coordinates: [2]float64{lon, lat}},
		Properties: props,
	}
}

func properties(eq *domain.Earthquake, style Style) map[string]any {
	// Heatmap points carry only their weight.
	if style == StyleHeatmap {
		return map[string]any{"weight": eq.Magnitude}
	}
	return map[string]any{
		"id":        eq.ID,
		"title":     eq.Title,
		"date":      eq.OccurredAt,
		"magnitude": eq.Magnitude,
		"depth_km":  eq.DepthKm,
		"color":     domain.MagnitudeColor(eq.Magnitude),
		"radius":    domain.MarkerRadius(eq.Magnitude),
		"popup": fmt.Sprintf("M%.1f · %s · %s · %.1f km",
			eq.Magnitude, eq.Title, eq.OccurredAt, eq.DepthKm),
	}
}
