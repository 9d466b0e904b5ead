package render

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleQuakes() []domain.Earthquake {
	return []domain.Earthquake{
		{ID: "small", Title: "GEDIZ (KUTAHYA)", Magnitude: 1.8, Latitude: 39.0, Longitude: 29.4},
		{ID: "big", Title: "ELBISTAN (KAHRAMANMARAS)", OccurredAt: "2023.02.06 13:24:47", Magnitude: 7.6, DepthKm: 10, Latitude: 38.08, Longitude: 37.24},
		{ID: "mid", Title: "ONIKISUBAT", Magnitude: 4.4, Latitude: 37.6, Longitude: 36.9},
	}
}

type decodedFC struct {
	Features []struct {
		Geometry struct {
			Coordinates [2]float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

func decodeFeatures(t *testing.T, art Artifact) decodedFC {
	t.Helper()
	var fc decodedFC
	require.NoError(t, json.Unmarshal(art.Features, &fc))
	return fc
}

func TestGeoJSONRenderer_FiltersAndCentres(t *testing.T) {
	art, err := GeoJSONRenderer{}.Render(context.Background(), sampleQuakes(), Options{MinMagnitude: 3})
	require.NoError(t, err)

	assert.Equal(t, StyleMarkers, art.Style)
	assert.Equal(t, 2, art.Count)
	assert.Equal(t, 6, art.Zoom)
	assert.Equal(t, LatLon{Lat: 38.08, Lon: 37.24}, art.Center, "centre on first shown record")

	fc := decodeFeatures(t, art)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, [2]float64{37.24, 38.08}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "darkred", fc.Features[0].Properties["color"])
	assert.InDelta(t, 11.4, fc.Features[0].Properties["radius"], 1e-9)
	assert.Equal(t, "yellow", fc.Features[1].Properties["color"])
	assert.InDelta(t, 6.6, fc.Features[1].Properties["radius"], 1e-9)
}

func TestGeoJSONRenderer_EmptyUsesDefaultCentre(t *testing.T) {
	art, err := GeoJSONRenderer{}.Render(context.Background(), sampleQuakes(), Options{MinMagnitude: 9})
	require.NoError(t, err)
	assert.Zero(t, art.Count)
	assert.Equal(t, LatLon{Lat: 39.0, Lon: 35.0}, art.Center)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(art.Features))
}

func TestGeoJSONRenderer_Heatmap(t *testing.T) {
	art, err := GeoJSONRenderer{}.Render(context.Background(), sampleQuakes(), Options{Style: StyleHeatmap, Tiles: TilesSatellite})
	require.NoError(t, err)
	assert.Equal(t, 18, art.HeatmapRadius)
	assert.Equal(t, "Tiles © Esri", art.Tiles.Attribution)

	fc := decodeFeatures(t, art)
	require.Len(t, fc.Features, 3)
	assert.Equal(t, map[string]any{"weight": 7.6}, fc.Features[1].Properties)
}

func TestGeoJSONRenderer_Focus(t *testing.T) {
	art, err := GeoJSONRenderer{}.Render(context.Background(), sampleQuakes(), Options{
		Style: StyleCluster,
		Focus: &Focus{Lat: 40.8, Lon: 29.1, Magnitude: 2.5, Title: "KORFEZ"},
	})
	require.NoError(t, err)
	assert.Equal(t, 9, art.Zoom)
	assert.Equal(t, 1, art.Count)
	assert.Equal(t, StyleMarkers, art.Style)

	fc := decodeFeatures(t, art)
	assert.InDelta(t, 6.0, fc.Features[0].Properties["radius"], 1e-9, "focus radius floor")
	assert.Equal(t, "blue", fc.Features[0].Properties["color"])
}

func TestParseStyleAndTiles(t *testing.T) {
	s, err := ParseStyle("")
	require.NoError(t, err)
	assert.Equal(t, StyleMarkers, s)

	s, err = ParseStyle("HeatMap")
	require.NoError(t, err)
	assert.Equal(t, StyleHeatmap, s)

	_, err = ParseStyle("3d")
	require.Error(t, err)

	tl, err := ParseTiles("satellite")
	require.NoError(t, err)
	assert.Equal(t, TilesSatellite, tl)

	_, err = ParseTiles("terrain")
	require.Error(t, err)
}

// --- pool ---

type blockingRenderer struct {
	release chan struct{}
	started chan struct{}
}

func (r *blockingRenderer) Render(_ context.Context, quakes []domain.Earthquake, _ Options) (Artifact, error) {
	r.started <- struct{}{}
	<-r.release
	return Artifact{Count: len(quakes)}, nil
}

type failingRenderer struct{ panics bool }

func (r failingRenderer) Render(context.Context, []domain.Earthquake, Options) (Artifact, error) {
	if r.panics {
		panic("boom")
	}
	return Artifact{}, errors.New("no tiles")
}

func testPool(r Renderer, workers, queue int) (*Pool, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return NewPool(r, workers, queue, slog.New(slog.NewTextHandler(io.Discard, nil)), m), m
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("render result not delivered")
		return Result{}
	}
}

func TestPool_RendersJob(t *testing.T) {
	p, m := testPool(GeoJSONRenderer{}, 2, 4)
	defer p.Close()

	res := await(t, p.Submit(Job{Quakes: sampleQuakes()}))
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Artifact.Count)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RenderJobs.WithLabelValues("success")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPool_RejectsWhenFull(t *testing.T) {
	r := &blockingRenderer{release: make(chan struct{}), started: make(chan struct{}, 1)}
	p, m := testPool(r, 1, 1)

	first := p.Submit(Job{Quakes: sampleQuakes()})
	<-r.started
	queued := p.Submit(Job{})
	rejected := await(t, p.Submit(Job{}))

	require.ErrorIs(t, rejected.Err, ErrQueueFull)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.RenderJobs.WithLabelValues("rejected")), 1e-9)

	close(r.release)
	go func() { <-r.started }()
	assert.Equal(t, 3, await(t, first).Artifact.Count)
	require.NoError(t, await(t, queued).Err)

	p.Close()
	closed := await(t, p.Submit(Job{}))
	require.ErrorIs(t, closed.Err, ErrPoolClosed)
}

func TestPool_ReportsErrorsAndPanics(t *testing.T) {
	p, m := testPool(failingRenderer{}, 1, 1)
	res := await(t, p.Submit(Job{}))
	require.EqualError(t, res.Err, "no tiles")
	p.Close()

	p2, _ := testPool(failingRenderer{panics: true}, 1, 1)
	defer p2.Close()
	res = await(t, p2.Submit(Job{}))
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "panic")

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RenderJobs.WithLabelValues("error")) == 1
	}, time.Second, 5*time.Millisecond)
}
