package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGeocoder struct {
	calls  int
	result domain.GeocodingResult
	err    error
}

func (g *stubGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	g.calls++
	return g.result, g.err
}

func TestQuakeNormalizer_WithoutGeocoder(t *testing.T) {
	n := pipeline.NewNormalizer(nil, testLogger())

	got := n.Normalize(context.Background(), liveFeed())
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Empty(t, got[0].PlaceName)
}

func TestQuakeNormalizer_EnrichesOnlyMissingEpicenters(t *testing.T) {
	geo := &stubGeocoder{result: domain.GeocodingResult{PlaceName: "Marmara Ereğlisi"}}
	n := pipeline.NewNormalizer(geo, testLogger())

	raws := liveFeed()
	raws[1]["location_properties"] = map[string]any{"epiCenter": map[string]any{"name": "Malatya"}}
	raws = append(raws, domain.RawRecord{"earthquake_id": "no-coords", "mag": 2.0})

	got := n.Normalize(context.Background(), raws)
	require.Len(t, got, 3)
	assert.Equal(t, "Marmara Ereğlisi", got[0].PlaceName)
	assert.Empty(t, got[1].PlaceName, "provider epicenter wins")
	assert.Empty(t, got[2].PlaceName, "no coordinates, no lookup")
	assert.Equal(t, 1, geo.calls)
}

func TestQuakeNormalizer_GeocoderFailureKeepsRecords(t *testing.T) {
	geo := &stubGeocoder{err: errors.New("rate limited")}
	n := pipeline.NewNormalizer(geo, testLogger())

	got := n.Normalize(context.Background(), liveFeed())
	require.Len(t, got, 2)
	assert.Equal(t, []string{"a", "b"}, ids(got))
	assert.InDelta(t, 6.1, got[0].Magnitude, 1e-9)
}

func TestQuakeNormalizer_StopsEnrichingWhenCancelled(t *testing.T) {
	geo := &stubGeocoder{result: domain.GeocodingResult{PlaceName: "x"}}
	n := pipeline.NewNormalizer(geo, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := n.Normalize(ctx, liveFeed())
	assert.Len(t, got, 2)
	assert.Zero(t, geo.calls)
}
