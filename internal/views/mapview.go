package views

import (
	"context"
	"log/slog"
	"sync"

	"github.com/couchcryptid/quake-watch/internal/config"
	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/render"
)

// MapView submits a render job for every delivered list and keeps the newest
// finished artifact. Receive never waits for the render.
type MapView struct {
	pool     *render.Pool
	settings *config.SettingsStore
	logger   *slog.Logger

	mu      sync.Mutex
	quakes  []domain.Earthquake
	style   render.Style
	tiles   render.Tiles
	seq     uint64
	applied uint64
	latest  *render.Artifact
}

// NewMapView creates a map view. The minimum magnitude is read from settings
// on every render; nil settings means no filter.
func NewMapView(pool *render.Pool, settings *config.SettingsStore, logger *slog.Logger) *MapView {
	return &MapView{
		pool:     pool,
		settings: settings,
		logger:   logger,
		style:    render.StyleMarkers,
		tiles:    render.TilesStreet,
	}
}

func (m *MapView) Name() string { return "map" }

func (m *MapView) Receive(_ context.Context, quakes []domain.Earthquake) error {
	m.mu.Lock()
	m.quakes = quakes
	m.mu.Unlock()
	m.submit(m.Options())
	return nil
}

// Focus renders a single selected record. Wire it to SelectionBus.Subscribe.
func (m *MapView) Focus(sel Selection) {
	opts := m.Options()
	opts.Focus = &render.Focus{Lat: sel.Lat, Lon: sel.Lon, Magnitude: sel.Magnitude, Title: sel.Title}
	m.submit(opts)
}

// SetStyle changes the style and base layer and re-renders the current list.
func (m *MapView) SetStyle(style render.Style, tiles render.Tiles) {
	m.mu.Lock()
	m.style = style
	m.tiles = tiles
	m.mu.Unlock()
	m.submit(m.Options())
}

// Options are the defaults for the next render.
func (m *MapView) Options() render.Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	opts := render.Options{Style: m.style, Tiles: m.tiles}
	if m.settings != nil {
		opts.MinMagnitude = m.settings.Get().MapMinMagnitude
	}
	return opts
}

// Latest returns the newest finished artifact.
func (m *MapView) Latest() (render.Artifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return render.Artifact{}, false
	}
	return *m.latest, true
}

// Render runs an ad hoc render of the current list and waits for it. The
// result is not stored as the latest artifact.
func (m *MapView) Render(ctx context.Context, opts render.Options) (render.Artifact, error) {
	m.mu.Lock()
	quakes := m.quakes
	m.mu.Unlock()

	select {
	case res := <-m.pool.Submit(render.Job{Quakes: quakes, Options: opts}):
		return res.Artifact, res.Err
	case <-ctx.Done():
		return render.Artifact{}, ctx.Err()
	}
}

func (m *MapView) submit(opts render.Options) {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	quakes := m.quakes
	m.mu.Unlock()

	ch := m.pool.Submit(render.Job{Quakes: quakes, Options: opts})
	go m.collect(seq, ch)
}

// collect stores the result unless a newer submission already landed.
func (m *MapView) collect(seq uint64, ch <-chan render.Result) {
	res := <-ch
	if res.Err != nil {
		m.logger.Warn("map render failed", "error", res.Err)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq < m.applied {
		return
	}
	m.applied = seq
	art := res.Artifact
	m.latest = &art
}
