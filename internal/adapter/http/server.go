package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-watch/internal/config"
	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/export"
	"github.com/couchcryptid/quake-watch/internal/pipeline"
	"github.com/couchcryptid/quake-watch/internal/render"
	"github.com/couchcryptid/quake-watch/internal/views"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 64 << 10

// Coordinator is the refresh control surface the API needs.
type Coordinator interface {
	sharedobs.ReadinessChecker
	Trigger(ctx context.Context, mode pipeline.Mode) bool
	Reschedule()
	State() pipeline.State
	LastResult() (pipeline.CycleResult, bool)
}

// SubscriberLister reports which subscribers receive each cycle.
type SubscriberLister interface {
	Subscribers() []string
}

// Deps are the components the server reads from and drives.
type Deps struct {
	Coordinator Coordinator
	Settings    *config.SettingsStore
	Overview    *views.Overview
	Table       *views.Table
	Charts      *views.Charts
	Map         *views.MapView
	Logs        *views.LogView
	Alerts      *views.AlertNotifier
	Hub         *Hub
	Subscribers SubscriberLister
	Clock       clockwork.Clock
}

// Server exposes health, metrics and the local JSON/WebSocket API.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates an HTTP server with health, metrics and /api routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Coordinator))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/archive", s.handleArchive)
	mux.HandleFunc("GET /api/earthquakes", s.handleEarthquakes)
	mux.HandleFunc("GET /api/overview", s.handleOverview)
	mux.HandleFunc("GET /api/charts/{kind}", s.handleChart)
	mux.HandleFunc("GET /api/map", s.handleMap)
	mux.HandleFunc("PUT /api/map/style", s.handleMapStyle)
	mux.HandleFunc("POST /api/select", s.handleSelect)
	mux.HandleFunc("GET /api/export.csv", s.handleExportCSV)
	mux.HandleFunc("GET /api/export.md", s.handleExportMarkdown)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	mux.HandleFunc("POST /api/risk", s.handleRisk)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("DELETE /api/logs", s.handleClearLogs)
	mux.HandleFunc("GET /api/alert", s.handleAlert)
	if deps.Hub != nil {
		mux.Handle("GET /ws", deps.Hub)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type cycleSummary struct {
	ID                string             `json:"id"`
	Mode              string             `json:"mode"`
	Fetched           int                `json:"fetched"`
	Written           int                `json:"written"`
	Count             int                `json:"count"`
	StartedAt         time.Time          `json:"started_at"`
	DurationMS        int64              `json:"duration_ms"`
	Error             string             `json:"error,omitempty"`
	NotifiedThreshold *float64           `json:"notified_threshold,omitempty"`
	Notified          *domain.Earthquake `json:"notified,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := struct {
		State       string        `json:"state"`
		LastCycle   *cycleSummary `json:"last_cycle,omitempty"`
		Clients     int           `json:"websocket_clients"`
		Subscribers []string      `json:"subscribers,omitempty"`
	}{State: s.deps.Coordinator.State().String()}

	if res, ok := s.deps.Coordinator.LastResult(); ok {
		sum := cycleSummary{
			ID:                res.ID,
			Mode:              res.Mode.String(),
			Fetched:           res.Fetched,
			Written:           res.Written,
			Count:             res.Count,
			StartedAt:         res.StartedAt,
			DurationMS:        res.Duration.Milliseconds(),
			NotifiedThreshold: res.NotifiedThreshold,
			Notified:          res.Notified,
		}
		if res.Err != nil {
			sum.Error = res.Err.Error()
		}
		resp.LastCycle = &sum
	}
	if s.deps.Hub != nil {
		resp.Clients = s.deps.Hub.Count()
	}
	if s.deps.Subscribers != nil {
		resp.Subscribers = s.deps.Subscribers.Subscribers()
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, r, pipeline.Live())
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	date, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("date must be YYYY-MM-DD, got %q", raw))
		return
	}
	if date.After(s.deps.Clock.Now()) {
		writeError(w, http.StatusBadRequest, errors.New("date is in the future"))
		return
	}
	s.trigger(w, r, pipeline.Archive(date))
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request, mode pipeline.Mode) {
	if !s.deps.Coordinator.Trigger(r.Context(), mode) {
		sharedobs.WriteJSON(w, http.StatusConflict, map[string]string{
			"status": "busy",
			"state":  s.deps.Coordinator.State().String(),
		})
		return
	}
	sharedobs.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started", "mode": mode.String()})
}

func (s *Server) handleEarthquakes(w http.ResponseWriter, r *http.Request) {
	rows := s.deps.Table.Rows(r.URL.Query().Get("q"))
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		rows = rows[:min(n, len(rows))]
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"columns": views.TableColumns,
		"rows":    rows,
	})
}

func (s *Server) handleOverview(w http.ResponseWriter, _ *http.Request) {
	stats := s.deps.Overview.Stats()
	sharedobs.WriteJSON(w, http.StatusOK, struct {
		views.OverviewStats
		QuickStats string `json:"quick_stats"`
		Headline   string `json:"headline"`
	}{stats, stats.QuickStats(), stats.Headline()})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	kind, err := views.ParseChartKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	chart, err := s.deps.Charts.Chart(kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, chart)
}

// handleMap returns the latest background render, or renders on demand when
// any query parameter overrides the current options.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if len(q) == 0 {
		if art, ok := s.deps.Map.Latest(); ok {
			sharedobs.WriteJSON(w, http.StatusOK, art)
			return
		}
	}

	opts := s.deps.Map.Options()
	if v := q.Get("min_mag"); v != "" {
		m, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid min_mag %q", v))
			return
		}
		opts.MinMagnitude = m
	}
	if v := q.Get("style"); v != "" {
		style, err := render.ParseStyle(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		opts.Style = style
	}
	if v := q.Get("tiles"); v != "" {
		tiles, err := render.ParseTiles(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		opts.Tiles = tiles
	}

	art, err := s.deps.Map.Render(r.Context(), opts)
	if errors.Is(err, render.ErrQueueFull) {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, art)
}

// handleMapStyle changes the background map's style and base layer. An
// omitted field keeps its current value.
func (s *Server) handleMapStyle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Style string `json:"style"`
		Tiles string `json:"tiles"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	opts := s.deps.Map.Options()
	if req.Style != "" {
		style, err := render.ParseStyle(req.Style)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		opts.Style = style
	}
	if req.Tiles != "" {
		tiles, err := render.ParseTiles(req.Tiles)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		opts.Tiles = tiles
	}

	s.deps.Map.SetStyle(opts.Style, opts.Tiles)
	sharedobs.WriteJSON(w, http.StatusOK, map[string]string{
		"style": string(opts.Style),
		"tiles": string(opts.Tiles),
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sel, err := s.deps.Table.Select(req.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, sel)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	rows := s.deps.Table.Rows(r.URL.Query().Get("q"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="earthquakes.csv"`)
	if err := export.WriteCSV(w, rows); err != nil {
		s.logger.Error("csv export failed", "error", err)
	}
}

func (s *Server) handleExportMarkdown(w http.ResponseWriter, r *http.Request) {
	rows := s.deps.Table.Rows(r.URL.Query().Get("q"))
	doc := export.NewDocument(rows, export.DefaultRowsPerPage, s.deps.Clock.Now())
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	if err := (export.MarkdownRenderer{}).Render(w, doc); err != nil {
		s.logger.Error("report export failed", "error", err)
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.deps.Settings.Get())
}

// handlePutSettings applies the fields present in the body over the current
// settings. A changed refresh interval takes effect immediately.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	candidate := s.deps.Settings.Get()
	if err := json.Unmarshal(body, &candidate); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid settings: %w", err))
		return
	}

	before := s.deps.Settings.Get()
	updated, err := s.deps.Settings.Update(func(cur *config.Settings) {
		_ = json.Unmarshal(body, cur)
	})
	if updated.AutoRefreshMinutes != before.AutoRefreshMinutes {
		s.deps.Coordinator.Reschedule()
	}
	if err != nil {
		s.logger.Error("settings not saved", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, updated)
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		YearBuilt int    `json:"year_built"`
		Floors    int    `json:"floors"`
		Quality   string `json:"quality"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	quality, err := domain.ParseBuildQuality(req.Quality)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Floors < 0 {
		writeError(w, http.StatusBadRequest, errors.New("floors must not be negative"))
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, domain.AssessBuildingRisk(domain.BuildingProfile{
		YearBuilt: req.YearBuilt,
		Floors:    req.Floors,
		Quality:   quality,
	}))
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{"lines": s.deps.Logs.Lines()})
}

func (s *Server) handleClearLogs(w http.ResponseWriter, _ *http.Request) {
	s.deps.Logs.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAlert(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Alerts != nil {
		if a, ok := s.deps.Alerts.Last(); ok {
			sharedobs.WriteJSON(w, http.StatusOK, a)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
