// Package kandilli fetches raw earthquake records from the Kandilli
// Observatory feed.
package kandilli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/observability"
)

const (
	endpointLive    = "live"
	endpointArchive = "archive"

	// maxBodyBytes bounds a single feed response.
	maxBodyBytes = 32 << 20
)

// Options configures a Client.
type Options struct {
	LiveURL    string
	ArchiveURL string
	UserAgent  string
	Timeout    time.Duration
}

// Client implements the pipeline data source over HTTP. It never returns an
// error: every failure is logged, counted and turned into an empty slice.
type Client struct {
	liveURL    string
	archiveURL string
	userAgent  string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a feed client.
func NewClient(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		liveURL:    opts.LiveURL,
		archiveURL: opts.ArchiveURL,
		userAgent:  opts.UserAgent,
		httpClient: &http.Client{Timeout: opts.Timeout},
		metrics:    metrics,
		logger:     logger,
	}
}

// FetchLive returns the current live feed.
func (c *Client) FetchLive(ctx context.Context) []domain.RawRecord {
	return c.fetch(ctx, endpointLive, c.liveURL)
}

// FetchArchive returns the feed for one calendar day.
func (c *Client) FetchArchive(ctx context.Context, date time.Time) []domain.RawRecord {
	u, err := url.Parse(c.archiveURL)
	if err != nil {
		c.fail(endpointArchive, "transport", fmt.Errorf("%w: archive url: %w", domain.ErrTransport, err))
		return []domain.RawRecord{}
	}
	q := u.Query()
	q.Set("date", date.Format(time.DateOnly))
	u.RawQuery = q.Encode()
	return c.fetch(ctx, endpointArchive, u.String())
}

func (c *Client) fetch(ctx context.Context, endpoint, fullURL string) []domain.RawRecord {
	start := time.Now()
	defer func() {
		c.metrics.FetchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		c.fail(endpoint, "transport", fmt.Errorf("%w: create request: %w", domain.ErrTransport, err))
		return []domain.RawRecord{}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.fail(endpoint, "transport", fmt.Errorf("%w: %s request: %w", domain.ErrTransport, endpoint, err))
		return []domain.RawRecord{}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.fail(endpoint, "status", fmt.Errorf("%w: status %d: %s", domain.ErrTransport, resp.StatusCode, body))
		return []domain.RawRecord{}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.fail(endpoint, "transport", fmt.Errorf("%w: read body: %w", domain.ErrTransport, err))
		return []domain.RawRecord{}
	}

	records, dropped, err := DecodeFeed(body)
	if err != nil {
		c.fail(endpoint, "parse", err)
		return []domain.RawRecord{}
	}
	if dropped > 0 {
		c.metrics.FetchErrors.WithLabelValues(endpoint, "parse").Add(float64(dropped))
		c.logger.Warn("dropped non-object feed elements", "endpoint", endpoint, "dropped", dropped)
	}

	c.metrics.RecordsFetched.WithLabelValues(endpoint).Add(float64(len(records)))
	c.logger.Debug("feed fetched", "endpoint", endpoint, "count", len(records))
	return records
}

func (c *Client) fail(endpoint, kind string, err error) {
	c.metrics.FetchErrors.WithLabelValues(endpoint, kind).Inc()
	c.logger.Error("feed fetch failed", "endpoint", endpoint, "kind", kind, "error", err)
}

// DecodeFeed parses a feed body that is either a bare JSON array or an
// envelope object carrying the array under "result". Numbers are kept as
// json.Number. Elements that are not objects are dropped and counted.
func DecodeFeed(body []byte) ([]domain.RawRecord, int, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var top any
	if err := dec.Decode(&top); err != nil {
		return nil, 0, fmt.Errorf("%w: decode feed: %w", domain.ErrParse, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, 0, fmt.Errorf("%w: trailing data after feed body", domain.ErrParse)
	}

	var items []any
	switch v := top.(type) {
	case []any:
		items = v
	case map[string]any:
		result, ok := v["result"]
		if !ok || result == nil {
			return []domain.RawRecord{}, 0, nil
		}
		arr, ok := result.([]any)
		if !ok {
			return nil, 0, fmt.Errorf("%w: result is %T, want array", domain.ErrParse, result)
		}
		items = arr
	default:
		return nil, 0, fmt.Errorf("%w: feed body is %T, want array or object", domain.ErrParse, top)
	}

	records := make([]domain.RawRecord, 0, len(items))
	dropped := 0
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			dropped++
			continue
		}
		records = append(records, domain.RawRecord(obj))
	}
	return records, dropped, nil
}
