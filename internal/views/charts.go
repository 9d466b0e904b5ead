package views

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
)

// ChartKind names one of the analysis charts.
type ChartKind string

const (
	ChartMagnitudeTime      ChartKind = "magnitude-time"
	ChartMagnitudeHistogram ChartKind = "magnitude-histogram"
	ChartDepthHistogram     ChartKind = "depth-histogram"
	ChartDailyAverage       ChartKind = "daily-average"
)

const histogramBins = 20

// ParseChartKind validates a chart name.
func ParseChartKind(s string) (ChartKind, error) {
	switch k := ChartKind(s); k {
	case ChartMagnitudeTime, ChartMagnitudeHistogram, ChartDepthHistogram, ChartDailyAverage:
		return k, nil
	default:
		return "", fmt.Errorf("unknown chart %q", s)
	}
}

// Point is an x/y sample. X is a Unix epoch for time series.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bin is one histogram bucket covering [Lower, Upper). The last bin also
// includes its upper edge.
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// DayAverage is the mean magnitude for one calendar day.
type DayAverage struct {
	Day     string  `json:"day"` // YYYY-MM-DD
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// Chart is the data behind one chart; exactly one series field is set.
type Chart struct {
	Kind   ChartKind    `json:"kind"`
	XLabel string       `json:"x_label"`
	YLabel string       `json:"y_label"`
	Points []Point      `json:"points,omitempty"`
	Bins   []Bin        `json:"bins,omitempty"`
	Days   []DayAverage `json:"days,omitempty"`
}

// Charts computes chart data from the latest distributed list.
type Charts struct {
	mu     sync.RWMutex
	quakes []domain.Earthquake
	loc    *time.Location
}

// NewCharts creates a chart view. Daily buckets use loc; nil means local time.
func NewCharts(loc *time.Location) *Charts {
	if loc == nil {
		loc = time.Local
	}
	return &Charts{loc: loc}
}

func (c *Charts) Name() string { return "charts" }

func (c *Charts) Receive(_ context.Context, quakes []domain.Earthquake) error {
	c.mu.Lock()
	c.quakes = quakes
	c.mu.Unlock()
	return nil
}

// Chart builds the requested chart.
func (c *Charts) Chart(kind ChartKind) (Chart, error) {
	c.mu.RLock()
	quakes := c.quakes
	c.mu.RUnlock()

	switch kind {
	case ChartMagnitudeTime:
		return Chart{Kind: kind, XLabel: "Time (Unix)", YLabel: "M", Points: MagnitudeOverTime(quakes)}, nil
	case ChartMagnitudeHistogram:
		return Chart{Kind: kind, XLabel: "M", YLabel: "Frequency", Bins: Histogram(values(quakes, magnitude), histogramBins)}, nil
	case ChartDepthHistogram:
		return Chart{Kind: kind, XLabel: "Depth (km)", YLabel: "Frequency", Bins: Histogram(values(quakes, depth), histogramBins)}, nil
	case ChartDailyAverage:
		return Chart{Kind: kind, XLabel: "Day", YLabel: "Average M", Days: DailyAverages(quakes, c.loc)}, nil
	default:
		return Chart{}, fmt.Errorf("unknown chart %q", kind)
	}
}

func magnitude(eq *domain.Earthquake) float64 { return eq.Magnitude }
func depth(eq *domain.Earthquake) float64     { return eq.DepthKm }

func values(quakes []domain.Earthquake, f func(*domain.Earthquake) float64) []float64 {
	out := make([]float64, len(quakes))
	for i := range quakes {
		out[i] = f(&quakes[i])
	}
	return out
}

// MagnitudeOverTime pairs each record's recency epoch with its magnitude, in
// list order.
func MagnitudeOverTime(quakes []domain.Earthquake) []Point {
	out := make([]Point, len(quakes))
	for i := range quakes {
		out[i] = Point{X: float64(quakes[i].RecordedAtEpoch), Y: quakes[i].Magnitude}
	}
	return out
}

// Histogram splits values into n equal-width bins between their min and max.
// When every value is equal the range is widened by 0.5 on each side.
func Histogram(vals []float64, n int) []Bin {
	if len(vals) == 0 || n <= 0 {
		return []Bin{}
	}

	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}

	width := (hi - lo) / float64(n)
	bins := make([]Bin, n)
	for i := range bins {
		bins[i].Lower = lo + float64(i)*width
		bins[i].Upper = lo + float64(i+1)*width
	}
	bins[n-1].Upper = hi

	for _, v := range vals {
		i := int((v - lo) / width)
		if i >= n {
			i = n - 1
		}
		if i < 0 {
			i = 0
		}
		bins[i].Count++
	}
	return bins
}

// DailyAverages groups records by calendar day of their recency epoch in loc
// and averages magnitudes. Days are sorted ascending.
func DailyAverages(quakes []domain.Earthquake, loc *time.Location) []DayAverage {
	type acc struct {
		sum float64
		n   int
	}
	buckets := make(map[string]*acc)
	for i := range quakes {
		day := time.Unix(quakes[i].RecordedAtEpoch, 0).In(loc).Format(time.DateOnly)
		a, ok := buckets[day]
		if !ok {
			a = &acc{}
			buckets[day] = a
		}
		a.sum += quakes[i].Magnitude
		a.n++
	}

	out := make([]DayAverage, 0, len(buckets))
	for day, a := range buckets {
		out = append(out, DayAverage{Day: day, Average: a.sum / float64(a.n), Count: a.n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}
