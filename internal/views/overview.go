package views

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/quake-watch/internal/domain"
)

// OverviewStats summarizes the distributed record list.
type OverviewStats struct {
	Total            int                `json:"total"`
	AverageMagnitude float64            `json:"average_magnitude"`
	Latest           *domain.Earthquake `json:"latest,omitempty"`
	Strongest        *domain.Earthquake `json:"strongest,omitempty"`
}

// QuickStats is the one-line status summary.
func (s OverviewStats) QuickStats() string {
	if s.Total == 0 {
		return "No earthquakes loaded"
	}
	return fmt.Sprintf("Last %d earthquakes | Avg M: %.2f", s.Total, s.AverageMagnitude)
}

// Headline describes the latest record, or a dash when there is none.
func (s OverviewStats) Headline() string {
	if s.Latest == nil {
		return "Latest earthquake: -"
	}
	return fmt.Sprintf("Latest earthquake: M%.1f %s (%s)", s.Latest.Magnitude, s.Latest.Title, s.Latest.OccurredAt)
}

// ComputeOverview derives the stats from a newest-first list. Ties for the
// strongest record go to the newer one.
func ComputeOverview(quakes []domain.Earthquake) OverviewStats {
	stats := OverviewStats{Total: len(quakes)}
	if len(quakes) == 0 {
		return stats
	}

	latest := quakes[0]
	stats.Latest = &latest

	strongest := 0
	sum := 0.0
	for i := range quakes {
		sum += quakes[i].Magnitude
		if quakes[i].Magnitude > quakes[strongest].Magnitude {
			strongest = i
		}
	}
	s := quakes[strongest]
	stats.Strongest = &s
	stats.AverageMagnitude = sum / float64(len(quakes))
	return stats
}

// Overview is the landing summary view.
type Overview struct {
	mu    sync.RWMutex
	stats OverviewStats
}

// NewOverview creates an empty overview.
func NewOverview() *Overview {
	return &Overview{}
}

func (o *Overview) Name() string { return "overview" }

func (o *Overview) Receive(_ context.Context, quakes []domain.Earthquake) error {
	stats := ComputeOverview(quakes)
	o.mu.Lock()
	o.stats = stats
	o.mu.Unlock()
	return nil
}

// Stats returns the current summary.
func (o *Overview) Stats() OverviewStats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stats
}
