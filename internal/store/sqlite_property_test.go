package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/observability"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_RecentOrdering checks that FetchRecent is strictly ordered by
// recorded_at descending, then ID ascending, for any mix of epochs.
func TestProperty_RecentOrdering(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	run := 0
	properties.Property("recent-N is sorted and bounded", prop.ForAll(
		func(epochs []int64, limit int) bool {
			run++
			ctx := context.Background()
			s, err := Open(ctx, filepath.Join(dir, fmt.Sprintf("p%d.db", run)), logger, observability.NewMetricsForTesting())
			if err != nil {
				return false
			}
			defer s.Close()

			quakes := make([]domain.Earthquake, len(epochs))
			for i, e := range epochs {
				quakes[i] = domain.Earthquake{ID: fmt.Sprintf("id-%03d", i), RecordedAtEpoch: e}
			}
			if _, err := s.Upsert(ctx, quakes); err != nil {
				return false
			}

			got, err := s.FetchRecent(ctx, limit)
			if err != nil || len(got) != min(limit, len(epochs)) {
				return false
			}
			for i := 1; i < len(got); i++ {
				prev, cur := got[i-1], got[i]
				if prev.RecordedAtEpoch < cur.RecordedAtEpoch {
					return false
				}
				if prev.RecordedAtEpoch == cur.RecordedAtEpoch && prev.ID >= cur.ID {
					return false
				}
			}
			return true
		},
		// A narrow epoch range forces ties.
		gen.SliceOf(gen.Int64Range(1_700_000_000, 1_700_000_005)),
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t)
}
