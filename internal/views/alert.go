package views

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Alert records one threshold notification.
type Alert struct {
	Earthquake domain.Earthquake `json:"earthquake"`
	Threshold  float64           `json:"threshold"`
	RaisedAt   time.Time         `json:"raised_at"`
}

// AlertNotifier logs threshold crossings, keeps the last alert and forwards
// it to hooks (the WebSocket hub, for instance).
type AlertNotifier struct {
	logger *slog.Logger
	clock  clockwork.Clock

	mu    sync.RWMutex
	last  *Alert
	hooks []func(Alert)
}

// NewAlertNotifier creates a notifier. A nil clock uses real time.
func NewAlertNotifier(logger *slog.Logger, clock clockwork.Clock) *AlertNotifier {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AlertNotifier{logger: logger, clock: clock}
}

// OnAlert registers a hook called after each alert.
func (n *AlertNotifier) OnAlert(h func(Alert)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.hooks = append(n.hooks, h)
}

func (n *AlertNotifier) Notify(_ context.Context, eq domain.Earthquake, threshold float64) {
	alert := Alert{Earthquake: eq, Threshold: threshold, RaisedAt: n.clock.Now()}

	n.logger.Warn("earthquake alert",
		"earthquake_id", eq.ID,
		"title", eq.Title,
		"magnitude", eq.Magnitude,
		"threshold", threshold,
	)

	n.mu.Lock()
	n.last = &alert
	hooks := slices.Clone(n.hooks)
	n.mu.Unlock()

	for _, h := range hooks {
		h(alert)
	}
}

// Last returns the most recent alert.
func (n *AlertNotifier) Last() (Alert, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.last == nil {
		return Alert{}, false
	}
	return *n.last, true
}
