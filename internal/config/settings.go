package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Theme is the UI colour scheme.
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

const settingsEnvPrefix = "QUAKE_SETTINGS_"

// Settings are the user preferences persisted next to the database.
type Settings struct {
	// NotifyThreshold is the magnitude at or above which a live record triggers a notification.
	NotifyThreshold float64 `koanf:"mag_threshold_for_notification" json:"mag_threshold_for_notification"`

	// AutoRefreshMinutes is the refresh timer period. Values below 1 are raised to 1.
	AutoRefreshMinutes int `koanf:"auto_refresh_minutes" json:"auto_refresh_minutes"`

	// MapMinMagnitude hides smaller records on the map.
	MapMinMagnitude float64 `koanf:"map_min_mag" json:"map_min_mag"`

	Theme Theme `koanf:"theme" json:"theme"`
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		NotifyThreshold:    5.5,
		AutoRefreshMinutes: 5,
		MapMinMagnitude:    0,
		Theme:              ThemeDark,
	}
}

// RefreshInterval is the auto-refresh period as a duration.
func (s Settings) RefreshInterval() time.Duration {
	return time.Duration(max(1, s.AutoRefreshMinutes)) * time.Minute
}

// Sanitize replaces out-of-range values with defaults or clamps them.
func (s Settings) Sanitize() Settings {
	def := DefaultSettings()
	if math.IsNaN(s.NotifyThreshold) || s.NotifyThreshold < 0 {
		s.NotifyThreshold = def.NotifyThreshold
	}
	if s.AutoRefreshMinutes < 1 {
		s.AutoRefreshMinutes = 1
	}
	if math.IsNaN(s.MapMinMagnitude) || s.MapMinMagnitude < 0 {
		s.MapMinMagnitude = 0
	}
	s.MapMinMagnitude = math.Min(s.MapMinMagnitude, 10)
	s.Theme = Theme(strings.ToLower(string(s.Theme)))
	if s.Theme != ThemeDark && s.Theme != ThemeLight {
		s.Theme = def.Theme
	}
	return s
}

// LoadSettings layers defaults, the settings file and QUAKE_SETTINGS_* env
// vars. A missing file is not an error. A malformed file yields the defaults
// together with an error wrapping domain.ErrConfig, so callers can log it and
// carry on.
func LoadSettings(path string) (Settings, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return DefaultSettings(), fmt.Errorf("%w: read %s: %w", domain.ErrConfig, path, err)
			}
		}
	}

	envProvider := env.Provider(settingsEnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, settingsEnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return DefaultSettings(), fmt.Errorf("%w: env overrides: %w", domain.ErrConfig, err)
	}

	s := DefaultSettings()
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return DefaultSettings(), fmt.Errorf("%w: decode %s: %w", domain.ErrConfig, path, err)
	}
	return s.Sanitize(), nil
}

// SaveSettings writes s to path atomically (temp file + rename).
func SaveSettings(path string, s Settings) error {
	data, err := yaml.Parser().Marshal(map[string]any{
		"mag_threshold_for_notification": s.NotifyThreshold,
		"auto_refresh_minutes":           s.AutoRefreshMinutes,
		"map_min_mag":                    s.MapMinMagnitude,
		"theme":                          string(s.Theme),
	})
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

// SettingsStore holds the current settings and writes them back on change.
// It is safe for concurrent use.
type SettingsStore struct {
	mu      sync.RWMutex
	path    string
	current Settings
	logger  *slog.Logger
}

// OpenSettings loads settings from path, falling back to defaults on error.
func OpenSettings(path string, logger *slog.Logger) *SettingsStore {
	s, err := LoadSettings(path)
	if err != nil {
		logger.Warn("settings unreadable, using defaults", "path", path, "error", err)
	}
	return &SettingsStore{path: path, current: s, logger: logger}
}

// NewSettingsStore wraps fixed settings with no backing file. Update keeps
// changes in memory only.
func NewSettingsStore(s Settings) *SettingsStore {
	return &SettingsStore{current: s.Sanitize(), logger: slog.New(slog.DiscardHandler)}
}

// Get returns a copy of the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies fn to a copy of the current settings, sanitizes the result,
// stores it and writes it to disk. The in-memory value is kept even if the
// write fails; the returned error reports the failed write.
func (s *SettingsStore) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	fn(&next)
	next = next.Sanitize()
	s.current = next

	if s.path == "" {
		return next, nil
	}
	if err := SaveSettings(s.path, next); err != nil {
		s.logger.Error("settings write failed", "path", s.path, "error", err)
		return next, errors.Join(domain.ErrConfig, err)
	}
	return next, nil
}
