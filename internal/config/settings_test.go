package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/smartystreets/goconvey/convey"
)

func TestLoadSettings(t *testing.T) {
	convey.Convey("Given a settings path", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "settings.yaml")

		convey.Convey("When the file does not exist", func() {
			s, err := LoadSettings(path)

			convey.Convey("Then defaults are returned without error", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(s, convey.ShouldResemble, DefaultSettings())
				convey.So(s.RefreshInterval(), convey.ShouldEqual, 5*time.Minute)
			})
		})

		convey.Convey("When the file holds partial settings", func() {
			writeFile(t, path, "mag_threshold_for_notification: 4.2\ntheme: light\n")
			s, err := LoadSettings(path)

			convey.Convey("Then present keys override and missing keys keep defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(s.NotifyThreshold, convey.ShouldEqual, 4.2)
				convey.So(s.Theme, convey.ShouldEqual, ThemeLight)
				convey.So(s.AutoRefreshMinutes, convey.ShouldEqual, 5)
				convey.So(s.MapMinMagnitude, convey.ShouldEqual, 0.0)
			})
		})

		convey.Convey("When the file is malformed", func() {
			writeFile(t, path, "mag_threshold_for_notification: [unterminated\n")
			s, err := LoadSettings(path)

			convey.Convey("Then every value falls back to defaults", func() {
				convey.So(errors.Is(err, domain.ErrConfig), convey.ShouldBeTrue)
				convey.So(s, convey.ShouldResemble, DefaultSettings())
			})
		})

		convey.Convey("When a value has the wrong type", func() {
			writeFile(t, path, "auto_refresh_minutes: often\ntheme: light\n")
			s, err := LoadSettings(path)

			convey.Convey("Then the whole file is ignored", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(s, convey.ShouldResemble, DefaultSettings())
			})
		})

		convey.Convey("When the refresh interval is zero", func() {
			writeFile(t, path, "auto_refresh_minutes: 0\n")
			s, err := LoadSettings(path)

			convey.Convey("Then it is raised to one minute", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(s.AutoRefreshMinutes, convey.ShouldEqual, 1)
				convey.So(s.RefreshInterval(), convey.ShouldEqual, time.Minute)
			})
		})

		convey.Convey("When an env override is set", func() {
			writeFile(t, path, "map_min_mag: 2.5\n")
			t.Setenv("QUAKE_SETTINGS_MAP_MIN_MAG", "3.5")
			s, err := LoadSettings(path)

			convey.Convey("Then the env value wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(s.MapMinMagnitude, convey.ShouldEqual, 3.5)
			})
		})
	})
}

func TestSettingsSanitize(t *testing.T) {
	convey.Convey("Given out-of-range settings", t, func() {
		s := Settings{NotifyThreshold: -1, AutoRefreshMinutes: -5, MapMinMagnitude: 42, Theme: "Solarized"}

		convey.Convey("Then Sanitize clamps or resets each field", func() {
			got := s.Sanitize()
			convey.So(got.NotifyThreshold, convey.ShouldEqual, 5.5)
			convey.So(got.AutoRefreshMinutes, convey.ShouldEqual, 1)
			convey.So(got.MapMinMagnitude, convey.ShouldEqual, 10.0)
			convey.So(got.Theme, convey.ShouldEqual, ThemeDark)
		})

		convey.Convey("Then theme names are case-insensitive", func() {
			got := Settings{Theme: "LIGHT"}.Sanitize()
			convey.So(got.Theme, convey.ShouldEqual, ThemeLight)
		})
	})
}

func TestSettingsStore(t *testing.T) {
	convey.Convey("Given a settings store backed by a file", t, func() {
		path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
		store := OpenSettings(path, discardLogger())

		convey.So(store.Get(), convey.ShouldResemble, DefaultSettings())

		convey.Convey("When settings are updated", func() {
			got, err := store.Update(func(s *Settings) {
				s.NotifyThreshold = 6.1
				s.AutoRefreshMinutes = 10
			})

			convey.Convey("Then the change is visible and persisted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.NotifyThreshold, convey.ShouldEqual, 6.1)
				convey.So(store.Get().AutoRefreshMinutes, convey.ShouldEqual, 10)

				reloaded, err := LoadSettings(path)
				convey.So(err, convey.ShouldBeNil)
				convey.So(reloaded, convey.ShouldResemble, got)
			})

			convey.Convey("Then no temp files are left behind", func() {
				entries, err := os.ReadDir(filepath.Dir(path))
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(entries), convey.ShouldEqual, 1)
			})
		})
	})

	convey.Convey("Given an in-memory settings store", t, func() {
		store := NewSettingsStore(Settings{NotifyThreshold: 3, AutoRefreshMinutes: 2, Theme: ThemeLight})

		convey.Convey("When updated with an invalid interval", func() {
			got, err := store.Update(func(s *Settings) { s.AutoRefreshMinutes = 0 })

			convey.Convey("Then it is clamped and kept in memory", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.AutoRefreshMinutes, convey.ShouldEqual, 1)
				convey.So(store.Get().NotifyThreshold, convey.ShouldEqual, 3.0)
			})
		})
	})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
