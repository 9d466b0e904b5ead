package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

const (
	defaultLiveURL    = "https://api.orhanaydogdu.com.tr/deprem/kandilli/live"
	defaultArchiveURL = "https://api.orhanaydogdu.com.tr/deprem/kandilli/archive"
	defaultUserAgent  = "QuakeWatch/1.0 (Go)"
)

// Config holds process settings, populated from environment variables.
// User-editable preferences live in Settings instead.
type Config struct {
	DBPath       string
	SettingsPath string

	LiveURL      string
	ArchiveURL   string
	UserAgent    string
	FetchTimeout time.Duration
	RecentLimit  int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	RenderWorkers   int
	RenderQueueSize int

	// Mapbox reverse geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Optional Kafka subscriber; disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string

	// Optional S3 destination for cmd/export; disabled when ExportBucket is empty.
	ExportBucket    string
	ExportRegion    string
	ExportEndpoint  string
	ExportPathStyle bool
	ExportCompress  bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parseDuration("QUAKE_FETCH_TIMEOUT", "20s")
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	recentLimit, err := parsePositiveInt("QUAKE_RECENT_LIMIT", 200)
	if err != nil {
		return nil, err
	}

	renderWorkers, err := parsePositiveInt("RENDER_WORKERS", 2)
	if err != nil {
		return nil, err
	}

	dataDir := defaultDataDir()

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		DBPath:       sharedcfg.EnvOrDefault("QUAKE_DB_PATH", filepath.Join(dataDir, "quakes.db")),
		SettingsPath: sharedcfg.EnvOrDefault("QUAKE_SETTINGS_PATH", filepath.Join(dataDir, "settings.yaml")),

		LiveURL:      sharedcfg.EnvOrDefault("QUAKE_LIVE_URL", defaultLiveURL),
		ArchiveURL:   sharedcfg.EnvOrDefault("QUAKE_ARCHIVE_URL", defaultArchiveURL),
		UserAgent:    sharedcfg.EnvOrDefault("QUAKE_USER_AGENT", defaultUserAgent),
		FetchTimeout: fetchTimeout,
		RecentLimit:  recentLimit,

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", "127.0.0.1:8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		RenderWorkers:   renderWorkers,
		RenderQueueSize: renderWorkers * 4,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "earthquakes"),

		ExportBucket:    os.Getenv("EXPORT_S3_BUCKET"),
		ExportRegion:    os.Getenv("EXPORT_S3_REGION"),
		ExportEndpoint:  os.Getenv("EXPORT_S3_ENDPOINT"),
		ExportPathStyle: os.Getenv("EXPORT_S3_PATH_STYLE") == "true",
		ExportCompress:  os.Getenv("EXPORT_S3_SNAPPY") == "true",
	}

	if cfg.LiveURL == "" || cfg.ArchiveURL == "" {
		return nil, errors.New("QUAKE_LIVE_URL and QUAKE_ARCHIVE_URL must not be empty")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// defaultDataDir is ~/.quake-watch, or the working directory when the home
// directory cannot be resolved.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".quake-watch")
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
