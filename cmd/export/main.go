// Command export writes the most recent stored earthquakes to CSV, or to a
// paginated Markdown report with -format md. When the store is empty it runs
// one live refresh first. With EXPORT_S3_BUCKET set the file is also
// uploaded, snappy-compressed when EXPORT_S3_SNAPPY=true.
//
// Usage:
//
//	go run ./cmd/export -out data/earthquakes.csv -limit 200
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/couchcryptid/quake-watch/internal/adapter/kandilli"
	"github.com/couchcryptid/quake-watch/internal/config"
	"github.com/couchcryptid/quake-watch/internal/export"
	"github.com/couchcryptid/quake-watch/internal/observability"
	"github.com/couchcryptid/quake-watch/internal/pipeline"
	"github.com/couchcryptid/quake-watch/internal/store"
	"github.com/couchcryptid/quake-watch/internal/views"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	out := flag.String("out", "data/earthquakes.csv", "output path")
	format := flag.String("format", "csv", "output format: csv or md")
	limit := flag.Int("limit", cfg.RecentLimit, "number of most recent records")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	key := flag.String("key", "", "S3 object key (default: exports/<file name>)")
	flag.Parse()

	if *format != "csv" && *format != "md" {
		return fmt.Errorf("unknown format %q", *format)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := observability.NewLogger(cfg.LogLevel, "text", os.Stderr)
	metrics := observability.NewMetrics()

	st, err := store.Open(ctx, *dbPath, logger, metrics)
	if err != nil {
		return err
	}
	defer st.Close()

	clock := clockwork.NewRealClock()
	source := kandilli.NewClient(kandilli.Options{
		LiveURL:    cfg.LiveURL,
		ArchiveURL: cfg.ArchiveURL,
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.FetchTimeout,
	}, metrics, logger)
	coord := pipeline.New(
		pipeline.AppContext{Logger: logger, Clock: clock},
		source,
		pipeline.NewNormalizer(nil, logger),
		st,
		pipeline.NewBroadcaster(logger, metrics),
		metrics,
		pipeline.WithRecentLimit(*limit),
	)

	quakes, err := coord.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("load recent earthquakes: %w", err)
	}
	rows := make([]views.TableRow, len(quakes))
	for i := range quakes {
		rows[i] = views.FormatRow(quakes[i])
	}

	if *format == "csv" {
		if err := export.WriteCSVFile(*out, rows); err != nil {
			return err
		}
	} else if err := writeReport(*out, export.NewDocument(rows, export.DefaultRowsPerPage, clock.Now())); err != nil {
		return err
	}

	log.Printf("exported %d earthquakes to %s", len(rows), *out)

	if cfg.ExportBucket == "" {
		return nil
	}
	uploader, err := export.NewUploader(ctx, export.S3Config{
		Bucket:       cfg.ExportBucket,
		Region:       cfg.ExportRegion,
		Endpoint:     cfg.ExportEndpoint,
		UsePathStyle: cfg.ExportPathStyle,
	})
	if err != nil {
		return err
	}
	objectKey := *key
	if objectKey == "" {
		objectKey = path.Join("exports", filepath.Base(*out))
	}
	written, err := uploader.Upload(ctx, *out, objectKey, cfg.ExportCompress)
	if err != nil {
		return err
	}
	log.Printf("uploaded to s3://%s/%s", cfg.ExportBucket, written)
	return nil
}

func writeReport(name string, doc export.Document) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := (export.MarkdownRenderer{}).Render(f, doc); err != nil {
		return err
	}
	return f.Close()
}
