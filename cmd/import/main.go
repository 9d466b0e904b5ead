// Command import loads a saved Kandilli feed file into the local store. The
// file may be a bare JSON array of records or the API envelope with a
// "result" array.
//
// Usage:
//
//	go run ./cmd/import -file testdata/live.json -db ~/.quake-watch/quakes.db
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/couchcryptid/quake-watch/internal/adapter/kandilli"
	"github.com/couchcryptid/quake-watch/internal/config"
	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/observability"
	"github.com/couchcryptid/quake-watch/internal/store"
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

	file := flag.String("file", "", "feed JSON file to import")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -file")
	}

	body, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read feed: %w", err)
	}
	raws, dropped, err := kandilli.DecodeFeed(body)
	if err != nil {
		return fmt.Errorf("decode %s: %w", *file, err)
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

	quakes := domain.NormalizeAll(raws)
	written, err := st.Upsert(ctx, quakes)
	if err != nil {
		return err
	}
	total, err := st.Count(ctx)
	if err != nil {
		return err
	}

	log.Printf("imported %d of %d records (%d non-object elements dropped); store now holds %d",
		written, len(quakes), dropped, total)
	return nil
}
