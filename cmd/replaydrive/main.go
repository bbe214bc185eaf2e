// Command replaydrive re-drives failed replay_state rows against their
// provider HTTP endpoints, and exposes the replay_state table's CRUD
// operations as subcommands for operator use.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Tracy625/event-stream-starter-sub001/domain/replay"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/config"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/database"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "ensure-table":
		err = runEnsureTable(os.Args[2:])
	case "list-failed":
		err = runListFailed(os.Args[2:])
	case "redrive":
		err = runRedrive(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: replaydrive <ensure-table|list-failed|redrive> [flags]")
}

func openStore(ctx context.Context, cfg *config.Config) (*replay.PostgresStore, func(), error) {
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return replay.NewPostgresStore(db), func() { db.Close() }, nil
}

func runEnsureTable(args []string) error {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	return store.EnsureTable(ctx)
}

func runListFailed(args []string) error {
	fs := flag.NewFlagSet("list-failed", flag.ExitOnError)
	since := fs.String("since", "24h", "time delta like 24h or an RFC3339 timestamp")
	fs.Parse(args)

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	cutoff, err := replay.ParseSince(*since, time.Now())
	if err != nil {
		return fmt.Errorf("parse since: %w", err)
	}

	rows, err := store.ListFailed(ctx, &cutoff, nil, nil)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "%d failed entries\n", len(rows))
	return nil
}

func runRedrive(args []string) error {
	fs := flag.NewFlagSet("redrive", flag.ExitOnError)
	since := fs.String("since", "24h", "time delta like 24h or an RFC3339 timestamp")
	dryRun := fs.Bool("dry-run", false, "only print counts")
	jobs := fs.Int("jobs", 4, "concurrent workers")
	maxRetries := fs.Int("max-retries", 3, "maximum retries per entry")
	fs.Parse(args)

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	store, closeFn, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	endpoints := map[string]string{
		"x":     cfg.ReplayEndpointX,
		"dex":   cfg.ReplayEndpointDex,
		"topic": cfg.ReplayEndpointTopic,
	}
	sender := replay.NewHTTPSender(time.Duration(cfg.ReplayTimeoutSec) * time.Second)
	driver := replay.NewDriver(store, sender, endpoints, cfg.ReplayHeaderNow, cfg.ReplayHeaderSeed, cfg.ReplaySeed)

	result, err := driver.Redrive(ctx, time.Now(), replay.Options{
		Since:      *since,
		DryRun:     *dryRun,
		Jobs:       *jobs,
		MaxRetries: *maxRetries,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Replayed %d entries. Success=%d, Fail=%d\n", result.Total, result.Success, len(result.Failures))
	if len(result.Failures) > 0 {
		os.Exit(1)
	}
	return nil
}
