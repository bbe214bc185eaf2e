package replay

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// Sender delivers one replay payload to its downstream HTTP endpoint.
// Kept pluggable so the replay driver never hard-codes Telegram's (or
// any other provider's) wire format.
type Sender interface {
	Send(ctx context.Context, endpoint string, headers map[string]string, payload []byte) (statusCode int, err error)
}

// Options controls one redrive pass. Mirrors the flags of
// original_source/scripts/replay_failed_only.py.
type Options struct {
	Since      string
	Start      *time.Time
	End        *time.Time
	DryRun     bool
	Jobs       int
	MaxRetries int
}

// Result summarizes one redrive pass.
type Result struct {
	Total    int
	Success  int
	Failures []Entry
}

// Driver re-drives failed replay_state rows against their provider's HTTP
// endpoint, recording every attempt's outcome back into the store.
type Driver struct {
	store       Store
	sender      Sender
	endpoints   map[string]string
	nowHeader   string
	seedHeader  string
	seed        string
	httpTimeout time.Duration
}

// NewDriver builds a Driver. endpoints maps a replay source (e.g. "x",
// "dex", "topic") to the URL replays for that source are POSTed to.
func NewDriver(store Store, sender Sender, endpoints map[string]string, nowHeader, seedHeader, seed string) *Driver {
	if nowHeader == "" {
		nowHeader = "X-Replay-Now"
	}
	if seedHeader == "" {
		seedHeader = "X-Replay-Seed"
	}
	if seed == "" {
		seed = "42"
	}
	return &Driver{store: store, sender: sender, endpoints: endpoints, nowHeader: nowHeader, seedHeader: seedHeader, seed: seed}
}

// Redrive fetches the current failed set and replays each entry with
// bounded concurrency, recording every attempt via Store.Upsert.
func (d *Driver) Redrive(ctx context.Context, now time.Time, opts Options) (Result, error) {
	var since *time.Time
	if opts.Since != "" {
		t, err := ParseSince(opts.Since, now)
		if err != nil {
			return Result{}, fmt.Errorf("parse since: %w", err)
		}
		since = &t
	}

	rows, err := d.store.ListFailed(ctx, since, opts.Start, opts.End)
	if err != nil {
		return Result{}, fmt.Errorf("list failed: %w", err)
	}

	if opts.DryRun || len(rows) == 0 {
		return Result{Total: len(rows)}, nil
	}

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = 4
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	sem := make(chan struct{}, jobs)
	var wg sync.WaitGroup
	var mu sync.Mutex
	result := Result{Total: len(rows)}

	for _, row := range rows {
		row := row
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			entry := d.replayOne(ctx, row, maxRetries)

			mu.Lock()
			if entry.Success {
				result.Success++
			} else {
				result.Failures = append(result.Failures, entry)
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	return result, nil
}

// replayOne drives one row through its retry loop, persisting every
// attempt's outcome. Mirrors send_request in
// original_source/scripts/replay_failed_only.py.
func (d *Driver) replayOne(ctx context.Context, row State, maxRetries int) Entry {
	endpoint, ok := d.endpoints[row.Source]
	if !ok || endpoint == "" {
		err := fmt.Errorf("missing endpoint for provider %q", row.Source)
		_ = d.store.Upsert(ctx, row.UniqueKey, row.Source, row.Payload, "fail:no_endpoint", 0, err)
		return Entry{UniqueKey: row.UniqueKey, Success: false, Error: err.Error()}
	}

	freezeTS := time.Now().UTC().Format(time.RFC3339)
	if row.LastAttemptAt != nil {
		freezeTS = row.LastAttemptAt.UTC().Format(time.RFC3339)
	}
	headers := map[string]string{
		"Content-Type":    "application/json",
		d.nowHeader:       freezeTS,
		d.seedHeader:      d.seed,
		"Idempotency-Key": row.UniqueKey,
	}

	var last Entry
	for attempt := 1; ; attempt++ {
		start := time.Now()
		status, sendErr := d.sender.Send(ctx, endpoint, headers, row.Payload)
		latencyMs := int(time.Since(start).Milliseconds())

		success := sendErr == nil && status >= 200 && status < 300
		errMsg := ""
		if !success {
			if sendErr != nil {
				errMsg = sendErr.Error()
			} else {
				errMsg = fmt.Sprintf("status_code=%d", status)
			}
		}

		statusLabel := "success"
		if !success {
			statusLabel = fmt.Sprintf("fail:%d", status)
		}
		_ = d.store.Upsert(ctx, row.UniqueKey, row.Source, row.Payload, statusLabel, latencyMs, errOrNil(errMsg))

		last = Entry{UniqueKey: row.UniqueKey, StatusCode: status, LatencyMs: latencyMs, Success: success, Error: errMsg, Attempts: attempt}
		if success || attempt >= maxRetries {
			return last
		}

		sleepFor := time.Duration(math.Min(30, math.Pow(2, float64(attempt)))) * time.Second
		select {
		case <-ctx.Done():
			return last
		case <-time.After(sleepFor):
		}
	}
}

func errOrNil(msg string) error {
	if msg == "" {
		return nil
	}
	return fmt.Errorf("%s", msg)
}
