package scheduler

import (
	"context"
	"time"

	"github.com/Tracy625/event-stream-starter-sub001/domain/event"
	"github.com/Tracy625/event-stream-starter-sub001/domain/onchain"
	"github.com/Tracy625/event-stream-starter-sub001/domain/onchain/rules"
	"github.com/Tracy625/event-stream-starter-sub001/domain/outbox"
	"github.com/Tracy625/event-stream-starter-sub001/domain/signal"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/logging"
)

// CompactTask builds the events.compact_5m task: scan raw_posts flagged
// as candidates over the last 24h, infer chain from URL heuristics, and
// upsert them into the Event Core under EVENT_KEY_VERSION=v2.
func CompactTask(reader event.RawPostReader, store event.Store, env event.Env, limit int, log *logging.Logger) Task {
	if limit <= 0 {
		limit = 1000
	}
	env.KeyVersion = "v2"

	return func(ctx context.Context) error {
		now := time.Now()
		rows, err := reader.ListCandidates(ctx, now.Add(-24*time.Hour), limit)
		if err != nil {
			return err
		}

		var scanned, upserted, skipped, errored int
		for _, row := range rows {
			scanned++
			if row.Symbol == "" && row.TokenCA == "" {
				skipped++
				continue
			}
			post := event.Post{
				Type:      row.Source,
				Symbol:    row.Symbol,
				TokenCA:   row.TokenCA,
				Text:      row.Text,
				CreatedTS: row.TS,
				ChainID:   event.InferChainID(row.URLs),
				Keywords:  row.Keywords,
				Sentiment: row.SentimentScore,
			}
			eventKey, err := event.MakeEventKey(post, env)
			if err != nil {
				errored++
				continue
			}
			keywordsNorm := event.ExtractTopicKeywords(row.Keywords, env.TopicTopK)
			ev := event.Event{
				EventKey:           eventKey,
				Symbol:             row.Symbol,
				TokenCA:            row.TokenCA,
				StartTS:            row.TS,
				LastTS:             row.TS,
				KeywordsNorm:       keywordsNorm,
				TopicHash:          event.TopicHash(keywordsNorm, ""),
				LastSentimentScore: row.SentimentScore,
			}
			if _, err := store.Upsert(ctx, eventKey, ev, buildEvidence(row), env); err != nil {
				errored++
				continue
			}
			upserted++
		}

		if log != nil {
			log.WithStage("events.compact").WithFields(map[string]interface{}{
				"scanned": scanned, "upserted": upserted, "skipped": skipped, "errors": errored,
			}).Info("events.compact.done")
		}
		return nil
	}
}

func buildEvidence(row event.RawPostRow) []event.EvidenceItem {
	if len(row.URLs) == 0 {
		return nil
	}
	ref := map[string]interface{}{"url": row.URLs[0], "source_id": row.ID}
	return []event.EvidenceItem{{
		Source:   row.Source,
		TS:       row.TS,
		Ref:      event.CanonicalizeRef(ref),
		Strength: event.GradeStrength(ref),
	}}
}

// TopicScanTask builds the scan_topic_signals task: for every distinct
// symbol/token_ca pair seen in recent candidate posts, recompute heat and,
// when a Persister is set, merge the result into the matching existing
// signals row (no new signal row is created).
func TopicScanTask(reader event.RawPostReader, heat *signal.Computer, persister *signal.Persister, window time.Duration, limit int, heatEnv signal.HeatEnv, log *logging.Logger) Task {
	if limit <= 0 {
		limit = 1000
	}
	if window <= 0 {
		window = 2 * time.Hour
	}

	return func(ctx context.Context) error {
		now := time.Now()
		rows, err := reader.ListCandidates(ctx, now.Add(-window), limit)
		if err != nil {
			return err
		}

		seen := map[string]bool{}
		var computed, persisted int
		for _, row := range rows {
			key := row.Symbol + "|" + row.TokenCA
			if seen[key] || (row.Symbol == "" && row.TokenCA == "") {
				continue
			}
			seen[key] = true

			result, err := heat.Compute(ctx, row.Symbol, row.TokenCA, &now, heatEnv)
			if err != nil {
				continue
			}
			computed++
			if persister == nil {
				continue
			}
			if ok, _ := persister.Persist(ctx, row.Symbol, row.TokenCA, result, heatEnv); ok {
				persisted++
			}
		}

		if log != nil {
			log.WithStage("scan_topic_signals").WithFields(map[string]interface{}{
				"computed": computed, "persisted": persisted,
			}).Info("scan_topic_signals.done")
		}
		return nil
	}
}

// AggregateTopicsTask builds the aggregate_topics task: promote topic
// signals whose latest recorded heat slope is positive to the verified state on
// an hourly cadence, coarser than the 5-minute scan.
func AggregateTopicsTask(signals signal.Store, limit int, log *logging.Logger) Task {
	if limit <= 0 {
		limit = 500
	}

	return func(ctx context.Context) error {
		now := time.Now()
		candidates, err := signals.ListCandidateTokens(ctx, limit)
		if err != nil {
			return err
		}

		var promoted int
		for _, c := range candidates {
			if c.Type != signal.TypeTopic {
				continue
			}
			sig, err := signals.GetLatest(ctx, c.EventKey)
			if err != nil {
				continue
			}
			if sig.HeatSlope == nil || *sig.HeatSlope <= 0 {
				continue
			}
			sig.State = signal.StateVerified
			sig.TS = now
			if err := signals.Upsert(ctx, sig); err == nil {
				promoted++
			}
		}

		if log != nil {
			log.WithStage("aggregate_topics").WithFields(map[string]interface{}{
				"scanned": len(candidates), "promoted": promoted,
			}).Info("aggregate_topics.done")
		}
		return nil
	}
}

// VerifyOnchainTask builds the verify_onchain_signals task: re-evaluate
// candidate signals with a known token against fresh on-chain features
// and the rules registry, upgrading, downgrading, or holding them.
func VerifyOnchainTask(signals signal.Store, features onchain.FeatureStore, registry *rules.Registry, chain string, limit int, log *logging.Logger) Task {
	if limit <= 0 {
		limit = 500
	}
	if chain == "" {
		chain = "eth"
	}

	return func(ctx context.Context) error {
		if registry == nil {
			return nil
		}
		now := time.Now()
		candidates, err := signals.ListCandidateTokens(ctx, limit)
		if err != nil {
			return err
		}

		var verified, downgraded int
		for _, c := range candidates {
			feats, err := features.Features(ctx, chain, c.TokenCA)
			if err != nil || len(feats) == 0 {
				continue
			}
			verdict := rules.Evaluate(feats[0], registry.Current())

			sig, err := signals.GetLatest(ctx, c.EventKey)
			if err != nil {
				continue
			}
			asOf := feats[0].AsOfTS
			confidence := verdict.Confidence
			sig.OnchainAsofTS = &asOf
			sig.OnchainConfidence = &confidence
			sig.TS = now

			switch verdict.Decision {
			case onchain.DecisionUpgrade:
				sig.State = signal.StateVerified
				verified++
			case onchain.DecisionDowngrade:
				sig.State = signal.StateDowngraded
				downgraded++
			default:
				continue
			}
			_ = signals.Upsert(ctx, sig)
		}

		if log != nil {
			log.WithStage("verify_onchain_signals").WithFields(map[string]interface{}{
				"scanned": len(candidates), "verified": verified, "downgraded": downgraded,
			}).Info("verify_onchain_signals.done")
		}
		return nil
	}
}

// OutboxDrainTask builds the outbox.drain task: dequeue and send pending
// push notifications, continuously re-run on a short cadence.
func OutboxDrainTask(worker *outbox.Worker, log *logging.Logger) Task {
	return func(ctx context.Context) error {
		done, retried, dlq, err := worker.Drain(ctx)
		if err != nil {
			return err
		}
		if log != nil {
			log.WithStage("outbox.drain").WithFields(map[string]interface{}{
				"done": done, "retried": retried, "dlq": dlq,
			}).Info("outbox.drain.done")
		}
		return nil
	}
}
