package card

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/metrics"
)

// PipelineResult is the outcome of running one signal through the full
// card pipeline: route → gate → dedup → render → transform → validate →
// dispatch.
type PipelineResult struct {
	Emitted    bool
	DedupSkip  bool
	Reason     DedupReason
	Pushcard   Pushcard
	Dispatch   DispatchResult
	Degrade    bool
	LatencyMs  int64
}

// Pipeline wires the card pipeline's dependencies.
type Pipeline struct {
	templates       TemplateStore
	kv              KVStore
	dispatcher      Dispatcher
	evaluator       GoplusEvaluator
	metrics         *metrics.Metrics
	log             *logrus.Logger
	dedupTTL        time.Duration
	eventKeyVersion string
}

// NewPipeline builds a card Pipeline.
func NewPipeline(templates TemplateStore, kv KVStore, dispatcher Dispatcher, evaluator GoplusEvaluator, m *metrics.Metrics, log *logrus.Logger, dedupTTL time.Duration, eventKeyVersion string) *Pipeline {
	if evaluator == nil {
		evaluator = NewDefaultGoplusEvaluator()
	}
	return &Pipeline{
		templates:       templates,
		kv:              kv,
		dispatcher:      dispatcher,
		evaluator:       evaluator,
		metrics:         m,
		log:             log,
		dedupTTL:        dedupTTL,
		eventKeyVersion: eventKeyVersion,
	}
}

// Run executes the full pipeline for one signal and dispatches to
// channelID if the dedup check allows it.
func (p *Pipeline) Run(ctx context.Context, rawType string, sig Signal, channelID string, now time.Time) PipelineResult {
	start := time.Now()
	var result PipelineResult

	cardType, err := NormalizeType(rawType)
	if err != nil {
		p.metrics.CardsUnknownTypeTotal.WithLabelValues(rawType).Inc()
		result.Reason = ReasonNoEventKey
		return result
	}

	generator, ok := RouteFor(cardType)
	if !ok {
		p.metrics.CardsUnknownTypeTotal.WithLabelValues(rawType).Inc()
		return result
	}

	payload := generator(sig, now, p.evaluator)

	stateVersion := StateVersion(sig.State, payload.Context["risk_level"].(string), payload.Meta.Degrade, p.eventKeyVersion, asStringSlice(payload.Context["rules_fired"]))
	emit, reason := ShouldEmit(ctx, p.kv, sig.EventKey, stateVersion)
	result.Reason = reason
	if !emit {
		result.DedupSkip = true
		p.logStage("cards.dedup_skip", logrus.Fields{"event_key": sig.EventKey, "reason": reason})
		return result
	}

	rendered := Render(p.templates, payload)
	if rendered.Degrade {
		payload.Meta.Degrade = true
		p.metrics.CardsRenderFailTotal.WithLabelValues("template_missing").Inc()
	}

	pushcard := ToPushcard(payload, rendered)
	if problems := ValidatePushcard(pushcard); len(problems) > 0 {
		pushcard.States.Degrade = true
		p.metrics.CardsRenderFailTotal.WithLabelValues("schema_invalid").Inc()
		p.logStage("cards.schema_error", logrus.Fields{"problems": problems, "type": cardType})
	}
	result.Pushcard = pushcard
	result.Degrade = pushcard.States.Degrade

	dispatchText := rendered.TG
	dispatchResult := p.dispatcher.Send(ctx, channelID, dispatchText)
	result.Dispatch = dispatchResult

	if dispatchResult.Class == StatusOK {
		MarkEmitted(ctx, p.kv, sig.EventKey, stateVersion, p.dedupTTL)
		p.metrics.CardsPushTotal.WithLabelValues(string(cardType)).Inc()
		result.Emitted = true
	} else {
		p.metrics.CardsPushFailTotal.WithLabelValues(string(cardType), string(dispatchResult.Class)).Inc()
	}

	result.LatencyMs = time.Since(start).Milliseconds()
	p.metrics.CardsPipelineDuration.WithLabelValues(string(cardType)).Observe(time.Since(start).Seconds())

	return result
}

// Preview runs route → gate → render → transform → validate without
// dedup checks or dispatch, for the /cards/preview read endpoint. A
// generation timeout on ctx degrades to a template-rendered fallback
// summary rather than blocking the caller.
func (p *Pipeline) Preview(ctx context.Context, rawType string, sig Signal, now time.Time) PipelineResult {
	var result PipelineResult

	cardType, err := NormalizeType(rawType)
	if err != nil {
		result.Reason = ReasonNoEventKey
		return result
	}

	generator, ok := RouteFor(cardType)
	if !ok {
		return result
	}

	payload := generator(sig, now, p.evaluator)

	done := make(chan Rendered, 1)
	go func() { done <- Render(p.templates, payload) }()

	var rendered Rendered
	select {
	case rendered = <-done:
	case <-ctx.Done():
		rendered = Rendered{TG: fallbackText(payload), UI: fallbackText(payload), Degrade: true}
	}
	if rendered.Degrade {
		payload.Meta.Degrade = true
	}

	pushcard := ToPushcard(payload, rendered)
	if problems := ValidatePushcard(pushcard); len(problems) > 0 {
		pushcard.States.Degrade = true
		p.logStage("cards.preview_schema_error", logrus.Fields{"problems": problems, "type": cardType})
	}
	result.Pushcard = pushcard
	result.Degrade = pushcard.States.Degrade
	return result
}

func (p *Pipeline) logStage(stage string, fields logrus.Fields) {
	if p.log == nil {
		return
	}
	fields["stage"] = stage
	p.log.WithFields(fields).Info(stage)
}

func asStringSlice(v interface{}) []string {
	s, _ := v.([]string)
	return s
}
