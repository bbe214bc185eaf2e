package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/Tracy625/event-stream-starter-sub001/domain/card"
)

// handleCardsPreview serves GET /cards/preview?event_key=...&render=1,
// returning the card in the internal pushcard schema without dispatching
// it anywhere.
func (s *Server) handleCardsPreview(w http.ResponseWriter, r *http.Request) {
	eventKey := r.URL.Query().Get("event_key")
	if eventKey == "" {
		writeError(w, http.StatusBadRequest, "event_key is required")
		return
	}

	sig, err := s.signals.GetLatest(r.Context(), eventKey)
	if err != nil {
		writeError(w, http.StatusNotFound, "signal not found")
		return
	}

	cardSig := card.Signal{
		EventKey:         sig.EventKey,
		Type:             string(sig.Type),
		State:            string(sig.State),
		RiskLevel:        sig.RiskLevel,
		RiskSource:       sig.RiskSource,
		RulesFired:       sig.RulesFired,
		SourceLevel:      sig.SourceLevel,
		FeaturesSnapshot: sig.FeaturesSnapshot,
		TopicEntities:    sig.TopicFootprints,
		DataAsOf:         sig.TS,
	}

	timeout := time.Duration(s.cfg.CardsSummaryTimeoutMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	result := s.pipeline.Preview(ctx, string(sig.Type), cardSig, time.Now())
	writeJSON(w, http.StatusOK, result.Pushcard)
}
