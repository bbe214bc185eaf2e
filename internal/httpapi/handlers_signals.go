package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/gorilla/mux"

	"github.com/Tracy625/event-stream-starter-sub001/domain/onchain"
	"github.com/Tracy625/event-stream-starter-sub001/domain/onchain/rules"
	"github.com/Tracy625/event-stream-starter-sub001/domain/signal"
)

var eventKeyRe = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

const signalCacheTTL = 120 * time.Second

type verdictView struct {
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Note       string  `json:"note"`
}

type cacheView struct {
	Hit    bool `json:"hit"`
	TTLSec int  `json:"ttl_sec"`
}

type signalView struct {
	EventKey string       `json:"event_key"`
	Type     string       `json:"type"`
	State    string       `json:"state"`
	Onchain  []onchain.Feature `json:"onchain,omitempty"`
	Verdict  *verdictView `json:"verdict,omitempty"`
	Cache    cacheView    `json:"cache"`
}

// handleSignalByEventKey serves GET /signals/{event_key}, cached for 120s.
// cache.ttl_sec always reports the full 120s lifetime, not the time
// remaining on a cached copy; cache.hit is true when the body comes from
// the cache.
func (s *Server) handleSignalByEventKey(w http.ResponseWriter, r *http.Request) {
	eventKey := mux.Vars(r)["event_key"]
	if !eventKeyRe.MatchString(eventKey) {
		writeError(w, http.StatusNotFound, "event_key must match ^[0-9a-fA-F]{40}$")
		return
	}

	cacheKey := "httpapi:signal:" + eventKey
	if s.cache != nil {
		if cached, ok := s.cache.GetString(r.Context(), cacheKey); ok {
			var hitView signalView
			if json.Unmarshal([]byte(cached), &hitView) == nil {
				hitView.Cache.Hit = true
				writeJSON(w, http.StatusOK, hitView)
				return
			}
		}
	}

	sig, err := s.signals.GetLatest(r.Context(), eventKey)
	if err != nil {
		writeError(w, http.StatusNotFound, "signal not found")
		return
	}

	view := signalView{
		EventKey: sig.EventKey,
		Type:     string(sig.Type),
		State:    string(sig.State),
		Cache:    cacheView{Hit: false, TTLSec: int(signalCacheTTL.Seconds())},
	}

	if feats, err := s.features.Features(r.Context(), "eth", sig.EventKey); err == nil && len(feats) > 0 && s.rules != nil {
		view.Onchain = feats
		verdict := rules.Evaluate(feats[0], s.rules.Current())
		view.Verdict = &verdictView{Decision: string(verdict.Decision), Confidence: verdict.Confidence, Note: verdict.Note}
	}

	writeJSON(w, http.StatusOK, view)

	if s.cache != nil {
		if body, err := json.Marshal(view); err == nil {
			_ = s.cache.SetStringErr(context.Background(), cacheKey, string(body), signalCacheTTL)
		}
	}
}

// handleSignalsHeat serves GET /signals/heat?token=|token_ca=.
func (s *Server) handleSignalsHeat(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	tokenCA := r.URL.Query().Get("token_ca")
	if (token == "") == (tokenCA == "") {
		writeError(w, http.StatusBadRequest, "exactly one of token or token_ca is required")
		return
	}

	env := signal.DefaultHeatEnv()
	result, err := s.heat.Compute(r.Context(), token, tokenCA, nil, env)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("heat compute failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cnt_10m":   result.Cnt10m,
		"cnt_30m":   result.Cnt30m,
		"slope":     result.Slope,
		"trend":     result.Trend,
		"degrade":   result.Degrade,
		"persisted": !result.Degrade && !result.FromCache,
	})
}
