package httpapi

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Tracy625/event-stream-starter-sub001/domain/onchain"
)

var addressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// handleOnchainFeatures serves GET /onchain/features?chain=eth&address=0x...
func (s *Server) handleOnchainFeatures(w http.ResponseWriter, r *http.Request) {
	chain := r.URL.Query().Get("chain")
	address := r.URL.Query().Get("address")
	if !addressRe.MatchString(address) {
		writeError(w, http.StatusBadRequest, "address must match ^0x[a-fA-F0-9]{40}$")
		return
	}

	feats, err := s.features.Features(r.Context(), chain, address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("fetch features: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"chain": chain, "address": address, "features": feats})
}

// handleOnchainFreshness serves GET /onchain/freshness?chain=eth
func (s *Server) handleOnchainFreshness(w http.ResponseWriter, r *http.Request) {
	chain := r.URL.Query().Get("chain")
	latestBlock, dataAsOf, err := s.features.Freshness(r.Context(), chain)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("fetch freshness: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chain":        chain,
		"latest_block": latestBlock,
		"data_as_of":   dataAsOf,
	})
}

// handleOnchainQuery serves GET /onchain/query?template=...
func (s *Server) handleOnchainQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	template := q.Get("template")

	params := onchain.QueryParams{Address: q.Get("address")}
	params.FromTS = parseInt64(q.Get("from_ts"))
	params.ToTS = parseInt64(q.Get("to_ts"))
	params.WindowMinutes = int(parseInt64(q.Get("window_minutes")))
	if topN := q.Get("top_n"); topN != "" {
		params.TopN = int(parseInt64(topN))
	}
	if fields := q.Get("fields"); fields != "" {
		params.Fields = strings.Split(fields, ",")
	}

	if err := onchain.LintTemplate(template, params, time.Now()); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"degrade": "invalid_request", "reason": err.Error(), "template": template})
		return
	}

	result, err := s.features.ExecuteTemplate(r.Context(), template, params)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"degrade": "internal_error", "reason": err.Error(), "template": template})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleExpertOnchain serves GET /expert/onchain?chain=eth&address=0x...,
// gated by EXPERT_KEY: 404 while EXPERT_KEY is unset (there is no separate
// on/off switch), 403 unless the X-Expert-Key header matches it, and 429
// past a per-key rate limit over Redis.
func (s *Server) handleExpertOnchain(w http.ResponseWriter, r *http.Request) {
	if s.cfg.ExpertKey == "" {
		writeError(w, http.StatusNotFound, "expert view disabled")
		return
	}
	key := r.Header.Get("X-Expert-Key")
	if key == "" || key != s.cfg.ExpertKey {
		writeError(w, http.StatusForbidden, "invalid expert key")
		return
	}

	if s.cache != nil {
		bucket := "httpapi:expert_rl:" + key
		count, err := s.cache.Incr(r.Context(), bucket, time.Minute)
		if err == nil && int(count) > s.cfg.ExpertRateLimitPerMin {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
	}

	chain := r.URL.Query().Get("chain")
	address := r.URL.Query().Get("address")
	if !addressRe.MatchString(address) {
		writeError(w, http.StatusBadRequest, "address must match ^0x[a-fA-F0-9]{40}$")
		return
	}

	feats, err := s.features.Features(r.Context(), chain, address)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("fetch features: %v", err))
		return
	}
	_, dataAsOf, _ := s.features.Freshness(r.Context(), chain)

	stale := time.Since(dataAsOf) > time.Duration(s.cfg.FreshnessSLOSec)*time.Second
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"series":     bucketByWindow(feats),
		"overview":   overviewFrom(feats),
		"data_as_of": dataAsOf,
		"stale":      stale,
		"cache":      cacheView{Hit: false, TTLSec: s.cfg.ExpertCacheTTLSec},
	})
}

func bucketByWindow(feats []onchain.Feature) map[string]interface{} {
	series := map[string]interface{}{}
	for _, f := range feats {
		switch {
		case f.WindowMin <= 24*60:
			series["h24"] = f
		default:
			series["d7"] = f
		}
	}
	return series
}

func overviewFrom(feats []onchain.Feature) map[string]float64 {
	if len(feats) == 0 {
		return map[string]float64{"top10_share": 0, "others_share": 1}
	}
	top10 := feats[0].Top10Share
	return map[string]float64{"top10_share": top10, "others_share": 1 - top10}
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
