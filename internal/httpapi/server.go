// Package httpapi exposes the pipeline's read endpoints: signal lookup,
// heat metrics, on-chain feature/query endpoints, the expert on-chain
// view, and a card preview endpoint.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	gopsprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/Tracy625/event-stream-starter-sub001/domain/card"
	"github.com/Tracy625/event-stream-starter-sub001/domain/onchain"
	"github.com/Tracy625/event-stream-starter-sub001/domain/onchain/rules"
	"github.com/Tracy625/event-stream-starter-sub001/domain/signal"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/cache"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/config"
	"github.com/Tracy625/event-stream-starter-sub001/internal/platform/logging"
)

// Server holds every dependency the HTTP handlers need.
type Server struct {
	cfg      *config.Config
	db       *sql.DB
	cache    *cache.Client
	log      *logging.Logger
	signals  signal.Store
	heat     *signal.Computer
	features onchain.FeatureStore
	pipeline *card.Pipeline
	rules    *rules.Registry
}

// NewServer wires a Server from its already-constructed dependencies.
func NewServer(cfg *config.Config, db *sql.DB, cacheClient *cache.Client, log *logging.Logger,
	signals signal.Store, heat *signal.Computer, features onchain.FeatureStore, pipeline *card.Pipeline, rulesRegistry *rules.Registry) *Server {
	return &Server{cfg: cfg, db: db, cache: cacheClient, log: log, signals: signals, heat: heat, features: features, pipeline: pipeline, rules: rulesRegistry}
}

// Router builds the gorilla/mux router exposing every endpoint.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	r.HandleFunc("/signals/heat", s.handleSignalsHeat).Methods(http.MethodGet)
	r.HandleFunc("/signals/{event_key}", s.handleSignalByEventKey).Methods(http.MethodGet)
	r.HandleFunc("/onchain/features", s.handleOnchainFeatures).Methods(http.MethodGet)
	r.HandleFunc("/onchain/freshness", s.handleOnchainFreshness).Methods(http.MethodGet)
	r.HandleFunc("/onchain/query", s.handleOnchainQuery).Methods(http.MethodGet)
	r.HandleFunc("/expert/onchain", s.handleExpertOnchain).Methods(http.MethodGet)
	r.HandleFunc("/cards/preview", s.handleCardsPreview).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "healthy"}
	if proc, err := gopsprocess.NewProcess(int32(os.Getpid())); err == nil {
		if memPct, err := proc.MemoryPercent(); err == nil {
			body["mem_percent"] = memPct
		}
		if cpuPct, err := proc.CPUPercent(); err == nil {
			body["cpu_percent"] = cpuPct
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "cache unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
