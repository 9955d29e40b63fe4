package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vidpulse/vidpulse/pkg/model"
	"github.com/vidpulse/vidpulse/pkg/pipeline"
	"github.com/vidpulse/vidpulse/pkg/quota"
	"github.com/vidpulse/vidpulse/pkg/youtube"
)

// Pipelines is the pipeline surface the API exposes; satisfied by
// pipeline.Engine.
type Pipelines interface {
	Trending(ctx context.Context, params model.SearchParams, saved []model.SavedChannel) ([]model.ScoredVideo, error)
	Radar(ctx context.Context, params pipeline.RadarParams, saved []model.SavedChannel, progress pipeline.ProgressFunc) ([]model.ScoredVideo, error)
	Materials(ctx context.Context, params model.SearchParams, saved []model.SavedChannel) ([]model.ScoredVideo, error)
}

// QuotaReader reports the current day's usage; satisfied by quota.Ledger.
type QuotaReader interface {
	State(ctx context.Context) (model.UsageRecord, error)
}

// StatsFunc reports cache hit/miss counters; satisfied by
// cache.ResultCache.Stats. May be nil.
type StatsFunc func() (hits, misses int64)

// Server provides the health check and pipeline API endpoints.
type Server struct {
	pipelines  Pipelines
	ledger     QuotaReader
	cacheStats StatsFunc
	saved      []model.SavedChannel
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates an API server.
func NewServer(p Pipelines, ledger QuotaReader, cacheStats StatsFunc, saved []model.SavedChannel, logger *slog.Logger) *Server {
	s := &Server{
		pipelines:  p,
		ledger:     ledger,
		cacheStats: cacheStats,
		saved:      saved,
		mux:        http.NewServeMux(),
		logger:     logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/trending", s.handleTrending)
	s.mux.HandleFunc("GET /api/v1/radar", s.handleRadar)
	s.mux.HandleFunc("GET /api/v1/materials", s.handleMaterials)
	s.mux.HandleFunc("GET /api/v1/quota", s.handleQuota)
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	params := searchParamsFromQuery(r)
	scored, err := s.pipelines.Trending(ctx, params, s.saved)
	if err != nil {
		s.writeError(w, "trending", err)
		return
	}
	writeJSON(w, scored)
}

func (s *Server) handleRadar(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	seed := r.URL.Query().Get("channel")
	if seed == "" {
		http.Error(w, "missing channel parameter", http.StatusBadRequest)
		return
	}

	params := pipeline.RadarParams{
		SeedChannel:   seed,
		Region:        r.URL.Query().Get("region"),
		LookbackHours: intQuery(r, "lookback_hours"),
	}
	scored, err := s.pipelines.Radar(ctx, params, s.saved, nil)
	if err != nil {
		s.writeError(w, "radar", err)
		return
	}
	writeJSON(w, scored)
}

func (s *Server) handleMaterials(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	params := searchParamsFromQuery(r)
	if params.Query == "" {
		http.Error(w, "missing q parameter", http.StatusBadRequest)
		return
	}
	scored, err := s.pipelines.Materials(ctx, params, s.saved)
	if err != nil {
		s.writeError(w, "materials", err)
		return
	}
	writeJSON(w, scored)
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	rec, err := s.ledger.State(ctx)
	if err != nil {
		s.logger.Error("read quota state", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp := quotaResponse{
		Used:      rec.Used,
		Budget:    rec.TotalBudget,
		Remaining: rec.Remaining(),
		Exceeded:  rec.Exceeded,
		ResetAt:   rec.ResetAt,
		Events:    len(rec.Events),
	}
	if s.cacheStats != nil {
		hits, misses := s.cacheStats()
		resp.CacheHits = hits
		resp.CacheMisses = misses
	}
	writeJSON(w, resp)
}

type quotaResponse struct {
	Used        int       `json:"used"`
	Budget      int       `json:"budget"`
	Remaining   int       `json:"remaining"`
	Exceeded    bool      `json:"exceeded"`
	ResetAt     time.Time `json:"reset_at"`
	Events      int       `json:"events"`
	CacheHits   int64     `json:"cache_hits"`
	CacheMisses int64     `json:"cache_misses"`
}

// writeError maps pipeline failures onto HTTP statuses: a spent budget is
// 429, an unknown channel 404, anything else 500.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, quota.ErrBudgetSpent), errors.Is(err, youtube.ErrQuotaExceeded):
		http.Error(w, "quota budget spent", http.StatusTooManyRequests)
	case errors.Is(err, youtube.ErrChannelNotFound):
		http.Error(w, "channel not found", http.StatusNotFound)
	default:
		s.logger.Error(op+" pipeline failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func searchParamsFromQuery(r *http.Request) model.SearchParams {
	q := r.URL.Query()
	params := model.SearchParams{
		Region:        q.Get("region"),
		Query:         q.Get("q"),
		CategoryID:    q.Get("category"),
		LookbackHours: intQuery(r, "lookback_hours"),
		MaxResults:    intQuery(r, "max_results"),
	}
	if params.Query != "" {
		params.Strategy = model.StrategySearch
	} else {
		params.Strategy = model.StrategyMostPopular
	}
	return params
}

func intQuery(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
