// Package server exposes the engine's operations to the UI layer as a
// small JSON API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/faulander/zib/internal/logging"
	"github.com/faulander/zib/internal/scheduler"
	"github.com/faulander/zib/internal/store"
	"github.com/faulander/zib/pkg/embed"
	"github.com/faulander/zib/pkg/feed"
	"github.com/faulander/zib/pkg/rule"
	"github.com/faulander/zib/pkg/similarity"
)

// Server provides the HTTP API.
type Server struct {
	store   *store.Store
	sched   *scheduler.Scheduler
	rules   *rule.Engine
	job     *embed.Job // nil when embeddings are disabled
	simOpts similarity.Options
	log     *logging.Logger
	port    int
}

// New creates the HTTP server.
func New(s *store.Store, sched *scheduler.Scheduler, rules *rule.Engine, job *embed.Job, simOpts similarity.Options, log *logging.Logger, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		store:   s,
		sched:   sched,
		rules:   rules,
		job:     job,
		simOpts: simOpts,
		log:     log,
		port:    port,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/sources", s.handleListSources)
	mux.HandleFunc("POST /api/v1/refresh", s.handleRefreshAll)
	mux.HandleFunc("POST /api/v1/sources/{id}/refresh", s.handleRefreshOne)
	mux.HandleFunc("GET /api/v1/sources/{id}/interval", s.handleInterval)
	mux.HandleFunc("POST /api/v1/statistics/recompute", s.handleRecompute)
	mux.HandleFunc("POST /api/v1/filters/test", s.handleFilterTest)
	mux.HandleFunc("POST /api/v1/filters/preview", s.handleFilterPreview)
	mux.HandleFunc("POST /api/v1/similar", s.handleSimilar)
	mux.HandleFunc("POST /api/v1/embeddings/process", s.handleEmbedProcess)
	mux.HandleFunc("DELETE /api/v1/embeddings", s.handleEmbedPurge)

	return mux
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("server listening on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": sources, "count": len(sources)})
}

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	summary := s.sched.RefreshDue(r.Context())
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRefreshOne(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad source id"))
		return
	}

	opts := feed.Options{SkipAgeFilter: r.URL.Query().Get("skip_age_filter") == "1"}
	result, err := s.sched.RefreshOne(r.Context(), id, opts)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleInterval(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad source id"))
		return
	}

	minutes, origin, err := s.store.EffectiveInterval(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"minutes": minutes, "origin": origin})
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.RecomputeStatistics(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFilterTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rule string `json:"rule"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad request body"))
		return
	}

	resp := map[string]any{"matches": rule.Matches(req.Text, req.Rule)}
	if err := rule.Validate(req.Rule); err != nil {
		// Still usable; the rule degrades to substring matching.
		resp["warning"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleFilterPreview shows what a rule would have suppressed lately,
// so rules can be tuned before enabling them.
func (s *Server) handleFilterPreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rule  string `json:"rule"`
		Limit int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad request body"))
		return
	}

	count, err := s.rules.CountMatches(req.Rule, 7*24*time.Hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	matches, err := s.rules.RecentMatches(req.Rule, req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count_7d": count, "matches": matches})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WindowHours int `json:"window_hours"`
		Limit       int `json:"limit"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	window := 24 * time.Hour
	if req.WindowHours > 0 {
		window = time.Duration(req.WindowHours) * time.Hour
	}

	items, err := s.store.RecentItems(time.Now().Add(-window), req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// Suppressed items never surface, not even inside a group.
	filters, err := s.store.ListFilters(true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(filters) > 0 {
		kept := items[:0]
		for _, item := range items {
			if !rule.Suppressed(item, filters) {
				kept = append(kept, item)
			}
		}
		items = kept
	}

	vectors, err := s.loadVectors(items)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	groups := similarity.GroupCandidates(items, vectors, s.simOpts)
	writeJSON(w, http.StatusOK, map[string]any{"data": groups, "count": len(groups)})
}

func (s *Server) loadVectors(items []store.Item) (map[int64][]float32, error) {
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	rows, err := s.store.EmbeddingsFor(ids)
	if err != nil {
		return nil, err
	}

	vectors := make(map[int64][]float32, len(rows))
	for id, row := range rows {
		v, err := embed.DecodeVector(row.Vector)
		if err != nil {
			s.log.Warn("decode vector for item %d: %v", id, err)
			continue
		}
		vectors[id] = v
	}
	return vectors, nil
}

func (s *Server) handleEmbedProcess(w http.ResponseWriter, r *http.Request) {
	if s.job == nil {
		writeError(w, http.StatusConflict, fmt.Errorf("embeddings are disabled"))
		return
	}
	result, err := s.job.ProcessPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEmbedPurge(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.PurgeEmbeddings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"purged": n})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
