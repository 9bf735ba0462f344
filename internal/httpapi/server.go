package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mirrorwatch/mirrorwatch/internal/repo"
	"github.com/mirrorwatch/mirrorwatch/internal/scoring"
	"github.com/mirrorwatch/mirrorwatch/internal/upstream"
)

const recentErrorLimit = 25

// Server exposes the read-only JSON API. All mutation happens inside the
// scheduler loops; the API only renders stored state.
type Server struct {
	Logger *zap.Logger
	Store  repo.Store
	Engine *scoring.Engine
	Oracle upstream.Classifier

	UpstreamGitURL    string
	UpstreamGitBranch string
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/api/v1/instances", s.handleOverview)
	r.Get("/api/v1/instances/{domain}", s.handleInstance)
	r.Get("/api/v1/instances/{domain}/history", s.handleHistory)
	r.Get("/api/v1/instances/{domain}/stats", s.handleStats)
	r.Get("/api/v1/upstream", s.handleUpstream)

	return r
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := s.Engine.Overview(r.Context(), s.Oracle.Head())
	if err != nil {
		s.Logger.Warn("api_overview_error", zap.Error(err))
		http.Error(w, "overview error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, ov)
}

func (s *Server) handleInstance(w http.ResponseWriter, r *http.Request) {
	dom := chi.URLParam(r, "domain")
	inst, err := s.Store.GetByDomain(r.Context(), dom)
	if err != nil {
		s.Logger.Warn("api_instance_error", zap.String("domain", dom), zap.Error(err))
		http.Error(w, "lookup error", http.StatusInternalServerError)
		return
	}
	if inst == nil {
		http.Error(w, "unknown instance", http.StatusNotFound)
		return
	}

	snap, err := s.Engine.Host(r.Context(), dom)
	if err != nil || snap == nil {
		if err != nil {
			s.Logger.Warn("api_snapshot_error", zap.String("domain", dom), zap.Error(err))
		}
		http.Error(w, "snapshot error", http.StatusInternalServerError)
		return
	}
	errs, err := s.Store.RecentErrors(r.Context(), inst.ID, recentErrorLimit)
	if err != nil {
		s.Logger.Warn("api_errors_error", zap.String("domain", dom), zap.Error(err))
		http.Error(w, "errors error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"instance":      snap,
		"enabled":       inst.Enabled,
		"recent_errors": errs,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	dom := chi.URLParam(r, "domain")
	inst, err := s.Store.GetByDomain(r.Context(), dom)
	if err != nil {
		http.Error(w, "lookup error", http.StatusInternalServerError)
		return
	}
	if inst == nil {
		http.Error(w, "unknown instance", http.StatusNotFound)
		return
	}
	from, to, ok := timeRange(w, r)
	if !ok {
		return
	}
	results, err := s.Store.Range(r.Context(), inst.ID, from, to)
	if err != nil {
		s.Logger.Warn("api_history_error", zap.String("domain", dom), zap.Error(err))
		http.Error(w, "history error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, results)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	dom := chi.URLParam(r, "domain")
	inst, err := s.Store.GetByDomain(r.Context(), dom)
	if err != nil {
		http.Error(w, "lookup error", http.StatusInternalServerError)
		return
	}
	if inst == nil {
		http.Error(w, "unknown instance", http.StatusNotFound)
		return
	}
	from, to, ok := timeRange(w, r)
	if !ok {
		return
	}
	stats, err := s.Store.RangeStats(r.Context(), inst.ID, from, to)
	if err != nil {
		s.Logger.Warn("api_stats_error", zap.String("domain", dom), zap.Error(err))
		http.Error(w, "stats error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleUpstream(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"git_url": s.UpstreamGitURL,
		"branch":  s.UpstreamGitBranch,
		"head":    s.Oracle.Head(),
	})
}

// timeRange parses the optional from/to query parameters (RFC 3339).
// Defaults: the last 24 hours.
func timeRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	from, to := now.Add(-24*time.Hour), now

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "bad from time", http.StatusBadRequest)
			return from, to, false
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "bad to time", http.StatusBadRequest)
			return from, to, false
		}
		to = t
	}
	if !from.Before(to) {
		http.Error(w, "from must be before to", http.StatusBadRequest)
		return from, to, false
	}
	return from, to, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
