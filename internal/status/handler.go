package status

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"mvdash/internal/platform/logger"
	"mvdash/internal/platform/metrics"
)

// Handler exposes session progress over HTTP using go-chi.
type Handler struct {
	repo    Repository
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler over repo. Metrics may be nil to disable
// metric recording (e.g. in tests).
func NewHandler(repo Repository, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{repo: repo, log: log, metrics: m}
}

// ListSessions handles GET /sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	h.countLookup("list")
	h.writeJSON(w, http.StatusOK, h.repo.List())
}

// GetSession handles GET /sessions/{session_id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	st, err := h.repo.Get(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			h.countLookup("missing")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("get session failed", slog.String("session_id", string(id)), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.countLookup("found")
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) countLookup(result string) {
	if h.metrics != nil {
		h.metrics.IncSessionLookups(result)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Debug("write response failed", slog.String("error", err.Error()))
	}
}

// NewRouter mounts the status endpoints, and /metrics when m is set, with
// request logging and metrics middleware.
func NewRouter(h *Handler, log *slog.Logger, m *metrics.Metrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	if m != nil {
		r.Use(metrics.RequestMiddleware(m))
		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			m.Handler(func() { m.SetActiveSessions(h.repo.ActiveCount()) }).ServeHTTP(w, req)
		})
	}
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.ListSessions)
		r.Get("/{session_id}", h.GetSession)
	})
	return r
}
