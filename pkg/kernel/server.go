package kernel

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/manthysbr/skywatch/internal/config"
	"github.com/manthysbr/skywatch/internal/core/domain"
	"github.com/manthysbr/skywatch/internal/core/ports"
	"github.com/manthysbr/skywatch/internal/core/services"
	"github.com/manthysbr/skywatch/internal/observability"
	"github.com/rs/cors"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"ra":   services.FormatRA,
	"dec":  services.FormatDec,
	"when": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
}).ParseFS(templateFS, "templates/*.html"))

// Server exposes job submission, the results page and the log stream.
type Server struct {
	logger    *slog.Logger
	lifecycle *services.WorkerLifecycle
	registry  *services.JobRegistry
	validator *services.InputValidator
	streamer  *services.LogStreamer
	feed      *services.Feed
	eventBus  *services.EventBus
	metrics   *observability.Metrics
	secret    *config.SecretKey
	repo      ports.Repository // optional journal of past runs
	origins   []string
}

// Deps groups the collaborators a Server needs.
type Deps struct {
	Lifecycle   *services.WorkerLifecycle
	Registry    *services.JobRegistry
	Validator   *services.InputValidator
	Streamer    *services.LogStreamer
	Feed        *services.Feed
	EventBus    *services.EventBus
	Metrics     *observability.Metrics
	Secret      *config.SecretKey
	Repo        ports.Repository
	CORSOrigins []string
}

func NewServer(logger *slog.Logger, d Deps) *Server {
	return &Server{
		logger:    logger,
		lifecycle: d.Lifecycle,
		registry:  d.Registry,
		validator: d.Validator,
		streamer:  d.Streamer,
		feed:      d.Feed,
		eventBus:  d.EventBus,
		metrics:   d.Metrics,
		secret:    d.Secret,
		repo:      d.Repo,
		origins:   d.CORSOrigins,
	}
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /{$}", s.handleSubmit)
	mux.HandleFunc("GET /results", s.handleResults)
	mux.HandleFunc("GET /log_stream", s.handleLogStream)

	mux.HandleFunc("GET /v1/jobs", s.handleListJobs)
	mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /v1/jobs/{id}/events", s.handleJobSSE)
	mux.HandleFunc("GET /v1/messages", s.handleListMessages)
	mux.HandleFunc("GET /v1/events", s.handleBroadcastSSE)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	})
	return c.Handler(mux)
}

type jobView struct {
	domain.Job
	Alive  bool           `json:"alive"`
	Result *domain.Result `json:"result,omitempty"`
}

func viewOf(h *services.JobHandle) jobView {
	v := jobView{Job: h.Job(), Alive: h.Alive()}
	if !v.Alive {
		r := h.Result()
		v.Result = &r
	}
	return v
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	handles := s.registry.List()
	live := make(map[domain.JobID]bool, len(handles))
	views := make([]jobView, 0, len(handles))

	// Journaled jobs from earlier runs come first, in their recorded order.
	if s.repo != nil {
		for _, h := range handles {
			live[h.ID()] = true
		}
		past, err := s.repo.ListJobs(r.Context())
		if err != nil {
			s.logger.Error("failed to list journaled jobs", "error", err)
		}
		for _, j := range past {
			if !live[j.ID] {
				views = append(views, jobView{Job: j})
			}
		}
	}
	for _, h := range handles {
		views = append(views, viewOf(h))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := domain.JobID(r.PathValue("id"))
	if h, err := s.registry.Get(id); err == nil {
		writeJSON(w, http.StatusOK, viewOf(h))
		return
	}
	if s.repo != nil {
		job, err := s.repo.GetJob(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, jobView{Job: job})
			return
		}
		if !errors.Is(err, domain.ErrJobNotFound) {
			s.logger.Error("failed to load job", "job_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load job")
			return
		}
	}
	writeError(w, http.StatusNotFound, "job not found")
}

func (s *Server) handleListMessages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.feed.All())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
