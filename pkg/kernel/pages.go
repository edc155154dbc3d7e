package kernel

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/manthysbr/skywatch/internal/core/domain"
	"github.com/manthysbr/skywatch/internal/core/services"
)

const flashCookie = "skywatch_flash"

// flash is carried across the post-redirect-get of a rejected submission.
type flash struct {
	Errors []domain.FieldError `json:"errors"`
	Form   domain.Submission   `json:"form"`
}

type indexPage struct {
	Form     domain.Submission
	Errors   []domain.FieldError
	Messages []domain.Message
	Jobs     []domain.Job
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := indexPage{
		Form:     domain.Submission{MatchRadius: "1.0"},
		Messages: s.feed.All(),
	}
	for _, h := range s.registry.List() {
		page.Jobs = append(page.Jobs, h.Job())
	}
	if f, ok := s.popFlash(w, r); ok {
		page.Errors = f.Errors
		page.Form = f.Form
	}
	s.render(w, "index.html", page)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.setFlash(w, flash{Errors: []domain.FieldError{{Field: "form", Message: err.Error()}}})
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	sub := domain.Submission{
		RA:          r.PostForm.Get("ra"),
		Dec:         r.PostForm.Get("dec"),
		InputDir:    r.PostForm.Get("indir"),
		MatchRadius: r.PostForm.Get("matchradius"),
	}

	params, fieldErrs := s.validator.ValidateSubmission(sub)
	if len(fieldErrs) > 0 {
		s.setFlash(w, flash{Errors: fieldErrs, Form: sub})
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	h, err := s.lifecycle.SubmitJob(r.Context(), params)
	if err != nil {
		s.logger.Error("failed to submit job", "error", err)
		http.Error(w, "failed to start job", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/results?job="+url.QueryEscape(string(h.ID())), http.StatusSeeOther)
}

type resultsPage struct {
	Job       *domain.Job
	StreamURL string
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	page := resultsPage{StreamURL: "/log_stream"}
	if h, ok := s.resolveJob(r); ok {
		job := h.Job()
		page.Job = &job
		page.StreamURL += "?job=" + url.QueryEscape(string(job.ID))
	}
	s.render(w, "results.html", page)
}

// resolveJob binds a request to a job: the "job" query parameter when
// present, otherwise the earliest admitted job.
func (s *Server) resolveJob(r *http.Request) (*services.JobHandle, bool) {
	if id := r.URL.Query().Get("job"); id != "" {
		h, err := s.registry.Get(domain.JobID(id))
		return h, err == nil
	}
	return s.registry.First()
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("failed to render page", "page", name, "error", err)
	}
}

func (s *Server) setFlash(w http.ResponseWriter, f flash) {
	raw, err := json.Marshal(f)
	if err != nil {
		s.logger.Error("failed to encode flash", "error", err)
		return
	}
	token, err := s.secret.Seal(raw)
	if err != nil {
		s.logger.Error("failed to seal flash", "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash reads and clears the flash cookie. Tampered cookies are dropped.
func (s *Server) popFlash(w http.ResponseWriter, r *http.Request) (flash, bool) {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return flash{}, false
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})

	raw, err := s.secret.Open(c.Value)
	if err != nil {
		s.logger.Warn("discarding invalid flash cookie", "error", err)
		return flash{}, false
	}
	var f flash
	if err := json.Unmarshal(raw, &f); err != nil {
		return flash{}, false
	}
	return f, true
}
