package kernel

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/manthysbr/skywatch/internal/core/domain"
	"github.com/manthysbr/skywatch/internal/core/services"
)

// donePayload is the data of the final "done" frame of a log stream.
type donePayload struct {
	JobID   string `json:"job_id"`
	Outcome string `json:"outcome"`
	Title   string `json:"title"`
	Log     string `json:"log"`
}

func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

// handleLogStream tails the bound job's log as text/event-stream. Log deltas
// are sent as unnamed "data:" frames; the stream ends with one "done" event.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	h, ok := s.resolveJob(r)
	if !ok && r.URL.Query().Get("job") != "" {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	release, ok := s.streamer.TryAcquire()
	if !ok {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "too many log streams", http.StatusServiceUnavailable)
		return
	}
	defer release()

	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	// A nil handle produces an empty stream.
	for ev := range s.streamer.Stream(r.Context(), h) {
		switch ev.Type {
		case services.LogEventLog:
			fmt.Fprintf(w, "data: %s\n\n", ev.Data)
		case services.LogEventDone:
			p := donePayload{Outcome: string(ev.Outcome), Log: ev.Data}
			if ev.Message != nil {
				p.Title = ev.Message.Title
				p.JobID = string(ev.Message.JobID)
			}
			data, err := json.Marshal(p)
			if err != nil {
				s.logger.Error("failed to encode done event", "error", err)
				return
			}
			fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
		}
		flusher.Flush()
	}
}

// handleBroadcastSSE streams feed messages and status changes of every job.
func (s *Server) handleBroadcastSSE(w http.ResponseWriter, r *http.Request) {
	ch, unsub := s.eventBus.SubscribeGlobal()
	defer unsub()
	s.pump(w, r, ch)
}

// handleJobSSE streams the status changes of a single job.
func (s *Server) handleJobSSE(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.registry.Get(domain.JobID(id)); err != nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	ch, unsub := s.eventBus.Subscribe(id)
	defer unsub()
	s.pump(w, r, ch)
}

func (s *Server) pump(w http.ResponseWriter, r *http.Request, ch <-chan services.Event) {
	flusher, ok := startSSE(w)
	if !ok {
		return
	}
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
		}
	}
}
