package services

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/skywatch/internal/core/domain"
)

// JobHandle is a registry entry: the job, its log sink and its worker state.
type JobHandle struct {
	sink   *LogSink
	logger *slog.Logger
	done   chan struct{}

	mu     sync.RWMutex
	job    domain.Job
	result domain.Result

	finishOnce   sync.Once
	completeOnce sync.Once
}

func (h *JobHandle) ID() domain.JobID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.job.ID
}

// Job returns a snapshot of the job.
func (h *JobHandle) Job() domain.Job {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.job
}

func (h *JobHandle) Sink() *LogSink {
	return h.sink
}

// Logger writes leveled lines into the job's sink.
func (h *JobHandle) Logger() *slog.Logger {
	return h.logger
}

// Alive reports whether the job's worker is still running.
func (h *JobHandle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done is closed once the worker has stopped and its Result is set.
func (h *JobHandle) Done() <-chan struct{} {
	return h.done
}

// Result is meaningful only after Done is closed.
func (h *JobHandle) Result() domain.Result {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.result
}

func (h *JobHandle) setStatus(status domain.JobStatus, errMsg *string) domain.Job {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.job.Status = status
	h.job.Error = errMsg
	h.job.UpdatedAt = time.Now()
	return h.job
}

func (h *JobHandle) finish(result domain.Result) {
	h.finishOnce.Do(func() {
		h.mu.Lock()
		h.result = result
		h.mu.Unlock()
		close(h.done)
	})
}

// complete runs fn at most once per job.
func (h *JobHandle) complete(fn func()) {
	h.completeOnce.Do(fn)
}

// JobRegistry holds every admitted job in admission order for the
// lifetime of the process.
type JobRegistry struct {
	logger    *slog.Logger
	workspace *WorkspaceManager

	mu   sync.RWMutex
	jobs []*JobHandle
	byID map[domain.JobID]*JobHandle
	seq  int
}

func NewJobRegistry(logger *slog.Logger, ws *WorkspaceManager) *JobRegistry {
	return &JobRegistry{
		logger:    logger,
		workspace: ws,
		byID:      make(map[domain.JobID]*JobHandle),
	}
}

// Admit creates a new job for params. Every call creates a distinct job,
// identical parameters included. The handle is fully built before it
// becomes visible to readers.
func (r *JobRegistry) Admit(params domain.JobParams) (*JobHandle, error) {
	id := domain.JobID(uuid.New().String())

	dir, err := r.workspace.PrepareWorkspace(string(id))
	if err != nil {
		return nil, err
	}
	sink, err := OpenLogSink(dir)
	if err != nil {
		_ = r.workspace.CleanupWorkspace(string(id))
		return nil, err
	}

	now := time.Now()
	h := &JobHandle{
		sink: sink,
		done: make(chan struct{}),
		job: domain.Job{
			ID:        id,
			Params:    params,
			Status:    domain.JobStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	next := r.logger.Handler().WithAttrs([]slog.Attr{slog.String("job_id", string(id))})
	h.logger = slog.New(NewLineHandler(sink, slog.LevelInfo, next))

	r.mu.Lock()
	r.seq++
	h.job.Seq = r.seq
	r.jobs = append(r.jobs, h)
	r.byID[id] = h
	r.mu.Unlock()

	r.logger.Info("job admitted", "job_id", id, "seq", h.job.Seq)
	return h, nil
}

func (r *JobRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// First returns the earliest admitted job.
func (r *JobRegistry) First() (*JobHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.jobs) == 0 {
		return nil, false
	}
	return r.jobs[0], true
}

func (r *JobRegistry) Get(id domain.JobID) (*JobHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return h, nil
}

// List returns the handles in admission order.
func (r *JobRegistry) List() []*JobHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*JobHandle, len(r.jobs))
	copy(out, r.jobs)
	return out
}

// Close releases every job's sink.
func (r *JobRegistry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for _, h := range r.jobs {
		if err := h.sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
