package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/manthysbr/skywatch/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *JobRegistry {
	t.Helper()
	reg := NewJobRegistry(testLogger(), NewWorkspaceManager(t.TempDir()))
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func admit(t *testing.T, reg *JobRegistry) *JobHandle {
	t.Helper()
	h, err := reg.Admit(domain.JobParams{RA: 10, Dec: 20, InputDir: "/data", Tuning: domain.DefaultTuning()})
	require.NoError(t, err)
	return h
}

// memRepo is an in-memory ports.Repository.
type memRepo struct {
	mu       sync.Mutex
	jobs     map[domain.JobID]domain.Job
	history  []domain.JobStatus
	messages []domain.Message
}

func newMemRepo() *memRepo {
	return &memRepo{jobs: make(map[domain.JobID]domain.Job)}
}

func (r *memRepo) SaveJob(_ context.Context, job domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	r.history = append(r.history, job.Status)
	return nil
}

func (r *memRepo) GetJob(_ context.Context, id domain.JobID) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return job, nil
}

func (r *memRepo) ListJobs(_ context.Context) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (r *memRepo) SaveMessage(_ context.Context, msg domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *memRepo) ListMessages(_ context.Context, _ int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Message(nil), r.messages...), nil
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) statuses() []domain.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.JobStatus(nil), r.history...)
}

// fakeAnalyzer runs fn for every phase and records the phases it saw.
type fakeAnalyzer struct {
	mu     sync.Mutex
	phases []domain.Phase
	fn     func(ctx context.Context, phase domain.Phase, log io.Writer) error
}

func (a *fakeAnalyzer) RunPhase(ctx context.Context, phase domain.Phase, _ domain.Job, log io.Writer) error {
	a.mu.Lock()
	a.phases = append(a.phases, phase)
	a.mu.Unlock()
	if a.fn == nil {
		_, err := io.WriteString(log, string(phase)+" ok\n")
		return err
	}
	return a.fn(ctx, phase, log)
}

func (a *fakeAnalyzer) seen() []domain.Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Phase(nil), a.phases...)
}
