package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrSchedulerNotStarted is returned by SubmitJob before Start.
var ErrSchedulerNotStarted = errors.New("scheduler not started")

// JobScheduler runs every submitted job immediately on its own goroutine.
// Jobs run on the scheduler's context, not the submitter's, so they outlive
// the request that admitted them.
type JobScheduler struct {
	logger *slog.Logger

	mu      sync.RWMutex
	ctx     context.Context
	handler func(context.Context, *JobHandle)
	wg      sync.WaitGroup
}

func NewJobScheduler(logger *slog.Logger) *JobScheduler {
	return &JobScheduler{logger: logger}
}

// Start binds the scheduler to ctx and the handler that executes a job.
func (s *JobScheduler) Start(ctx context.Context, handler func(context.Context, *JobHandle)) {
	s.logger.Info("starting job scheduler")

	s.mu.Lock()
	s.ctx = ctx
	s.handler = handler
	s.mu.Unlock()
}

// SubmitJob launches the job's worker.
func (s *JobScheduler) SubmitJob(h *JobHandle) error {
	s.mu.RLock()
	ctx, handler := s.ctx, s.handler
	s.mu.RUnlock()

	if handler == nil {
		return ErrSchedulerNotStarted
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		handler(ctx, h)
	}()
	s.logger.Info("job submitted", "job_id", h.ID())
	return nil
}

// Wait blocks until every submitted job has returned.
func (s *JobScheduler) Wait() {
	s.wg.Wait()
}
