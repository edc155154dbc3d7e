package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/manthysbr/skywatch/internal/core/domain"
	"github.com/manthysbr/skywatch/internal/core/ports"
	"github.com/manthysbr/skywatch/internal/observability"
)

// Notification texts shown in the feed.
const (
	StartedTitle   = "Started astrosource"
	StartedContent = "Working"
)

type WorkerLifecycle struct {
	logger    *slog.Logger
	scheduler *JobScheduler
	registry  *JobRegistry
	analyzer  ports.Analyzer
	repo      ports.Repository
	eventBus  *EventBus
	feed      *Feed
	metrics   *observability.Metrics
}

func NewWorkerLifecycle(
	logger *slog.Logger,
	scheduler *JobScheduler,
	registry *JobRegistry,
	analyzer ports.Analyzer,
	repo ports.Repository,
	eventBus *EventBus,
	feed *Feed,
	metrics *observability.Metrics,
) *WorkerLifecycle {
	return &WorkerLifecycle{
		logger:    logger,
		scheduler: scheduler,
		registry:  registry,
		analyzer:  analyzer,
		repo:      repo,
		eventBus:  eventBus,
		feed:      feed,
		metrics:   metrics,
	}
}

// Run starts the scheduler. Jobs submitted afterwards run on ctx.
func (s *WorkerLifecycle) Run(ctx context.Context) error {
	s.scheduler.Start(ctx, s.executeJob)
	<-ctx.Done()
	s.logger.Info("waiting for running jobs")
	s.scheduler.Wait()
	return nil
}

// Start binds the scheduler without blocking.
func (s *WorkerLifecycle) Start(ctx context.Context) {
	s.scheduler.Start(ctx, s.executeJob)
}

// SubmitJob admits a job and starts its worker immediately.
func (s *WorkerLifecycle) SubmitJob(ctx context.Context, params domain.JobParams) (*JobHandle, error) {
	h, err := s.registry.Admit(params)
	if err != nil {
		return nil, fmt.Errorf("failed to admit job: %w", err)
	}
	s.metrics.JobAdmitted()

	job := h.Job()
	s.saveJob(ctx, job)
	s.publishStatus(job.ID, domain.JobStatusPending)
	s.feed.Append(ctx, domain.Message{Title: StartedTitle, Content: StartedContent, JobID: job.ID})

	if err := s.scheduler.SubmitJob(h); err != nil {
		s.failJob(ctx, h, domain.Result{Outcome: domain.OutcomeFailure, Reason: err.Error()})
		return h, fmt.Errorf("failed to schedule job: %w", err)
	}
	return h, nil
}

// executeJob is the callback for the scheduler
func (s *WorkerLifecycle) executeJob(ctx context.Context, h *JobHandle) {
	s.logger.Info("executing job", "job_id", h.ID())

	job := h.setStatus(domain.JobStatusRunning, nil)
	s.saveJob(ctx, job)
	s.publishStatus(job.ID, domain.JobStatusRunning)

	result := s.Execute(ctx, h)
	if result.Failed() {
		s.failJob(ctx, h, result)
		return
	}

	job = h.setStatus(domain.JobStatusCompleted, nil)
	s.saveJob(ctx, job)
	s.publishStatus(job.ID, domain.JobStatusCompleted)
	s.metrics.JobFinished(string(domain.OutcomeSuccess))
	h.finish(result)
	s.logger.Info("job completed", "job_id", job.ID)
}

// Execute sequences the analysis phases for the job. The first failing or
// panicking phase stops the run; the failure is written to the job's sink
// at error level and returned as a failed Result.
func (s *WorkerLifecycle) Execute(ctx context.Context, h *JobHandle) domain.Result {
	job := h.Job()
	log := h.Logger()

	log.Info("AstroSource analysis started",
		"ra", job.Params.RA, "dec", job.Params.Dec, "indir", job.Params.InputDir)

	for _, phase := range domain.Phases {
		start := time.Now()
		err := s.runPhase(ctx, phase, job, h)
		if err != nil {
			s.metrics.ObservePhase(string(phase), "error", time.Since(start))
			log.Error("phase failed", "phase", phase, "error", err)
			return domain.Result{Outcome: domain.OutcomeFailure, Phase: phase, Reason: err.Error()}
		}
		s.metrics.ObservePhase(string(phase), "ok", time.Since(start))
		log.Info("phase finished", "phase", phase, "elapsed", time.Since(start).Round(time.Millisecond))
	}
	return domain.Result{Outcome: domain.OutcomeSuccess}
}

func (s *WorkerLifecycle) runPhase(ctx context.Context, phase domain.Phase, job domain.Job, h *JobHandle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("analyzer panic", "job_id", job.ID, "phase", phase, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.analyzer.RunPhase(ctx, phase, job, h.Sink())
}

func (s *WorkerLifecycle) failJob(ctx context.Context, h *JobHandle, result domain.Result) {
	s.logger.Error("job failed", "job_id", h.ID(), "phase", result.Phase, "error", result.Reason)
	msg := result.Reason
	job := h.setStatus(domain.JobStatusFailed, &msg)
	s.saveJob(ctx, job)
	s.publishStatus(job.ID, domain.JobStatusFailed)
	s.metrics.JobFinished(string(domain.OutcomeFailure))
	h.finish(result)
}

func (s *WorkerLifecycle) saveJob(ctx context.Context, job domain.Job) {
	if s.repo == nil {
		return
	}
	// Terminal states are journaled even while the server context is being cancelled.
	if err := s.repo.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Error("failed to save job status", "job_id", job.ID, "error", err)
	}
}

func (s *WorkerLifecycle) publishStatus(jobID domain.JobID, status domain.JobStatus) {
	payloadBytes, err := json.Marshal(map[string]interface{}{
		"job_id": jobID,
		"status": status,
	})
	if err != nil {
		payloadBytes = []byte(fmt.Sprintf(`{"status": "%s"}`, status))
	}

	s.eventBus.Publish(Event{
		JobID:     string(jobID),
		Type:      EventTypeStatus,
		Data:      string(payloadBytes),
		Timestamp: time.Now().Unix(),
	})
}
