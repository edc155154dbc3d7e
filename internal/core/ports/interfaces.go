package ports

import (
	"context"
	"io"

	"github.com/manthysbr/skywatch/internal/core/domain"
)

// Analyzer abstracts the astrosource runtime (local binary, container, ...)
type Analyzer interface {
	// RunPhase executes one analysis phase for the job, writing progress
	// text to log. It blocks until the phase finishes.
	RunPhase(ctx context.Context, phase domain.Phase, job domain.Job, log io.Writer) error
}

// Repository abstracts the persistent journal (DuckDB)
type Repository interface {
	// Job Management
	SaveJob(ctx context.Context, job domain.Job) error
	GetJob(ctx context.Context, id domain.JobID) (domain.Job, error)
	ListJobs(ctx context.Context) ([]domain.Job, error)

	// Messages
	SaveMessage(ctx context.Context, msg domain.Message) error
	ListMessages(ctx context.Context, limit int) ([]domain.Message, error)

	Close() error
}
