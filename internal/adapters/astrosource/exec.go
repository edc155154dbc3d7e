package astrosource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/manthysbr/skywatch/internal/core/domain"
	"github.com/manthysbr/skywatch/internal/core/ports"
)

// Command is the program invoked for every phase. Phase arguments are
// appended to Args.
type Command struct {
	Path    string
	Args    []string
	Env     []string
	Timeout time.Duration // per phase; zero means none
}

// ExecAnalyzer runs each phase as a local process whose stdout and stderr
// go straight into the job log.
type ExecAnalyzer struct {
	logger *slog.Logger
	cmd    Command
}

func NewExecAnalyzer(logger *slog.Logger, cmd Command) *ExecAnalyzer {
	return &ExecAnalyzer{logger: logger, cmd: cmd}
}

var _ ports.Analyzer = (*ExecAnalyzer)(nil)

func (a *ExecAnalyzer) RunPhase(ctx context.Context, phase domain.Phase, job domain.Job, log io.Writer) error {
	if a.cmd.Timeout == 0 {
		a.logger.DebugContext(ctx, "phase has no timeout", "phase", phase)
	} else {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cmd.Timeout)
		defer cancel()
	}

	args := append(append([]string(nil), a.cmd.Args...), BuildArgs(phase, job.Params)...)
	cmd := exec.CommandContext(ctx, a.cmd.Path, args...)
	cmd.Env = append(os.Environ(), a.cmd.Env...)
	// Same writer for both streams: exec serialises the writes.
	cmd.Stdout = log
	cmd.Stderr = log
	// Children that inherited the pipes must not hold Wait open forever.
	cmd.WaitDelay = 2 * time.Second

	a.logger.Info("starting phase", "job_id", job.ID, "phase", phase, "path", a.cmd.Path)
	started := time.Now()
	err := cmd.Run()
	a.logger.Info("phase process exited", "job_id", job.ID, "phase", phase, "elapsed", time.Since(started), "error", err)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s interrupted: %w", phase, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%s exited with code %d", phase, exitErr.ExitCode())
	}
	return fmt.Errorf("%s: %w", phase, err)
}
