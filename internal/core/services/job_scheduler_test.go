package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobScheduler_NotStarted(t *testing.T) {
	scheduler := NewJobScheduler(testLogger())
	reg := newTestRegistry(t)

	err := scheduler.SubmitJob(admit(t, reg))
	assert.ErrorIs(t, err, ErrSchedulerNotStarted)
}

func TestJobScheduler_RunsEveryJobImmediately(t *testing.T) {
	scheduler := NewJobScheduler(testLogger())
	reg := newTestRegistry(t)

	const total = 5
	var running int32
	var started sync.WaitGroup
	started.Add(total)
	release := make(chan struct{})

	scheduler.Start(context.Background(), func(ctx context.Context, h *JobHandle) {
		atomic.AddInt32(&running, 1)
		started.Done()
		<-release
	})

	for i := 0; i < total; i++ {
		require.NoError(t, scheduler.SubmitJob(admit(t, reg)))
	}

	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()

	select {
	case <-allStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs were not all started concurrently")
	}
	assert.Equal(t, int32(total), atomic.LoadInt32(&running))

	close(release)
	scheduler.Wait()
}

func TestJobScheduler_JobsRunOnSchedulerContext(t *testing.T) {
	scheduler := NewJobScheduler(testLogger())
	reg := newTestRegistry(t)

	ctx, cancel := context.WithCancel(context.Background())
	var jobCtxErr error
	scheduler.Start(ctx, func(ctx context.Context, h *JobHandle) {
		<-ctx.Done()
		jobCtxErr = ctx.Err()
	})

	require.NoError(t, scheduler.SubmitJob(admit(t, reg)))
	cancel()

	scheduler.Wait()
	assert.ErrorIs(t, jobCtxErr, context.Canceled)
}
