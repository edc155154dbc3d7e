package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/manthysbr/skywatch/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycleFixture struct {
	lifecycle *WorkerLifecycle
	registry  *JobRegistry
	repo      *memRepo
	feed      *Feed
	bus       *EventBus
	analyzer  *fakeAnalyzer
}

func newLifecycleFixture(t *testing.T, analyzer *fakeAnalyzer) *lifecycleFixture {
	t.Helper()
	logger := testLogger()
	reg := newTestRegistry(t)
	repo := newMemRepo()
	bus := NewEventBus(logger)
	feed := NewFeed(logger, bus, repo)
	scheduler := NewJobScheduler(logger)
	lc := NewWorkerLifecycle(logger, scheduler, reg, analyzer, repo, bus, feed, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		scheduler.Wait()
	})
	lc.Start(ctx)

	return &lifecycleFixture{lifecycle: lc, registry: reg, repo: repo, feed: feed, bus: bus, analyzer: analyzer}
}

func waitDone(t *testing.T, h *JobHandle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
}

func sinkText(t *testing.T, h *JobHandle) string {
	t.Helper()
	data, err := h.Sink().ReadAll()
	require.NoError(t, err)
	return string(data)
}

func TestWorkerLifecycle_Success(t *testing.T) {
	f := newLifecycleFixture(t, &fakeAnalyzer{})

	h, err := f.lifecycle.SubmitJob(context.Background(), domain.JobParams{RA: 1, Dec: 2, InputDir: "/data"})
	require.NoError(t, err)
	waitDone(t, h)

	assert.Equal(t, domain.Phases, f.analyzer.seen())
	assert.Equal(t, domain.OutcomeSuccess, h.Result().Outcome)
	assert.Equal(t, domain.JobStatusCompleted, h.Job().Status)

	text := sinkText(t, h)
	assert.Contains(t, text, "[INFO] AstroSource analysis started")
	assert.Contains(t, text, "analyse ok\n")
	assert.Contains(t, text, "[INFO] phase finished phase=plot")
	assert.NotContains(t, text, ErrorMarker)

	msgs := f.feed.All()
	require.NotEmpty(t, msgs)
	assert.Equal(t, StartedTitle, msgs[0].Title)
	assert.Equal(t, StartedContent, msgs[0].Content)

	assert.Equal(t, []domain.JobStatus{domain.JobStatusPending, domain.JobStatusRunning, domain.JobStatusCompleted}, f.repo.statuses())
}

func TestWorkerLifecycle_PhaseErrorStopsRun(t *testing.T) {
	analyzer := &fakeAnalyzer{fn: func(_ context.Context, phase domain.Phase, log io.Writer) error {
		if phase == domain.PhasePhotometry {
			return errors.New("no comparison stars")
		}
		_, err := io.WriteString(log, "working\n")
		return err
	}}
	f := newLifecycleFixture(t, analyzer)

	h, err := f.lifecycle.SubmitJob(context.Background(), domain.JobParams{InputDir: "/data"})
	require.NoError(t, err)
	waitDone(t, h)

	assert.Equal(t, []domain.Phase{domain.PhaseAnalyse, domain.PhasePhotometry}, analyzer.seen())

	res := h.Result()
	assert.True(t, res.Failed())
	assert.Equal(t, domain.PhasePhotometry, res.Phase)
	assert.Equal(t, "no comparison stars", res.Reason)

	job := h.Job()
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	require.NotNil(t, job.Error)

	assert.Contains(t, sinkText(t, h), "[ERROR] phase failed phase=photometry error=no comparison stars")
}

func TestWorkerLifecycle_PanicIsIsolated(t *testing.T) {
	analyzer := &fakeAnalyzer{fn: func(_ context.Context, phase domain.Phase, log io.Writer) error {
		if phase == domain.PhaseAnalyse {
			panic("index out of range")
		}
		return nil
	}}
	f := newLifecycleFixture(t, analyzer)

	h, err := f.lifecycle.SubmitJob(context.Background(), domain.JobParams{InputDir: "/data"})
	require.NoError(t, err)
	waitDone(t, h)

	assert.True(t, h.Result().Failed())
	assert.Contains(t, h.Result().Reason, "index out of range")
	assert.Contains(t, sinkText(t, h), "[ERROR] phase failed phase=analyse")

	// The registry keeps admitting after a worker panic.
	analyzer.fn = nil
	h2, err := f.lifecycle.SubmitJob(context.Background(), domain.JobParams{InputDir: "/data"})
	require.NoError(t, err)
	waitDone(t, h2)
	assert.Equal(t, domain.OutcomeSuccess, h2.Result().Outcome)
	assert.Equal(t, 2, f.registry.Count())
}

func TestWorkerLifecycle_PublishesStatus(t *testing.T) {
	f := newLifecycleFixture(t, &fakeAnalyzer{})

	events, unsub := f.bus.SubscribeGlobal()
	defer unsub()

	h, err := f.lifecycle.SubmitJob(context.Background(), domain.JobParams{InputDir: "/data"})
	require.NoError(t, err)
	waitDone(t, h)

	var statuses []string
	timeout := time.After(time.Second)
	for len(statuses) < 3 {
		select {
		case evt := <-events:
			if evt.Type == EventTypeStatus {
				assert.Equal(t, string(h.ID()), evt.JobID)
				statuses = append(statuses, evt.Data)
			}
		case <-timeout:
			t.Fatalf("got %d status events", len(statuses))
		}
	}
	assert.Contains(t, statuses[0], `"QUEUED"`)
	assert.Contains(t, statuses[1], `"RUNNING"`)
	assert.Contains(t, statuses[2], `"COMPLETED"`)
}

func TestWorkerLifecycle_EndToEndStream(t *testing.T) {
	release := make(chan struct{})
	analyzer := &fakeAnalyzer{fn: func(ctx context.Context, phase domain.Phase, log io.Writer) error {
		_, _ = io.WriteString(log, string(phase)+" started\n")
		if phase == domain.PhaseAnalyse {
			<-release
		}
		return nil
	}}
	f := newLifecycleFixture(t, analyzer)
	s := newTestStreamer(f.feed)

	h, err := f.lifecycle.SubmitJob(context.Background(), domain.JobParams{InputDir: "/data"})
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(release)
	}()

	var all strings.Builder
	var last LogEvent
	for ev := range s.Stream(context.Background(), h) {
		all.WriteString(ev.Data)
		last = ev
	}

	assert.Equal(t, LogEventDone, last.Type)
	assert.Equal(t, domain.OutcomeSuccess, last.Outcome)
	assert.Contains(t, all.String(), "plot started<br/>")
	assert.Empty(t, sinkText(t, h))

	titles := []string{}
	for _, m := range f.feed.All() {
		titles = append(titles, m.Title)
	}
	assert.Equal(t, []string{StartedTitle, CompletedTitle}, titles)
}
