package services

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/manthysbr/skywatch/internal/core/domain"
	"github.com/manthysbr/skywatch/internal/observability"
	"golang.org/x/sync/semaphore"
)

// ErrorMarker in a job's log marks the run as failed.
const ErrorMarker = "ERROR"

// LineBreak replaces newlines in streamed log text.
const LineBreak = "<br/>"

const (
	CompletedTitle = "✅ AstroSource analysis completed"
	FailedTitle    = "‼️ AstroSource analysis failed"
)

type LogEventType string

const (
	LogEventLog  LogEventType = "log"
	LogEventDone LogEventType = "done"
)

// LogEvent is one element of a log stream. Exactly one LogEventDone ends a
// stream that ran to completion.
type LogEvent struct {
	Type    LogEventType
	Data    string
	Outcome domain.Outcome  // set on LogEventDone
	Message *domain.Message // completion notice, set on LogEventDone
}

// LogCursor is a read position inside a sink.
type LogCursor struct {
	Offset int64
}

// ReadFrom returns the bytes appended to f since the cursor and advances it.
// A file shorter than the cursor was truncated; reading restarts at zero.
func (c *LogCursor) ReadFrom(f *os.File) (string, error) {
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat log sink: %w", err)
	}
	size := info.Size()
	if size < c.Offset {
		c.Offset = 0
	}
	if size == c.Offset {
		return "", nil
	}

	buf := make([]byte, size-c.Offset)
	n, err := f.ReadAt(buf, c.Offset)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read log sink: %w", err)
	}
	c.Offset += int64(n)
	return string(buf[:n]), nil
}

// StreamerConfig tunes the streamer.
type StreamerConfig struct {
	PollInterval time.Duration
	MaxStreams   int64
}

// LogStreamer tails a job's log sink while its worker is alive, then drains
// it, classifies the run and truncates the sink.
type LogStreamer struct {
	logger   *slog.Logger
	feed     *Feed
	metrics  *observability.Metrics
	interval time.Duration
	slots    *semaphore.Weighted
}

func NewLogStreamer(logger *slog.Logger, feed *Feed, metrics *observability.Metrics, cfg StreamerConfig) *LogStreamer {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	limit := cfg.MaxStreams
	if limit <= 0 {
		limit = 16
	}
	return &LogStreamer{
		logger:   logger,
		feed:     feed,
		metrics:  metrics,
		interval: interval,
		slots:    semaphore.NewWeighted(limit),
	}
}

// TryAcquire reserves a stream slot. The returned release must be called
// once the stream ends.
func (s *LogStreamer) TryAcquire() (func(), bool) {
	if !s.slots.TryAcquire(1) {
		s.metrics.StreamRejected()
		return nil, false
	}
	s.metrics.StreamOpened()
	return func() {
		s.metrics.StreamClosed()
		s.slots.Release(1)
	}, true
}

// Stream yields the job's log as it grows. A nil handle yields nothing.
// The read handle and watcher are released on every exit path, including
// the consumer breaking out of the loop and ctx cancellation.
func (s *LogStreamer) Stream(ctx context.Context, h *JobHandle) iter.Seq[LogEvent] {
	return func(yield func(LogEvent) bool) {
		if h == nil {
			return
		}
		sink := h.Sink()

		f, err := sink.OpenReader()
		if err != nil {
			s.logger.Error("failed to open log sink", "job_id", h.ID(), "error", err)
			return
		}
		defer f.Close()

		var wake <-chan struct{}
		if w, err := sink.Watch(); err != nil {
			s.logger.Warn("log sink watch unavailable, polling only", "job_id", h.ID(), "error", err)
		} else {
			ch, stop := s.relay(w)
			defer stop()
			wake = ch
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		var cursor LogCursor
		for h.Alive() {
			delta, err := cursor.ReadFrom(f)
			if err != nil {
				s.logger.Error("log stream read failed", "job_id", h.ID(), "error", err)
				return
			}
			// A trailing CR may be the first half of a CRLF; leave it for the next read.
			if strings.HasSuffix(delta, "\r") {
				delta = delta[:len(delta)-1]
				cursor.Offset--
			}
			if delta != "" {
				s.metrics.StreamEvent(string(LogEventLog))
				if !yield(LogEvent{Type: LogEventLog, Data: ToMarkup(delta)}) {
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-h.Done():
			case <-wake:
			case <-ticker.C:
			}
		}

		rest, err := cursor.ReadFrom(f)
		if err != nil {
			s.logger.Error("log stream drain failed", "job_id", h.ID(), "error", err)
			return
		}
		full, err := sink.ReadAll()
		if err != nil {
			s.logger.Warn("failed to read full log sink", "job_id", h.ID(), "error", err)
		}

		outcome := Classify(rest, string(full), h.Result())
		msg := completionMessage(h.ID(), outcome)
		h.complete(func() {
			if outcome == domain.OutcomeFailure {
				s.logger.Error(msg.Title, "job_id", h.ID())
			} else {
				s.logger.Info(msg.Title, "job_id", h.ID())
			}
			s.feed.Append(context.WithoutCancel(ctx), msg)
		})

		s.metrics.StreamEvent(string(LogEventDone))
		yield(LogEvent{Type: LogEventDone, Data: ToMarkup(rest), Outcome: outcome, Message: &msg})

		if err := sink.Truncate(); err != nil {
			s.logger.Error("failed to truncate log sink", "job_id", h.ID(), "error", err)
		}
	}
}

// relay turns watcher events into coalesced wakeups. stop closes the
// watcher and waits for the relay goroutine to exit.
func (s *LogStreamer) relay(w *fsnotify.Watcher) (<-chan struct{}, func()) {
	wake := make(chan struct{}, 1)
	quit := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		for {
			select {
			case <-quit:
				return
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.logger.Warn("log sink watch error", "error", err)
			}
		}
	}()

	return wake, func() {
		close(quit)
		_ = w.Close()
		<-exited
	}
}

// Classify decides a finished run's outcome. The run failed if the drained
// text or the full log contains ErrorMarker, or the worker reported failure.
func Classify(drained, full string, result domain.Result) domain.Outcome {
	if strings.Contains(drained, ErrorMarker) || strings.Contains(full, ErrorMarker) || result.Failed() {
		return domain.OutcomeFailure
	}
	return domain.OutcomeSuccess
}

var markup = strings.NewReplacer("\r\n", LineBreak, "\r", LineBreak, "\n", LineBreak)

// ToMarkup replaces line breaks (LF, CRLF and bare CR) with LineBreak, so
// the text fits on a single event-stream data line.
func ToMarkup(text string) string {
	return markup.Replace(text)
}

func completionMessage(id domain.JobID, outcome domain.Outcome) domain.Message {
	title := CompletedTitle
	if outcome == domain.OutcomeFailure {
		title = FailedTitle
	}
	return domain.Message{Title: title, Content: string(id), JobID: id, CreatedAt: time.Now()}
}
