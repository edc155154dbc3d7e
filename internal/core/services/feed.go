package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/manthysbr/skywatch/internal/core/domain"
	"github.com/manthysbr/skywatch/internal/core/ports"
)

// Feed is the ordered, append-only list of notifications shown to the user.
type Feed struct {
	logger   *slog.Logger
	eventBus *EventBus
	repo     ports.Repository

	mu   sync.RWMutex
	msgs []domain.Message
}

// NewFeed builds a feed. bus and repo may be nil.
func NewFeed(logger *slog.Logger, bus *EventBus, repo ports.Repository) *Feed {
	return &Feed{logger: logger, eventBus: bus, repo: repo}
}

// Append adds msg to the end of the feed, broadcasts it and journals it.
func (f *Feed) Append(ctx context.Context, msg domain.Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()

	if f.eventBus != nil {
		payload, err := json.Marshal(msg)
		if err != nil {
			f.logger.Error("failed to encode message", "error", err)
		} else {
			f.eventBus.Publish(Event{
				JobID:     BroadcastChannel,
				Type:      EventTypeMessage,
				Data:      string(payload),
				Timestamp: msg.CreatedAt.Unix(),
			})
		}
	}

	if f.repo != nil {
		if err := f.repo.SaveMessage(ctx, msg); err != nil {
			f.logger.Error("failed to save message", "title", msg.Title, "error", err)
		}
	}
}

// All returns a copy of the feed in append order.
func (f *Feed) All() []domain.Message {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]domain.Message, len(f.msgs))
	copy(out, f.msgs)
	return out
}

// Restore seeds the feed with previously journaled messages.
func (f *Feed) Restore(msgs []domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(append([]domain.Message(nil), msgs...), f.msgs...)
}
