package services

import (
	"log/slog"
	"sync"
)

type EventType string

const (
	EventTypeStatus  EventType = "status"
	EventTypeMessage EventType = "message"
)

// BroadcastChannel is the topic for events not tied to a single job.
const BroadcastChannel = "_broadcast"

type Event struct {
	JobID     string
	Type      EventType
	Data      string // JSON payload or raw text
	Timestamp int64
}

type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event // Key: JobID
	global []chan Event
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel that receives events for a specific job
func (b *EventBus) Subscribe(jobID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.subs[jobID] = append(b.subs[jobID], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subs[jobID]
		for i, sub := range subscribers {
			if sub == ch {
				close(ch)
				b.subs[jobID] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(b.subs[jobID]) == 0 {
			delete(b.subs, jobID)
		}
	}

	return ch, unsub
}

// SubscribeGlobal returns a channel that receives every published event.
func (b *EventBus) SubscribeGlobal() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.global = append(b.global, ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for i, sub := range b.global {
			if sub == ch {
				close(ch)
				b.global = append(b.global[:i], b.global[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish sends an event to the job's subscribers and to global subscribers.
// It never blocks; a full subscriber buffer drops the event.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[e.JobID] {
		b.send(ch, e)
	}
	for _, ch := range b.global {
		b.send(ch, e)
	}
}

func (b *EventBus) send(ch chan Event, e Event) {
	select {
	case ch <- e:
	default:
		b.logger.Warn("event bus channel full, dropping event", "job_id", e.JobID, "type", e.Type)
	}
}
