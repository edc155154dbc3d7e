package services

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_PubSub(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	bus := NewEventBus(logger)

	jobID := "job-123"

	ch, unsub := bus.Subscribe(jobID)
	defer unsub()

	event := Event{
		JobID:     jobID,
		Type:      EventTypeStatus,
		Data:      `{"status":"RUNNING"}`,
		Timestamp: time.Now().Unix(),
	}
	bus.Publish(event)

	select {
	case received := <-ch:
		assert.Equal(t, event.JobID, received.JobID)
		assert.Equal(t, event.Data, received.Data)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	bus := NewEventBus(logger)

	ch, unsub := bus.Subscribe("job-456")
	unsub()

	bus.Publish(Event{JobID: "job-456", Type: EventTypeStatus, Data: "should not receive"})

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	bus := NewEventBus(logger)
	jobID := "job-multi"

	ch1, unsub1 := bus.Subscribe(jobID)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe(jobID)
	defer unsub2()

	bus.Publish(Event{JobID: jobID, Data: "broadcast"})

	timeout := time.After(1 * time.Second)
	got1, got2 := false, false
	for i := 0; i < 2; i++ {
		select {
		case <-ch1:
			got1 = true
		case <-ch2:
			got2 = true
		case <-timeout:
			t.Fatal("timeout")
		}
	}

	assert.True(t, got1)
	assert.True(t, got2)
}

func TestEventBus_GlobalSubscriber(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	bus := NewEventBus(logger)

	globalCh, unsub := bus.SubscribeGlobal()
	defer unsub()

	bus.Publish(Event{JobID: BroadcastChannel, Type: EventTypeMessage, Data: `{"title":"hi"}`})
	bus.Publish(Event{JobID: "job-abc", Type: EventTypeStatus, Data: `{"status":"QUEUED"}`})

	for _, want := range []string{BroadcastChannel, "job-abc"} {
		select {
		case evt := <-globalCh:
			assert.Equal(t, want, evt.JobID)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for global event")
		}
	}
}

func TestEventBus_GlobalUnsubscribe(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	bus := NewEventBus(logger)

	ch, unsub := bus.SubscribeGlobal()
	unsub()

	_, ok := <-ch
	assert.False(t, ok, "expected global channel to be closed after unsubscribe")
}

func TestEventBus_FullBufferDoesNotBlock(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	bus := NewEventBus(logger)

	_, unsub := bus.Subscribe("slow")
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 250; i++ {
			bus.Publish(Event{JobID: "slow", Type: EventTypeStatus})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}
