package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	b.Publish(&Event{
		Type:     EventWorkerRegistered,
		Message:  "worker 0 registered",
		Metadata: map[string]string{"address": "10.0.0.1"},
	})

	select {
	case event := <-sub:
		assert.Equal(t, EventWorkerRegistered, event.Type)
		assert.Equal(t, "10.0.0.1", event.Metadata["address"])
		assert.False(t, event.Timestamp.IsZero(), "broker must stamp events")
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestMultipleSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	b.Publish(&Event{Type: EventJobCompleted})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case event := <-sub:
			assert.Equal(t, EventJobCompleted, event.Type)
		case <-time.After(time.Second):
			t.Fatal("event not delivered to all subscribers")
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open, "unsubscribed channel must be closed")
}

func TestPublishAfterStopDoesNotBlock(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(&Event{Type: EventJobFailed})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after Stop")
	}
}

func TestSlowSubscriberDoesNotStallBroker(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()

	// Overflow the subscriber buffer; the broker must keep draining.
	for i := 0; i < cap(sub)+20; i++ {
		b.Publish(&Event{Type: EventUtilizationUpdated})
	}

	require.Eventually(t, func() bool {
		return len(b.eventCh) == 0
	}, time.Second, 10*time.Millisecond, "broker queue must drain despite a full subscriber")
}
