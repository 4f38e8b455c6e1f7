package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPublishSubscribe tests event distribution to subscribers
func TestPublishSubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())

	b.Publish(&Event{Type: EventFormAdded, AltKey: "f1"})

	select {
	case event := <-sub:
		assert.Equal(t, EventFormAdded, event.Type)
		assert.Equal(t, "f1", event.AltKey)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	// Channel is closed on unsubscribe.
	_, open := <-sub
	require.False(t, open)
}

// TestSlowSubscriberSkipped tests that a full subscriber never blocks
// the broker
func TestSlowSubscriberSkipped(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	for i := 0; i < 120; i++ {
		b.Publish(&Event{Type: EventBytesAdded})
	}

	// The subscriber buffer holds 50; the rest were dropped, and the
	// broker kept running.
	deadline := time.After(time.Second)
	received := 0
loop:
	for {
		select {
		case <-sub:
			received++
			if received >= 50 {
				break loop
			}
		case <-deadline:
			break loop
		}
	}
	assert.GreaterOrEqual(t, received, 50)
}
