package bus

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSyncDeliversToSubscribers(t *testing.T) {
	b := NewEventBus()

	var visemes, other atomic.Int32
	b.Subscribe(EventTypeVisemeChanged, func(e Event) {
		assert.Equal(t, "aa", e.Data["viseme"])
		visemes.Add(1)
	})
	b.Subscribe(EventTypeSpeechStart, func(Event) { other.Add(1) })

	b.PublishSync(NewEvent(EventTypeVisemeChanged, map[string]any{"viseme": "aa"}))

	assert.Equal(t, int32(1), visemes.Load())
	assert.Equal(t, int32(0), other.Load())
}

func TestPublishIsAsync(t *testing.T) {
	b := NewEventBus()
	got := make(chan Event, 1)
	b.Subscribe(EventTypeBlink, func(e Event) { got <- e })

	b.Publish(NewEvent(EventTypeBlink, nil))

	select {
	case e := <-got:
		assert.Equal(t, EventTypeBlink, e.Type)
		assert.False(t, e.Time.IsZero())
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewEventBus()
	var n atomic.Int32
	cancel := b.Subscribe(EventTypeSpeechEnd, func(Event) { n.Add(1) })
	keep := b.Subscribe(EventTypeSpeechEnd, func(Event) { n.Add(10) })
	defer keep()

	cancel()
	b.PublishSync(NewEvent(EventTypeSpeechEnd, nil))
	assert.Equal(t, int32(10), n.Load())
}

func TestSubscribeMultipleAndClear(t *testing.T) {
	b := NewEventBus()
	var n atomic.Int32
	cancel := b.SubscribeMultiple([]EventType{EventTypeClientConnected, EventTypeClientDisconnected}, func(Event) { n.Add(1) })

	b.PublishSync(NewEvent(EventTypeClientConnected, nil))
	b.PublishSync(NewEvent(EventTypeClientDisconnected, nil))
	require.Equal(t, int32(2), n.Load())

	cancel()
	b.PublishSync(NewEvent(EventTypeClientConnected, nil))
	assert.Equal(t, int32(2), n.Load())

	b.Subscribe(EventTypeConfigReloaded, func(Event) { n.Add(1) })
	b.Clear()
	b.PublishSync(NewEvent(EventTypeConfigReloaded, nil))
	assert.Equal(t, int32(2), n.Load())
}
