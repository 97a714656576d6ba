// Fan-out bus tests in Berserk.

package realtime

import (
	"testing"
	"time"

	"Berserk/internal/entity"

	"github.com/stretchr/testify/assert"
)

// Helper to build an event of one kind on one channel.
func testEvent(kind entity.EventKind, scope entity.ChannelID, payload map[string]interface{}) entity.Event {
	return entity.Event{
		Kind:       kind,
		Scope:      scope,
		RawType:    string(kind),
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
}

func TestBusDeliversInArrivalOrder(t *testing.T) {
	bus := NewBus(logger)
	var got []string

	bus.Subscribe(OnChannel(entity.GlobalChannel()), nil, func(ev entity.Event) {
		got = append(got, ev.Payload["seq"].(string))
	})

	for _, seq := range []string{"a", "b", "c", "d"} {
		bus.Publish(testEvent(entity.KindAgentOnline, entity.GlobalChannel(), map[string]interface{}{"seq": seq}))
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestBusKindFilter(t *testing.T) {
	bus := NewBus(logger)
	var got []entity.EventKind

	bus.Subscribe(OnAnyChannel(), []entity.EventKind{entity.KindFriendRequest}, func(ev entity.Event) {
		got = append(got, ev.Kind)
	})

	bus.Publish(testEvent(entity.KindAgentOnline, entity.GlobalChannel(), nil))
	bus.Publish(testEvent(entity.KindFriendRequest, entity.GlobalChannel(), nil))
	bus.Publish(testEvent(entity.KindMissionStarted, entity.GlobalChannel(), nil))

	// A subscriber never receives a kind it did not request
	assert.Equal(t, []entity.EventKind{entity.KindFriendRequest}, got)
}

func TestBusChannelFilter(t *testing.T) {
	bus := NewBus(logger)
	var roomHits, anyHits int

	bus.Subscribe(OnChannel(entity.RoomChannel(42)), nil, func(ev entity.Event) {
		roomHits++
	})
	bus.Subscribe(OnAnyChannel(), nil, func(ev entity.Event) {
		anyHits++
	})

	bus.Publish(testEvent(entity.KindNewComment, entity.RoomChannel(42), nil))
	bus.Publish(testEvent(entity.KindNewComment, entity.RoomChannel(7), nil))
	bus.Publish(testEvent(entity.KindAgentOnline, entity.GlobalChannel(), nil))

	assert.Equal(t, 1, roomHits)
	assert.Equal(t, 3, anyHits)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(logger)
	var hits int

	sub := bus.Subscribe(OnAnyChannel(), nil, func(ev entity.Event) {
		hits++
	})
	bus.Publish(testEvent(entity.KindAgentOnline, entity.GlobalChannel(), nil))
	bus.Unsubscribe(sub)
	// Unsubscribe is idempotent
	bus.Unsubscribe(sub)

	bus.Publish(testEvent(entity.KindAgentOnline, entity.GlobalChannel(), nil))
	bus.Publish(testEvent(entity.KindAgentOffline, entity.GlobalChannel(), nil))
	assert.Equal(t, 1, hits)
}

func TestBusUnsubscribeFromInsideCallback(t *testing.T) {
	bus := NewBus(logger)
	var first, second int

	var sub *Subscription
	sub = bus.Subscribe(OnAnyChannel(), nil, func(ev entity.Event) {
		first++
		bus.Unsubscribe(sub)
	})
	bus.Subscribe(OnAnyChannel(), nil, func(ev entity.Event) {
		second++
	})

	bus.Publish(testEvent(entity.KindAgentOnline, entity.GlobalChannel(), nil))
	bus.Publish(testEvent(entity.KindAgentOnline, entity.GlobalChannel(), nil))

	// The self-removing subscriber fired once, the other kept receiving
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestBusPanickingSubscriberIsIsolated(t *testing.T) {
	bus := NewBus(logger)
	var delivered int

	bus.Subscribe(OnAnyChannel(), nil, func(ev entity.Event) {
		panic("broken UI component")
	})
	bus.Subscribe(OnAnyChannel(), nil, func(ev entity.Event) {
		delivered++
	})

	bus.Publish(testEvent(entity.KindMissionCompleted, entity.GlobalChannel(), nil))
	assert.Equal(t, 1, delivered)
}

func TestBusReleaseScope(t *testing.T) {
	bus := NewBus(logger)
	var roomHits, globalHits int

	bus.SubscribeScoped(entity.RoomChannel(1), nil, func(ev entity.Event) {
		roomHits++
	})
	bus.Subscribe(OnChannel(entity.GlobalChannel()), nil, func(ev entity.Event) {
		globalHits++
	})

	bus.Publish(testEvent(entity.KindNewComment, entity.RoomChannel(1), nil))
	bus.ReleaseScope(entity.RoomChannel(1))
	bus.Publish(testEvent(entity.KindNewComment, entity.RoomChannel(1), nil))
	bus.Publish(testEvent(entity.KindAgentOnline, entity.GlobalChannel(), nil))

	// Closing the room never affects the global channel's subscriptions
	assert.Equal(t, 1, roomHits)
	assert.Equal(t, 1, globalHits)
}
