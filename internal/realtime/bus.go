// Fan-out bus of the sync core.
// Delivers every normalized event to all currently registered subscribers
// whose filters match, in arrival order per channel.

package realtime

import (
	"sync"
	"sync/atomic"

	"Berserk/internal/entity"
	"Berserk/pkg/log"

	"github.com/google/uuid"
)

// Handler is the callback invoked with every event a subscription matched.
// The event must be treated as read-only.
type Handler func(entity.Event)

// ChannelFilter restricts a subscription to one channel, or to all of them.
type ChannelFilter struct {
	any bool
	id  entity.ChannelID
}

// OnAnyChannel matches events from every channel.
func OnAnyChannel() ChannelFilter {
	return ChannelFilter{any: true}
}

// OnChannel matches only events from the given channel.
func OnChannel(id entity.ChannelID) ChannelFilter {
	return ChannelFilter{id: id}
}

// Matches reports whether an event on the given channel passes the filter.
func (f ChannelFilter) Matches(id entity.ChannelID) bool {
	return f.any || f.id == id
}

// Subscription is one consumer's registration on the bus.
// Owned by the registering consumer, must be released via Unsubscribe.
type Subscription struct {
	// Unique id, helps to correlate subscription lifecycle in logs.
	ID      string
	channel ChannelFilter
	kinds   map[entity.EventKind]struct{} // nil means all kinds
	handler Handler
	// Lifetime scope, set for subscriptions released in bulk when their
	// channel closes.
	scope  *entity.ChannelID
	closed atomic.Bool
}

// matches reports whether the subscription wants the given event.
func (s *Subscription) matches(ev entity.Event) bool {
	if !s.channel.Matches(ev.Scope) {
		return false
	}
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[ev.Kind]
	return ok
}

// Bus keeps the subscriber registry and fans events out to it.
type Bus struct {
	mu     sync.Mutex
	subs   []*Subscription
	logger log.Logger
}

// Returns a new Bus instance for the sync core to publish through.
func NewBus(logger log.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers a handler for events matching the channel filter and
// the kind set. A nil or empty kinds slice subscribes to all kinds.
func (b *Bus) Subscribe(channel ChannelFilter, kinds []entity.EventKind, handler Handler) *Subscription {
	return b.register(channel, kinds, handler, nil)
}

// SubscribeScoped works like Subscribe but additionally binds the
// subscription's lifetime to the given channel: when that channel closes,
// the subscription is released without the consumer having to unsubscribe.
func (b *Bus) SubscribeScoped(scope entity.ChannelID, kinds []entity.EventKind, handler Handler) *Subscription {
	return b.register(OnChannel(scope), kinds, handler, &scope)
}

func (b *Bus) register(channel ChannelFilter, kinds []entity.EventKind, handler Handler, scope *entity.ChannelID) *Subscription {
	sub := &Subscription{
		ID:      uuid.NewString(),
		channel: channel,
		handler: handler,
		scope:   scope,
	}
	if len(kinds) != 0 {
		sub.kinds = make(map[entity.EventKind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	b.logger.Debug().Msgf("Registered subscription %s", sub.ID)
	return sub
}

// Unsubscribe releases a subscription. Idempotent, and safe to call from
// inside a delivery callback: the running delivery pass iterates a snapshot
// and checks the closed flag right before invoking each handler, so the
// handler is never invoked again once Unsubscribe returns.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil || !sub.closed.CompareAndSwap(false, true) {
		return
	}
	b.mu.Lock()
	b.remove(sub)
	b.mu.Unlock()
	b.logger.Debug().Msgf("Released subscription %s", sub.ID)
}

// ReleaseScope releases every subscription whose lifetime is bound to the
// given channel. Called by the channel manager when that channel closes.
func (b *Bus) ReleaseScope(scope entity.ChannelID) {
	b.mu.Lock()
	var dropped []*Subscription
	for _, sub := range b.subs {
		if sub.scope != nil && *sub.scope == scope && sub.closed.CompareAndSwap(false, true) {
			dropped = append(dropped, sub)
		}
	}
	for _, sub := range dropped {
		b.remove(sub)
	}
	b.mu.Unlock()
	if len(dropped) != 0 {
		b.logger.Info().Msgf("Released %d subscription(s) scoped to channel %s", len(dropped), scope)
	}
}

// remove deletes sub from the registry slice. Caller must hold b.mu.
func (b *Bus) remove(sub *Subscription) {
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers one event synchronously to every matching subscriber in
// registration order. A panicking handler is isolated and logged, it never
// blocks delivery to the remaining subscribers. Per-channel FIFO ordering
// holds because each channel has exactly one read pump calling Publish.
func (b *Bus) Publish(ev entity.Event) {
	b.mu.Lock()
	matched := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.matches(ev) {
			matched = append(matched, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range matched {
		if sub.closed.Load() {
			// Unsubscribed during this delivery pass
			continue
		}
		b.deliver(sub, ev)
	}
}

// deliver invokes one handler with panic isolation.
func (b *Bus) deliver(sub *Subscription, ev entity.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Msgf("Subscriber %s panicked while handling %s event: %v", sub.ID, ev.Kind, r)
		}
	}()
	sub.handler(ev)
}
