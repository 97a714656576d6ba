// Notification store of Berserk.
// Keeps the local copy of the persisted notification history behind the
// bell icon and refreshes it whenever a global notification event arrives,
// because the server's DB holds the authoritative ids and timestamps.

package notification

import (
	"context"
	"sync"

	"Berserk/internal/entity"
	"Berserk/internal/rest"
	"Berserk/internal/realtime"
	"Berserk/pkg/log"
)

// Service is the notification store consumed by bell and badge UIs.
type Service interface {
	// Refresh replaces the local list with the server's history.
	Refresh(ctx context.Context) error
	// Notifications returns a copy of the current list.
	Notifications() []entity.Notification
	// Unread returns the number of unread notifications.
	Unread() int
	// MarkRead marks one notification as read on the server and locally.
	MarkRead(ctx context.Context, id int) error
	// MarkAllRead marks every notification as read on the server and locally.
	MarkAllRead(ctx context.Context) error
	// ClearAll deletes the history on the server and locally.
	ClearAll(ctx context.Context) error
	// Detach releases the service's bus subscription.
	Detach()
}

// Every kind that lands in the persisted notification history.
var notifyKinds = []entity.EventKind{
	entity.KindMissionStarted,
	entity.KindMissionCompleted,
	entity.KindMissionFailed,
	entity.KindMissionDeleted,
	entity.KindNewCrewJoined,
	entity.KindCrewLeft,
	entity.KindKickedFromMission,
	entity.KindNewChatMessage,
	entity.KindFriendRequest,
	entity.KindFriendAccepted,
	entity.KindGeneric,
}

type service struct {
	rest   *rest.Client
	bus    *realtime.Bus
	logger log.Logger

	mu   sync.RWMutex
	list []entity.Notification
	sub  *realtime.Subscription
}

// Helps to access the service layer interface and call methods.
// The service subscribes itself to the global channel's notification kinds,
// release it with Detach when the consumer is torn down.
func NewService(restClient *rest.Client, bus *realtime.Bus, logger log.Logger) Service {
	s := &service{rest: restClient, bus: bus, logger: logger}
	s.sub = bus.Subscribe(realtime.OnChannel(entity.GlobalChannel()), notifyKinds, s.onEvent)
	return s
}

// onEvent refreshes the history when any notification event arrives.
func (s *service) onEvent(ev entity.Event) {
	// Refresh happens off the delivery turn so a slow REST round trip
	// can't stall fan-out to the remaining subscribers.
	go func() {
		if err := s.Refresh(context.Background()); err != nil {
			s.logger.Error().Err(err).Msgf("Couldn't refresh notifications after %s event", ev.Kind)
		}
	}()
}

func (s *service) Refresh(ctx context.Context) error {
	list, err := s.rest.Notifications(ctx)
	if err != nil {
		// Error occured in rest.Notifications()
		return err
	}
	s.mu.Lock()
	s.list = list
	s.mu.Unlock()
	return nil
}

func (s *service) Notifications() []entity.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entity.Notification, len(s.list))
	copy(out, s.list)
	return out
}

func (s *service) Unread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.list {
		if !n.IsRead {
			count++
		}
	}
	return count
}

func (s *service) MarkRead(ctx context.Context, id int) error {
	if err := s.rest.MarkNotificationRead(ctx, id); err != nil {
		// Error occured in rest.MarkNotificationRead()
		return err
	}
	s.mu.Lock()
	for i := range s.list {
		if s.list[i].ID == id {
			s.list[i].IsRead = true
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *service) MarkAllRead(ctx context.Context) error {
	if err := s.rest.MarkAllNotificationsRead(ctx); err != nil {
		// Error occured in rest.MarkAllNotificationsRead()
		return err
	}
	s.mu.Lock()
	for i := range s.list {
		s.list[i].IsRead = true
	}
	s.mu.Unlock()
	return nil
}

func (s *service) ClearAll(ctx context.Context) error {
	if err := s.rest.ClearNotifications(ctx); err != nil {
		// Error occured in rest.ClearNotifications()
		return err
	}
	s.mu.Lock()
	s.list = nil
	s.mu.Unlock()
	return nil
}

func (s *service) Detach() {
	s.bus.Unsubscribe(s.sub)
}
