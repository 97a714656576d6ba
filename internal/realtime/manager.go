// Channel manager of the sync core.
// Exclusively owns the transport handles of the two socket channels:
// the session-global one and the per-mission room one. No other component
// reads or writes the sockets directly.

package realtime

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"Berserk/internal/entity"
	"Berserk/internal/errors"
	"Berserk/internal/passport"
	"Berserk/pkg/log"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
)

// conn is the state the manager keeps per open channel.
type conn struct {
	id entity.ChannelID
	// Correlation id attached to every log line of this connection
	connID string
	ws     *websocket.Conn
	state  entity.ConnState
	// Last token the global channel connected with, reused on reconnect
	token string
	// Set when a deliberate Close is in progress, the read pump uses it to
	// tell a requested teardown from an unexpected closure
	closing bool
}

// Manager owns the lifecycle of the global and room channels.
type Manager struct {
	logger log.Logger
	bus    *Bus
	norm   *Normalizer
	tokens passport.Provider
	// Base URL of the websocket endpoints, e.g. ws://localhost:8000
	socketURL string
	dialer    *websocket.Dialer

	// Wait before the single reconnect attempt after an unexpected closure
	ReconnectDelay time.Duration

	mu     sync.Mutex
	global *conn
	room   *conn
}

// Returns a new channel manager. The manager publishes every state
// transition as a connection_state_changed meta-event through the bus.
func NewManager(socketURL string, tokens passport.Provider, norm *Normalizer, bus *Bus, logger log.Logger) *Manager {
	return &Manager{
		logger:         logger,
		bus:            bus,
		norm:           norm,
		tokens:         tokens,
		socketURL:      socketURL,
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		ReconnectDelay: time.Second,
	}
}

// OpenGlobal opens the session-scoped channel.
// No-ops if it is already open with the current token. A stale socket
// (e.g. opened with a previous token) is closed first, there is never more
// than one global socket live.
func (m *Manager) OpenGlobal(ctx context.Context) error {
	token, terr := m.tokens.Token()
	if terr != nil {
		// No token available, surfaced as AuthMissing
		m.logger.WithCtx(ctx).Error().Err(terr).Msg("Cannot open the global channel without a session token")
		return terr
	}

	m.mu.Lock()
	if m.global != nil && m.global.state == entity.Open && m.global.token == token {
		m.mu.Unlock()
		return nil
	}
	prev := m.global
	m.global = nil
	m.mu.Unlock()
	if prev != nil {
		// Replacing a stale socket keeps the session-scoped
		// subscriptions alive, only an explicit Close releases them
		m.teardown(prev, false)
	}

	c := &conn{id: entity.GlobalChannel(), connID: xid.New().String(), token: token}
	return m.open(ctx, c)
}

// OpenRoom closes any previously open room channel and opens a new one
// scoped to missionID. A user views at most one mission room at a time, so
// this is a destructive switch.
func (m *Manager) OpenRoom(ctx context.Context, missionID int) error {
	m.mu.Lock()
	prev := m.room
	m.room = nil
	m.mu.Unlock()
	if prev != nil {
		m.teardown(prev, true)
	}

	c := &conn{id: entity.RoomChannel(missionID), connID: xid.New().String()}
	return m.open(ctx, c)
}

// Close tears down the channel with the given identity, releasing every
// subscription scoped to its lifetime. Idempotent, closing a channel that
// is not open does nothing.
func (m *Manager) Close(id entity.ChannelID) {
	m.mu.Lock()
	c := m.currentLocked(id)
	if c == nil || c.closing {
		m.mu.Unlock()
		return
	}
	if id.Kind == entity.ChannelGlobal {
		m.global = nil
	} else {
		m.room = nil
	}
	m.mu.Unlock()
	m.teardown(c, true)
}

// CloseAll tears down both channels, used on logout and shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	global, room := m.global, m.room
	m.global, m.room = nil, nil
	m.mu.Unlock()
	if room != nil {
		m.teardown(room, true)
	}
	if global != nil {
		m.teardown(global, true)
	}
}

// SendRoom sends one client-to-server frame on the open room channel.
func (m *Manager) SendRoom(frameType string, data interface{}) error {
	m.mu.Lock()
	var ws *websocket.Conn
	if m.room != nil && m.room.state == entity.Open {
		ws = m.room.ws
	}
	m.mu.Unlock()
	if ws == nil {
		return errors.ConnectionLost("Cannot send, the room channel is not open.")
	}
	if werr := ws.WriteJSON(entity.Frame{Type: frameType, Data: data}); werr != nil {
		m.logger.Error().Err(werr).Msg("Failed to write frame on the room channel")
		return errors.ConnectionLost("The frame could not be written to the room channel.")
	}
	return nil
}

// State returns the connection state of the channel with the given identity.
func (m *Manager) State(id entity.ChannelID) entity.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.currentLocked(id)
	if c == nil {
		return entity.Disconnected
	}
	return c.state
}

// currentLocked returns the live conn for id, nil if none. Caller holds m.mu.
func (m *Manager) currentLocked(id entity.ChannelID) *conn {
	if id.Kind == entity.ChannelGlobal {
		return m.global
	}
	if m.room != nil && m.room.id == id {
		return m.room
	}
	return nil
}

// open installs c as the current conn of its kind, dials and starts the pump.
func (m *Manager) open(ctx context.Context, c *conn) error {
	ctx = context.WithValue(ctx, log.ConnID, c.connID)

	m.mu.Lock()
	if c.id.Kind == entity.ChannelGlobal {
		m.global = c
	} else {
		m.room = c
	}
	m.mu.Unlock()
	m.setState(c, entity.Connecting)

	m.logger.WithCtx(ctx).Info().Msgf("Connecting channel %s", c.id)
	ws, _, derr := m.dialer.Dial(m.urlFor(c), nil)
	if derr != nil {
		m.logger.WithCtx(ctx).Error().Err(derr).Msgf("Couldn't connect channel %s", c.id)
		m.setState(c, entity.Disconnected)
		return errors.ConnectionLost(fmt.Sprintf("Couldn't connect channel %s.", c.id))
	}

	m.mu.Lock()
	if m.currentLocked(c.id) != c || c.closing {
		// Replaced or closed while the handshake was in flight
		m.mu.Unlock()
		ws.Close()
		return nil
	}
	c.ws = ws
	m.mu.Unlock()
	m.setState(c, entity.Open)
	m.logger.WithCtx(ctx).Info().Msgf("Channel %s connected", c.id)

	go m.readPump(ctx, c)
	return nil
}

// urlFor builds the endpoint URL for a channel. The global channel carries
// the auth token as a query parameter, the room channel carries the mission
// id in its path.
func (m *Manager) urlFor(c *conn) string {
	if c.id.Kind == entity.ChannelGlobal {
		return fmt.Sprintf("%s/api/ws/global?token=%s", m.socketURL, url.QueryEscape(c.token))
	}
	return fmt.Sprintf("%s/api/ws/mission/%d", m.socketURL, c.id.MissionID)
}

// readPump reads frames off the transport until it closes, normalizing and
// publishing each one. One pump per transport is what guarantees FIFO
// delivery per channel: the next frame is not read until the bus has
// finished delivering the previous one to every subscriber.
func (m *Manager) readPump(ctx context.Context, c *conn) {
	for {
		_, raw, rerr := c.ws.ReadMessage()
		if rerr != nil {
			m.pumpClosed(ctx, c, rerr)
			return
		}
		ev, perr := m.norm.Normalize(ctx, c.id, raw)
		if perr != nil {
			// Malformed frame, logged and counted by the normalizer.
			// The channel stays open.
			continue
		}
		m.bus.Publish(ev)
	}
}

// pumpClosed handles the transport closing underneath the read pump.
// A deliberate Close is finished silently. An unexpected closure triggers
// exactly one reconnect with the last known parameters, a failed reconnect
// is surfaced as a connection_lost meta-event and the channel stays
// Disconnected until the consumer re-triggers an open.
func (m *Manager) pumpClosed(ctx context.Context, c *conn, cause error) {
	m.mu.Lock()
	deliberate := c.closing
	current := m.currentLocked(c.id) == c
	m.mu.Unlock()
	if deliberate || !current {
		return
	}

	m.logger.WithCtx(ctx).Warn().Err(cause).Msgf("Channel %s closed unexpectedly, attempting one reconnect", c.id)
	m.setState(c, entity.Disconnected)
	time.Sleep(m.ReconnectDelay)

	m.mu.Lock()
	if m.currentLocked(c.id) != c || c.closing {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.setState(c, entity.Connecting)

	ws, _, derr := m.dialer.Dial(m.urlFor(c), nil)
	if derr != nil {
		m.logger.WithCtx(ctx).Error().Err(derr).Msgf("Reconnect of channel %s failed", c.id)
		m.setState(c, entity.Disconnected)
		m.publishMeta(c.id, entity.KindConnectionLost, map[string]interface{}{
			"error": errors.ConnectionLost("").Error(),
		})
		return
	}

	m.mu.Lock()
	if m.currentLocked(c.id) != c || c.closing {
		m.mu.Unlock()
		ws.Close()
		return
	}
	c.ws = ws
	m.mu.Unlock()
	m.setState(c, entity.Open)
	m.logger.WithCtx(ctx).Info().Msgf("Channel %s reconnected", c.id)

	go m.readPump(ctx, c)
}

// teardown performs a deliberate close of one conn. release additionally
// drops the subscriptions bound to the channel's lifetime.
func (m *Manager) teardown(c *conn, release bool) {
	m.mu.Lock()
	if c.closing {
		m.mu.Unlock()
		return
	}
	c.closing = true
	ws := c.ws
	m.mu.Unlock()

	m.setState(c, entity.Closing)
	if ws != nil {
		deadline := time.Now().Add(time.Second)
		ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		ws.Close()
	}
	m.setState(c, entity.Closed)
	if release {
		m.bus.ReleaseScope(c.id)
	}
	m.logger.Info().Msgf("Channel %s closed", c.id)
}

// setState records a state transition and publishes it as a meta-event so
// consumers can render connectivity without polling.
func (m *Manager) setState(c *conn, st entity.ConnState) {
	m.mu.Lock()
	c.state = st
	m.mu.Unlock()
	m.publishMeta(c.id, entity.KindConnectionState, map[string]interface{}{
		"state": st.String(),
	})
}

func (m *Manager) publishMeta(id entity.ChannelID, kind entity.EventKind, payload map[string]interface{}) {
	m.bus.Publish(entity.Event{
		Kind:       kind,
		Scope:      id,
		RawType:    string(kind),
		Payload:    payload,
		ReceivedAt: time.Now(),
	})
}
