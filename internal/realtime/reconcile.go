// Reconciliation engine of the sync core.
// Makes optimistic local sends converge to exactly one authoritative record,
// whether the REST acknowledgement or the socket echo arrives first.

package realtime

import (
	"context"
	"sync"
	"time"

	"Berserk/internal/entity"
	"Berserk/internal/passport"
	"Berserk/pkg/log"
)

// EntryState is the state machine of one optimistic entry.
type EntryState int

const (
	// Materialized locally, no authoritative confirmation yet
	Pending EntryState = iota
	// Reconciled with a server-assigned record, final
	Confirmed
	// The REST send returned an error, final, never auto-retried
	Failed
)

func (s EntryState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ConversationKind tells whether a conversation is a private chat or a
// mission room chat.
type ConversationKind int

const (
	ConversationPrivate ConversationKind = iota
	ConversationMission
)

// ConversationKey identifies one conversation: the counterpart's user id
// for private chat, the mission id for room chat.
type ConversationKey struct {
	Kind ConversationKind
	ID   int
}

// PrivateConversation returns the key of a private chat with one brawler.
func PrivateConversation(peerID int) ConversationKey {
	return ConversationKey{Kind: ConversationPrivate, ID: peerID}
}

// MissionConversation returns the key of a mission room chat.
func MissionConversation(missionID int) ConversationKey {
	return ConversationKey{Kind: ConversationMission, ID: missionID}
}

// ServerRecord is the authoritative server-assigned form of one message,
// arriving either as the REST acknowledgement or as the socket echo.
type ServerRecord struct {
	ID        int
	SenderID  int
	Content   string
	CreatedAt string
}

// RecordFromComment converts a REST comment acknowledgement into a ServerRecord.
func RecordFromComment(c entity.MissionComment) ServerRecord {
	return ServerRecord{ID: c.ID, SenderID: c.BrawlerID, Content: c.Content, CreatedAt: c.CreatedAt}
}

// RecordFromPrivateMessage converts a private message record into a ServerRecord.
func RecordFromPrivateMessage(p entity.PrivateMessage) ServerRecord {
	return ServerRecord{ID: p.ID, SenderID: p.SenderID, Content: p.Content, CreatedAt: p.CreatedAt}
}

// Entry is one consumer-visible item of a conversation timeline.
type Entry struct {
	// Unique negative sentinel assigned at BeginSend, 0 for inbound items
	LocalID int64
	// Server-assigned id once Confirmed
	ServerID     int
	Conversation ConversationKey
	SenderID     int
	Content      string
	// Local materialization time of the entry
	CreatedAt time.Time
	// Server timestamp once a ServerRecord has been merged
	ServerCreatedAt string
	State           EntryState
	// Cause of the failure when State is Failed
	Err error
}

// PostFunc issues the REST send for one optimistic entry and returns the
// server-assigned record.
type PostFunc func(ctx context.Context) (ServerRecord, error)

// Engine owns every optimistic entry between BeginSend and its final state.
type Engine struct {
	logger log.Logger
	me     passport.Provider

	mu        sync.Mutex
	nextLocal int64
	timelines map[ConversationKey][]*Entry
	byLocal   map[int64]*Entry
	// Server ids already merged per conversation, the dedup key for
	// duplicate deliveries after confirmation
	seen map[ConversationKey]map[int]struct{}
	sub  *Subscription
}

// Returns a new reconciliation engine. me provides the logged-in user's id,
// which the engine needs to recognize its own socket echoes.
func NewEngine(me passport.Provider, logger log.Logger) *Engine {
	return &Engine{
		logger:    logger,
		me:        me,
		timelines: make(map[ConversationKey][]*Entry),
		byLocal:   make(map[int64]*Entry),
		seen:      make(map[ConversationKey]map[int]struct{}),
	}
}

// Attach subscribes the engine to every bus-delivered chat event.
func (e *Engine) Attach(bus *Bus) {
	e.sub = bus.Subscribe(OnAnyChannel(), []entity.EventKind{
		entity.KindNewComment,
		entity.KindNewChatMessage,
		entity.KindClearChat,
	}, e.observe)
}

// Detach releases the engine's bus subscription.
func (e *Engine) Detach(bus *Bus) {
	bus.Unsubscribe(e.sub)
}

// BeginSend immediately materializes a Pending entry with a unique negative
// sentinel id, so the UI can render the message before any network round
// trip completes.
func (e *Engine) BeginSend(conv ConversationKey, content string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextLocal--
	entry := &Entry{
		LocalID:      e.nextLocal,
		Conversation: conv,
		SenderID:     e.me.UserID(),
		Content:      content,
		CreatedAt:    time.Now(),
		State:        Pending,
	}
	e.timelines[conv] = append(e.timelines[conv], entry)
	e.byLocal[entry.LocalID] = entry
	e.logger.Debug().Msgf("Optimistic entry %d pending in conversation %v", entry.LocalID, conv)
	return entry.LocalID
}

// Confirm merges the REST acknowledgement into the pending entry with the
// given local id. A second confirmation of the same entry (the socket echo
// got there first) is a no-op.
func (e *Engine) Confirm(localID int64, rec ServerRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.byLocal[localID]
	if !ok {
		e.logger.Warn().Msgf("Confirm for unknown local id %d dropped", localID)
		return
	}
	if entry.State != Pending {
		// Already reconciled, the duplicate is keyed out by server id
		e.markSeenLocked(entry.Conversation, rec.ID)
		return
	}
	e.confirmLocked(entry, rec)
}

// Fail transitions the pending entry to Failed after a REST send error.
// The entry is not auto-retried, the consumer decides whether to restore
// the input for resubmission.
func (e *Engine) Fail(localID int64, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.byLocal[localID]
	if !ok || entry.State != Pending {
		return
	}
	entry.State = Failed
	entry.Err = cause
	e.logger.Warn().Err(cause).Msgf("Optimistic entry %d failed", localID)
}

// Send runs the full optimistic flow: materialize the entry, issue the REST
// send, then confirm or fail it once the acknowledgement arrives.
func (e *Engine) Send(ctx context.Context, conv ConversationKey, content string, post PostFunc) int64 {
	localID := e.BeginSend(conv, content)
	go func() {
		rec, err := post(ctx)
		if err != nil {
			e.Fail(localID, err)
			return
		}
		e.Confirm(localID, rec)
	}()
	return localID
}

// Timeline returns a copy of the consumer-visible entries of one
// conversation in arrival order.
func (e *Engine) Timeline(conv ConversationKey) []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	entries := e.timelines[conv]
	out := make([]Entry, len(entries))
	for i, en := range entries {
		out[i] = *en
	}
	return out
}

// observe is the engine's bus handler for inbound chat events.
func (e *Engine) observe(ev entity.Event) {
	switch ev.Kind {
	case entity.KindClearChat:
		missionID, ok := intField(ev.Payload, "mission_id")
		if !ok {
			return
		}
		e.clear(MissionConversation(missionID))

	case entity.KindNewComment:
		id, okID := intField(ev.Payload, "id")
		missionID, okMission := intField(ev.Payload, "mission_id")
		sender, okSender := intField(ev.Payload, "brawler_id")
		if !okID || !okMission || !okSender {
			return
		}
		content, _ := strField(ev.Payload, "content")
		created, _ := strField(ev.Payload, "created_at")
		e.ingest(MissionConversation(missionID), ServerRecord{
			ID: id, SenderID: sender, Content: content, CreatedAt: created,
		})

	case entity.KindNewChatMessage:
		// Frames of this kind come in two shapes: a full private message
		// record, and a mission chat summary for the notification bell.
		// Only the record form belongs in a timeline.
		id, okID := intField(ev.Payload, "id")
		sender, okSender := intField(ev.Payload, "sender_id")
		receiver, okReceiver := intField(ev.Payload, "receiver_id")
		if !okID || !okSender || !okReceiver {
			return
		}
		peer := sender
		if sender == e.me.UserID() {
			peer = receiver
		}
		content, _ := strField(ev.Payload, "content")
		created, _ := strField(ev.Payload, "created_at")
		e.ingest(PrivateConversation(peer), ServerRecord{
			ID: id, SenderID: sender, Content: content, CreatedAt: created,
		})
	}
}

// ingest merges one authoritative inbound record into a conversation.
// An echo of a still-pending send confirms it, a record already merged is a
// duplicate delivery and discarded, anything else is a genuinely new
// inbound item appended as-is.
func (e *Engine) ingest(conv ConversationKey, rec ServerRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ids, ok := e.seen[conv]; ok {
		if _, dup := ids[rec.ID]; dup {
			e.logger.Debug().Msgf("Duplicate delivery of record %d in conversation %v discarded", rec.ID, conv)
			return
		}
	}

	// Content equality only matches the oldest still-pending sentinel,
	// never an already confirmed entry, to avoid false merges of two
	// messages with identical text.
	if rec.SenderID == e.me.UserID() {
		for _, entry := range e.timelines[conv] {
			if entry.State == Pending && entry.Content == rec.Content {
				e.confirmLocked(entry, rec)
				return
			}
		}
	}

	entry := &Entry{
		ServerID:        rec.ID,
		Conversation:    conv,
		SenderID:        rec.SenderID,
		Content:         rec.Content,
		CreatedAt:       time.Now(),
		ServerCreatedAt: rec.CreatedAt,
		State:           Confirmed,
	}
	e.timelines[conv] = append(e.timelines[conv], entry)
	e.markSeenLocked(conv, rec.ID)
}

// confirmLocked finalizes one pending entry. Caller must hold e.mu.
func (e *Engine) confirmLocked(entry *Entry, rec ServerRecord) {
	entry.ServerID = rec.ID
	entry.ServerCreatedAt = rec.CreatedAt
	entry.State = Confirmed
	e.markSeenLocked(entry.Conversation, rec.ID)
	e.logger.Debug().Msgf("Optimistic entry %d confirmed as record %d", entry.LocalID, rec.ID)
}

// markSeenLocked records a merged server id. Caller must hold e.mu.
func (e *Engine) markSeenLocked(conv ConversationKey, serverID int) {
	ids, ok := e.seen[conv]
	if !ok {
		ids = make(map[int]struct{})
		e.seen[conv] = ids
	}
	ids[serverID] = struct{}{}
}

// clear resets one conversation after a clear_chat event, pending entries
// included.
func (e *Engine) clear(conv ConversationKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, entry := range e.timelines[conv] {
		if entry.LocalID != 0 {
			delete(e.byLocal, entry.LocalID)
		}
	}
	delete(e.timelines, conv)
	delete(e.seen, conv)
	e.logger.Info().Msgf("Conversation %v cleared", conv)
}

// intField reads an integer out of a decoded JSON payload.
func intField(p map[string]interface{}, key string) (int, bool) {
	switch v := p[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// strField reads a string out of a decoded JSON payload.
func strField(p map[string]interface{}, key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}
