// Structure of the normalized real-time Event Model in Berserk.

package entity

import (
	"fmt"
	"time"
)

// ChannelKind tells which of the two socket channels an event came from.
type ChannelKind int

const (
	// Session-scoped channel, authenticated by token, lives for the login session.
	ChannelGlobal ChannelKind = iota
	// Mission-scoped channel, lives while a user views that mission.
	ChannelRoom
)

// ChannelID uniquely identifies a logical real-time stream.
// MissionID is only meaningful for ChannelRoom.
type ChannelID struct {
	Kind      ChannelKind
	MissionID int
}

// GlobalChannel returns the identity of the session-scoped channel.
func GlobalChannel() ChannelID {
	return ChannelID{Kind: ChannelGlobal}
}

// RoomChannel returns the identity of the channel scoped to one mission.
func RoomChannel(missionID int) ChannelID {
	return ChannelID{Kind: ChannelRoom, MissionID: missionID}
}

func (c ChannelID) String() string {
	if c.Kind == ChannelGlobal {
		return "global"
	}
	return fmt.Sprintf("room:%d", c.MissionID)
}

// ConnState is the connection state of one channel's transport.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Open
	Closing
	Closed
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// EventKind is the closed set of normalized event types recognized by Berserk.
type EventKind string

const (
	// Mission lifecycle
	KindMissionStarted   EventKind = "mission_started"
	KindMissionCompleted EventKind = "mission_completed"
	KindMissionFailed    EventKind = "mission_failed"
	KindMissionDeleted   EventKind = "mission_deleted"

	// Crew membership
	KindNewCrewJoined     EventKind = "new_crew_joined"
	KindCrewLeft          EventKind = "crew_left"
	KindKickedFromMission EventKind = "kicked_from_mission"

	// Chat
	KindNewComment     EventKind = "new_comment"
	KindNewChatMessage EventKind = "new_chat_message"
	KindClearChat      EventKind = "clear_chat"

	// Presence
	KindAgentOnline  EventKind = "agent_online"
	KindAgentOffline EventKind = "agent_offline"

	// Friendship
	KindFriendRequest  EventKind = "friend_request"
	KindFriendAccepted EventKind = "friend_accepted"

	// Unknown wire types normalize to this, the raw type string is kept in Event.RawType.
	KindGeneric EventKind = "generic"

	// Meta-events emitted by the channel manager, never read off the wire.
	KindConnectionState EventKind = "connection_state_changed"
	KindConnectionLost  EventKind = "connection_lost"
)

// Event is an immutable record derived from exactly one wire frame.
// Consumers must treat Payload as read-only.
type Event struct {
	Kind       EventKind
	Scope      ChannelID
	RawType    string
	Payload    map[string]interface{}
	ReceivedAt time.Time
}

// Frame is the wire envelope used on both channels in both directions.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
