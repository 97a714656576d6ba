// Event normalization layer of the sync core.
// Converts each raw inbound wire frame into exactly one typed entity.Event.

package realtime

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"Berserk/internal/entity"
	"Berserk/internal/errors"
	"Berserk/pkg/log"
)

// wireKinds maps every recognized raw type string to its EventKind.
// Anything outside this map normalizes to entity.KindGeneric.
var wireKinds = map[string]entity.EventKind{
	"mission_started":     entity.KindMissionStarted,
	"mission_completed":   entity.KindMissionCompleted,
	"mission_failed":      entity.KindMissionFailed,
	"mission_deleted":     entity.KindMissionDeleted,
	"new_crew_joined":     entity.KindNewCrewJoined,
	"crew_left":           entity.KindCrewLeft,
	"kicked_from_mission": entity.KindKickedFromMission,
	"new_comment":         entity.KindNewComment,
	"new_chat_message":    entity.KindNewChatMessage,
	"clear_chat":          entity.KindClearChat,
	"agent_online":        entity.KindAgentOnline,
	"agent_offline":       entity.KindAgentOffline,
	"friend_request":      entity.KindFriendRequest,
	"friend_accepted":     entity.KindFriendAccepted,
}

// Normalizer turns raw frames into events and accounts for the ones it drops.
type Normalizer struct {
	logger    log.Logger
	parseErrs uint64
}

// Returns a new Normalizer instance for the channel manager to feed.
func NewNormalizer(logger log.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize converts one raw text frame received on scope into exactly one Event.
// Malformed frames are logged, counted and reported as ParseError, never
// delivered as a partially-typed event.
func (n *Normalizer) Normalize(ctx context.Context, scope entity.ChannelID, raw []byte) (entity.Event, error) {
	var frame struct {
		Type string                 `json:"type"`
		Data map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		atomic.AddUint64(&n.parseErrs, 1)
		n.logger.WithCtx(ctx).Error().Err(err).Msgf("Dropping malformed frame received on channel %s", scope)
		return entity.Event{}, errors.ParseError("")
	}
	if frame.Type == "" {
		atomic.AddUint64(&n.parseErrs, 1)
		n.logger.WithCtx(ctx).Error().Msgf("Dropping frame without a type received on channel %s", scope)
		return entity.Event{}, errors.ParseError("An inbound frame carried no type.")
	}

	rawType := frame.Type
	payload := frame.Data

	// The server double-wraps some payloads in a generic notification
	// envelope. An embedded data.type is the authoritative kind, so it is
	// promoted and removed from the payload.
	if rawType == "notification" && payload != nil {
		if inner, ok := payload["type"].(string); ok && inner != "" {
			rawType = inner
			promoted := make(map[string]interface{}, len(payload)-1)
			for k, v := range payload {
				if k != "type" {
					promoted[k] = v
				}
			}
			payload = promoted
		}
	}

	kind, known := wireKinds[rawType]
	if !known {
		kind = entity.KindGeneric
		n.logger.WithCtx(ctx).Warn().Msgf("Unknown frame type %q received on channel %s, normalizing to generic", rawType, scope)
	}

	return entity.Event{
		Kind:       kind,
		Scope:      scope,
		RawType:    rawType,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}, nil
}

// ParseErrors returns the number of frames dropped as malformed so far.
func (n *Normalizer) ParseErrors() uint64 {
	return atomic.LoadUint64(&n.parseErrs)
}
