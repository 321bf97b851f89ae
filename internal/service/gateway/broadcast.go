package gateway

import (
	"errors"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/krobus00/realtime-gateway/internal/constant"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/sirupsen/logrus"
)

type BroadcastOptions struct {
	Priority   entity.Priority
	Persistent bool
}

// BroadcastToChannel delivers env to every active subscriber of channel and
// returns the number of sessions it was queued for.
func (h *Hub) BroadcastToChannel(channel string, env entity.Envelope, opts BroadcastOptions) int {
	return h.Publish([]string{channel}, env, opts)
}

// Publish delivers env once to every active session subscribed to at least
// one of channels. The metadata channel is the first listed channel the
// session belongs to. All copies share one broadcast id.
func (h *Hub) Publish(channels []string, env entity.Envelope, opts BroadcastOptions) int {
	if opts.Priority == "" {
		opts.Priority = entity.PriorityNormal
	}
	broadcastID := uuid.NewString()

	h.mu.Lock()
	seen := make(map[string]struct{})
	var stale []*Session
	var slow []*Session
	delivered := 0

	for _, channel := range channels {
		members := h.directory.Members(channel)
		if len(members) == 0 {
			continue
		}

		var payload []byte
		for _, id := range members {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}

			s, ok := h.registry.Get(id)
			if !ok {
				continue
			}
			if !s.isActive() {
				stale = append(stale, s)
				continue
			}

			if payload == nil {
				data, err := json.Marshal(env.WithMetadata(entity.EnvelopeMetadata{
					BroadcastID: broadcastID,
					Channel:     channel,
					Priority:    opts.Priority,
					Persistent:  opts.Persistent,
				}))
				if err != nil {
					logrus.WithField("channel", channel).Errorf("failed to encode broadcast: %v", err)
					break
				}
				payload = data
			}

			switch err := s.enqueue(payload); {
			case err == nil:
				delivered++
			case errors.Is(err, ErrSlowConsumer):
				slow = append(slow, s)
			default:
				stale = append(stale, s)
			}
		}
	}

	closed := h.cleanupLocked(slow, stale)
	h.mu.Unlock()

	h.finishBroadcast(env.Type, channels, delivered, broadcastID, closed)
	return delivered
}

// BroadcastToUser delivers env to every active session of userID. A non
// empty channel filter restricts delivery to sessions subscribed to at least
// one of those channels.
func (h *Hub) BroadcastToUser(userID string, env entity.Envelope, channelFilter []string) int {
	broadcastID := uuid.NewString()
	data, err := json.Marshal(env.WithMetadata(entity.EnvelopeMetadata{
		BroadcastID: broadcastID,
		Priority:    entity.PriorityNormal,
	}))
	if err != nil {
		logrus.WithField("userId", userID).Errorf("failed to encode broadcast: %v", err)
		return 0
	}

	h.mu.Lock()
	var stale []*Session
	var slow []*Session
	delivered := 0
	for _, s := range h.registry.LookupByUser(userID) {
		if len(channelFilter) > 0 && !s.subscribedToAny(channelFilter) {
			continue
		}

		switch err := s.enqueue(data); {
		case err == nil:
			delivered++
		case errors.Is(err, ErrSlowConsumer):
			slow = append(slow, s)
		default:
			stale = append(stale, s)
		}
	}

	closed := h.cleanupLocked(slow, stale)
	h.mu.Unlock()

	h.finishBroadcast(env.Type, []string{constant.UserChannelPrefix + userID}, delivered, broadcastID, closed)
	return delivered
}

type closedSession struct {
	session *Session
	code    int
	reason  string
}

// cleanupLocked removes sessions that failed during fan out. mu must be held.
func (h *Hub) cleanupLocked(slow, stale []*Session) []closedSession {
	var closed []closedSession
	for _, s := range slow {
		h.stats.SlowConsumerDropped()
		if h.removeLocked(s, constant.CloseSlowConsumer, "slow consumer") {
			closed = append(closed, closedSession{session: s, code: constant.CloseSlowConsumer, reason: "slow consumer"})
		}
	}
	for _, s := range stale {
		code, reason := s.closeStatus()
		if h.removeLocked(s, code, reason) {
			closed = append(closed, closedSession{session: s, code: code, reason: reason})
		}
	}
	return closed
}

func (h *Hub) finishBroadcast(msgType string, channels []string, delivered int, broadcastID string, closed []closedSession) {
	h.stats.Broadcast()
	for _, c := range closed {
		h.finishClose(c.session, c.code, c.reason)
	}

	logrus.WithFields(logrus.Fields{
		"type":        msgType,
		"channels":    channels,
		"delivered":   delivered,
		"broadcastId": broadcastID,
	}).Debug("broadcast")
}
