package gateway

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/krobus00/realtime-gateway/internal/constant"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/sirupsen/logrus"
)

// probe states of a session heartbeat
const (
	probeIdle int32 = iota
	probeSent
	probeDead
)

type heartbeatPayload struct {
	HeartbeatID string `json:"heartbeatId"`
}

// superviseHeartbeat probes s every heartbeat interval until the session
// closes or stops answering. The ticker is released on every exit path.
func (h *Hub) superviseHeartbeat(s *Session) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	h.stats.HeartbeatStarted()
	defer func() {
		ticker.Stop()
		h.stats.HeartbeatStopped()
	}()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if !h.probe(s) {
				return
			}
		}
	}
}

// probe runs one heartbeat step and reports whether s is still alive. A
// probe left unanswered until the next step marks the session dead.
func (h *Hub) probe(s *Session) bool {
	if s.probe.CompareAndSwap(probeSent, probeDead) {
		h.expire(s, "Heartbeat timeout")
		return false
	}

	s.probe.Store(probeSent)
	ping := entity.NewEnvelope(MessageTypePing, heartbeatPayload{HeartbeatID: uuid.NewString()})
	if err := h.send(s, ping); err != nil {
		h.Disconnect(s.id, constant.CloseInactivity, "Heartbeat failed")
		return false
	}

	err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout))
	if err != nil {
		logrus.WithField("sessionId", s.id).Debugf("failed to write ping: %v", err)
	}
	return true
}

func (h *Hub) expire(s *Session, reason string) {
	if h.Disconnect(s.id, constant.CloseInactivity, reason) {
		logrus.WithFields(logrus.Fields{
			"sessionId":    s.id,
			"userId":       s.UserID(),
			"lastActivity": s.LastActivity(),
		}).Info("session expired")
	}
}

// Sweep closes every session idle for longer than the inactivity threshold
// and returns how many were closed.
func (h *Hub) Sweep() int {
	cutoff := h.now().Add(-h.cfg.InactivityThreshold)

	h.mu.Lock()
	var expired []*Session
	for _, s := range h.registry.All() {
		if !s.LastActivity().Before(cutoff) {
			continue
		}
		if h.removeLocked(s, constant.CloseInactivity, "Inactivity timeout") {
			expired = append(expired, s)
		}
	}
	h.mu.Unlock()

	for _, s := range expired {
		h.finishClose(s, constant.CloseInactivity, "Inactivity timeout")
	}
	if len(expired) > 0 {
		logrus.Infof("inactivity sweep closed %d sessions", len(expired))
	}
	return len(expired)
}

// guardMemory sweeps right away when the process is above the memory limit.
func (h *Hub) guardMemory() {
	rss := h.stats.SampleMemory()
	limit := uint64(h.cfg.MemoryLimitMB) << 20
	if rss == 0 || rss <= limit {
		return
	}

	logrus.WithFields(logrus.Fields{
		"memoryRssBytes": rss,
		"limitBytes":     limit,
	}).Warn("memory usage above limit, sweeping inactive sessions")
	h.Sweep()
}

func (h *Hub) sweepLoop(ctx context.Context) {
	sweepTicker := time.NewTicker(h.cfg.SweepInterval)
	memoryTicker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer func() {
		sweepTicker.Stop()
		memoryTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		case <-sweepTicker.C:
			h.Sweep()
		case <-memoryTicker.C:
			h.guardMemory()
		}
	}
}
