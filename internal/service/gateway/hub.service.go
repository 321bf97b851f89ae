package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/krobus00/realtime-gateway/internal/constant"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/sirupsen/logrus"
)

var ErrShuttingDown = errors.New("gateway is shutting down")

// SnapshotProvider builds the initial_data payload for a freshly subscribed
// channel. A nil result means there is nothing to send.
type SnapshotProvider interface {
	InitialData(ctx context.Context, identity entity.Identity, channel string) (any, error)
}

type Request struct {
	SessionID string
	Identity  entity.Identity
	Message   entity.InboundMessage
}

// RequestHandler serves a domain message type. A non nil envelope is sent
// back to the requesting session.
type RequestHandler func(ctx context.Context, req Request) (*entity.Envelope, error)

type welcomeLimits struct {
	MaxChannels       int   `json:"maxChannels"`
	MaxMessageSize    int64 `json:"maxMessageSize"`
	HeartbeatInterval int64 `json:"heartbeatInterval"`
}

type welcomePayload struct {
	ConnectionID string        `json:"connectionId"`
	Features     []string      `json:"features"`
	Limits       welcomeLimits `json:"limits"`
}

// Hub owns the registry, the channel directory and the stats of one gateway
// instance. Registry and directory are only touched while holding mu.
type Hub struct {
	cfg       Config
	stats     *Stats
	snapshots SnapshotProvider
	audit     entity.AuditSink
	now       func() time.Time

	mu        sync.Mutex
	registry  *Registry
	directory *Directory
	closing   bool

	handlersMu sync.RWMutex
	handlers   map[string]RequestHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHub(cfg Config, snapshots SnapshotProvider, audit entity.AuditSink) *Hub {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:       cfg,
		stats:     NewStats(time.Now()),
		snapshots: snapshots,
		audit:     audit,
		now:       time.Now,
		registry:  NewRegistry(),
		directory: NewDirectory(cfg.MaxChannelsPerConnection),
		handlers:  make(map[string]RequestHandler),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (h *Hub) Config() Config {
	return h.cfg
}

// Handle registers a domain request handler. Built in message types cannot
// be overridden.
func (h *Hub) Handle(msgType string, handler RequestHandler) {
	if isBuiltinType(msgType) {
		logrus.Warnf("ignoring handler for built in message type: %s", msgType)
		return
	}

	h.handlersMu.Lock()
	defer h.handlersMu.Unlock()
	h.handlers[msgType] = handler
}

func (h *Hub) handler(msgType string) (RequestHandler, bool) {
	h.handlersMu.RLock()
	defer h.handlersMu.RUnlock()
	handler, ok := h.handlers[msgType]
	return handler, ok
}

// Admit registers an authenticated connection, queues the welcome envelope
// and starts its write pump and heartbeat.
func (h *Hub) Admit(conn Transport, identity entity.Identity, client entity.ClientInfo) (*Session, error) {
	s := newSession(uuid.NewString(), identity, client, conn, h.cfg.OutboundBuffer, h.now())
	s.setState(StateAuthenticated)

	welcome, err := json.Marshal(entity.NewEnvelope(MessageTypeWelcome, welcomePayload{
		ConnectionID: s.id,
		Features:     features,
		Limits: welcomeLimits{
			MaxChannels:       h.cfg.MaxChannelsPerConnection,
			MaxMessageSize:    h.cfg.MaxMessageSize,
			HeartbeatInterval: h.cfg.HeartbeatInterval.Milliseconds(),
		},
	}))
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if err := h.registry.Register(s); err != nil {
		h.mu.Unlock()
		return nil, err
	}
	s.setState(StateActive)
	h.stats.ConnectionOpened()
	// cannot fail: the queue is empty and the session open
	_ = s.enqueue(welcome)
	h.wg.Add(2)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		s.writePump(h.cfg.WriteTimeout, h.stats.MessageSent, func(err error) {
			h.onWriteError(s, err)
		})
	}()
	go func() {
		defer h.wg.Done()
		h.superviseHeartbeat(s)
	}()

	logrus.WithFields(logrus.Fields{
		"sessionId":  s.id,
		"userId":     s.UserID(),
		"ip":         client.IP,
		"deviceType": client.DeviceType,
	}).Info("session opened")
	h.recordAudit(entity.AuditRecord{
		Action:    entity.AuditSessionOpened,
		SessionID: s.id,
		UserID:    s.UserID(),
		IP:        client.IP,
	})

	return s, nil
}

// Touch records inbound activity and acknowledges a pending heartbeat probe.
func (h *Hub) Touch(s *Session) {
	s.touch(h.now())
	s.probe.CompareAndSwap(probeSent, probeIdle)
}

// Disconnect removes the session and closes its transport with code. It is
// idempotent and reports whether this call did the removal.
func (h *Hub) Disconnect(id string, code int, reason string) bool {
	h.mu.Lock()
	s, ok := h.registry.Get(id)
	if ok {
		ok = h.removeLocked(s, code, reason)
	}
	h.mu.Unlock()

	if ok {
		h.finishClose(s, code, reason)
	}
	return ok
}

// removeLocked must be called with mu held.
func (h *Hub) removeLocked(s *Session, code int, reason string) bool {
	current, ok := h.registry.Get(s.id)
	if !ok || current != s {
		return false
	}

	h.registry.Remove(s.id)
	h.directory.OnSessionRemoved(s)
	s.close(code, reason)
	h.stats.ConnectionClosed()
	return true
}

func (h *Hub) finishClose(s *Session, code int, reason string) {
	logrus.WithFields(logrus.Fields{
		"sessionId": s.id,
		"userId":    s.UserID(),
		"code":      code,
		"reason":    reason,
		"messages":  s.MessageCount(),
		"errors":    s.ErrorCount(),
	}).Info("session closed")
	h.recordAudit(entity.AuditRecord{
		Action:    entity.AuditSessionClosed,
		SessionID: s.id,
		UserID:    s.UserID(),
		IP:        s.client.IP,
		Code:      code,
		Reason:    reason,
	})
}

func (h *Hub) onWriteError(s *Session, err error) {
	h.stats.Error()
	logrus.WithFields(logrus.Fields{
		"sessionId": s.id,
		"userId":    s.UserID(),
	}).Warnf("failed to write to session: %v", err)
	h.Disconnect(s.id, websocket.CloseInternalServerErr, "send failure")
}

// send queues a single envelope for s. A full queue drops the session.
func (h *Hub) send(s *Session, env entity.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	err = s.enqueue(data)
	if errors.Is(err, ErrSlowConsumer) {
		h.dropSlowConsumer(s)
	}
	if err == nil && env.Type != MessageTypePing && env.Type != MessageTypePong {
		logrus.WithFields(logrus.Fields{
			"sessionId": s.id,
			"userId":    s.UserID(),
			"type":      env.Type,
		}).Debug("outbound message")
	}
	return err
}

func (h *Hub) dropSlowConsumer(s *Session) {
	h.stats.SlowConsumerDropped()
	h.Disconnect(s.id, constant.CloseSlowConsumer, "slow consumer")
}

// Session returns a registered session by id.
func (h *Hub) Session(id string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Get(id)
}

// SessionChannels lists the channels s is subscribed to.
func (h *Hub) SessionChannels(s *Session) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.directory.Channels(s)
}

func (h *Hub) RecordAuthFailure() {
	h.stats.AuthFailed()
}

func (h *Hub) Stats() StatsSnapshot {
	h.mu.Lock()
	activeChannels := h.directory.Len()
	h.mu.Unlock()
	return h.stats.Snapshot(h.now(), activeChannels)
}

// Start runs the inactivity sweep, memory guard and periodic stats log until
// ctx is done or Shutdown is called.
func (h *Hub) Start(ctx context.Context) {
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		h.sweepLoop(ctx)
	}()
	go func() {
		defer h.wg.Done()
		h.statsLoop(ctx)
	}()
}

// Shutdown closes every session with 1001 and waits for the write pumps to
// flush their close frames.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	sessions := h.registry.All()
	closed := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		if h.removeLocked(s, constant.CloseServerShutdown, "Server shutdown") {
			closed = append(closed, s)
		}
	}
	h.mu.Unlock()

	for _, s := range closed {
		h.finishClose(s, constant.CloseServerShutdown, "Server shutdown")
	}
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Infof("gateway stopped, %d sessions closed", len(closed))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.StatsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.stats.SampleMemory()
			stats := h.Stats()
			logrus.WithFields(logrus.Fields{
				"activeConnections": stats.ActiveConnections,
				"totalConnections":  stats.TotalConnections,
				"messagesSent":      stats.MessagesSent,
				"messagesReceived":  stats.MessagesReceived,
				"errors":            stats.Errors,
				"activeChannels":    stats.ActiveChannels,
				"memoryRssBytes":    stats.MemoryRSSBytes,
				"uptime":            stats.Uptime,
			}).Info("gateway stats")
		}
	}
}

func (h *Hub) recordAudit(record entity.AuditRecord) {
	if h.audit == nil {
		return
	}
	record.Timestamp = h.now().UTC()
	h.audit.Audit(h.ctx, record)
}
