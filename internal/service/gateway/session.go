package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/sirupsen/logrus"
)

// Transport is the write side of a client connection. *websocket.Conn
// satisfies it.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type SessionState int32

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Subscription struct {
	SubscribedAt time.Time
	Options      entity.SubscribeOptions
}

// Session is one authenticated client connection. The outbound queue is
// drained by a single write pump, so all writes to the transport are
// serialized.
type Session struct {
	id       string
	identity entity.Identity
	client   entity.ClientInfo
	conn     Transport
	send     chan []byte
	done     chan struct{}

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string

	state        atomic.Int32
	lastActivity atomic.Int64
	messageCount atomic.Int64
	errorCount   atomic.Int64
	probe        atomic.Int32

	// guarded by the hub mutex
	channels map[string]Subscription
}

func newSession(id string, identity entity.Identity, client entity.ClientInfo, conn Transport, buffer int, now time.Time) *Session {
	s := &Session{
		id:       id,
		identity: identity,
		client:   client,
		conn:     conn,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
		channels: make(map[string]Subscription),
	}
	s.state.Store(int32(StateConnecting))
	s.lastActivity.Store(now.UnixNano())
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) UserID() string {
	return s.identity.UserID
}

func (s *Session) Identity() entity.Identity {
	return s.identity
}

func (s *Session) ClientInfo() entity.ClientInfo {
	return s.client
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

func (s *Session) MessageCount() int64 {
	return s.messageCount.Load()
}

func (s *Session) ErrorCount() int64 {
	return s.errorCount.Load()
}

// Done is closed once the session starts closing.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) isActive() bool {
	return s.State() == StateActive
}

func (s *Session) subscribedToAny(channels []string) bool {
	for _, ch := range channels {
		if _, ok := s.channels[ch]; ok {
			return true
		}
	}
	return false
}

// enqueue never blocks. A full queue reports ErrSlowConsumer.
func (s *Session) enqueue(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	select {
	case s.send <- data:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// close marks the session closing and wakes the write pump. Only the first
// call returns true.
func (s *Session) close(code int, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	s.closeCode = code
	s.closeReason = reason
	s.setState(StateClosing)
	close(s.done)
	return true
}

func (s *Session) closeStatus() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode, s.closeReason
}

func (s *Session) write(data []byte, timeout time.Duration) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// writePump drains the outbound queue until the session closes, then flushes
// what is left and sends the close frame.
func (s *Session) writePump(timeout time.Duration, onSent func(), onError func(error)) {
	defer func() {
		_ = s.conn.Close()
		s.setState(StateClosed)
	}()

	for {
		select {
		case data := <-s.send:
			if err := s.write(data, timeout); err != nil {
				onError(err)
				return
			}
			onSent()
		case <-s.done:
			s.flush(timeout, onSent)
			code, reason := s.closeStatus()
			err := s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(timeout))
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"sessionId": s.id,
					"code":      code,
				}).Debugf("failed to write close frame: %v", err)
			}
			return
		}
	}
}

func (s *Session) flush(timeout time.Duration, onSent func()) {
	for {
		select {
		case data := <-s.send:
			if err := s.write(data, timeout); err != nil {
				return
			}
			onSent()
		default:
			return
		}
	}
}
