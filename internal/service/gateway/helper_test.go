package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/stretchr/testify/require"
)

var errTransportClosed = errors.New("transport closed")

type fakeTransport struct {
	mu         sync.Mutex
	messages   [][]byte
	pings      int
	closeFrame []byte
	closed     bool
	failWrites bool
	blockCh    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

// newBlockingTransport never completes a write until unblock is called.
func newBlockingTransport() *fakeTransport {
	return &fakeTransport{blockCh: make(chan struct{})}
}

func (f *fakeTransport) unblock() {
	close(f.blockCh)
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	if f.blockCh != nil {
		<-f.blockCh
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.failWrites {
		return errTransportClosed
	}
	f.messages = append(f.messages, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) WriteControl(messageType int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errTransportClosed
	}
	switch messageType {
	case websocket.PingMessage:
		f.pings++
	case websocket.CloseMessage:
		f.closeFrame = append([]byte(nil), data...)
	}
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error {
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// closeCode decodes the close frame written by the session, 0 if none.
func (f *fakeTransport) closeCode() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.closeFrame) < 2 {
		return 0
	}
	return int(f.closeFrame[0])<<8 | int(f.closeFrame[1])
}

type wireEnvelope struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel"`
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"requestId"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	EventID   string          `json:"eventId"`
	Metadata  *struct {
		BroadcastID string `json:"broadcastId"`
		Channel     string `json:"channel"`
		Priority    string `json:"priority"`
		Persistent  bool   `json:"persistent"`
	} `json:"_metadata"`
}

func (f *fakeTransport) envelopes(t *testing.T) []wireEnvelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	envs := make([]wireEnvelope, 0, len(f.messages))
	for _, msg := range f.messages {
		var env wireEnvelope
		require.NoError(t, json.Unmarshal(msg, &env))
		envs = append(envs, env)
	}
	return envs
}

func (f *fakeTransport) ofType(t *testing.T, msgType string) []wireEnvelope {
	t.Helper()
	var envs []wireEnvelope
	for _, env := range f.envelopes(t) {
		if env.Type == msgType {
			envs = append(envs, env)
		}
	}
	return envs
}

// waitFor blocks until n envelopes of msgType were written.
func (f *fakeTransport) waitFor(t *testing.T, msgType string, n int) []wireEnvelope {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(f.ofType(t, msgType)) >= n
	}, 2*time.Second, 5*time.Millisecond, "waiting for %d %s envelopes", n, msgType)
	return f.ofType(t, msgType)
}

func testConfig() Config {
	return Config{
		HeartbeatInterval: time.Hour,
		SweepInterval:     time.Hour,
		StatsLogInterval:  time.Hour,
	}.withDefaults()
}

func newTestHub(t *testing.T, cfg Config) *Hub {
	t.Helper()
	h := NewHub(cfg, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return h
}

func admit(t *testing.T, h *Hub, userID string) (*Session, *fakeTransport) {
	t.Helper()
	conn := newFakeTransport()
	s, err := h.Admit(conn, entity.Identity{UserID: userID}, entity.ClientInfo{IP: "127.0.0.1", ConnectedAt: time.Now()})
	require.NoError(t, err)
	conn.waitFor(t, MessageTypeWelcome, 1)
	return s, conn
}

func subscribe(t *testing.T, h *Hub, s *Session, channel string) {
	t.Helper()
	h.HandleFrame(s, []byte(`{"type":"subscribe","channel":"`+channel+`"}`))
}

func membersOf(h *Hub, channel string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.directory.Members(channel)
}

type recordingAudit struct {
	mu      sync.Mutex
	records []entity.AuditRecord
}

func (r *recordingAudit) Audit(_ context.Context, record entity.AuditRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

func (r *recordingAudit) actions() []entity.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	actions := make([]entity.AuditAction, 0, len(r.records))
	for _, rec := range r.records {
		actions = append(actions, rec.Action)
	}
	return actions
}
