package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/krobus00/realtime-gateway/internal/service/auth"
	"github.com/krobus00/realtime-gateway/internal/service/gateway"
	"github.com/stretchr/testify/require"
)

// tokenVerifier accepts tokens of the form "user:<id>".
type tokenVerifier struct{}

func (tokenVerifier) Verify(_ context.Context, token string) (auth.VerifyResult, error) {
	userID, ok := strings.CutPrefix(token, "user:")
	if !ok {
		return auth.VerifyResult{Valid: false, Reason: "unknown token"}, nil
	}
	return auth.VerifyResult{Valid: true, Identity: entity.Identity{UserID: userID}}, nil
}

type frame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*httptest.Server, *gateway.Hub) {
	t.Helper()

	hub := gateway.NewHub(gateway.Config{
		HeartbeatInterval: time.Hour,
		SweepInterval:     time.Hour,
		StatsLogInterval:  time.Hour,
		MaxMessageSize:    4096,
	}, nil, nil)
	gate := auth.NewGate(tokenVerifier{}, time.Second, nil)

	mux := http.NewServeMux()
	NewGatewayWSHandler(gate, hub, nil).Register(mux)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		srv.Close()
	})
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func closeCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr), "expected close error, got %v", err)
	return closeErr.Code
}

func TestServeWS_RejectsMissingToken(t *testing.T) {
	srv, hub := newTestServer(t)

	conn := dial(t, srv, "")
	require.Equal(t, 4001, closeCode(t, conn))

	stats := hub.Stats()
	require.Zero(t, stats.TotalConnections)
	require.Zero(t, stats.ActiveConnections)
	require.Equal(t, int64(1), stats.AuthFailures)
}

func TestServeWS_RejectsInvalidToken(t *testing.T) {
	srv, hub := newTestServer(t)

	conn := dial(t, srv, "?token=nope")
	require.Equal(t, 4001, closeCode(t, conn))
	require.Zero(t, hub.Stats().ActiveConnections)
}

func TestServeWS_Session(t *testing.T) {
	srv, hub := newTestServer(t)

	conn := dial(t, srv, "?token=user:U1")
	welcome := readFrame(t, conn)
	require.Equal(t, gateway.MessageTypeWelcome, welcome.Type)

	var payload struct {
		ConnectionID string `json:"connectionId"`
		Limits       struct {
			MaxMessageSize int64 `json:"maxMessageSize"`
		} `json:"limits"`
	}
	require.NoError(t, json.Unmarshal(welcome.Data, &payload))
	require.NotEmpty(t, payload.ConnectionID)
	require.Equal(t, int64(4096), payload.Limits.MaxMessageSize)
	require.Equal(t, int64(1), hub.Stats().ActiveConnections)

	send(t, conn, `{"type":"subscribe","channel":"bot-status"}`)
	confirmed := readFrame(t, conn)
	require.Equal(t, gateway.MessageTypeSubscriptionConfirmed, confirmed.Type)
	require.Equal(t, "bot-status", confirmed.Channel)

	send(t, conn, `{"type":"subscribe","channel":"user-U2"}`)
	denied := readFrame(t, conn)
	require.Equal(t, gateway.MessageTypeError, denied.Type)
	require.Equal(t, gateway.CodeChannelAccessDenied, denied.Code)

	send(t, conn, `not json`)
	invalid := readFrame(t, conn)
	require.Equal(t, gateway.CodeInvalidMessage, invalid.Code)

	send(t, conn, `{"type":"ping"}`)
	require.Equal(t, gateway.MessageTypePong, readFrame(t, conn).Type)

	delivered := hub.BroadcastToChannel("bot-status", entity.NewEnvelope("bot_activated", map[string]string{"botId": "B1"}), gateway.BroadcastOptions{})
	require.Equal(t, 1, delivered)
	require.Equal(t, "bot_activated", readFrame(t, conn).Type)
}

func TestServeWS_ClientCloseRemovesSession(t *testing.T) {
	srv, hub := newTestServer(t)

	conn := dial(t, srv, "?token=user:U1")
	readFrame(t, conn)
	send(t, conn, `{"type":"subscribe","channel":"notifications"}`)
	readFrame(t, conn)

	require.NoError(t, conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second)))
	require.Eventually(t, func() bool {
		stats := hub.Stats()
		return stats.ActiveConnections == 0 && stats.ActiveChannels == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_OversizedFrameClosesSession(t *testing.T) {
	srv, hub := newTestServer(t)

	conn := dial(t, srv, "?token=user:U1")
	readFrame(t, conn)

	send(t, conn, `{"type":"ping","data":"`+strings.Repeat("x", 5000)+`"}`)
	require.Equal(t, websocket.CloseMessageTooBig, closeCode(t, conn))
	require.Eventually(t, func() bool {
		return hub.Stats().ActiveConnections == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_ShutdownClosesWith1001(t *testing.T) {
	srv, hub := newTestServer(t)

	conn := dial(t, srv, "?token=user:U1")
	readFrame(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
	require.Equal(t, websocket.CloseGoingAway, closeCode(t, conn))
}

func TestCheckOrigin(t *testing.T) {
	request := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://gateway.local/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	open := NewGatewayWSHandler(nil, nil, nil)
	require.True(t, open.checkOrigin(request("")))
	require.True(t, open.checkOrigin(request("http://gateway.local")))
	require.True(t, open.checkOrigin(request("http://localhost:3000")))
	require.False(t, open.checkOrigin(request("https://evil.example")))

	restricted := NewGatewayWSHandler(nil, nil, []string{"https://app.example.com"})
	require.True(t, restricted.checkOrigin(request("https://app.example.com")))
	require.True(t, restricted.checkOrigin(request("http://app.example.com")))
	require.False(t, restricted.checkOrigin(request("http://localhost:3000")))
}
