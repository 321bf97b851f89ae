package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/realtime-gateway/internal/config"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/krobus00/realtime-gateway/internal/service/eventbridge"
	"github.com/krobus00/realtime-gateway/internal/service/gateway"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	sessions map[string]bool
	code     int
	reason   string
}

func (f *fakeGateway) Stats() gateway.StatsSnapshot {
	return gateway.StatsSnapshot{ActiveConnections: int64(len(f.sessions)), ActiveChannels: 3}
}

func (f *fakeGateway) Disconnect(id string, code int, reason string) bool {
	if !f.sessions[id] {
		return false
	}
	delete(f.sessions, id)
	f.code, f.reason = code, reason
	return true
}

type fakePublisher struct {
	events []entity.GatewayEvent
	err    error
}

func (f *fakePublisher) PublishEvent(_ context.Context, event entity.GatewayEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

var testKeys = []config.APIKeyConfig{
	{Name: "ops", Key: "ops-key", Active: true},
	{Name: "retired", Key: "old-key", Active: false},
	{Name: "lapsed", Key: "lapsed-key", Active: true, ExpiredAt: "2020-01-01"},
	{Name: "broken", Key: "broken-key", Active: true, ExpiredAt: "soon"},
}

func newTestMux(gw *fakeGateway, pub *fakePublisher) *http.ServeMux {
	mux := http.NewServeMux()
	NewGatewayHTTPHandler(gw, pub, testKeys).Register(mux)
	return mux
}

func do(mux *http.ServeMux, method, path, apiKey, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandler_APIKeyGuard(t *testing.T) {
	mux := newTestMux(&fakeGateway{}, &fakePublisher{})

	tests := []struct {
		name   string
		method string
		key    string
		code   int
		errMsg string
	}{
		{name: "missing", method: http.MethodGet, code: http.StatusUnauthorized, errMsg: errAPIKeyMissing.Error()},
		{name: "unknown", method: http.MethodGet, key: "nope", code: http.StatusUnauthorized, errMsg: errAPIKeyInvalid.Error()},
		{name: "inactive", method: http.MethodGet, key: "old-key", code: http.StatusUnauthorized, errMsg: errAPIKeyInactive.Error()},
		{name: "expired", method: http.MethodGet, key: "lapsed-key", code: http.StatusUnauthorized, errMsg: errAPIKeyExpired.Error()},
		{name: "bad expiry", method: http.MethodGet, key: "broken-key", code: http.StatusUnauthorized, errMsg: errAPIKeyInvalid.Error()},
		{name: "wrong method", method: http.MethodPost, key: "ops-key", code: http.StatusMethodNotAllowed},
		{name: "ok", method: http.MethodGet, key: "ops-key", code: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(mux, tt.method, "/gateway/v1/stats", tt.key, "")
			require.Equal(t, tt.code, rec.Code)
			if tt.errMsg != "" {
				require.Contains(t, rec.Body.String(), tt.errMsg)
			}
		})
	}
}

func TestHandler_Stats(t *testing.T) {
	mux := newTestMux(&fakeGateway{sessions: map[string]bool{"a": true, "b": true}}, &fakePublisher{})

	rec := do(mux, http.MethodGet, "/gateway/v1/stats", "ops-key", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snapshot gateway.StatsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	require.Equal(t, int64(2), snapshot.ActiveConnections)
	require.Equal(t, 3, snapshot.ActiveChannels)
}

func TestHandler_PublishEvent(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		publisher *fakePublisher
		code      int
	}{
		{
			name:      "queued",
			body:      `{"user_id":" U1 ","kind":"bot_activated","data":{"botId":"B1"}}`,
			publisher: &fakePublisher{},
			code:      http.StatusAccepted,
		},
		{
			name:      "invalid json",
			body:      `{`,
			publisher: &fakePublisher{},
			code:      http.StatusBadRequest,
		},
		{
			name:      "missing data",
			body:      `{"user_id":"U1","kind":"bot_activated"}`,
			publisher: &fakePublisher{},
			code:      http.StatusBadRequest,
		},
		{
			name:      "unknown kind",
			body:      `{"user_id":"U1","kind":"nope","data":{}}`,
			publisher: &fakePublisher{err: fmt.Errorf("%w: nope", eventbridge.ErrUnknownEventKind)},
			code:      http.StatusBadRequest,
		},
		{
			name:      "bus failure",
			body:      `{"user_id":"U1","kind":"bot_activated","data":{"botId":"B1"}}`,
			publisher: &fakePublisher{err: fmt.Errorf("%w: timeout", eventbridge.ErrPublishEventFailed)},
			code:      http.StatusBadGateway,
		},
		{
			name:      "unexpected failure",
			body:      `{"user_id":"U1","kind":"bot_activated","data":{"botId":"B1"}}`,
			publisher: &fakePublisher{err: context.Canceled},
			code:      http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := newTestMux(&fakeGateway{}, tt.publisher)
			rec := do(mux, http.MethodPost, "/gateway/v1/events", "ops-key", tt.body)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_PublishEvent_Forwards(t *testing.T) {
	pub := &fakePublisher{}
	mux := newTestMux(&fakeGateway{}, pub)

	rec := do(mux, http.MethodPost, "/gateway/v1/events", "ops-key", `{"user_id":"U1","kind":"error_occurred","data":{"errorCode":"E1"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp PublishEventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "queued", resp.Status)
	require.Equal(t, "U1", resp.UserID)

	require.Len(t, pub.events, 1)
	require.Equal(t, entity.EventKind("error_occurred"), pub.events[0].Kind)
	require.JSONEq(t, `{"errorCode":"E1"}`, string(pub.events[0].Data))
}

type recordingJetStream struct {
	nats.JetStreamContext
	subjects []string
}

func (r *recordingJetStream) Publish(subj string, _ []byte, _ ...nats.PubOpt) (*nats.PubAck, error) {
	r.subjects = append(r.subjects, subj)
	return &nats.PubAck{Stream: "gateway_events"}, nil
}

func TestHandler_PublishEvent_ValidatesBeforeBus(t *testing.T) {
	js := &recordingJetStream{}
	bridge := eventbridge.NewService(&noopBroadcaster{}, nil, js)

	mux := http.NewServeMux()
	NewGatewayHTTPHandler(&fakeGateway{}, bridge, testKeys).Register(mux)

	rec := do(mux, http.MethodPost, "/gateway/v1/events", "ops-key", `{"user_id":"U1","kind":"bot_activated","data":"garbage"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.Empty(t, js.subjects)

	rec = do(mux, http.MethodPost, "/gateway/v1/events", "ops-key", `{"user_id":"U1","kind":"bot_activated","data":{"botId":"B1"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Equal(t, []string{"gateway_events.bot_activated"}, js.subjects)
}

type noopBroadcaster struct{}

func (noopBroadcaster) Publish([]string, entity.Envelope, gateway.BroadcastOptions) int { return 0 }
func (noopBroadcaster) BroadcastToUser(string, entity.Envelope, []string) int           { return 0 }

func TestHandler_Disconnect(t *testing.T) {
	gw := &fakeGateway{sessions: map[string]bool{"sess-1": true}}
	mux := newTestMux(gw, &fakePublisher{})

	rec := do(mux, http.MethodPost, "/gateway/v1/sessions/disconnect", "ops-key", `{"session_id":""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(mux, http.MethodPost, "/gateway/v1/sessions/disconnect", "ops-key", `{"session_id":"ghost"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(mux, http.MethodPost, "/gateway/v1/sessions/disconnect", "ops-key", `{"session_id":"sess-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1000, gw.code)
	require.Equal(t, "Disconnected by operator", gw.reason)
	require.Empty(t, gw.sessions)
}

func TestParseExpiry(t *testing.T) {
	_, ok, err := parseExpiry(nil)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = parseExpiry("  ")
	require.NoError(t, err)
	require.False(t, ok)

	at, ok, err := parseExpiry("2026-03-01T10:00:00+07:00")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC), at)

	at, ok, err = parseExpiry("2026-03-01")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), at)

	_, _, err = parseExpiry(42)
	require.Error(t, err)
}
