package ws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/krobus00/realtime-gateway/internal/constant"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/krobus00/realtime-gateway/internal/service/auth"
	"github.com/krobus00/realtime-gateway/internal/service/gateway"
	"github.com/krobus00/realtime-gateway/internal/util"
	"github.com/sirupsen/logrus"
)

const (
	closeWriteTimeout = time.Second
	handshakeTimeout  = 10 * time.Second
)

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (entity.Identity, error)
}

type Handler struct {
	gate           Authenticator
	hub            *gateway.Hub
	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
}

// NewGatewayWSHandler serves the gateway websocket endpoint. An empty
// allowedOrigins accepts same host and localhost origins only.
func NewGatewayWSHandler(gate Authenticator, hub *gateway.Hub, allowedOrigins []string) *Handler {
	h := &Handler{
		gate:           gate,
		hub:            hub,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		h.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			h.allowedHosts[parsed.Host] = true
		}
	}

	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: handshakeTimeout,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.ServeWS)
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := h.gate.Authenticate(r.Context(), r)
	if err != nil {
		h.hub.RecordAuthFailure()
		code, reason := auth.CloseCodeFor(err)
		h.reject(w, r, code, reason)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithField("userId", identity.UserID).Warnf("websocket upgrade failed: %v", err)
		return
	}

	userAgent := r.UserAgent()
	client := entity.ClientInfo{
		IP:          util.ClientIP(r),
		UserAgent:   userAgent,
		DeviceType:  util.DetectDeviceType(userAgent),
		ConnectedAt: time.Now().UTC(),
	}

	session, err := h.hub.Admit(conn, identity, client)
	if err != nil {
		logrus.WithField("userId", identity.UserID).Warnf("session not admitted: %v", err)
		code, reason := constant.CloseServerShutdown, "Server shutdown"
		if !errors.Is(err, gateway.ErrShuttingDown) {
			code, reason = websocket.CloseInternalServerErr, "Internal error"
		}
		closeConn(conn, code, reason)
		return
	}

	h.readLoop(conn, session)
}

// readLoop feeds inbound frames to the hub until the transport fails. The
// write side belongs to the session.
func (h *Handler) readLoop(conn *websocket.Conn, session *gateway.Session) {
	conn.SetReadLimit(h.hub.Config().MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		h.hub.Touch(session)
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			code, reason := readCloseStatus(err)
			h.hub.Disconnect(session.ID(), code, reason)
			return
		}

		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		h.hub.HandleFrame(session, data)
	}
}

func readCloseStatus(err error) (int, string) {
	var closeErr *websocket.CloseError
	switch {
	case errors.As(err, &closeErr):
		return constant.CloseNormal, "client closed"
	case errors.Is(err, websocket.ErrReadLimit):
		return websocket.CloseMessageTooBig, "message too large"
	default:
		return websocket.CloseAbnormalClosure, "connection lost"
	}
}

// reject upgrades only to deliver the close code; clients cannot read an
// HTTP status from a failed websocket handshake.
func (h *Handler) reject(w http.ResponseWriter, r *http.Request, code int, reason string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	closeConn(conn, code, reason)
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(closeWriteTimeout))
	_ = conn.Close()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(h.allowedOrigins) > 0 {
		if h.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return h.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	hostname := parsed.Hostname()
	return hostname == "localhost" || hostname == "127.0.0.1"
}
