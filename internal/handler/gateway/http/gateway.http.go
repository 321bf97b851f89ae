package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/realtime-gateway/internal/config"
	"github.com/krobus00/realtime-gateway/internal/constant"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/krobus00/realtime-gateway/internal/service/eventbridge"
	"github.com/krobus00/realtime-gateway/internal/service/gateway"
)

const maxBodyBytes = 1 << 20

var (
	errAPIKeyMissing  = errors.New("api key is required")
	errAPIKeyInvalid  = errors.New("invalid api key")
	errAPIKeyInactive = errors.New("api key is inactive")
	errAPIKeyExpired  = errors.New("api key is expired")
)

type Gateway interface {
	Stats() gateway.StatsSnapshot
	Disconnect(id string, code int, reason string) bool
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, event entity.GatewayEvent) error
}

type PublishEventRequest struct {
	UserID string          `json:"user_id"`
	Kind   string          `json:"kind"`
	Data   json.RawMessage `json:"data"`
}

type PublishEventResponse struct {
	Kind   string `json:"kind"`
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

type DisconnectRequest struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

type Handler struct {
	gateway   Gateway
	publisher EventPublisher
	apiKeys   []config.APIKeyConfig
	now       func() time.Time
}

func NewGatewayHTTPHandler(gw Gateway, publisher EventPublisher, apiKeys []config.APIKeyConfig) *Handler {
	return &Handler{
		gateway:   gw,
		publisher: publisher,
		apiKeys:   apiKeys,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("/gateway/v1/stats", h.guard(http.MethodGet, h.Stats))
	mux.Handle("/gateway/v1/events", h.guard(http.MethodPost, h.PublishEvent))
	mux.Handle("/gateway/v1/sessions/disconnect", h.guard(http.MethodPost, h.Disconnect))
}

// guard enforces the method and a valid X-API-Key before next runs.
func (h *Handler) guard(method string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}

		if err := h.authorize(r.Header.Get("X-API-Key")); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
			return
		}

		next(w, r)
	})
}

func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.gateway.Stats())
}

func (h *Handler) PublishEvent(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req PublishEventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	event := entity.GatewayEvent{
		UserID: strings.TrimSpace(req.UserID),
		Kind:   entity.EventKind(strings.TrimSpace(req.Kind)),
		Data:   req.Data,
	}
	if event.UserID == "" || event.Kind == "" || len(event.Data) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id, kind and data are required"})
		return
	}

	err := h.publisher.PublishEvent(r.Context(), event)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, PublishEventResponse{
			Kind:   string(event.Kind),
			UserID: event.UserID,
			Status: "queued",
		})
	case errors.Is(err, eventbridge.ErrUnknownEventKind),
		errors.Is(err, eventbridge.ErrMissingUserID),
		errors.Is(err, eventbridge.ErrInvalidEventData):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, eventbridge.ErrPublishEventFailed):
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
	}
}

func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req DisconnectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json body"})
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "session_id is required"})
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "Disconnected by operator"
	}
	if !h.gateway.Disconnect(sessionID, constant.CloseNormal, reason) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "session not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "status": "disconnected"})
}

// authorize matches raw against the configured keys in constant time.
func (h *Handler) authorize(raw string) error {
	apiKey := strings.TrimSpace(raw)
	if apiKey == "" {
		return errAPIKeyMissing
	}

	for _, candidate := range h.apiKeys {
		storedKey := strings.TrimSpace(candidate.Key)
		if storedKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(storedKey)) != 1 {
			continue
		}

		if !candidate.Active {
			return errAPIKeyInactive
		}

		expiredAt, hasExpiry, err := parseExpiry(candidate.ExpiredAt)
		switch {
		case err != nil:
			return errAPIKeyInvalid
		case hasExpiry && !h.now().Before(expiredAt):
			return errAPIKeyExpired
		}
		return nil
	}

	return errAPIKeyInvalid
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func parseExpiry(value any) (time.Time, bool, error) {
	if value == nil {
		return time.Time{}, false, nil
	}

	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false, nil
		}
		return v.UTC(), true, nil
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return time.Time{}, false, nil
		}

		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			return parsed.UTC(), true, nil
		}

		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, false, err
		}

		return parsed.UTC().Add(24 * time.Hour), true, nil
	default:
		return time.Time{}, false, errors.New("unsupported expiry type")
	}
}
