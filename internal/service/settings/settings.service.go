package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx/types"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/krobus00/realtime-gateway/internal/service/gateway"
	"github.com/sirupsen/logrus"
)

const (
	MessageTypeUpdateSettings   = "update_settings"
	MessageTypeSettingsSaved    = "settings_saved"
	MessageTypeSettingsRequest  = "settings_request"
	MessageTypeSettingsResponse = "settings_response"
)

var ErrInvalidSettings = errors.New("invalid settings update")

type Store interface {
	FindByUserID(ctx context.Context, userID string) (*entity.BotSettings, error)
	Merge(ctx context.Context, userID string, changes types.JSONText, updatedAt time.Time) (*entity.BotSettings, error)
}

// Emitter announces a stored change to the user's other sessions.
type Emitter interface {
	SettingsUpdated(ctx context.Context, userID string, in entity.SettingsUpdate) (int, error)
}

type Service struct {
	store   Store
	emitter Emitter
	now     func() time.Time
}

func NewService(store Store, emitter Emitter) *Service {
	return &Service{
		store:   store,
		emitter: emitter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

type updateSettingsRequest struct {
	Changes map[string]any `json:"changes"`
}

func (s *Service) HandleUpdateSettings(ctx context.Context, req gateway.Request) (*entity.Envelope, error) {
	var payload updateSettingsRequest
	if len(req.Message.Data) == 0 {
		return nil, fmt.Errorf("%w: missing data", ErrInvalidSettings)
	}
	if err := json.Unmarshal(req.Message.Data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if len(payload.Changes) == 0 {
		return nil, fmt.Errorf("%w: changes must be a non empty object", ErrInvalidSettings)
	}

	changes, err := json.Marshal(payload.Changes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	userID := req.Identity.UserID
	saved, err := s.store.Merge(ctx, userID, types.JSONText(changes), s.now())
	if err != nil {
		return nil, err
	}

	if s.emitter != nil {
		_, err = s.emitter.SettingsUpdated(ctx, userID, entity.SettingsUpdate{
			SettingsID: saved.ID,
			Changes:    payload.Changes,
			UpdatedAt:  saved.UpdatedAt,
			Version:    saved.Version,
		})
		if err != nil {
			logrus.WithField("userId", userID).Errorf("failed to emit settings update: %v", err)
		}
	}

	env := entity.NewEnvelope(MessageTypeSettingsSaved, saved)
	return &env, nil
}

// HandleGetSettings replies with the stored settings; users without a row
// get an empty object at version 0.
func (s *Service) HandleGetSettings(ctx context.Context, req gateway.Request) (*entity.Envelope, error) {
	userID := req.Identity.UserID
	current, err := s.store.FindByUserID(ctx, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = &entity.BotSettings{UserID: userID, Settings: types.JSONText(`{}`)}
	case err != nil:
		return nil, err
	}

	env := entity.NewEnvelope(MessageTypeSettingsResponse, current)
	return &env, nil
}
