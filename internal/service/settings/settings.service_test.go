package settings

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx/types"
	"github.com/krobus00/realtime-gateway/internal/entity"
	"github.com/krobus00/realtime-gateway/internal/service/gateway"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	current *entity.BotSettings
	merged  types.JSONText
	err     error
}

func (f *fakeStore) FindByUserID(_ context.Context, _ string) (*entity.BotSettings, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.current == nil {
		return nil, sql.ErrNoRows
	}
	return f.current, nil
}

func (f *fakeStore) Merge(_ context.Context, userID string, changes types.JSONText, updatedAt time.Time) (*entity.BotSettings, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.merged = changes
	f.current = &entity.BotSettings{ID: "S1", UserID: userID, Settings: changes, Version: 2, UpdatedAt: updatedAt}
	return f.current, nil
}

type fakeEmitter struct {
	userID string
	update entity.SettingsUpdate
	calls  int
}

func (f *fakeEmitter) SettingsUpdated(_ context.Context, userID string, in entity.SettingsUpdate) (int, error) {
	f.calls++
	f.userID = userID
	f.update = in
	return 1, nil
}

func request(msgType, data string) gateway.Request {
	return gateway.Request{
		SessionID: "sess",
		Identity:  entity.Identity{UserID: "U1"},
		Message:   entity.InboundMessage{Type: msgType, Data: []byte(data)},
	}
}

func TestService_HandleUpdateSettings(t *testing.T) {
	store := &fakeStore{}
	emitter := &fakeEmitter{}
	svc := NewService(store, emitter)

	env, err := svc.HandleUpdateSettings(context.Background(), request(MessageTypeUpdateSettings, `{"changes":{"riskLevel":"low","maxTrades":3}}`))
	require.NoError(t, err)
	require.Equal(t, MessageTypeSettingsSaved, env.Type)

	var merged map[string]any
	require.NoError(t, json.Unmarshal(store.merged, &merged))
	require.Equal(t, "low", merged["riskLevel"])

	require.Equal(t, 1, emitter.calls)
	require.Equal(t, "U1", emitter.userID)
	require.Equal(t, "S1", emitter.update.SettingsID)
	require.Equal(t, int64(2), emitter.update.Version)
	require.Equal(t, "low", emitter.update.Changes["riskLevel"])
}

func TestService_HandleUpdateSettings_Invalid(t *testing.T) {
	emitter := &fakeEmitter{}
	svc := NewService(&fakeStore{}, emitter)

	for _, data := range []string{"", `{"changes":{}}`, `{"changes":"x"}`, `nope`} {
		_, err := svc.HandleUpdateSettings(context.Background(), request(MessageTypeUpdateSettings, data))
		require.ErrorIs(t, err, ErrInvalidSettings, data)
	}
	require.Zero(t, emitter.calls)
}

func TestService_HandleUpdateSettings_StoreError(t *testing.T) {
	emitter := &fakeEmitter{}
	svc := NewService(&fakeStore{err: errors.New("db down")}, emitter)

	_, err := svc.HandleUpdateSettings(context.Background(), request(MessageTypeUpdateSettings, `{"changes":{"a":1}}`))
	require.Error(t, err)
	require.Zero(t, emitter.calls)
}

func TestService_HandleGetSettings(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, nil)

	env, err := svc.HandleGetSettings(context.Background(), request(MessageTypeSettingsRequest, ""))
	require.NoError(t, err)
	empty := env.Data.(*entity.BotSettings)
	require.Equal(t, "U1", empty.UserID)
	require.Zero(t, empty.Version)
	require.JSONEq(t, `{}`, string(empty.Settings))

	store.current = &entity.BotSettings{ID: "S1", UserID: "U1", Settings: types.JSONText(`{"a":1}`), Version: 4}
	env, err = svc.HandleGetSettings(context.Background(), request(MessageTypeSettingsRequest, ""))
	require.NoError(t, err)
	require.Equal(t, int64(4), env.Data.(*entity.BotSettings).Version)

	store.err = errors.New("db down")
	_, err = svc.HandleGetSettings(context.Background(), request(MessageTypeSettingsRequest, ""))
	require.Error(t, err)
}
