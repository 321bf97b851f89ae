package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/krobus00/realtime-gateway/internal/entity"
)

type BotSettingsRepository struct {
	db *sqlx.DB
}

func NewBotSettingsRepository(db *sqlx.DB) *BotSettingsRepository {
	return &BotSettingsRepository{db: db}
}

func (r *BotSettingsRepository) FindByUserID(ctx context.Context, userID string) (*entity.BotSettings, error) {
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("id", "user_id", "settings", "version", "updated_at").
		From(entity.BotSettings{}.TableName()).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var settings entity.BotSettings
	err = r.db.GetContext(ctx, &settings, query, args...)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// Merge applies changes on top of the stored settings of userID, creating
// the row on first use, and returns the new version.
func (r *BotSettingsRepository) Merge(ctx context.Context, userID string, changes types.JSONText, updatedAt time.Time) (*entity.BotSettings, error) {
	query, args, err := mergeSettingsQuery(userID, changes, updatedAt)
	if err != nil {
		return nil, err
	}

	var settings entity.BotSettings
	err = r.db.GetContext(ctx, &settings, query, args...)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func mergeSettingsQuery(userID string, changes types.JSONText, updatedAt time.Time) (string, []any, error) {
	return sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(entity.BotSettings{}.TableName()).
		Columns("user_id", "settings", "version", "updated_at").
		Values(userID, changes, 1, updatedAt).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
	settings = bot_settings.settings || EXCLUDED.settings,
	version = bot_settings.version + 1,
	updated_at = EXCLUDED.updated_at
RETURNING id, user_id, settings, version, updated_at`).
		ToSql()
}
