package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/realtime-gateway/internal/entity"
)

type BotStatusRepository struct {
	db *sqlx.DB
}

func NewBotStatusRepository(db *sqlx.DB) *BotStatusRepository {
	return &BotStatusRepository{db: db}
}

func (r *BotStatusRepository) FindByUserID(ctx context.Context, userID string) ([]entity.BotStatus, error) {
	query, args, err := findBotStatusesQuery(userID)
	if err != nil {
		return nil, err
	}

	statuses := []entity.BotStatus{}
	err = r.db.SelectContext(ctx, &statuses, query, args...)
	if err != nil {
		return nil, err
	}

	return statuses, nil
}

func findBotStatusesQuery(userID string) (string, []any, error) {
	return sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("user_id", "bot_id", "status", "is_active", "active_trades", "equity", "activated_at", "updated_at").
		From(entity.BotStatus{}.TableName()).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("updated_at desc").
		ToSql()
}
