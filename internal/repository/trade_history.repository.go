package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/realtime-gateway/internal/entity"
)

const defaultRecentTradesLimit = 20

type TradeHistoryRepository struct {
	db *sqlx.DB
}

func NewTradeHistoryRepository(db *sqlx.DB) *TradeHistoryRepository {
	return &TradeHistoryRepository{db: db}
}

func (r *TradeHistoryRepository) FindRecentByUserID(ctx context.Context, userID string, limit uint64) ([]entity.TradeHistory, error) {
	query, args, err := findRecentTradesQuery(userID, limit)
	if err != nil {
		return nil, err
	}

	trades := []entity.TradeHistory{}
	err = r.db.SelectContext(ctx, &trades, query, args...)
	if err != nil {
		return nil, err
	}

	return trades, nil
}

func (r *TradeHistoryRepository) CountOpenByUserID(ctx context.Context, userID string) (int, error) {
	query, args, err := sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("count(*)").
		From(entity.TradeHistory{}.TableName()).
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"closed_at": nil}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	err = r.db.GetContext(ctx, &count, query, args...)
	return count, err
}

func findRecentTradesQuery(userID string, limit uint64) (string, []any, error) {
	if limit == 0 {
		limit = defaultRecentTradesLimit
	}

	return sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("id", "user_id", "bot_id", "pair", "side", "status", "amount", "price", "exit_price", "profit", "executed_at", "closed_at").
		From(entity.TradeHistory{}.TableName()).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("executed_at desc").
		Limit(limit).
		ToSql()
}
