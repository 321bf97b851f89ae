package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/realtime-gateway/internal/entity"
)

type PerformanceMetricRepository struct {
	db *sqlx.DB
}

func NewPerformanceMetricRepository(db *sqlx.DB) *PerformanceMetricRepository {
	return &PerformanceMetricRepository{db: db}
}

// FindLatestByUserID returns the most recent metric row of every timeframe.
func (r *PerformanceMetricRepository) FindLatestByUserID(ctx context.Context, userID string) ([]entity.PerformanceMetric, error) {
	query, args, err := findLatestMetricsQuery(userID)
	if err != nil {
		return nil, err
	}

	metrics := []entity.PerformanceMetric{}
	err = r.db.SelectContext(ctx, &metrics, query, args...)
	if err != nil {
		return nil, err
	}

	return metrics, nil
}

func findLatestMetricsQuery(userID string) (string, []any, error) {
	return sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("user_id", "timeframe", "total_trades", "win_rate", "total_profit", "max_drawdown", "summary", "calculated_at").
		Options("DISTINCT ON (timeframe)").
		From(entity.PerformanceMetric{}.TableName()).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("timeframe", "calculated_at desc").
		ToSql()
}
