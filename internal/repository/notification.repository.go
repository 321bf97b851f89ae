package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/realtime-gateway/internal/entity"
)

const defaultUnreadNotificationsLimit = 50

type NotificationRepository struct {
	db *sqlx.DB
}

func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, notification *entity.Notification) error {
	query, args, err := createNotificationQuery(notification)
	if err != nil {
		return err
	}

	var id string
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		return err
	}

	notification.ID = id
	return nil
}

func (r *NotificationRepository) FindUnreadByUserID(ctx context.Context, userID string, limit uint64) ([]entity.Notification, error) {
	query, args, err := findUnreadNotificationsQuery(userID, limit)
	if err != nil {
		return nil, err
	}

	notifications := []entity.Notification{}
	err = r.db.SelectContext(ctx, &notifications, query, args...)
	if err != nil {
		return nil, err
	}

	return notifications, nil
}

func createNotificationQuery(notification *entity.Notification) (string, []any, error) {
	return sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Insert(notification.TableName()).
		Columns("user_id", "title", "message", "type", "priority", "created_at").
		Values(
			notification.UserID,
			notification.Title,
			notification.Message,
			notification.Type,
			notification.Priority,
			notification.CreatedAt,
		).
		Suffix("RETURNING id").
		ToSql()
}

func findUnreadNotificationsQuery(userID string, limit uint64) (string, []any, error) {
	if limit == 0 {
		limit = defaultUnreadNotificationsLimit
	}

	return sq.StatementBuilder.
		PlaceholderFormat(sq.Dollar).
		Select("id", "user_id", "title", "message", "type", "priority", "read_at", "created_at").
		From(entity.Notification{}.TableName()).
		Where(sq.Eq{"user_id": userID, "read_at": nil}).
		OrderBy("created_at desc").
		Limit(limit).
		ToSql()
}
