package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nzoschke/dreamsaver/internal/model"
)

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationRepository interface {
	Create(ctx context.Context, notification *model.Notification) error
	Notifications(ctx context.Context, ownerID string, unreadOnly bool, limit int) ([]*model.Notification, error)
	MarkRead(ctx context.Context, ownerID, id string, at time.Time) error
}

type notificationRepository struct {
	db sqlx.ExtContext
}

func NewNotificationRepository(db sqlx.ExtContext) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	query := `INSERT INTO notifications (id, owner_id, goal_id, type, title, message, read_at, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query, n.ID, n.OwnerID, n.GoalID, n.Type, n.Title, n.Message, n.ReadAt, n.CreatedAt)
	return err
}

func (r *notificationRepository) Notifications(ctx context.Context, ownerID string, unreadOnly bool, limit int) ([]*model.Notification, error) {
	var notifications []*model.Notification

	query := `SELECT * FROM notifications WHERE owner_id = $1`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $2`

	err := sqlx.SelectContext(ctx, r.db, &notifications, query, ownerID, limit)
	if err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, ownerID, id string, at time.Time) error {
	query := `UPDATE notifications SET read_at = COALESCE(read_at, $1) WHERE id = $2 AND owner_id = $3`

	result, err := r.db.ExecContext(ctx, query, at, id, ownerID)
	if err != nil {
		return err
	}

	return requireRow(result, ErrNotificationNotFound)
}
