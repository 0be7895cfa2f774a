package store

import (
	"context"

	"inventory/internal/models"
)

// NotificationStore is the outbox read by whatever delivers notifications.
type NotificationStore struct {
	db DB
}

func NewNotificationStore(db DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Enqueue(ctx context.Context, userID int64, eventType, payload string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, event_type, payload)
		VALUES ($1, $2, $3)
	`, userID, eventType, payload)
	return err
}

func (s *NotificationStore) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]models.Notification, error) {
	var rows []models.Notification
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, event_type, payload, read_at, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR read_at IS NULL)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, userID, id int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET read_at = NOW()
		WHERE id = $1 AND user_id = $2 AND read_at IS NULL
	`, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
