package store

import (
	"context"
	"database/sql"

	"inventory/internal/models"
)

type UserItemStore struct {
	db DB
}

func NewUserItemStore(db DB) *UserItemStore {
	return &UserItemStore{db: db}
}

// Quantity returns 0 when the user holds no stack of the item.
func (s *UserItemStore) Quantity(ctx context.Context, q Getter, userID, itemID int64) (int64, error) {
	if q == nil {
		q = s.db
	}
	var quantity int64
	err := q.GetContext(ctx, &quantity, `
		SELECT quantity FROM user_items WHERE user_id = $1 AND item_id = $2
	`, userID, itemID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return quantity, err
}

func (s *UserItemStore) Add(ctx context.Context, tx Execer, userID, itemID, qty int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_items (user_id, item_id, quantity, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, item_id) DO UPDATE
		SET quantity = user_items.quantity + EXCLUDED.quantity, updated_at = NOW()
	`, userID, itemID, qty)
	return err
}

// Remove decrements the stack only when it holds at least qty and prunes
// emptied stacks. Zero rows affected means the stack was short.
func (s *UserItemStore) Remove(ctx context.Context, tx Execer, userID, itemID, qty int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE user_items
		SET quantity = quantity - $3, updated_at = NOW()
		WHERE user_id = $1 AND item_id = $2 AND quantity >= $3
	`, userID, itemID, qty)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil || affected == 0 {
		return affected, err
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM user_items WHERE user_id = $1 AND item_id = $2 AND quantity = 0
	`, userID, itemID)
	return affected, err
}

func (s *UserItemStore) ListByUser(ctx context.Context, userID int64) ([]models.UserItem, error) {
	var rows []models.UserItem
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, item_id, quantity, updated_at
		FROM user_items
		WHERE user_id = $1 AND quantity > 0
		ORDER BY item_id
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
