package store

import (
	"context"

	"inventory/internal/models"
)

type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, username, email, display_name, password_hash, is_blocked, created_at`

func (s *UserStore) Create(ctx context.Context, tx Getter, username, email, displayName, passwordHash string) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO users (username, email, display_name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, username, email, displayName, passwordHash)
	return id, err
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var row models.User
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return row, err
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (models.User, error) {
	var row models.User
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return row, err
}

func (s *UserStore) GetByID(ctx context.Context, userID int64) (models.User, error) {
	var row models.User
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return row, err
}

func (s *UserStore) SetBlocked(ctx context.Context, userID int64, blocked bool) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_blocked = $2 WHERE id = $1`, userID, blocked)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
