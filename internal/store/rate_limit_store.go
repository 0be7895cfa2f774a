package store

import (
	"context"
	"database/sql"
	"time"
)

// RateLimitStore keeps fixed-window counters in rate_limit_counters.
type RateLimitStore struct {
	db DB
}

func NewRateLimitStore(db DB) *RateLimitStore {
	return &RateLimitStore{db: db}
}

// Hit counts one attempt in the window and reports whether it was admitted.
// The conditional upsert stops counting once the limit is reached, so
// concurrent callers can never push the count past limit.
func (s *RateLimitStore) Hit(ctx context.Context, key string, windowStart time.Time, limit int, expiresAt time.Time) (bool, error) {
	var hits int
	err := s.db.GetContext(ctx, &hits, `
		INSERT INTO rate_limit_counters (key, window_start, hits, expires_at)
		VALUES ($1, $2, 1, $4)
		ON CONFLICT (key, window_start) DO UPDATE
		SET hits = rate_limit_counters.hits + 1
		WHERE rate_limit_counters.hits < $3
		RETURNING hits
	`, key, windowStart, limit, expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return hits <= limit, nil
}

func (s *RateLimitStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_counters WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
