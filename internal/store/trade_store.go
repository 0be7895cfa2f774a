package store

import (
	"context"
	"time"

	"inventory/internal/models"

	"github.com/lib/pq"
)

type TradeStore struct {
	db DB
}

type TradeInput struct {
	TradeToken     string
	InitiatorID    int64
	TargetID       int64
	InitiatorOffer models.Offer
	TargetOffer    models.Offer
	Message        string
	ExpiresAt      time.Time
}

const tradeColumns = `id, trade_token, initiator_id, target_id, initiator_items, target_items, initiator_currencies, target_currencies, initiator_nfts, target_nfts, message, status, failure_reason, created_at, expires_at, completed_at, updated_at`

func NewTradeStore(db DB) *TradeStore {
	return &TradeStore{db: db}
}

func (s *TradeStore) Create(ctx context.Context, tx Getter, input TradeInput) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO trades (trade_token, initiator_id, target_id, initiator_items, target_items,
		                    initiator_currencies, target_currencies, initiator_nfts, target_nfts,
		                    message, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'pending', $11)
		RETURNING id
	`, input.TradeToken, input.InitiatorID, input.TargetID,
		input.InitiatorOffer.Items, input.TargetOffer.Items,
		input.InitiatorOffer.Currencies, input.TargetOffer.Currencies,
		input.InitiatorOffer.NFTs, input.TargetOffer.NFTs,
		input.Message, input.ExpiresAt)
	return id, err
}

func (s *TradeStore) GetByID(ctx context.Context, id int64) (models.Trade, error) {
	var row models.Trade
	err := s.db.GetContext(ctx, &row, `SELECT `+tradeColumns+` FROM trades WHERE id = $1`, id)
	return row, err
}

func (s *TradeStore) GetForUpdate(ctx context.Context, tx Getter, id int64) (models.Trade, error) {
	var row models.Trade
	err := tx.GetContext(ctx, &row, `SELECT `+tradeColumns+` FROM trades WHERE id = $1 FOR UPDATE`, id)
	return row, err
}

// PendingBetween reports whether a pending trade exists between the
// unordered pair a, b.
func (s *TradeStore) PendingBetween(ctx context.Context, q Getter, a, b int64) (bool, error) {
	if q == nil {
		q = s.db
	}
	var exists bool
	err := q.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM trades
			WHERE status = 'pending'
			  AND LEAST(initiator_id, target_id) = LEAST($1::bigint, $2::bigint)
			  AND GREATEST(initiator_id, target_id) = GREATEST($1::bigint, $2::bigint)
		)
	`, a, b)
	return exists, err
}

// TransitionStatus moves the trade to `to` only while its status is one of
// from. Zero rows affected means the trade was not in an allowed state.
func (s *TradeStore) TransitionStatus(ctx context.Context, tx Execer, id int64, to models.TradeStatus, reason *string, from ...models.TradeStatus) (int64, error) {
	allowed := make([]string, 0, len(from))
	for _, status := range from {
		allowed = append(allowed, string(status))
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE trades
		SET status = $2,
		    failure_reason = COALESCE($3, failure_reason),
		    completed_at = CASE WHEN $2 = 'completed' THEN NOW() ELSE completed_at END,
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($4)
	`, id, to, reason, pq.Array(allowed))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TradeStore) ListForUser(ctx context.Context, userID int64, status models.TradeStatus, limit, offset int) ([]models.Trade, error) {
	var rows []models.Trade
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE (initiator_id = $1 OR target_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, userID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListExpired returns ids of pending trades whose expiry has passed.
func (s *TradeStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id FROM trades
		WHERE status = 'pending' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *TradeStore) AppendEvent(ctx context.Context, tx Execer, tradeID int64, status models.TradeStatus, actorID *int64, detail string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trade_events (trade_id, status, actor_id, detail)
		VALUES ($1, $2, $3, $4)
	`, tradeID, status, actorID, detail)
	return err
}
