package store

import (
	"context"

	"inventory/internal/models"

	"github.com/shopspring/decimal"
)

// ReservationStore tracks assets promised by open trades.
type ReservationStore struct {
	db DB
}

func NewReservationStore(db DB) *ReservationStore {
	return &ReservationStore{db: db}
}

func (s *ReservationStore) Reserve(ctx context.Context, tx Execer, r models.Reservation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trade_reservations (trade_id, user_id, asset_type, asset_id, quantity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (trade_id, asset_type, asset_id) DO UPDATE
		SET quantity = trade_reservations.quantity + EXCLUDED.quantity
	`, r.TradeID, r.UserID, r.AssetType, r.AssetID, r.Quantity)
	return err
}

func (s *ReservationStore) Release(ctx context.Context, tx Execer, tradeID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM trade_reservations WHERE trade_id = $1`, tradeID)
	return err
}

// Reserved sums what open trades other than excludeTradeID hold of an asset.
func (s *ReservationStore) Reserved(ctx context.Context, q Getter, userID int64, assetType models.AssetType, assetID, excludeTradeID int64) (decimal.Decimal, error) {
	if q == nil {
		q = s.db
	}
	var total decimal.Decimal
	err := q.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(r.quantity), 0)
		FROM trade_reservations r
		JOIN trades t ON t.id = r.trade_id
		WHERE r.user_id = $1 AND r.asset_type = $2 AND r.asset_id = $3
		  AND r.trade_id <> $4
		  AND t.status IN ('pending', 'accepted')
	`, userID, assetType, assetID, excludeTradeID)
	return total, err
}
