package store

import "context"

type PurchaseAwardStore struct {
	db DB
}

func NewPurchaseAwardStore(db DB) *PurchaseAwardStore {
	return &PurchaseAwardStore{db: db}
}

// Record claims (orderID, productID). Zero rows affected means the order
// was already awarded.
func (s *PurchaseAwardStore) Record(ctx context.Context, tx Execer, orderID string, productID, userID, quantity int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO purchase_awards (order_id, product_id, user_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id, product_id) DO NOTHING
	`, orderID, productID, userID, quantity)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
