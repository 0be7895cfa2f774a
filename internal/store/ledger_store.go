package store

import (
	"context"

	"github.com/shopspring/decimal"
)

// LedgerStore reconciles balances against the transaction log.
type LedgerStore struct {
	db DB
}

// Discrepancy is a balance row that disagrees with its transaction history.
type Discrepancy struct {
	UserID        int64           `db:"user_id" json:"user_id"`
	CurrencyID    int64           `db:"currency_id" json:"currency_id"`
	Balance       decimal.Decimal `db:"balance" json:"balance"`
	LoggedBalance decimal.Decimal `db:"logged_balance" json:"logged_balance"`
	TotalEarned   decimal.Decimal `db:"total_earned" json:"total_earned"`
	TotalSpent    decimal.Decimal `db:"total_spent" json:"total_spent"`
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Discrepancies lists balances where balance differs from the logged sum or
// from total_earned - total_spent.
func (s *LedgerStore) Discrepancies(ctx context.Context, limit int) ([]Discrepancy, error) {
	var rows []Discrepancy
	err := s.db.SelectContext(ctx, &rows, `
		SELECT b.user_id, b.currency_id, b.balance,
		       COALESCE(t.logged, 0) AS logged_balance,
		       b.total_earned, b.total_spent
		FROM user_balances b
		LEFT JOIN (
			SELECT user_id, currency_id, SUM(amount) AS logged
			FROM currency_transactions
			GROUP BY user_id, currency_id
		) t ON t.user_id = b.user_id AND t.currency_id = b.currency_id
		WHERE b.balance <> COALESCE(t.logged, 0)
		   OR b.balance <> b.total_earned - b.total_spent
		ORDER BY b.user_id, b.currency_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
