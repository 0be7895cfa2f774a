package store

import (
	"context"

	"inventory/internal/models"

	"github.com/shopspring/decimal"
)

type BalanceStore struct {
	db DB
}

const balanceColumns = `user_id, currency_id, balance, total_earned, total_spent, last_transaction_at`

func NewBalanceStore(db DB) *BalanceStore {
	return &BalanceStore{db: db}
}

func (s *BalanceStore) Get(ctx context.Context, userID, currencyID int64) (models.UserBalance, error) {
	var row models.UserBalance
	err := s.db.GetContext(ctx, &row, `
		SELECT `+balanceColumns+`
		FROM user_balances
		WHERE user_id = $1 AND currency_id = $2
	`, userID, currencyID)
	return row, err
}

func (s *BalanceStore) ListByUser(ctx context.Context, userID int64) ([]models.UserBalance, error) {
	var rows []models.UserBalance
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+balanceColumns+`
		FROM user_balances
		WHERE user_id = $1
		ORDER BY currency_id
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Credit adds amount in a single upsert and returns the new balance.
func (s *BalanceStore) Credit(ctx context.Context, tx Getter, userID, currencyID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance, `
		INSERT INTO user_balances (user_id, currency_id, balance, total_earned, total_spent, last_transaction_at)
		VALUES ($1, $2, $3, $3, 0, NOW())
		ON CONFLICT (user_id, currency_id) DO UPDATE
		SET balance = user_balances.balance + EXCLUDED.balance,
		    total_earned = user_balances.total_earned + EXCLUDED.total_earned,
		    last_transaction_at = NOW()
		RETURNING balance
	`, userID, currencyID, amount)
	return balance, err
}

// Debit subtracts amount only while the balance covers it. It returns
// sql.ErrNoRows when no row was changed.
func (s *BalanceStore) Debit(ctx context.Context, tx Getter, userID, currencyID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance, `
		UPDATE user_balances
		SET balance = balance - $3,
		    total_spent = total_spent + $3,
		    last_transaction_at = NOW()
		WHERE user_id = $1 AND currency_id = $2 AND balance >= $3
		RETURNING balance
	`, userID, currencyID, amount)
	return balance, err
}

func (s *BalanceStore) Exists(ctx context.Context, tx Getter, userID, currencyID int64) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM user_balances WHERE user_id = $1 AND currency_id = $2)
	`, userID, currencyID)
	return exists, err
}
