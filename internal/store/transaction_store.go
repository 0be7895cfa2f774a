package store

import (
	"context"
	"fmt"

	"inventory/internal/models"

	"github.com/shopspring/decimal"
)

// TransactionStore is the append-only currency transaction log. It has no
// update or delete methods.
type TransactionStore struct {
	db DB
}

type TransactionInput struct {
	UserID          int64
	CurrencyID      int64
	Amount          decimal.Decimal
	TransactionType models.TransactionType
	ReferenceType   *string
	ReferenceID     *string
	Description     string
	BalanceAfter    decimal.Decimal
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx Getter, input TransactionInput) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO currency_transactions (user_id, currency_id, amount, transaction_type, reference_type, reference_id, description, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, input.UserID, input.CurrencyID, input.Amount, input.TransactionType,
		input.ReferenceType, input.ReferenceID, input.Description, input.BalanceAfter)
	return id, err
}

// ListByUser returns newest first. currencyID 0 means every currency.
func (s *TransactionStore) ListByUser(ctx context.Context, userID, currencyID int64, limit, offset int) ([]models.CurrencyTransaction, error) {
	var rows []models.CurrencyTransaction
	query := `
		SELECT id, user_id, currency_id, amount, transaction_type, reference_type, reference_id, description, balance_after, created_at
		FROM currency_transactions
		WHERE user_id = $1
	`
	args := []any{userID}
	param := 2
	if currencyID > 0 {
		query += " AND currency_id = $2"
		args = append(args, currencyID)
		param = 3
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", param, param+1)
	args = append(args, limit, offset)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}
