package store

import (
	"context"

	"inventory/internal/models"

	"github.com/shopspring/decimal"
)

type CurrencyStore struct {
	db DB
}

type CurrencyInput struct {
	Name          string
	Slug          string
	Symbol        string
	DecimalPlaces int
	ExchangeRate  decimal.Decimal
	IsDefault     bool
	Status        models.CurrencyStatus
}

// CurrencyUsage counts rows that block deleting a currency.
type CurrencyUsage struct {
	PositiveBalances int64 `db:"positive_balances"`
	Transactions     int64 `db:"transactions"`
}

func (u CurrencyUsage) InUse() bool {
	return u.PositiveBalances > 0 || u.Transactions > 0
}

const currencyColumns = `id, name, slug, symbol, decimal_places, exchange_rate, is_default, status, created_at, updated_at`

func NewCurrencyStore(db DB) *CurrencyStore {
	return &CurrencyStore{db: db}
}

func (s *CurrencyStore) Create(ctx context.Context, tx Getter, input CurrencyInput) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO currencies (name, slug, symbol, decimal_places, exchange_rate, is_default, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, input.Name, input.Slug, input.Symbol, input.DecimalPlaces, input.ExchangeRate, input.IsDefault, input.Status)
	return id, err
}

func (s *CurrencyStore) Update(ctx context.Context, tx Execer, id int64, input CurrencyInput) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE currencies
		SET name = $1, slug = $2, symbol = $3, decimal_places = $4, exchange_rate = $5,
		    is_default = $6, status = $7, updated_at = NOW()
		WHERE id = $8
	`, input.Name, input.Slug, input.Symbol, input.DecimalPlaces, input.ExchangeRate, input.IsDefault, input.Status, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *CurrencyStore) Delete(ctx context.Context, tx Execer, id int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM currencies WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *CurrencyStore) GetByID(ctx context.Context, id int64) (models.Currency, error) {
	var row models.Currency
	err := s.db.GetContext(ctx, &row, `SELECT `+currencyColumns+` FROM currencies WHERE id = $1`, id)
	return row, err
}

func (s *CurrencyStore) GetForUpdate(ctx context.Context, tx Getter, id int64) (models.Currency, error) {
	var row models.Currency
	err := tx.GetContext(ctx, &row, `SELECT `+currencyColumns+` FROM currencies WHERE id = $1 FOR UPDATE`, id)
	return row, err
}

func (s *CurrencyStore) GetDefault(ctx context.Context) (models.Currency, error) {
	var row models.Currency
	err := s.db.GetContext(ctx, &row, `
		SELECT `+currencyColumns+`
		FROM currencies
		WHERE is_default = TRUE AND status = 'active'
		ORDER BY id
		LIMIT 1
	`)
	return row, err
}

func (s *CurrencyStore) List(ctx context.Context) ([]models.Currency, error) {
	var rows []models.Currency
	err := s.db.SelectContext(ctx, &rows, `SELECT `+currencyColumns+` FROM currencies ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *CurrencyStore) SlugExists(ctx context.Context, tx Getter, slug string, excludeID int64) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists, `
		SELECT EXISTS(SELECT 1 FROM currencies WHERE slug = $1 AND id <> $2)
	`, slug, excludeID)
	return exists, err
}

// ClearDefault drops the default flag from every currency except exceptID.
func (s *CurrencyStore) ClearDefault(ctx context.Context, tx Execer, exceptID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE currencies
		SET is_default = FALSE, updated_at = NOW()
		WHERE is_default = TRUE AND id <> $1
	`, exceptID)
	return err
}

func (s *CurrencyStore) Usage(ctx context.Context, tx Getter, id int64) (CurrencyUsage, error) {
	var usage CurrencyUsage
	err := tx.GetContext(ctx, &usage, `
		SELECT
			(SELECT COUNT(1) FROM user_balances WHERE currency_id = $1 AND balance > 0) AS positive_balances,
			(SELECT COUNT(1) FROM currency_transactions WHERE currency_id = $1) AS transactions
	`, id)
	return usage, err
}
