package store

import (
	"context"

	"inventory/internal/models"
)

type ItemStore struct {
	db DB
}

type ItemInput struct {
	ProductID     *int64
	Name          string
	ItemType      models.ItemType
	Rarity        models.Rarity
	MintNFT       bool
	IsTradeable   bool
	QuantityLimit *int64
	BaseStats     models.BaseStats
	Status        string
}

const itemColumns = `id, product_id, name, item_type, rarity, mint_nft, is_tradeable, quantity_limit, current_quantity, base_stats, status, created_at`

func NewItemStore(db DB) *ItemStore {
	return &ItemStore{db: db}
}

func (s *ItemStore) Create(ctx context.Context, tx Getter, input ItemInput) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO items (product_id, name, item_type, rarity, mint_nft, is_tradeable, quantity_limit, base_stats, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, input.ProductID, input.Name, input.ItemType, input.Rarity, input.MintNFT, input.IsTradeable,
		input.QuantityLimit, input.BaseStats, input.Status)
	return id, err
}

func (s *ItemStore) GetByID(ctx context.Context, id int64) (models.Item, error) {
	var row models.Item
	err := s.db.GetContext(ctx, &row, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id)
	return row, err
}

func (s *ItemStore) GetByProductID(ctx context.Context, productID int64) (models.Item, error) {
	var row models.Item
	err := s.db.GetContext(ctx, &row, `
		SELECT `+itemColumns+`
		FROM items
		WHERE product_id = $1 AND status = 'active'
		ORDER BY id
		LIMIT 1
	`, productID)
	return row, err
}

func (s *ItemStore) List(ctx context.Context) ([]models.Item, error) {
	var rows []models.Item
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+itemColumns+` FROM items ORDER BY id`); err != nil {
		return nil, err
	}
	return rows, nil
}

// ReserveIssue bumps current_quantity by qty unless that would pass the
// item's quantity_limit. Zero rows affected means the limit was reached.
func (s *ItemStore) ReserveIssue(ctx context.Context, tx Execer, id, qty int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE items
		SET current_quantity = current_quantity + $2
		WHERE id = $1 AND (quantity_limit IS NULL OR current_quantity + $2 <= quantity_limit)
	`, id, qty)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
