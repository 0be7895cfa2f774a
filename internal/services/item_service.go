package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"inventory/internal/db"
	"inventory/internal/models"
	"inventory/internal/security"
	"inventory/internal/store"

	"github.com/jmoiron/sqlx"
)

// ItemService manages catalog items and the stackable quantities users hold.
type ItemService struct {
	txRunner  db.TxRunner
	items     ItemStore
	userItems UserItemStore
	gate      Gate
}

func NewItemService(txRunner db.TxRunner, items ItemStore, userItems UserItemStore, gate Gate) *ItemService {
	return &ItemService{txRunner: txRunner, items: items, userItems: userItems, gate: gate}
}

type ItemRequest struct {
	ProductID     *int64           `json:"product_id"`
	Name          string           `json:"name"`
	ItemType      models.ItemType  `json:"item_type"`
	Rarity        models.Rarity    `json:"rarity"`
	MintNFT       bool             `json:"mint_nft"`
	IsTradeable   *bool            `json:"is_tradeable"`
	QuantityLimit *int64           `json:"quantity_limit"`
	BaseStats     models.BaseStats `json:"base_stats"`
}

func (s *ItemService) CreateItem(ctx context.Context, req ItemRequest) (int64, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || !req.ItemType.Valid() {
		return 0, ErrValidation
	}
	rarity := req.Rarity
	if rarity == "" {
		rarity = models.RarityCommon
	}
	if !rarity.Valid() {
		return 0, ErrValidation
	}
	if req.QuantityLimit != nil && *req.QuantityLimit <= 0 {
		return 0, ErrValidation
	}
	if req.ProductID != nil && *req.ProductID <= 0 {
		return 0, ErrValidation
	}
	tradeable := true
	if req.IsTradeable != nil {
		tradeable = *req.IsTradeable
	}
	stats := req.BaseStats
	if stats == nil {
		stats = models.BaseStats{}
	}
	var id int64
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		id, err = s.items.Create(ctx, tx, store.ItemInput{
			ProductID:     req.ProductID,
			Name:          name,
			ItemType:      req.ItemType,
			Rarity:        rarity,
			MintNFT:       req.MintNFT,
			IsTradeable:   tradeable,
			QuantityLimit: req.QuantityLimit,
			BaseStats:     stats,
			Status:        "active",
		})
		return err
	})
	if db.IsUniqueViolation(err) {
		return 0, ErrAlreadyExists
	}
	if err != nil {
		return 0, wrapStorage("create item", err)
	}
	s.gate.LogSecurityEvent(ctx, security.Event{Action: "item_created", ObjectType: "item", ObjectID: fmt.Sprint(id)})
	return id, nil
}

func (s *ItemService) GetItem(ctx context.Context, id int64) (models.Item, error) {
	item, err := s.items.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, ErrItemNotFound
	}
	return item, wrapStorage("get item", err)
}

// ItemForProduct resolves the active item a commerce product awards.
func (s *ItemService) ItemForProduct(ctx context.Context, productID int64) (models.Item, error) {
	item, err := s.items.GetByProductID(ctx, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, ErrItemNotFound
	}
	return item, wrapStorage("get item for product", err)
}

func (s *ItemService) ListItems(ctx context.Context) ([]models.Item, error) {
	items, err := s.items.List(ctx)
	return items, wrapStorage("list items", err)
}

func (s *ItemService) UserQuantity(ctx context.Context, userID, itemID int64) (int64, error) {
	qty, err := s.userItems.Quantity(ctx, nil, userID, itemID)
	return qty, wrapStorage("item quantity", err)
}

func (s *ItemService) Inventory(ctx context.Context, userID int64) ([]models.UserItem, error) {
	rows, err := s.userItems.ListByUser(ctx, userID)
	return rows, wrapStorage("inventory", err)
}

func (s *ItemService) Grant(ctx context.Context, userID, itemID, qty int64, reason string) error {
	if userID <= 0 || itemID <= 0 || qty <= 0 {
		return ErrValidation
	}
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.GrantWithin(ctx, tx, item, userID, qty)
	})
	if err != nil {
		return wrapStorage("grant item", err)
	}
	s.gate.LogSecurityEvent(ctx, security.Event{
		UserID:     userID,
		Action:     "item_granted",
		ObjectType: "item",
		ObjectID:   fmt.Sprint(itemID),
		Details:    map[string]any{"quantity": qty, "reason": reason},
	})
	return nil
}

// GrantWithin issues new units of item to the user. The quantity limit is
// checked by the same statement that raises current_quantity.
func (s *ItemService) GrantWithin(ctx context.Context, tx store.Tx, item models.Item, userID, qty int64) error {
	if !item.Active() {
		return ErrItemNotFound
	}
	rows, err := s.items.ReserveIssue(ctx, tx, item.ID, qty)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrQuantityLimitReached
	}
	return s.userItems.Add(ctx, tx, userID, item.ID, qty)
}

func (s *ItemService) Remove(ctx context.Context, userID, itemID, qty int64) error {
	if userID <= 0 || itemID <= 0 || qty <= 0 {
		return ErrValidation
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.userItems.Remove(ctx, tx, userID, itemID, qty)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrInsufficientQuantity
		}
		return nil
	})
	if err != nil {
		return wrapStorage("remove item", err)
	}
	s.gate.LogSecurityEvent(ctx, security.Event{
		UserID:     userID,
		Action:     "item_removed",
		ObjectType: "item",
		ObjectID:   fmt.Sprint(itemID),
		Details:    map[string]any{"quantity": qty},
	})
	return nil
}

// MoveWithin shifts qty units of a stack between users inside the caller's
// transaction.
func (s *ItemService) MoveWithin(ctx context.Context, tx store.Tx, fromUserID, toUserID, itemID, qty int64) error {
	if qty <= 0 {
		return ErrValidation
	}
	rows, err := s.userItems.Remove(ctx, tx, fromUserID, itemID, qty)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInsufficientQuantity
	}
	return s.userItems.Add(ctx, tx, toUserID, itemID, qty)
}
