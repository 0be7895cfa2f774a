package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"inventory/internal/db"
	"inventory/internal/models"
	"inventory/internal/notify"
	"inventory/internal/security"
	"inventory/internal/store"

	"github.com/jmoiron/sqlx"
)

const maxAwardQuantity = 100

type ItemGranter interface {
	GrantWithin(ctx context.Context, tx store.Tx, item models.Item, userID, qty int64) error
}

type Minter interface {
	MintWithin(ctx context.Context, tx store.Tx, item models.Item, req MintRequest) (models.NFT, error)
}

// AwardService turns completed purchases into inventory.
type AwardService struct {
	txRunner db.TxRunner
	items    ItemStore
	awards   PurchaseAwardStore
	granter  ItemGranter
	minter   Minter
	gate     Gate
	notifier Notifier
}

func NewAwardService(txRunner db.TxRunner, items ItemStore, awards PurchaseAwardStore, granter ItemGranter, minter Minter, gate Gate, notifier Notifier) *AwardService {
	return &AwardService{
		txRunner: txRunner,
		items:    items,
		awards:   awards,
		granter:  granter,
		minter:   minter,
		gate:     gate,
		notifier: notifier,
	}
}

type AwardRequest struct {
	UserID    int64  `json:"user_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	OrderID   string `json:"order_id"`
}

type AwardResult struct {
	ItemID   int64        `json:"item_id"`
	Quantity int64        `json:"quantity"`
	NFTs     []models.NFT `json:"nfts,omitempty"`
}

// AwardForPurchase grants the item linked to a product. With an order id the
// award is recorded first so a repeated order is refused.
func (s *AwardService) AwardForPurchase(ctx context.Context, req AwardRequest) (AwardResult, error) {
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.UserID <= 0 || req.ProductID <= 0 {
		return AwardResult{}, ErrValidation
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 || req.Quantity > maxAwardQuantity {
		return AwardResult{}, ErrValidation
	}
	item, err := s.items.GetByProductID(ctx, req.ProductID)
	if errors.Is(err, sql.ErrNoRows) {
		return AwardResult{}, ErrItemNotFound
	}
	if err != nil {
		return AwardResult{}, wrapStorage("award purchase", err)
	}
	exists, err := s.gate.UserExists(ctx, req.UserID)
	if err != nil {
		return AwardResult{}, wrapStorage("award purchase", err)
	}
	if !exists {
		return AwardResult{}, ErrUserNotFound
	}

	result := AwardResult{ItemID: item.ID, Quantity: req.Quantity}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result.NFTs = nil
		if req.OrderID != "" {
			rows, err := s.awards.Record(ctx, tx, req.OrderID, req.ProductID, req.UserID, req.Quantity)
			if err != nil {
				return err
			}
			if rows == 0 {
				return ErrAlreadyAwarded
			}
		}
		if !item.MintNFT {
			return s.granter.GrantWithin(ctx, tx, item, req.UserID, req.Quantity)
		}
		for i := int64(0); i < req.Quantity; i++ {
			nft, err := s.minter.MintWithin(ctx, tx, item, MintRequest{
				ItemID:     item.ID,
				OwnerID:    req.UserID,
				Rarity:     item.Rarity,
				Attributes: map[string]any{"order_id": req.OrderID, "product_id": req.ProductID},
			})
			if err != nil {
				return err
			}
			result.NFTs = append(result.NFTs, nft)
		}
		return nil
	})
	if err != nil {
		return AwardResult{}, wrapStorage("award purchase", err)
	}

	s.gate.LogSecurityEvent(ctx, security.Event{
		UserID:     req.UserID,
		Action:     "purchase_awarded",
		ObjectType: "item",
		ObjectID:   fmt.Sprint(item.ID),
		Details:    map[string]any{"order_id": req.OrderID, "product_id": req.ProductID, "quantity": req.Quantity},
	})
	for _, nft := range result.NFTs {
		s.notifier.Notify(ctx, req.UserID, notify.EventNFTReceived, map[string]any{"nft_id": nft.ID, "token": nft.NFTToken})
	}
	return result, nil
}
