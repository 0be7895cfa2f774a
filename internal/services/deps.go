package services

import (
	"context"
	"time"

	"inventory/internal/config"
	"inventory/internal/models"
	"inventory/internal/security"
	"inventory/internal/store"

	"github.com/shopspring/decimal"
)

type CurrencyStore interface {
	Create(ctx context.Context, tx store.Getter, input store.CurrencyInput) (int64, error)
	Update(ctx context.Context, tx store.Execer, id int64, input store.CurrencyInput) (int64, error)
	Delete(ctx context.Context, tx store.Execer, id int64) (int64, error)
	GetByID(ctx context.Context, id int64) (models.Currency, error)
	GetForUpdate(ctx context.Context, tx store.Getter, id int64) (models.Currency, error)
	GetDefault(ctx context.Context) (models.Currency, error)
	List(ctx context.Context) ([]models.Currency, error)
	SlugExists(ctx context.Context, tx store.Getter, slug string, excludeID int64) (bool, error)
	ClearDefault(ctx context.Context, tx store.Execer, exceptID int64) error
	Usage(ctx context.Context, tx store.Getter, id int64) (store.CurrencyUsage, error)
}

type BalanceStore interface {
	Get(ctx context.Context, userID, currencyID int64) (models.UserBalance, error)
	ListByUser(ctx context.Context, userID int64) ([]models.UserBalance, error)
	Credit(ctx context.Context, tx store.Getter, userID, currencyID int64, amount decimal.Decimal) (decimal.Decimal, error)
	Debit(ctx context.Context, tx store.Getter, userID, currencyID int64, amount decimal.Decimal) (decimal.Decimal, error)
	Exists(ctx context.Context, tx store.Getter, userID, currencyID int64) (bool, error)
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Getter, input store.TransactionInput) (int64, error)
	ListByUser(ctx context.Context, userID, currencyID int64, limit, offset int) ([]models.CurrencyTransaction, error)
}

type ItemStore interface {
	Create(ctx context.Context, tx store.Getter, input store.ItemInput) (int64, error)
	GetByID(ctx context.Context, id int64) (models.Item, error)
	GetByProductID(ctx context.Context, productID int64) (models.Item, error)
	List(ctx context.Context) ([]models.Item, error)
	ReserveIssue(ctx context.Context, tx store.Execer, id, qty int64) (int64, error)
}

type UserItemStore interface {
	Quantity(ctx context.Context, q store.Getter, userID, itemID int64) (int64, error)
	Add(ctx context.Context, tx store.Execer, userID, itemID, qty int64) error
	Remove(ctx context.Context, tx store.Execer, userID, itemID, qty int64) (int64, error)
	ListByUser(ctx context.Context, userID int64) ([]models.UserItem, error)
}

type NFTStore interface {
	Create(ctx context.Context, tx store.Getter, input store.NFTInput, createdAt time.Time) (int64, error)
	GetByID(ctx context.Context, id int64) (models.NFT, error)
	GetByToken(ctx context.Context, token string) (models.NFT, error)
	GetForUpdate(ctx context.Context, tx store.Getter, id int64) (models.NFT, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]models.NFT, error)
	ListUpgradeable(ctx context.Context, ownerID, itemID int64) ([]models.NFT, error)
	CountByOwner(ctx context.Context, ownerID int64) (int64, error)
	TransferOwner(ctx context.Context, tx store.Execer, id, from, to int64) (int64, error)
	SaveUpgrade(ctx context.Context, tx store.Execer, id int64, input store.UpgradeInput) (int64, error)
	Archive(ctx context.Context, tx store.Execer, record store.BurnRecord) error
	Delete(ctx context.Context, tx store.Execer, id int64) (int64, error)
}

type TradeStore interface {
	Create(ctx context.Context, tx store.Getter, input store.TradeInput) (int64, error)
	GetByID(ctx context.Context, id int64) (models.Trade, error)
	GetForUpdate(ctx context.Context, tx store.Getter, id int64) (models.Trade, error)
	PendingBetween(ctx context.Context, q store.Getter, a, b int64) (bool, error)
	TransitionStatus(ctx context.Context, tx store.Execer, id int64, to models.TradeStatus, reason *string, from ...models.TradeStatus) (int64, error)
	ListForUser(ctx context.Context, userID int64, status models.TradeStatus, limit, offset int) ([]models.Trade, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]int64, error)
	AppendEvent(ctx context.Context, tx store.Execer, tradeID int64, status models.TradeStatus, actorID *int64, detail string) error
}

type ReservationStore interface {
	Reserve(ctx context.Context, tx store.Execer, r models.Reservation) error
	Release(ctx context.Context, tx store.Execer, tradeID int64) error
	Reserved(ctx context.Context, q store.Getter, userID int64, assetType models.AssetType, assetID, excludeTradeID int64) (decimal.Decimal, error)
}

type PurchaseAwardStore interface {
	Record(ctx context.Context, tx store.Execer, orderID string, productID, userID, quantity int64) (int64, error)
}

// Gate is the policy layer every service consults.
type Gate interface {
	CheckRateLimit(ctx context.Context, userID int64, policy security.Policy) error
	UserExists(ctx context.Context, userID int64) (bool, error)
	IsBlocked(ctx context.Context, userID int64) (bool, error)
	UserOwnsItem(ctx context.Context, userID, itemID int64) (bool, error)
	DisplayName(ctx context.Context, userID int64) (string, error)
	LogSecurityEvent(ctx context.Context, event security.Event)
}

type Notifier interface {
	Notify(ctx context.Context, userID int64, eventType string, payload map[string]any)
}

// Policies are the rate limits applied at public entry points.
type Policies struct {
	Balance security.Policy
	Trade   security.Policy
	NFT     security.Policy
}

func PoliciesFromConfig(limits config.RateLimits) Policies {
	return Policies{
		Balance: security.Policy{Action: "balance_op", Limit: limits.Balance.Limit, Window: limits.Balance.Window},
		Trade:   security.Policy{Action: "trade_create", Limit: limits.Trade.Limit, Window: limits.Trade.Window},
		NFT:     security.Policy{Action: "nft_op", Limit: limits.NFT.Limit, Window: limits.NFT.Window},
	}
}
