package handlers

import (
	"context"

	"inventory/internal/models"
	"inventory/internal/security"
	"inventory/internal/services"
	"inventory/internal/store"

	"github.com/shopspring/decimal"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Getter, username, email, displayName, passwordHash string) (int64, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByID(ctx context.Context, userID int64) (models.User, error)
	SetBlocked(ctx context.Context, userID int64, blocked bool) (int64, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID int64) (bool, bool, error)
	HasRole(ctx context.Context, userID int64, role string) (bool, error)
	CreateAdmin(ctx context.Context, tx store.Execer, userID int64, isSuper bool, createdBy *int64) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID int64, role string) error
	HasAnyAdmin(ctx context.Context, q store.Getter) (bool, error)
}

type AuditStore interface {
	List(ctx context.Context, objectType string, limit, offset int) ([]models.AuditLog, error)
}

type LedgerStore interface {
	Discrepancies(ctx context.Context, limit int) ([]store.Discrepancy, error)
}

type NotificationStore interface {
	ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id int64) (int64, error)
}

// SecurityGate records security events and answers NFT management checks.
type SecurityGate interface {
	LogSecurityEvent(ctx context.Context, event security.Event)
	CanManageNFT(ctx context.Context, userID, nftID int64) (bool, error)
}

type CurrencyService interface {
	Create(ctx context.Context, req services.CurrencyRequest) (int64, error)
	Update(ctx context.Context, id int64, req services.CurrencyRequest) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]models.Currency, error)
	GetBalance(ctx context.Context, userID, currencyID int64) (decimal.Decimal, error)
	Balances(ctx context.Context, userID int64) ([]models.UserBalance, error)
	ListTransactions(ctx context.Context, userID, currencyID int64, limit, offset int) ([]models.CurrencyTransaction, error)
	Credit(ctx context.Context, req services.CreditRequest) (int64, error)
	Debit(ctx context.Context, req services.DebitRequest) (int64, error)
	Transfer(ctx context.Context, req services.TransferRequest) (services.TransferResult, error)
	Convert(ctx context.Context, amount decimal.Decimal, fromID, toID int64) (decimal.Decimal, bool, error)
	InitializeForNewUserWithin(ctx context.Context, tx store.Tx, userID int64) (int64, error)
	BulkAward(ctx context.Context, currencyID int64, userIDs []int64, amount decimal.Decimal, description string) ([]services.BulkAwardResult, error)
}

type ItemService interface {
	CreateItem(ctx context.Context, req services.ItemRequest) (int64, error)
	ListItems(ctx context.Context) ([]models.Item, error)
	Inventory(ctx context.Context, userID int64) ([]models.UserItem, error)
	Grant(ctx context.Context, userID, itemID, qty int64, reason string) error
}

type NFTService interface {
	ListByOwner(ctx context.Context, ownerID int64) ([]models.NFT, error)
	Mint(ctx context.Context, req services.MintRequest) (models.NFT, error)
	Transfer(ctx context.Context, req services.NFTTransferRequest) error
	Upgrade(ctx context.Context, req services.UpgradeRequest) (models.NFT, error)
	UpgradeRandom(ctx context.Context, userID, itemID int64) (models.NFT, error)
	VerifyAuthenticity(ctx context.Context, token string) (services.Verification, error)
	Burn(ctx context.Context, nftID int64, reason string) (string, error)
	GenerateCertificate(ctx context.Context, nftID int64) (services.Certificate, bool, error)
}

type TradeService interface {
	Create(ctx context.Context, req services.CreateTradeRequest) (models.Trade, error)
	Get(ctx context.Context, tradeID, actorID int64) (models.Trade, error)
	ListForUser(ctx context.Context, userID int64, status models.TradeStatus, limit, offset int) ([]models.Trade, error)
	Accept(ctx context.Context, tradeID, actorID int64) (models.Trade, error)
	Decline(ctx context.Context, tradeID, actorID int64) error
	Cancel(ctx context.Context, tradeID, actorID int64) error
}

type AwardService interface {
	AwardForPurchase(ctx context.Context, req services.AwardRequest) (services.AwardResult, error)
}
