package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	DisplayName  string    `db:"display_name" json:"display_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsBlocked    bool      `db:"is_blocked" json:"is_blocked"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

type CurrencyStatus string

const (
	CurrencyActive   CurrencyStatus = "active"
	CurrencyInactive CurrencyStatus = "inactive"
)

type Currency struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Slug          string          `db:"slug" json:"slug"`
	Symbol        string          `db:"symbol" json:"symbol"`
	DecimalPlaces int             `db:"decimal_places" json:"decimal_places"`
	ExchangeRate  decimal.Decimal `db:"exchange_rate" json:"exchange_rate"`
	IsDefault     bool            `db:"is_default" json:"is_default"`
	Status        CurrencyStatus  `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Round rounds an amount to the currency's precision.
func (c Currency) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(int32(c.DecimalPlaces))
}

type UserBalance struct {
	UserID            int64           `db:"user_id" json:"user_id"`
	CurrencyID        int64           `db:"currency_id" json:"currency_id"`
	Balance           decimal.Decimal `db:"balance" json:"balance"`
	TotalEarned       decimal.Decimal `db:"total_earned" json:"total_earned"`
	TotalSpent        decimal.Decimal `db:"total_spent" json:"total_spent"`
	LastTransactionAt *time.Time      `db:"last_transaction_at" json:"last_transaction_at,omitempty"`
}

type TransactionType string

const (
	TransactionEarned  TransactionType = "earned"
	TransactionSpent   TransactionType = "spent"
	TransactionTraded  TransactionType = "traded"
	TransactionAwarded TransactionType = "awarded"
	TransactionRefund  TransactionType = "refunded"
	TransactionAdjust  TransactionType = "adjusted"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionEarned, TransactionSpent, TransactionTraded, TransactionAwarded, TransactionRefund, TransactionAdjust:
		return true
	}
	return false
}

type CurrencyTransaction struct {
	ID              int64           `db:"id" json:"id"`
	UserID          int64           `db:"user_id" json:"user_id"`
	CurrencyID      int64           `db:"currency_id" json:"currency_id"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	TransactionType TransactionType `db:"transaction_type" json:"transaction_type"`
	ReferenceType   *string         `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID     *string         `db:"reference_id" json:"reference_id,omitempty"`
	Description     string          `db:"description" json:"description"`
	BalanceAfter    decimal.Decimal `db:"balance_after" json:"balance_after"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

type ItemType string

const (
	ItemConsumable  ItemType = "consumable"
	ItemEquipment   ItemType = "equipment"
	ItemGiftBox     ItemType = "gift_box"
	ItemMaterial    ItemType = "material"
	ItemCollectible ItemType = "collectible"
	ItemWeapon      ItemType = "weapon"
	ItemArmor       ItemType = "armor"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemConsumable, ItemEquipment, ItemGiftBox, ItemMaterial, ItemCollectible, ItemWeapon, ItemArmor:
		return true
	}
	return false
}

type Item struct {
	ID              int64     `db:"id" json:"id"`
	ProductID       *int64    `db:"product_id" json:"product_id,omitempty"`
	Name            string    `db:"name" json:"name"`
	ItemType        ItemType  `db:"item_type" json:"item_type"`
	Rarity          Rarity    `db:"rarity" json:"rarity"`
	MintNFT         bool      `db:"mint_nft" json:"mint_nft"`
	IsTradeable     bool      `db:"is_tradeable" json:"is_tradeable"`
	QuantityLimit   *int64    `db:"quantity_limit" json:"quantity_limit,omitempty"`
	CurrentQuantity int64     `db:"current_quantity" json:"current_quantity"`
	BaseStats       BaseStats `db:"base_stats" json:"base_stats"`
	Status          string    `db:"status" json:"status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

func (i Item) Active() bool {
	return i.Status == "active"
}

// HasCapacity reports whether qty more units may be issued.
func (i Item) HasCapacity(qty int64) bool {
	return i.QuantityLimit == nil || i.CurrentQuantity+qty <= *i.QuantityLimit
}

type UserItem struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	ItemID    int64     `db:"item_id" json:"item_id"`
	Quantity  int64     `db:"quantity" json:"quantity"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type NFT struct {
	ID                int64        `db:"id" json:"id"`
	ItemID            int64        `db:"item_id" json:"item_id"`
	NFTHash           string       `db:"nft_hash" json:"nft_hash"`
	NFTToken          string       `db:"nft_token" json:"nft_token"`
	OwnerID           int64        `db:"owner_id" json:"owner_id"`
	OriginalOwnerID   int64        `db:"original_owner_id" json:"original_owner_id"`
	Rarity            Rarity       `db:"rarity" json:"rarity"`
	UpgradeLevel      int          `db:"upgrade_level" json:"upgrade_level"`
	CustomStats       *CustomStats `db:"custom_stats" json:"custom_stats,omitempty"`
	CustomImage       *string      `db:"custom_image" json:"custom_image,omitempty"`
	Metadata          NFTMetadata  `db:"metadata" json:"metadata"`
	IsTradeable       bool         `db:"is_tradeable" json:"is_tradeable"`
	MintTransactionID string       `db:"mint_transaction_id" json:"mint_transaction_id"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at" json:"updated_at"`
}

type TradeStatus string

const (
	TradePending   TradeStatus = "pending"
	TradeAccepted  TradeStatus = "accepted"
	TradeCompleted TradeStatus = "completed"
	TradeFailed    TradeStatus = "failed"
	TradeDeclined  TradeStatus = "declined"
	TradeCancelled TradeStatus = "cancelled"
	TradeExpired   TradeStatus = "expired"
)

func (s TradeStatus) Terminal() bool {
	switch s {
	case TradeCompleted, TradeFailed, TradeDeclined, TradeCancelled, TradeExpired:
		return true
	}
	return false
}

type Trade struct {
	ID                  int64          `db:"id" json:"id"`
	TradeToken          string         `db:"trade_token" json:"trade_token"`
	InitiatorID         int64          `db:"initiator_id" json:"initiator_id"`
	TargetID            int64          `db:"target_id" json:"target_id"`
	InitiatorItems      ItemAssets     `db:"initiator_items" json:"initiator_items"`
	TargetItems         ItemAssets     `db:"target_items" json:"target_items"`
	InitiatorCurrencies CurrencyAssets `db:"initiator_currencies" json:"initiator_currencies"`
	TargetCurrencies    CurrencyAssets `db:"target_currencies" json:"target_currencies"`
	InitiatorNFTs       NFTIDs         `db:"initiator_nfts" json:"initiator_nfts"`
	TargetNFTs          NFTIDs         `db:"target_nfts" json:"target_nfts"`
	Message             string         `db:"message" json:"message"`
	Status              TradeStatus    `db:"status" json:"status"`
	FailureReason       *string        `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	ExpiresAt           time.Time      `db:"expires_at" json:"expires_at"`
	CompletedAt         *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

func (t Trade) InitiatorOffer() Offer {
	return Offer{Items: t.InitiatorItems, Currencies: t.InitiatorCurrencies, NFTs: t.InitiatorNFTs}
}

func (t Trade) TargetOffer() Offer {
	return Offer{Items: t.TargetItems, Currencies: t.TargetCurrencies, NFTs: t.TargetNFTs}
}

// Involves reports whether userID is one of the two parties.
func (t Trade) Involves(userID int64) bool {
	return t.InitiatorID == userID || t.TargetID == userID
}

type ItemAsset struct {
	ItemID   int64 `json:"item_id" validate:"gt=0"`
	Quantity int64 `json:"quantity" validate:"gt=0"`
}

type CurrencyAsset struct {
	CurrencyID int64           `json:"currency_id" validate:"gt=0"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
}

// Offer is one side of a trade.
type Offer struct {
	Items      ItemAssets     `json:"items" validate:"max=10,dive"`
	Currencies CurrencyAssets `json:"currencies" validate:"max=10,dive"`
	NFTs       NFTIDs         `json:"nfts" validate:"max=10,dive,gt=0"`
}

func (o Offer) Empty() bool {
	return len(o.Items) == 0 && len(o.Currencies) == 0 && len(o.NFTs) == 0
}

type AssetType string

const (
	AssetItem     AssetType = "item"
	AssetCurrency AssetType = "currency"
	AssetNFT      AssetType = "nft"
)

type Reservation struct {
	TradeID   int64           `db:"trade_id" json:"trade_id"`
	UserID    int64           `db:"user_id" json:"user_id"`
	AssetType AssetType       `db:"asset_type" json:"asset_type"`
	AssetID   int64           `db:"asset_id" json:"asset_id"`
	Quantity  decimal.Decimal `db:"quantity" json:"quantity"`
}

type AuditLog struct {
	ID         int64     `db:"id" json:"id"`
	UserID     *int64    `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	ObjectType string    `db:"object_type" json:"object_type"`
	ObjectID   string    `db:"object_id" json:"object_id"`
	Details    string    `db:"details" json:"details"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	Severity   string    `db:"severity" json:"severity"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type Notification struct {
	ID        int64      `db:"id" json:"id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	EventType string     `db:"event_type" json:"event_type"`
	Payload   string     `db:"payload" json:"payload"`
	ReadAt    *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
