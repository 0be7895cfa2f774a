package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"inventory/internal/db"
	"inventory/internal/models"
	"inventory/internal/notify"
	"inventory/internal/security"
	"inventory/internal/store"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const mintAttempts = 3

type NFTService struct {
	txRunner db.TxRunner
	nfts     NFTStore
	items    ItemStore
	gate     Gate
	notifier Notifier
	policies Policies
	salt     string
	node     *snowflake.Node

	mu  sync.Mutex
	rng *rand.Rand

	now      func() time.Time
	newNonce func() string
}

func NewNFTService(txRunner db.TxRunner, nfts NFTStore, items ItemStore, gate Gate, notifier Notifier, policies Policies, salt string, nodeID int64) (*NFTService, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("mint node: %w", err)
	}
	return &NFTService{
		txRunner: txRunner,
		nfts:     nfts,
		items:    items,
		gate:     gate,
		notifier: notifier,
		policies: policies,
		salt:     salt,
		node:     node,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		newNonce: uuid.NewString,
	}, nil
}

type MintRequest struct {
	ItemID     int64          `json:"item_id"`
	OwnerID    int64          `json:"owner_id"`
	Rarity     models.Rarity  `json:"rarity"`
	Attributes map[string]any `json:"attributes"`
}

type NFTTransferRequest struct {
	NFTID      int64  `json:"nft_id"`
	FromUserID int64  `json:"from_user_id"`
	ToUserID   int64  `json:"to_user_id"`
	Type       string `json:"type"`
}

type UpgradeRequest struct {
	NFTID       int64               `json:"nft_id"`
	NewRarity   models.Rarity       `json:"new_rarity"`
	CustomStats *models.CustomStats `json:"custom_stats"`
	CustomImage *string             `json:"custom_image"`
}

type Verification struct {
	Valid bool    `json:"valid"`
	Error string  `json:"error,omitempty"`
	Score float64 `json:"score,omitempty"`
	NFTID int64   `json:"nft_id,omitempty"`
}

type Certificate struct {
	CertificateID     string        `json:"certificate_id"`
	NFTID             int64         `json:"nft_id"`
	NFTToken          string        `json:"nft_token"`
	NFTHash           string        `json:"nft_hash"`
	ItemName          string        `json:"item_name"`
	Rarity            models.Rarity `json:"rarity"`
	UpgradeLevel      int           `json:"upgrade_level"`
	OwnerID           int64         `json:"owner_id"`
	OwnerName         string        `json:"owner_name"`
	MintedAt          time.Time     `json:"minted_at"`
	AuthenticityScore float64       `json:"authenticity_score"`
	CertificateHash   string        `json:"certificate_hash"`
	IssuedAt          time.Time     `json:"issued_at"`
}

func (s *NFTService) Get(ctx context.Context, id int64) (models.NFT, error) {
	nft, err := s.nfts.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NFT{}, ErrNFTNotFound
	}
	return nft, wrapStorage("get nft", err)
}

func (s *NFTService) ListByOwner(ctx context.Context, ownerID int64) ([]models.NFT, error) {
	rows, err := s.nfts.ListByOwner(ctx, ownerID)
	return rows, wrapStorage("list nfts", err)
}

func (s *NFTService) Mint(ctx context.Context, req MintRequest) (models.NFT, error) {
	if req.ItemID <= 0 || req.OwnerID <= 0 {
		return models.NFT{}, ErrValidation
	}
	if req.Rarity == "" {
		req.Rarity = models.RarityCommon
	}
	if !req.Rarity.Valid() {
		return models.NFT{}, ErrValidation
	}
	exists, err := s.gate.UserExists(ctx, req.OwnerID)
	if err != nil {
		return models.NFT{}, wrapStorage("mint", err)
	}
	if !exists {
		return models.NFT{}, ErrUserNotFound
	}
	item, err := s.items.GetByID(ctx, req.ItemID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NFT{}, ErrItemNotFound
	}
	if err != nil {
		return models.NFT{}, wrapStorage("mint", err)
	}
	var nft models.NFT
	for attempt := 1; ; attempt++ {
		err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			var err error
			nft, err = s.MintWithin(ctx, tx, item, req)
			return err
		})
		if !db.IsUniqueViolation(err) || attempt == mintAttempts {
			break
		}
	}
	if err != nil {
		return models.NFT{}, wrapStorage("mint", err)
	}
	s.gate.LogSecurityEvent(ctx, security.Event{
		UserID:     req.OwnerID,
		Action:     "nft_minted",
		ObjectType: "nft",
		ObjectID:   fmt.Sprint(nft.ID),
		Details:    map[string]any{"item_id": item.ID, "token": nft.NFTToken, "rarity": nft.Rarity},
	})
	s.notifier.Notify(ctx, req.OwnerID, notify.EventNFTReceived, map[string]any{"nft_id": nft.ID, "token": nft.NFTToken})
	return nft, nil
}

// MintWithin issues one unit of item as an NFT inside the caller's
// transaction.
func (s *NFTService) MintWithin(ctx context.Context, tx store.Tx, item models.Item, req MintRequest) (models.NFT, error) {
	if !item.Active() {
		return models.NFT{}, ErrItemNotFound
	}
	rarity := req.Rarity
	if rarity == "" {
		rarity = models.RarityCommon
	}
	rows, err := s.items.ReserveIssue(ctx, tx, item.ID, 1)
	if err != nil {
		return models.NFT{}, err
	}
	if rows == 0 {
		return models.NFT{}, ErrQuantityLimitReached
	}
	owned, err := s.nfts.CountByOwner(ctx, req.OwnerID)
	if err != nil {
		return models.NFT{}, err
	}

	mintedAt := s.now().UTC().Truncate(time.Second)
	nonce := s.newNonce()
	random, serial := s.draw()
	hash := MintHash(item.ID, req.OwnerID, mintedAt.Unix(), nonce, s.salt)
	metadata := models.NFTMetadata{
		Version:           models.NFTMetadataVersion,
		MintTimestamp:     mintedAt.Unix(),
		MintBlock:         s.node.Generate().Int64(),
		MintNonce:         nonce,
		AuthenticityScore: MintScore(owned, rarity, s.now(), random),
		UpgradeHistory:    []models.UpgradeRecord{},
		Attributes:        req.Attributes,
	}
	input := store.NFTInput{
		ItemID:            item.ID,
		NFTHash:           hash,
		NFTToken:          MintToken(item.ID, serial, mintedAt.Unix(), hash),
		OwnerID:           req.OwnerID,
		Rarity:            rarity,
		Metadata:          metadata,
		IsTradeable:       item.IsTradeable,
		MintTransactionID: "mint-" + s.node.Generate().String(),
	}
	id, err := s.nfts.Create(ctx, tx, input, mintedAt)
	if err != nil {
		return models.NFT{}, err
	}
	return models.NFT{
		ID:                id,
		ItemID:            item.ID,
		NFTHash:           input.NFTHash,
		NFTToken:          input.NFTToken,
		OwnerID:           req.OwnerID,
		OriginalOwnerID:   req.OwnerID,
		Rarity:            rarity,
		Metadata:          metadata,
		IsTradeable:       input.IsTradeable,
		MintTransactionID: input.MintTransactionID,
		CreatedAt:         mintedAt,
		UpdatedAt:         mintedAt,
	}, nil
}

func (s *NFTService) Transfer(ctx context.Context, req NFTTransferRequest) error {
	if req.NFTID <= 0 || req.FromUserID <= 0 || req.ToUserID <= 0 {
		return ErrValidation
	}
	if req.FromUserID == req.ToUserID {
		return ErrSameUser
	}
	if req.Type == "" {
		req.Type = "trade"
	}
	exists, err := s.gate.UserExists(ctx, req.ToUserID)
	if err != nil {
		return wrapStorage("transfer nft", err)
	}
	if !exists {
		return ErrTargetUserNotFound
	}
	if err := s.gate.CheckRateLimit(ctx, req.FromUserID, s.policies.NFT); err != nil {
		return err
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.TransferWithin(ctx, tx, req.NFTID, req.FromUserID, req.ToUserID)
	})
	if err != nil {
		return wrapStorage("transfer nft", err)
	}
	s.gate.LogSecurityEvent(ctx, security.Event{
		UserID:     req.FromUserID,
		Action:     "nft_transferred",
		ObjectType: "nft",
		ObjectID:   fmt.Sprint(req.NFTID),
		Details:    map[string]any{"to_user_id": req.ToUserID, "type": req.Type},
	})
	s.notifier.Notify(ctx, req.ToUserID, notify.EventNFTReceived, map[string]any{"nft_id": req.NFTID, "from_user_id": req.FromUserID})
	return nil
}

// TransferWithin re-reads the owner under lock and moves the NFT inside the
// caller's transaction.
func (s *NFTService) TransferWithin(ctx context.Context, tx store.Tx, nftID, fromUserID, toUserID int64) error {
	nft, err := s.nfts.GetForUpdate(ctx, tx, nftID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNFTNotFound
	}
	if err != nil {
		return err
	}
	if nft.OwnerID != fromUserID {
		return ErrNotOwnedByUser
	}
	if !nft.IsTradeable {
		return ErrNotTradeable
	}
	rows, err := s.nfts.TransferOwner(ctx, tx, nftID, fromUserID, toUserID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotOwnedByUser
	}
	return nil
}

// Upgrade raises the NFT to a later rarity. The owner's NFT rate limit applies.
func (s *NFTService) Upgrade(ctx context.Context, req UpgradeRequest) (models.NFT, error) {
	if req.NFTID <= 0 || !req.NewRarity.Valid() {
		return models.NFT{}, ErrInvalidUpgrade
	}
	nft, err := s.nfts.GetByID(ctx, req.NFTID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NFT{}, ErrNFTNotFound
	}
	if err != nil {
		return models.NFT{}, wrapStorage("upgrade nft", err)
	}
	if err := s.gate.CheckRateLimit(ctx, nft.OwnerID, s.policies.NFT); err != nil {
		return models.NFT{}, err
	}
	return s.upgrade(ctx, req)
}

func (s *NFTService) upgrade(ctx context.Context, req UpgradeRequest) (models.NFT, error) {
	var upgraded models.NFT
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		nft, err := s.nfts.GetForUpdate(ctx, tx, req.NFTID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNFTNotFound
		}
		if err != nil {
			return err
		}
		if !nft.Rarity.Precedes(req.NewRarity) {
			return ErrInvalidUpgrade
		}
		metadata := nft.Metadata
		metadata.UpgradeHistory = append(append([]models.UpgradeRecord{}, metadata.UpgradeHistory...), models.UpgradeRecord{
			From:       nft.Rarity,
			To:         req.NewRarity,
			Level:      nft.UpgradeLevel + 1,
			UpgradedAt: s.now().UTC(),
		})
		stats := nft.CustomStats
		if req.CustomStats != nil {
			stats = req.CustomStats
		}
		input := store.UpgradeInput{
			Rarity:       req.NewRarity,
			UpgradeLevel: nft.UpgradeLevel + 1,
			CustomStats:  stats,
			CustomImage:  req.CustomImage,
			Metadata:     metadata,
			IsTradeable:  false,
		}
		rows, err := s.nfts.SaveUpgrade(ctx, tx, nft.ID, input)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNFTNotFound
		}
		nft.Rarity = input.Rarity
		nft.UpgradeLevel = input.UpgradeLevel
		nft.CustomStats = input.CustomStats
		if input.CustomImage != nil {
			nft.CustomImage = input.CustomImage
		}
		nft.Metadata = metadata
		nft.IsTradeable = false
		upgraded = nft
		return nil
	})
	if err != nil {
		return models.NFT{}, wrapStorage("upgrade nft", err)
	}
	s.gate.LogSecurityEvent(ctx, security.Event{
		UserID:     upgraded.OwnerID,
		Action:     "nft_upgraded",
		ObjectType: "nft",
		ObjectID:   fmt.Sprint(upgraded.ID),
		Details:    map[string]any{"rarity": upgraded.Rarity, "level": upgraded.UpgradeLevel},
	})
	return upgraded, nil
}

// UpgradeRandom lifts one of the user's non-mythic NFTs of the item a
// single step and rescales its stats from the item's base stats.
func (s *NFTService) UpgradeRandom(ctx context.Context, userID, itemID int64) (models.NFT, error) {
	if userID <= 0 || itemID <= 0 {
		return models.NFT{}, ErrValidation
	}
	if err := s.gate.CheckRateLimit(ctx, userID, s.policies.NFT); err != nil {
		return models.NFT{}, err
	}
	candidates, err := s.nfts.ListUpgradeable(ctx, userID, itemID)
	if err != nil {
		return models.NFT{}, wrapStorage("upgrade random", err)
	}
	if len(candidates) == 0 {
		return models.NFT{}, ErrNoUpgradeableItems
	}
	item, err := s.items.GetByID(ctx, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NFT{}, ErrItemNotFound
	}
	if err != nil {
		return models.NFT{}, wrapStorage("upgrade random", err)
	}
	pick := candidates[s.intn(len(candidates))]
	next, ok := pick.Rarity.Next()
	if !ok {
		return models.NFT{}, ErrInvalidUpgrade
	}
	return s.upgrade(ctx, UpgradeRequest{
		NFTID:       pick.ID,
		NewRarity:   next,
		CustomStats: ScaledStats(item.BaseStats, next),
	})
}

// ScaledStats multiplies base stats by the rarity multiplier and attaches
// the abilities of the top rarities.
func ScaledStats(base models.BaseStats, rarity models.Rarity) *models.CustomStats {
	multiplier := rarity.StatMultiplier()
	stats := make(map[string]float64, len(base))
	for name, value := range base {
		stats[name] = value * multiplier
	}
	out := &models.CustomStats{
		Version:    models.CustomStatsVersion,
		Stats:      stats,
		Multiplier: multiplier,
	}
	switch rarity {
	case models.RarityLegendary:
		out.SpecialAbilities = []string{"enhanced_drop_rate", "legendary_aura"}
	case models.RarityMythic:
		out.SpecialAbilities = []string{"enhanced_drop_rate", "legendary_aura", "mythic_resonance"}
	}
	return out
}

func (s *NFTService) VerifyAuthenticity(ctx context.Context, token string) (Verification, error) {
	if !ValidTokenFormat(token) {
		return Verification{Error: "invalid token format"}, nil
	}
	nft, err := s.nfts.GetByToken(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return Verification{Error: "nft not found"}, nil
	}
	if err != nil {
		return Verification{}, wrapStorage("verify nft", err)
	}
	expected := MintHash(nft.ItemID, nft.OriginalOwnerID, nft.CreatedAt.Unix(), nft.Metadata.MintNonce, s.salt)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(nft.NFTHash)) != 1 {
		return Verification{NFTID: nft.ID, Error: "hash mismatch"}, nil
	}
	if token[len(token)-8:] != tokenSuffix(expected) {
		return Verification{NFTID: nft.ID, Error: "token does not match hash"}, nil
	}
	return Verification{Valid: true, Score: LiveScore(nft, s.now()), NFTID: nft.ID}, nil
}

// Burn archives the NFT and deletes the live row. It returns the burn hash.
func (s *NFTService) Burn(ctx context.Context, nftID int64, reason string) (string, error) {
	if nftID <= 0 {
		return "", ErrValidation
	}
	var burned models.NFT
	var burnHash string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		nft, err := s.nfts.GetForUpdate(ctx, tx, nftID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNFTNotFound
		}
		if err != nil {
			return err
		}
		snapshot, err := json.Marshal(nft)
		if err != nil {
			return err
		}
		burnHash = sha3Hex("burn", nft.NFTToken, nft.OwnerID, s.now().Unix(), reason, s.salt)
		if err := s.nfts.Archive(ctx, tx, store.BurnRecord{
			ID:       uuid.NewString(),
			NFTID:    nft.ID,
			NFTToken: nft.NFTToken,
			OwnerID:  nft.OwnerID,
			BurnHash: burnHash,
			Reason:   reason,
			Snapshot: string(snapshot),
		}); err != nil {
			return err
		}
		rows, err := s.nfts.Delete(ctx, tx, nft.ID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNFTNotFound
		}
		burned = nft
		return nil
	})
	if err != nil {
		return "", wrapStorage("burn nft", err)
	}
	s.gate.LogSecurityEvent(ctx, security.Event{
		UserID:     burned.OwnerID,
		Action:     "nft_burned",
		ObjectType: "nft",
		ObjectID:   fmt.Sprint(burned.ID),
		Details:    map[string]any{"token": burned.NFTToken, "reason": reason, "burn_hash": burnHash},
		Severity:   "warning",
	})
	return burnHash, nil
}

// GenerateCertificate builds a certificate of authenticity. It returns
// ok=false when the NFT does not exist.
func (s *NFTService) GenerateCertificate(ctx context.Context, nftID int64) (Certificate, bool, error) {
	nft, err := s.nfts.GetByID(ctx, nftID)
	if errors.Is(err, sql.ErrNoRows) {
		return Certificate{}, false, nil
	}
	if err != nil {
		return Certificate{}, false, wrapStorage("certificate", err)
	}
	item, err := s.items.GetByID(ctx, nft.ItemID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Certificate{}, false, wrapStorage("certificate", err)
	}
	owner, err := s.gate.DisplayName(ctx, nft.OwnerID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Certificate{}, false, wrapStorage("certificate", err)
	}
	hash := sha3Hex("certificate", nft.ID, nft.NFTToken, nft.NFTHash, nft.OwnerID, nft.Rarity, nft.UpgradeLevel)
	return Certificate{
		CertificateID:     "CERT-" + strings.ToUpper(hash[:16]),
		NFTID:             nft.ID,
		NFTToken:          nft.NFTToken,
		NFTHash:           nft.NFTHash,
		ItemName:          item.Name,
		Rarity:            nft.Rarity,
		UpgradeLevel:      nft.UpgradeLevel,
		OwnerID:           nft.OwnerID,
		OwnerName:         owner,
		MintedAt:          nft.CreatedAt,
		AuthenticityScore: LiveScore(nft, s.now()),
		CertificateHash:   hash,
		IssuedAt:          s.now().UTC(),
	}, true, nil
}

// draw returns a random factor in [0,1) and a four digit serial.
func (s *NFTService) draw() (float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64(), s.rng.Intn(10000)
}

func (s *NFTService) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}
