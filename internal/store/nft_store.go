package store

import (
	"context"
	"time"

	"inventory/internal/models"
)

type NFTStore struct {
	db DB
}

type NFTInput struct {
	ItemID            int64
	NFTHash           string
	NFTToken          string
	OwnerID           int64
	Rarity            models.Rarity
	Metadata          models.NFTMetadata
	IsTradeable       bool
	MintTransactionID string
}

// BurnRecord is the archive row written before an NFT is deleted.
type BurnRecord struct {
	ID       string
	NFTID    int64
	NFTToken string
	OwnerID  int64
	BurnHash string
	Reason   string
	Snapshot string
}

// UpgradeInput is the state an upgrade writes back.
type UpgradeInput struct {
	Rarity       models.Rarity
	UpgradeLevel int
	CustomStats  *models.CustomStats
	CustomImage  *string
	Metadata     models.NFTMetadata
	IsTradeable  bool
}

const nftColumns = `id, item_id, nft_hash, nft_token, owner_id, original_owner_id, rarity, upgrade_level, custom_stats, custom_image, metadata, is_tradeable, mint_transaction_id, created_at, updated_at`

func NewNFTStore(db DB) *NFTStore {
	return &NFTStore{db: db}
}

// Create inserts a freshly minted NFT. created_at is passed in because it
// is part of the mint hash.
func (s *NFTStore) Create(ctx context.Context, tx Getter, input NFTInput, createdAt time.Time) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `
		INSERT INTO nfts (item_id, nft_hash, nft_token, owner_id, original_owner_id, rarity, metadata, is_tradeable, mint_transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id
	`, input.ItemID, input.NFTHash, input.NFTToken, input.OwnerID, input.Rarity, input.Metadata,
		input.IsTradeable, input.MintTransactionID, createdAt)
	return id, err
}

func (s *NFTStore) GetByID(ctx context.Context, id int64) (models.NFT, error) {
	var row models.NFT
	err := s.db.GetContext(ctx, &row, `SELECT `+nftColumns+` FROM nfts WHERE id = $1`, id)
	return row, err
}

func (s *NFTStore) GetByToken(ctx context.Context, token string) (models.NFT, error) {
	var row models.NFT
	err := s.db.GetContext(ctx, &row, `SELECT `+nftColumns+` FROM nfts WHERE nft_token = $1`, token)
	return row, err
}

func (s *NFTStore) GetForUpdate(ctx context.Context, tx Getter, id int64) (models.NFT, error) {
	var row models.NFT
	err := tx.GetContext(ctx, &row, `SELECT `+nftColumns+` FROM nfts WHERE id = $1 FOR UPDATE`, id)
	return row, err
}

func (s *NFTStore) ListByOwner(ctx context.Context, ownerID int64) ([]models.NFT, error) {
	var rows []models.NFT
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+nftColumns+`
		FROM nfts
		WHERE owner_id = $1
		ORDER BY id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListUpgradeable returns the owner's NFTs of an item that are not yet mythic.
func (s *NFTStore) ListUpgradeable(ctx context.Context, ownerID, itemID int64) ([]models.NFT, error) {
	var rows []models.NFT
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+nftColumns+`
		FROM nfts
		WHERE owner_id = $1 AND item_id = $2 AND rarity <> 'mythic'
		ORDER BY id
	`, ownerID, itemID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *NFTStore) CountByOwner(ctx context.Context, ownerID int64) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM nfts WHERE owner_id = $1`, ownerID)
	return count, err
}

// TransferOwner moves the NFT only while from still owns it and it is
// tradeable. Zero rows affected means one of those no longer holds.
func (s *NFTStore) TransferOwner(ctx context.Context, tx Execer, id, from, to int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE nfts
		SET owner_id = $3, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND is_tradeable = TRUE
	`, id, from, to)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *NFTStore) SaveUpgrade(ctx context.Context, tx Execer, id int64, input UpgradeInput) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE nfts
		SET rarity = $2, upgrade_level = $3, custom_stats = $4, custom_image = COALESCE($5, custom_image),
		    metadata = $6, is_tradeable = $7, updated_at = NOW()
		WHERE id = $1
	`, id, input.Rarity, input.UpgradeLevel, input.CustomStats, input.CustomImage, input.Metadata, input.IsTradeable)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *NFTStore) Archive(ctx context.Context, tx Execer, record BurnRecord) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO nft_burns (id, nft_id, nft_token, owner_id, burn_hash, reason, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, record.ID, record.NFTID, record.NFTToken, record.OwnerID, record.BurnHash, record.Reason, record.Snapshot)
	return err
}

func (s *NFTStore) Delete(ctx context.Context, tx Execer, id int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM nfts WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
