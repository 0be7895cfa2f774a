package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

const (
	NFTMetadataVersion = 1
	CustomStatsVersion = 1
)

var errUnsupportedJSONSource = errors.New("unsupported json source")

// NFTMetadata is the versioned metadata blob stored with every NFT.
// Decoding ignores unknown fields and keeps zero values for missing ones.
type NFTMetadata struct {
	Version           int             `json:"version"`
	MintTimestamp     int64           `json:"mint_timestamp"`
	MintBlock         int64           `json:"mint_block"`
	MintNonce         string          `json:"mint_nonce"`
	AuthenticityScore float64         `json:"authenticity_score"`
	UpgradeHistory    []UpgradeRecord `json:"upgrade_history"`
	Attributes        map[string]any  `json:"attributes,omitempty"`
}

type UpgradeRecord struct {
	From       Rarity    `json:"from"`
	To         Rarity    `json:"to"`
	Level      int       `json:"level"`
	UpgradedAt time.Time `json:"upgraded_at"`
}

func (m NFTMetadata) Value() (driver.Value, error) {
	if m.Version == 0 {
		m.Version = NFTMetadataVersion
	}
	if m.UpgradeHistory == nil {
		m.UpgradeHistory = []UpgradeRecord{}
	}
	return json.Marshal(m)
}

func (m *NFTMetadata) Scan(src any) error {
	*m = NFTMetadata{}
	if err := scanJSON(src, m); err != nil {
		return err
	}
	if m.Version == 0 {
		m.Version = NFTMetadataVersion
	}
	return nil
}

// CustomStats is the stat block attached to upgraded NFTs.
type CustomStats struct {
	Version          int                `json:"version"`
	Stats            map[string]float64 `json:"stats"`
	Multiplier       float64            `json:"multiplier"`
	SpecialAbilities []string           `json:"special_abilities,omitempty"`
}

func (c *CustomStats) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	out := *c
	if out.Version == 0 {
		out.Version = CustomStatsVersion
	}
	return json.Marshal(out)
}

func (c *CustomStats) Scan(src any) error {
	*c = CustomStats{}
	if err := scanJSON(src, c); err != nil {
		return err
	}
	if c.Version == 0 {
		c.Version = CustomStatsVersion
	}
	if c.Multiplier == 0 {
		c.Multiplier = 1
	}
	return nil
}

// BaseStats are the per-item stats NFTs scale from.
type BaseStats map[string]float64

func (b BaseStats) Value() (driver.Value, error) {
	if b == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]float64(b))
}

func (b *BaseStats) Scan(src any) error {
	*b = BaseStats{}
	return scanJSON(src, (*map[string]float64)(b))
}

type ItemAssets []ItemAsset

func (a ItemAssets) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]ItemAsset(a))
}

func (a *ItemAssets) Scan(src any) error {
	*a = ItemAssets{}
	return scanJSON(src, (*[]ItemAsset)(a))
}

type CurrencyAssets []CurrencyAsset

func (a CurrencyAssets) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]CurrencyAsset(a))
}

func (a *CurrencyAssets) Scan(src any) error {
	*a = CurrencyAssets{}
	return scanJSON(src, (*[]CurrencyAsset)(a))
}

type NFTIDs []int64

func (a NFTIDs) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]int64(a))
}

func (a *NFTIDs) Scan(src any) error {
	*a = NFTIDs{}
	return scanJSON(src, (*[]int64)(a))
}

func scanJSON(src any, dest any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errUnsupportedJSONSource
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
