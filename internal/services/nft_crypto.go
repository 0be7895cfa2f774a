package services

import (
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"inventory/internal/models"

	"golang.org/x/crypto/sha3"
)

var tokenPattern = regexp.MustCompile(`^MINV-\d{4}-\d{4}-\d{10}-[A-F0-9]{8}$`)

func sha3Hex(parts ...any) string {
	fields := make([]string, len(parts))
	for i, part := range parts {
		fields[i] = fmt.Sprint(part)
	}
	sum := sha3.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}

// MintHash fingerprints an NFT from the values fixed at mint time.
func MintHash(itemID, originalOwnerID, mintedAt int64, nonce, salt string) string {
	return sha3Hex(itemID, originalOwnerID, mintedAt, nonce, salt)
}

// MintToken renders the public token. The suffix is the first 32 bits of
// the mint hash.
func MintToken(itemID int64, serial int, mintedAt int64, hash string) string {
	return fmt.Sprintf("MINV-%04d-%04d-%010d-%s", itemID%10000, serial%10000, mintedAt, tokenSuffix(hash))
}

func tokenSuffix(hash string) string {
	if len(hash) < 8 {
		return strings.ToUpper(hash)
	}
	return strings.ToUpper(hash[:8])
}

func ValidTokenFormat(token string) bool {
	return tokenPattern.MatchString(token)
}

// MintScore is the authenticity score recorded at mint: the mean of the
// owner's reputation proxy, the rarity score, timestamp entropy and a
// random factor in [50,100), clamped to [50,100].
func MintScore(ownedNFTs int64, rarity models.Rarity, mintedAt time.Time, random float64) float64 {
	reputation := math.Min(100, 50+5*float64(ownedNFTs))
	entropy := 50 + float64(mintedAt.UnixNano()%1000)/20
	randomFactor := 50 + 50*random
	score := (reputation + rarity.Score() + entropy + randomFactor) / 4
	return roundScore(clamp(score, 50, 100))
}

// LiveScore ages the mint score: up to five points for age in months plus
// two per upgrade level, capped at 100.
func LiveScore(nft models.NFT, now time.Time) float64 {
	base := nft.Metadata.AuthenticityScore
	ageDays := now.Sub(nft.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	score := base + math.Min(ageDays/30, 5) + 2*float64(nft.UpgradeLevel)
	return roundScore(math.Min(score, 100))
}

func clamp(value, low, high float64) float64 {
	return math.Max(low, math.Min(high, value))
}

func roundScore(value float64) float64 {
	return math.Round(value*100) / 100
}
