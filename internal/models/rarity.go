package models

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
	RarityMythic    Rarity = "mythic"
)

// RarityLadder is ordered from lowest to highest. Upgrades only move right.
var RarityLadder = []Rarity{
	RarityCommon,
	RarityUncommon,
	RarityRare,
	RarityEpic,
	RarityLegendary,
	RarityMythic,
}

// Rank returns the position on the ladder, or -1 for unknown values.
func (r Rarity) Rank() int {
	for i, step := range RarityLadder {
		if step == r {
			return i
		}
	}
	return -1
}

func (r Rarity) Valid() bool {
	return r.Rank() >= 0
}

// Next returns the successor rarity. Mythic is the ceiling.
func (r Rarity) Next() (Rarity, bool) {
	rank := r.Rank()
	if rank < 0 || rank == len(RarityLadder)-1 {
		return r, false
	}
	return RarityLadder[rank+1], true
}

// Precedes reports whether r is strictly lower than other.
func (r Rarity) Precedes(other Rarity) bool {
	return r.Valid() && other.Valid() && r.Rank() < other.Rank()
}

// StatMultiplier scales base item stats for an NFT of this rarity.
func (r Rarity) StatMultiplier() float64 {
	switch r {
	case RarityUncommon:
		return 1.5
	case RarityRare:
		return 2.0
	case RarityEpic:
		return 3.0
	case RarityLegendary:
		return 4.0
	case RarityMythic:
		return 5.0
	default:
		return 1.0
	}
}

// Score feeds the mint-time authenticity score.
func (r Rarity) Score() float64 {
	switch r {
	case RarityUncommon:
		return 70
	case RarityRare:
		return 80
	case RarityEpic:
		return 88
	case RarityLegendary:
		return 95
	case RarityMythic:
		return 100
	default:
		return 60
	}
}
