package security

import (
	"errors"
	"fmt"

	"inventory/internal/models"
	"inventory/internal/validator"
)

var ErrInvalidTradeData = errors.New("invalid trade data")

// TradePayload is the structural shape of a trade proposal.
type TradePayload struct {
	TargetUserID   int64        `json:"target_user_id" validate:"gt=0"`
	InitiatorOffer models.Offer `json:"initiator_offer"`
	TargetOffer    models.Offer `json:"target_offer"`
	Message        string       `json:"message" validate:"max=500"`
}

// ValidateTradeData checks ids and quantities are positive, each asset list
// holds at most 10 entries and at least one side offers something.
func ValidateTradeData(payload TradePayload) error {
	if err := validator.Struct(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTradeData, err)
	}
	if payload.InitiatorOffer.Empty() && payload.TargetOffer.Empty() {
		return fmt.Errorf("%w: both offers are empty", ErrInvalidTradeData)
	}
	for _, offer := range []models.Offer{payload.InitiatorOffer, payload.TargetOffer} {
		if err := rejectDuplicates(offer); err != nil {
			return err
		}
	}
	return nil
}

func rejectDuplicates(offer models.Offer) error {
	items := make(map[int64]struct{}, len(offer.Items))
	for _, item := range offer.Items {
		if _, ok := items[item.ItemID]; ok {
			return fmt.Errorf("%w: item %d listed twice", ErrInvalidTradeData, item.ItemID)
		}
		items[item.ItemID] = struct{}{}
	}
	currencies := make(map[int64]struct{}, len(offer.Currencies))
	for _, c := range offer.Currencies {
		if _, ok := currencies[c.CurrencyID]; ok {
			return fmt.Errorf("%w: currency %d listed twice", ErrInvalidTradeData, c.CurrencyID)
		}
		currencies[c.CurrencyID] = struct{}{}
	}
	nfts := make(map[int64]struct{}, len(offer.NFTs))
	for _, id := range offer.NFTs {
		if _, ok := nfts[id]; ok {
			return fmt.Errorf("%w: nft %d listed twice", ErrInvalidTradeData, id)
		}
		nfts[id] = struct{}{}
	}
	return nil
}
