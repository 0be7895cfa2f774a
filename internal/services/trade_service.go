package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"inventory/internal/db"
	"inventory/internal/models"
	"inventory/internal/notify"
	"inventory/internal/security"
	"inventory/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
)

const expireBatchSize = 500

type ItemMover interface {
	MoveWithin(ctx context.Context, tx store.Tx, fromUserID, toUserID, itemID, qty int64) error
}

type CurrencyMover interface {
	TransferWithin(ctx context.Context, tx store.Tx, currency models.Currency, req TransferRequest, debitType, creditType models.TransactionType, refType, refID string) (TransferResult, error)
}

type NFTMover interface {
	TransferWithin(ctx context.Context, tx store.Tx, nftID, fromUserID, toUserID int64) error
}

// TradeDeps groups the collaborators of the trade orchestrator.
type TradeDeps struct {
	TxRunner      db.TxRunner
	Trades        TradeStore
	Reservations  ReservationStore
	Items         ItemStore
	UserItems     UserItemStore
	Currencies    CurrencyStore
	Balances      BalanceStore
	NFTs          NFTStore
	ItemMover     ItemMover
	CurrencyMover CurrencyMover
	NFTMover      NFTMover
	Gate          Gate
	Notifier      Notifier
	Policies      Policies
	TTL           time.Duration
}

type TradeService struct {
	TradeDeps
	now func() time.Time
}

func NewTradeService(deps TradeDeps) *TradeService {
	if deps.TTL <= 0 {
		deps.TTL = 24 * time.Hour
	}
	return &TradeService{TradeDeps: deps, now: time.Now}
}

type CreateTradeRequest struct {
	InitiatorID    int64        `json:"-"`
	TargetID       int64        `json:"target_user_id"`
	InitiatorOffer models.Offer `json:"initiator_offer"`
	TargetOffer    models.Offer `json:"target_offer"`
	Message        string       `json:"message"`
}

type nftLeg struct {
	NFTID int64
	From  int64
	To    int64
}

func (s *TradeService) Create(ctx context.Context, req CreateTradeRequest) (models.Trade, error) {
	if err := security.ValidateTradeData(security.TradePayload{
		TargetUserID:   req.TargetID,
		InitiatorOffer: req.InitiatorOffer,
		TargetOffer:    req.TargetOffer,
		Message:        req.Message,
	}); err != nil {
		return models.Trade{}, err
	}
	if req.InitiatorID <= 0 {
		return models.Trade{}, ErrValidation
	}
	if req.InitiatorID == req.TargetID {
		return models.Trade{}, ErrSameUser
	}
	if err := s.checkParty(ctx, req.InitiatorID, ErrUserNotFound); err != nil {
		return models.Trade{}, err
	}
	if err := s.checkParty(ctx, req.TargetID, ErrTargetUserNotFound); err != nil {
		return models.Trade{}, err
	}
	if err := s.Gate.CheckRateLimit(ctx, req.InitiatorID, s.Policies.Trade); err != nil {
		return models.Trade{}, err
	}

	now := s.now().UTC()
	input := store.TradeInput{
		TradeToken:     xid.New().String(),
		InitiatorID:    req.InitiatorID,
		TargetID:       req.TargetID,
		InitiatorOffer: req.InitiatorOffer,
		TargetOffer:    req.TargetOffer,
		Message:        req.Message,
		ExpiresAt:      now.Add(s.TTL),
	}
	var tradeID int64
	err := s.TxRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		pending, err := s.Trades.PendingBetween(ctx, tx, req.InitiatorID, req.TargetID)
		if err != nil {
			return err
		}
		if pending {
			return ErrDuplicatePendingTrade
		}
		if err := s.checkOffer(ctx, tx, req.InitiatorID, req.InitiatorOffer, 0, true); err != nil {
			return err
		}
		if err := s.checkOffer(ctx, tx, req.TargetID, req.TargetOffer, 0, false); err != nil {
			return err
		}
		tradeID, err = s.Trades.Create(ctx, tx, input)
		if err != nil {
			return err
		}
		if err := s.reserve(ctx, tx, tradeID, req.InitiatorID, req.InitiatorOffer); err != nil {
			return err
		}
		initiator := req.InitiatorID
		return s.Trades.AppendEvent(ctx, tx, tradeID, models.TradePending, &initiator, "created")
	})
	if db.IsUniqueViolation(err) {
		return models.Trade{}, ErrDuplicatePendingTrade
	}
	if err != nil {
		return models.Trade{}, wrapStorage("create trade", err)
	}

	s.Gate.LogSecurityEvent(ctx, security.Event{
		UserID:     req.InitiatorID,
		Action:     "trade_created",
		ObjectType: "trade",
		ObjectID:   fmt.Sprint(tradeID),
		Details:    map[string]any{"target_user_id": req.TargetID, "token": input.TradeToken},
	})
	s.Notifier.Notify(ctx, req.TargetID, notify.EventTradeReceived, map[string]any{
		"trade_id":     tradeID,
		"initiator_id": req.InitiatorID,
	})
	return models.Trade{
		ID:                  tradeID,
		TradeToken:          input.TradeToken,
		InitiatorID:         req.InitiatorID,
		TargetID:            req.TargetID,
		InitiatorItems:      req.InitiatorOffer.Items,
		TargetItems:         req.TargetOffer.Items,
		InitiatorCurrencies: req.InitiatorOffer.Currencies,
		TargetCurrencies:    req.TargetOffer.Currencies,
		InitiatorNFTs:       req.InitiatorOffer.NFTs,
		TargetNFTs:          req.TargetOffer.NFTs,
		Message:             req.Message,
		Status:              models.TradePending,
		CreatedAt:           now,
		ExpiresAt:           input.ExpiresAt,
		UpdatedAt:           now,
	}, nil
}

// Accept re-validates both sides, moves the trade to accepted and executes
// it. Only the target may accept.
func (s *TradeService) Accept(ctx context.Context, tradeID, actorID int64) (models.Trade, error) {
	trade, err := s.load(ctx, tradeID)
	if err != nil {
		return models.Trade{}, err
	}
	if trade.TargetID != actorID {
		return models.Trade{}, ErrNotAuthorized
	}
	if trade.Status != models.TradePending {
		return models.Trade{}, ErrTradeNotPending
	}
	if s.now().After(trade.ExpiresAt) {
		if _, err := s.expire(ctx, trade); err != nil {
			return models.Trade{}, err
		}
		return models.Trade{}, ErrTradeExpired
	}

	var invalid error
	err = s.TxRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		invalid = nil
		locked, err := s.Trades.GetForUpdate(ctx, tx, tradeID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTradeNotFound
		}
		if err != nil {
			return err
		}
		if locked.Status != models.TradePending {
			return ErrTradeNotPending
		}
		if err := s.checkOffer(ctx, tx, locked.InitiatorID, locked.InitiatorOffer(), tradeID, true); err != nil {
			invalid = err
			return err
		}
		if err := s.checkOffer(ctx, tx, locked.TargetID, locked.TargetOffer(), tradeID, true); err != nil {
			invalid = err
			return err
		}
		rows, err := s.Trades.TransitionStatus(ctx, tx, tradeID, models.TradeAccepted, nil, models.TradePending)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrTradeNotPending
		}
		return s.Trades.AppendEvent(ctx, tx, tradeID, models.TradeAccepted, &actorID, "")
	})
	if invalid != nil && isDomainError(invalid) {
		reason := reasonOf(invalid)
		s.markFailed(ctx, trade, reason, models.TradePending)
		return models.Trade{}, &TradeExecutionError{TradeID: tradeID, Reason: reason, Err: invalid}
	}
	if err != nil {
		return models.Trade{}, wrapStorage("accept trade", err)
	}
	return s.Execute(ctx, tradeID)
}

// Execute moves every leg of an accepted trade in one transaction. When any
// leg fails nothing moves and the trade is marked failed.
func (s *TradeService) Execute(ctx context.Context, tradeID int64) (models.Trade, error) {
	var trade models.Trade
	var stateErr error
	err := s.TxRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		stateErr = nil
		var err error
		trade, err = s.Trades.GetForUpdate(ctx, tx, tradeID)
		if errors.Is(err, sql.ErrNoRows) {
			stateErr = ErrTradeNotFound
			return stateErr
		}
		if err != nil {
			return err
		}
		if trade.Status != models.TradeAccepted {
			stateErr = ErrTradeNotPending
			return stateErr
		}
		if err := s.runLegs(ctx, tx, trade); err != nil {
			return err
		}
		rows, err := s.Trades.TransitionStatus(ctx, tx, tradeID, models.TradeCompleted, nil, models.TradeAccepted)
		if err != nil {
			return err
		}
		if rows == 0 {
			stateErr = ErrTradeNotPending
			return stateErr
		}
		if err := s.Reservations.Release(ctx, tx, tradeID); err != nil {
			return err
		}
		return s.Trades.AppendEvent(ctx, tx, tradeID, models.TradeCompleted, nil, "")
	})
	if stateErr != nil {
		return models.Trade{}, stateErr
	}
	if err != nil && trade.ID == 0 {
		return models.Trade{}, wrapStorage("execute trade", err)
	}
	if err != nil {
		wrapped := wrapStorage("execute trade", err)
		reason := reasonOf(wrapped)
		s.markFailed(ctx, trade, reason, models.TradeAccepted)
		return models.Trade{}, &TradeExecutionError{TradeID: tradeID, Reason: reason, Err: wrapped}
	}

	s.Gate.LogSecurityEvent(ctx, security.Event{
		UserID:     trade.TargetID,
		Action:     "trade_completed",
		ObjectType: "trade",
		ObjectID:   fmt.Sprint(tradeID),
		Details:    map[string]any{"initiator_id": trade.InitiatorID, "target_id": trade.TargetID},
	})
	for _, userID := range []int64{trade.InitiatorID, trade.TargetID} {
		s.Notifier.Notify(ctx, userID, notify.EventTradeCompleted, map[string]any{"trade_id": tradeID})
	}
	completedAt := s.now().UTC()
	trade.Status = models.TradeCompleted
	trade.CompletedAt = &completedAt
	return trade, nil
}

func (s *TradeService) runLegs(ctx context.Context, tx store.Tx, trade models.Trade) error {
	sides := []struct {
		from, to int64
		offer    models.Offer
	}{
		{trade.InitiatorID, trade.TargetID, trade.InitiatorOffer()},
		{trade.TargetID, trade.InitiatorID, trade.TargetOffer()},
	}
	var nfts []nftLeg
	for _, side := range sides {
		for _, asset := range side.offer.Items {
			if err := s.ItemMover.MoveWithin(ctx, tx, side.from, side.to, asset.ItemID, asset.Quantity); err != nil {
				return err
			}
		}
		for _, asset := range side.offer.Currencies {
			currency, err := s.activeCurrency(ctx, asset.CurrencyID)
			if err != nil {
				return err
			}
			if _, err := s.CurrencyMover.TransferWithin(ctx, tx, currency, TransferRequest{
				FromUserID:  side.from,
				ToUserID:    side.to,
				CurrencyID:  currency.ID,
				Amount:      currency.Round(asset.Amount),
				Description: "trade " + trade.TradeToken,
			}, models.TransactionTraded, models.TransactionTraded, "trade", fmt.Sprint(trade.ID)); err != nil {
				return err
			}
		}
		for _, id := range side.offer.NFTs {
			nfts = append(nfts, nftLeg{NFTID: id, From: side.from, To: side.to})
		}
	}
	// NFT rows are locked in id order so concurrent trades cannot deadlock.
	sort.Slice(nfts, func(i, j int) bool { return nfts[i].NFTID < nfts[j].NFTID })
	for _, leg := range nfts {
		if err := s.NFTMover.TransferWithin(ctx, tx, leg.NFTID, leg.From, leg.To); err != nil {
			return err
		}
	}
	return nil
}

func (s *TradeService) Decline(ctx context.Context, tradeID, actorID int64) error {
	return s.finish(ctx, tradeID, actorID, models.TradeDeclined)
}

func (s *TradeService) Cancel(ctx context.Context, tradeID, actorID int64) error {
	return s.finish(ctx, tradeID, actorID, models.TradeCancelled)
}

// finish closes a pending trade on behalf of one party. The target
// declines, the initiator cancels.
func (s *TradeService) finish(ctx context.Context, tradeID, actorID int64, to models.TradeStatus) error {
	trade, err := s.load(ctx, tradeID)
	if err != nil {
		return err
	}
	allowed := trade.TargetID
	other := trade.InitiatorID
	event := notify.EventTradeDeclined
	if to == models.TradeCancelled {
		allowed, other = trade.InitiatorID, trade.TargetID
		event = notify.EventTradeCancelled
	}
	if actorID != allowed {
		return ErrNotAuthorized
	}
	if trade.Status != models.TradePending {
		return ErrTradeNotPending
	}
	err = s.TxRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.Trades.TransitionStatus(ctx, tx, tradeID, to, nil, models.TradePending)
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrTradeNotPending
		}
		if err := s.Reservations.Release(ctx, tx, tradeID); err != nil {
			return err
		}
		return s.Trades.AppendEvent(ctx, tx, tradeID, to, &actorID, "")
	})
	if err != nil {
		return wrapStorage("finish trade", err)
	}
	s.Gate.LogSecurityEvent(ctx, security.Event{
		UserID:     actorID,
		Action:     "trade_" + string(to),
		ObjectType: "trade",
		ObjectID:   fmt.Sprint(tradeID),
	})
	s.Notifier.Notify(ctx, other, event, map[string]any{"trade_id": tradeID})
	return nil
}

// ExpireDue moves pending trades past their expiry to expired and returns
// how many were moved.
func (s *TradeService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.Trades.ListExpired(ctx, now, expireBatchSize)
	if err != nil {
		return 0, wrapStorage("list expired trades", err)
	}
	expired := 0
	for _, id := range ids {
		trade, err := s.Trades.GetByID(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return expired, wrapStorage("expire trade", err)
		}
		moved, err := s.expire(ctx, trade)
		if err != nil {
			return expired, err
		}
		if moved {
			expired++
		}
	}
	return expired, nil
}

func (s *TradeService) Get(ctx context.Context, tradeID, actorID int64) (models.Trade, error) {
	trade, err := s.load(ctx, tradeID)
	if err != nil {
		return models.Trade{}, err
	}
	if !trade.Involves(actorID) {
		return models.Trade{}, ErrNotAuthorized
	}
	return trade, nil
}

func (s *TradeService) ListForUser(ctx context.Context, userID int64, status models.TradeStatus, limit, offset int) ([]models.Trade, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	trades, err := s.Trades.ListForUser(ctx, userID, status, limit, offset)
	return trades, wrapStorage("list trades", err)
}

func (s *TradeService) expire(ctx context.Context, trade models.Trade) (bool, error) {
	moved := false
	err := s.TxRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.Trades.TransitionStatus(ctx, tx, trade.ID, models.TradeExpired, nil, models.TradePending)
		if err != nil {
			return err
		}
		moved = rows > 0
		if !moved {
			return nil
		}
		if err := s.Reservations.Release(ctx, tx, trade.ID); err != nil {
			return err
		}
		return s.Trades.AppendEvent(ctx, tx, trade.ID, models.TradeExpired, nil, "")
	})
	if err != nil {
		return false, wrapStorage("expire trade", err)
	}
	if moved {
		for _, userID := range []int64{trade.InitiatorID, trade.TargetID} {
			s.Notifier.Notify(ctx, userID, notify.EventTradeExpired, map[string]any{"trade_id": trade.ID})
		}
	}
	return moved, nil
}

// markFailed records the failure in its own transaction after the legs
// were rolled back.
func (s *TradeService) markFailed(ctx context.Context, trade models.Trade, reason string, from models.TradeStatus) {
	err := s.TxRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := s.Trades.TransitionStatus(ctx, tx, trade.ID, models.TradeFailed, &reason, from)
		if err != nil || rows == 0 {
			return err
		}
		if err := s.Reservations.Release(ctx, tx, trade.ID); err != nil {
			return err
		}
		return s.Trades.AppendEvent(ctx, tx, trade.ID, models.TradeFailed, nil, reason)
	})
	if err != nil {
		log.Printf("mark trade %d failed: %v", trade.ID, err)
	}
	s.Gate.LogSecurityEvent(ctx, security.Event{
		UserID:     trade.TargetID,
		Action:     "trade_failed",
		ObjectType: "trade",
		ObjectID:   fmt.Sprint(trade.ID),
		Details:    map[string]any{"reason": reason},
		Severity:   "warning",
	})
	for _, userID := range []int64{trade.InitiatorID, trade.TargetID} {
		if userID > 0 {
			s.Notifier.Notify(ctx, userID, notify.EventTradeFailed, map[string]any{"trade_id": trade.ID, "reason": reason})
		}
	}
}

// checkOffer verifies a side of a trade. strict requires the user to hold
// every asset net of reservations by other open trades; otherwise the
// assets only have to exist.
func (s *TradeService) checkOffer(ctx context.Context, q store.Getter, userID int64, offer models.Offer, excludeTradeID int64, strict bool) error {
	for _, asset := range offer.Items {
		item, err := s.Items.GetByID(ctx, asset.ItemID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrItemNotFound
		}
		if err != nil {
			return err
		}
		if !item.IsTradeable || !item.Active() {
			return ErrNotTradeable
		}
		if !strict {
			continue
		}
		holds, err := s.Gate.UserOwnsItem(ctx, userID, asset.ItemID)
		if err != nil {
			return err
		}
		if !holds {
			return ErrNotOwnedByUser
		}
		owned, err := s.UserItems.Quantity(ctx, q, userID, asset.ItemID)
		if err != nil {
			return err
		}
		reserved, err := s.Reservations.Reserved(ctx, q, userID, models.AssetItem, asset.ItemID, excludeTradeID)
		if err != nil {
			return err
		}
		if decimal.NewFromInt(owned).Sub(reserved).LessThan(decimal.NewFromInt(asset.Quantity)) {
			return ErrInsufficientQuantity
		}
	}
	for _, asset := range offer.Currencies {
		currency, err := s.activeCurrency(ctx, asset.CurrencyID)
		if err != nil {
			return err
		}
		if !currency.Round(asset.Amount).Equal(asset.Amount) {
			return ErrInvalidAmount
		}
		if !strict {
			continue
		}
		balance, err := s.Balances.Get(ctx, userID, asset.CurrencyID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoBalance
		}
		if err != nil {
			return err
		}
		reserved, err := s.Reservations.Reserved(ctx, q, userID, models.AssetCurrency, asset.CurrencyID, excludeTradeID)
		if err != nil {
			return err
		}
		if balance.Balance.Sub(reserved).LessThan(asset.Amount) {
			return ErrInsufficientFunds
		}
	}
	for _, id := range offer.NFTs {
		nft, err := s.NFTs.GetByID(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNFTNotFound
		}
		if err != nil {
			return err
		}
		if !strict {
			continue
		}
		if nft.OwnerID != userID {
			return ErrNotOwnedByUser
		}
		if !nft.IsTradeable {
			return ErrNotTradeable
		}
		reserved, err := s.Reservations.Reserved(ctx, q, userID, models.AssetNFT, id, excludeTradeID)
		if err != nil {
			return err
		}
		if reserved.IsPositive() {
			return ErrNotTradeable
		}
	}
	return nil
}

func (s *TradeService) reserve(ctx context.Context, tx store.Tx, tradeID, userID int64, offer models.Offer) error {
	var reservations []models.Reservation
	for _, asset := range offer.Items {
		reservations = append(reservations, models.Reservation{AssetType: models.AssetItem, AssetID: asset.ItemID, Quantity: decimal.NewFromInt(asset.Quantity)})
	}
	for _, asset := range offer.Currencies {
		reservations = append(reservations, models.Reservation{AssetType: models.AssetCurrency, AssetID: asset.CurrencyID, Quantity: asset.Amount})
	}
	for _, id := range offer.NFTs {
		reservations = append(reservations, models.Reservation{AssetType: models.AssetNFT, AssetID: id, Quantity: decimal.NewFromInt(1)})
	}
	for _, r := range reservations {
		r.TradeID = tradeID
		r.UserID = userID
		if err := s.Reservations.Reserve(ctx, tx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *TradeService) checkParty(ctx context.Context, userID int64, missing error) error {
	exists, err := s.Gate.UserExists(ctx, userID)
	if err != nil {
		return wrapStorage("check user", err)
	}
	if !exists {
		return missing
	}
	blocked, err := s.Gate.IsBlocked(ctx, userID)
	if err != nil {
		return wrapStorage("check user", err)
	}
	if blocked {
		return ErrUserBlocked
	}
	return nil
}

func (s *TradeService) activeCurrency(ctx context.Context, currencyID int64) (models.Currency, error) {
	currency, err := s.Currencies.GetByID(ctx, currencyID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Currency{}, ErrCurrencyNotFound
	}
	if err != nil {
		return models.Currency{}, err
	}
	if currency.Status != models.CurrencyActive {
		return models.Currency{}, ErrCurrencyInactive
	}
	return currency, nil
}

func (s *TradeService) load(ctx context.Context, tradeID int64) (models.Trade, error) {
	trade, err := s.Trades.GetByID(ctx, tradeID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Trade{}, ErrTradeNotFound
	}
	if err != nil {
		return models.Trade{}, wrapStorage("get trade", err)
	}
	return trade, nil
}
