package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"inventory/internal/models"
	"inventory/internal/notify"
)

type tradeFixture struct {
	*harness
	ana, ben, cy int64
	potion       models.Item
	gold, gems   models.Currency
	nft          models.NFT
}

func newTradeFixture() *tradeFixture {
	h := newHarness()
	f := &tradeFixture{harness: h}
	f.ana = h.ledger.addUser("ana")
	f.ben = h.ledger.addUser("ben")
	f.cy = h.ledger.addUser("cy")
	f.potion = h.ledger.addItem("potion", true, nil)
	f.gold = h.ledger.addCurrency("gold", 2, "1", true)
	f.gems = h.ledger.addCurrency("gems", 0, "10", false)
	f.nft = h.ledger.addNFT(f.potion.ID, f.ana, models.RarityRare, true)
	h.ledger.setQuantity(f.ana, f.potion.ID, 5)
	h.ledger.setBalance(f.ana, f.gold.ID, "20")
	h.ledger.setBalance(f.ben, f.gems.ID, "50")
	return f
}

func (f *tradeFixture) offer() CreateTradeRequest {
	return CreateTradeRequest{
		InitiatorID: f.ana,
		TargetID:    f.ben,
		InitiatorOffer: models.Offer{
			Items:      models.ItemAssets{{ItemID: f.potion.ID, Quantity: 2}},
			Currencies: models.CurrencyAssets{{CurrencyID: f.gold.ID, Amount: dec("5")}},
			NFTs:       models.NFTIDs{f.nft.ID},
		},
		TargetOffer: models.Offer{
			Currencies: models.CurrencyAssets{{CurrencyID: f.gems.ID, Amount: dec("10")}},
		},
		Message: "deal?",
	}
}

func TestTradeCreateAcceptExecutes(t *testing.T) {
	f := newTradeFixture()
	ctx := context.Background()

	trade, err := f.trades.Create(ctx, f.offer())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if trade.Status != models.TradePending || trade.TradeToken == "" {
		t.Fatalf("unexpected trade %+v", trade)
	}
	if !trade.ExpiresAt.Equal(f.ledger.now.Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry %s", trade.ExpiresAt)
	}
	if len(f.ledger.reservations) != 3 {
		t.Fatalf("expected 3 reservations, got %d", len(f.ledger.reservations))
	}
	if f.notifier.count(f.ben, notify.EventTradeReceived) != 1 {
		t.Fatalf("expected trade_received for target")
	}

	done, err := f.trades.Accept(ctx, trade.ID, f.ben)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if done.Status != models.TradeCompleted || done.CompletedAt == nil {
		t.Fatalf("expected completed trade, got %+v", done)
	}
	stored := f.ledger.trades[trade.ID]
	if stored.Status != models.TradeCompleted {
		t.Fatalf("expected stored status completed, got %s", stored.Status)
	}

	if f.ledger.quantity(f.ana, f.potion.ID) != 3 || f.ledger.quantity(f.ben, f.potion.ID) != 2 {
		t.Fatalf("items not moved")
	}
	if !f.ledger.balance(f.ana, f.gold.ID).Equal(dec("15")) || !f.ledger.balance(f.ben, f.gold.ID).Equal(dec("5")) {
		t.Fatalf("gold not moved")
	}
	if !f.ledger.balance(f.ben, f.gems.ID).Equal(dec("40")) || !f.ledger.balance(f.ana, f.gems.ID).Equal(dec("10")) {
		t.Fatalf("gems not moved")
	}
	if f.ledger.nfts[f.nft.ID].OwnerID != f.ben {
		t.Fatalf("nft not moved")
	}
	if len(f.ledger.reservations) != 0 {
		t.Fatalf("expected reservations released")
	}
	for _, row := range f.ledger.transactions {
		if row.TransactionType != models.TransactionTraded || row.ReferenceType == nil || *row.ReferenceType != "trade" {
			t.Fatalf("unexpected transaction row %+v", row)
		}
	}
	if len(f.ledger.transactions) != 4 {
		t.Fatalf("expected 4 transaction rows, got %d", len(f.ledger.transactions))
	}
	for _, user := range []int64{f.ana, f.ben} {
		if f.notifier.count(user, notify.EventTradeCompleted) != 1 {
			t.Fatalf("expected trade_completed for %d", user)
		}
	}
}

func TestTradeCreateRejections(t *testing.T) {
	f := newTradeFixture()
	ctx := context.Background()

	same := f.offer()
	same.TargetID = f.ana
	if _, err := f.trades.Create(ctx, same); !errors.Is(err, ErrSameUser) {
		t.Fatalf("expected ErrSameUser, got %v", err)
	}

	empty := f.offer()
	empty.InitiatorOffer = models.Offer{}
	empty.TargetOffer = models.Offer{}
	if _, err := f.trades.Create(ctx, empty); !errors.Is(err, ErrInvalidTradeData) {
		t.Fatalf("expected ErrInvalidTradeData, got %v", err)
	}

	negative := f.offer()
	negative.InitiatorOffer.Items = models.ItemAssets{{ItemID: f.potion.ID, Quantity: -1}}
	if _, err := f.trades.Create(ctx, negative); !errors.Is(err, ErrInvalidTradeData) {
		t.Fatalf("expected ErrInvalidTradeData for negative quantity, got %v", err)
	}

	missing := f.offer()
	missing.TargetID = 999
	if _, err := f.trades.Create(ctx, missing); !errors.Is(err, ErrTargetUserNotFound) {
		t.Fatalf("expected ErrTargetUserNotFound, got %v", err)
	}

	f.gate.blocked[f.ben] = true
	if _, err := f.trades.Create(ctx, f.offer()); !errors.Is(err, ErrUserBlocked) {
		t.Fatalf("expected ErrUserBlocked, got %v", err)
	}
	delete(f.gate.blocked, f.ben)

	greedy := f.offer()
	greedy.InitiatorOffer.Items = models.ItemAssets{{ItemID: f.potion.ID, Quantity: 6}}
	if _, err := f.trades.Create(ctx, greedy); !errors.Is(err, ErrInsufficientQuantity) {
		t.Fatalf("expected ErrInsufficientQuantity, got %v", err)
	}

	f.gate.refuse["trade_create"] = true
	if _, err := f.trades.Create(ctx, f.offer()); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if len(f.ledger.trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(f.ledger.trades))
	}
}

func TestTradeCreateOnePendingPerPair(t *testing.T) {
	f := newTradeFixture()
	ctx := context.Background()
	if _, err := f.trades.Create(ctx, f.offer()); err != nil {
		t.Fatalf("create: %v", err)
	}
	reverse := CreateTradeRequest{
		InitiatorID:    f.ben,
		TargetID:       f.ana,
		InitiatorOffer: models.Offer{Currencies: models.CurrencyAssets{{CurrencyID: f.gems.ID, Amount: dec("1")}}},
	}
	if _, err := f.trades.Create(ctx, reverse); !errors.Is(err, ErrDuplicatePendingTrade) {
		t.Fatalf("expected ErrDuplicatePendingTrade, got %v", err)
	}
	if !errors.Is(ErrDuplicatePendingTrade, ErrAlreadyExists) {
		t.Fatalf("duplicate pending trade should be an AlreadyExists error")
	}
}

func TestTradeReservationsPreventDoubleOffers(t *testing.T) {
	f := newTradeFixture()
	ctx := context.Background()
	if _, err := f.trades.Create(ctx, f.offer()); err != nil {
		t.Fatalf("create: %v", err)
	}

	items := CreateTradeRequest{
		InitiatorID:    f.ana,
		TargetID:       f.cy,
		InitiatorOffer: models.Offer{Items: models.ItemAssets{{ItemID: f.potion.ID, Quantity: 4}}},
	}
	if _, err := f.trades.Create(ctx, items); !errors.Is(err, ErrInsufficientQuantity) {
		t.Fatalf("expected reserved potions to be unavailable, got %v", err)
	}

	gold := CreateTradeRequest{
		InitiatorID:    f.ana,
		TargetID:       f.cy,
		InitiatorOffer: models.Offer{Currencies: models.CurrencyAssets{{CurrencyID: f.gold.ID, Amount: dec("16")}}},
	}
	if _, err := f.trades.Create(ctx, gold); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected reserved gold to be unavailable, got %v", err)
	}

	nft := CreateTradeRequest{
		InitiatorID:    f.ana,
		TargetID:       f.cy,
		InitiatorOffer: models.Offer{NFTs: models.NFTIDs{f.nft.ID}},
	}
	if _, err := f.trades.Create(ctx, nft); !errors.Is(err, ErrNotTradeable) {
		t.Fatalf("expected reserved nft to be unavailable, got %v", err)
	}

	fits := CreateTradeRequest{
		InitiatorID:    f.ana,
		TargetID:       f.cy,
		InitiatorOffer: models.Offer{Items: models.ItemAssets{{ItemID: f.potion.ID, Quantity: 3}}},
	}
	if _, err := f.trades.Create(ctx, fits); err != nil {
		t.Fatalf("expected unreserved potions to be offerable: %v", err)
	}
}

func TestTradeAcceptRules(t *testing.T) {
	f := newTradeFixture()
	ctx := context.Background()
	trade, err := f.trades.Create(ctx, f.offer())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.trades.Accept(ctx, trade.ID, f.ana); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if _, err := f.trades.Accept(ctx, 999, f.ben); !errors.Is(err, ErrTradeNotFound) {
		t.Fatalf("expected ErrTradeNotFound, got %v", err)
	}

	f.trades.now = func() time.Time { return f.ledger.now.Add(25 * time.Hour) }
	if _, err := f.trades.Accept(ctx, trade.ID, f.ben); !errors.Is(err, ErrTradeExpired) {
		t.Fatalf("expected ErrTradeExpired, got %v", err)
	}
	if f.ledger.trades[trade.ID].Status != models.TradeExpired {
		t.Fatalf("expected trade moved to expired")
	}
	if _, err := f.trades.Accept(ctx, trade.ID, f.ben); !errors.Is(err, ErrTradeNotPending) {
		t.Fatalf("expected ErrTradeNotPending, got %v", err)
	}
}

func TestTradeAcceptFailsWhenTargetCannotPay(t *testing.T) {
	f := newTradeFixture()
	ctx := context.Background()
	trade, err := f.trades.Create(ctx, f.offer())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.ledger.setBalance(f.ben, f.gems.ID, "3")

	_, err = f.trades.Accept(ctx, trade.ID, f.ben)
	var execErr *TradeExecutionError
	if !errors.As(err, &execErr) || !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected TradeExecutionError for insufficient funds, got %v", err)
	}
	stored := f.ledger.trades[trade.ID]
	if stored.Status != models.TradeFailed || stored.FailureReason == nil || *stored.FailureReason != "insufficient funds" {
		t.Fatalf("unexpected stored trade %+v", stored)
	}
	if f.ledger.nfts[f.nft.ID].OwnerID != f.ana || f.ledger.quantity(f.ana, f.potion.ID) != 5 {
		t.Fatalf("assets moved despite failure")
	}
	if len(f.ledger.reservations) != 0 {
		t.Fatalf("expected reservations released on failure")
	}
}

func TestTradeOfferRequiresHeldItems(t *testing.T) {
	f := newTradeFixture()
	ctx := context.Background()
	shield := f.ledger.addItem("shield", true, nil)

	unheld := f.offer()
	unheld.InitiatorOffer.Items = models.ItemAssets{{ItemID: shield.ID, Quantity: 1}}
	if _, err := f.trades.Create(ctx, unheld); !errors.Is(err, ErrNotOwnedByUser) {
		t.Fatalf("expected ErrNotOwnedByUser, got %v", err)
	}

	f.ledger.setQuantity(f.ben, shield.ID, 1)
	req := f.offer()
	req.TargetOffer.Items = models.ItemAssets{{ItemID: shield.ID, Quantity: 1}}
	trade, err := f.trades.Create(ctx, req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.ledger.setQuantity(f.ben, shield.ID, 0)

	_, err = f.trades.Accept(ctx, trade.ID, f.ben)
	var execErr *TradeExecutionError
	if !errors.As(err, &execErr) || !errors.Is(err, ErrNotOwnedByUser) {
		t.Fatalf("expected TradeExecutionError for unheld item, got %v", err)
	}
	if stored := f.ledger.trades[trade.ID]; stored.Status != models.TradeFailed {
		t.Fatalf("expected failed trade, got %s", stored.Status)
	}
}

func TestTradeExecutionIsAtomic(t *testing.T) {
	f := newTradeFixture()
	ctx := context.Background()
	trade, err := f.trades.Create(ctx, f.offer())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.ledger.failures["nft.transfer"] = errors.New("disk full")

	_, err = f.trades.Accept(ctx, trade.ID, f.ben)
	var execErr *TradeExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected TradeExecutionError, got %v", err)
	}
	if execErr.Reason != "storage failure" || execErr.TradeID != trade.ID {
		t.Fatalf("unexpected error %+v", execErr)
	}

	if f.ledger.quantity(f.ana, f.potion.ID) != 5 || f.ledger.quantity(f.ben, f.potion.ID) != 0 {
		t.Fatalf("item legs were not rolled back")
	}
	if !f.ledger.balance(f.ana, f.gold.ID).Equal(dec("20")) || !f.ledger.balance(f.ben, f.gems.ID).Equal(dec("50")) {
		t.Fatalf("currency legs were not rolled back")
	}
	if len(f.ledger.transactions) != 0 {
		t.Fatalf("expected no transaction rows, got %d", len(f.ledger.transactions))
	}
	if f.ledger.trades[trade.ID].Status != models.TradeFailed {
		t.Fatalf("expected failed, got %s", f.ledger.trades[trade.ID].Status)
	}
	for _, user := range []int64{f.ana, f.ben} {
		if f.notifier.count(user, notify.EventTradeFailed) != 1 {
			t.Fatalf("expected trade_failed for %d", user)
		}
	}
}

func TestTradeDeclineAndCancel(t *testing.T) {
	f := newTradeFixture()
	ctx := context.Background()
	trade, err := f.trades.Create(ctx, f.offer())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := f.trades.Decline(ctx, trade.ID, f.ana); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("initiator must not decline, got %v", err)
	}
	if err := f.trades.Cancel(ctx, trade.ID, f.ben); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("target must not cancel, got %v", err)
	}
	if err := f.trades.Cancel(ctx, trade.ID, f.ana); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if f.ledger.trades[trade.ID].Status != models.TradeCancelled || len(f.ledger.reservations) != 0 {
		t.Fatalf("expected cancelled trade without reservations")
	}
	if f.notifier.count(f.ben, notify.EventTradeCancelled) != 1 {
		t.Fatalf("expected trade_cancelled for target")
	}
	if err := f.trades.Decline(ctx, trade.ID, f.ben); !errors.Is(err, ErrTradeNotPending) {
		t.Fatalf("expected ErrTradeNotPending, got %v", err)
	}

	second, err := f.trades.Create(ctx, f.offer())
	if err != nil {
		t.Fatalf("create after cancel: %v", err)
	}
	if err := f.trades.Decline(ctx, second.ID, f.ben); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if f.notifier.count(f.ana, notify.EventTradeDeclined) != 1 {
		t.Fatalf("expected trade_declined for initiator")
	}
}

func TestExpireDue(t *testing.T) {
	f := newTradeFixture()
	ctx := context.Background()
	trade, err := f.trades.Create(ctx, f.offer())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	count, err := f.trades.ExpireDue(ctx, f.ledger.now.Add(time.Hour))
	if err != nil || count != 0 {
		t.Fatalf("expected nothing due, got %d %v", count, err)
	}
	count, err = f.trades.ExpireDue(ctx, f.ledger.now.Add(48*time.Hour))
	if err != nil || count != 1 {
		t.Fatalf("expected one expired trade, got %d %v", count, err)
	}
	if f.ledger.trades[trade.ID].Status != models.TradeExpired || len(f.ledger.reservations) != 0 {
		t.Fatalf("expected expired trade without reservations")
	}
	if f.notifier.count(f.ana, notify.EventTradeExpired) != 1 {
		t.Fatalf("expected trade_expired notification")
	}
}

func TestTradeGetRequiresParticipant(t *testing.T) {
	f := newTradeFixture()
	ctx := context.Background()
	trade, err := f.trades.Create(ctx, f.offer())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.trades.Get(ctx, trade.ID, f.cy); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if got, err := f.trades.Get(ctx, trade.ID, f.ben); err != nil || got.ID != trade.ID {
		t.Fatalf("get: %v", err)
	}
	list, err := f.trades.ListForUser(ctx, f.ben, models.TradePending, 10, 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one pending trade, got %d %v", len(list), err)
	}
}
