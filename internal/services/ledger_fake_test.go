package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"inventory/internal/models"
	"inventory/internal/security"
	"inventory/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// memLedger is an in-memory stand-in for every store the services use.
// fakeTxRunner snapshots it before a unit of work and restores the
// snapshot when the unit fails, so rollbacks behave like the database.
type memLedger struct {
	nextID int64
	now    time.Time

	users        map[int64]models.User
	currencies   map[int64]models.Currency
	balances     map[[2]int64]models.UserBalance
	transactions []models.CurrencyTransaction
	items        map[int64]models.Item
	userItems    map[[2]int64]int64
	nfts         map[int64]models.NFT
	burns        []store.BurnRecord
	trades       map[int64]models.Trade
	reservations []models.Reservation
	events       []tradeEvent
	awards       map[string]bool

	failures map[string]error
}

type tradeEvent struct {
	TradeID int64
	Status  models.TradeStatus
	Detail  string
}

func newMemLedger() *memLedger {
	return &memLedger{
		now:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		users:      map[int64]models.User{},
		currencies: map[int64]models.Currency{},
		balances:   map[[2]int64]models.UserBalance{},
		items:      map[int64]models.Item{},
		userItems:  map[[2]int64]int64{},
		nfts:       map[int64]models.NFT{},
		trades:     map[int64]models.Trade{},
		awards:     map[string]bool{},
		failures:   map[string]error{},
	}
}

func (l *memLedger) id() int64 {
	l.nextID++
	return l.nextID
}

func (l *memLedger) fail(op string) error {
	return l.failures[op]
}

func (l *memLedger) snapshot() *memLedger {
	c := *l
	c.users = copyMap(l.users)
	c.currencies = copyMap(l.currencies)
	c.balances = copyMap(l.balances)
	c.transactions = append([]models.CurrencyTransaction(nil), l.transactions...)
	c.items = copyMap(l.items)
	c.userItems = copyMap(l.userItems)
	c.nfts = copyMap(l.nfts)
	c.burns = append([]store.BurnRecord(nil), l.burns...)
	c.trades = copyMap(l.trades)
	c.reservations = append([]models.Reservation(nil), l.reservations...)
	c.events = append([]tradeEvent(nil), l.events...)
	c.awards = copyMap(l.awards)
	return &c
}

func (l *memLedger) restore(s *memLedger) {
	failures := l.failures
	*l = *s
	l.failures = failures
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type fakeTxRunner struct {
	ledger *memLedger
	err    error
	calls  int
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	saved := f.ledger.snapshot()
	if err := fn(nil); err != nil {
		f.ledger.restore(saved)
		return err
	}
	return nil
}

var errUnique = &pq.Error{Code: "23505"}

// seeding helpers

func (l *memLedger) addUser(name string) int64 {
	id := l.id()
	l.users[id] = models.User{ID: id, Username: name, Email: name + "@example.com"}
	return id
}

func (l *memLedger) addCurrency(slug string, places int, rate string, isDefault bool) models.Currency {
	id := l.id()
	c := models.Currency{
		ID:            id,
		Name:          slug,
		Slug:          slug,
		Symbol:        slug[:1],
		DecimalPlaces: places,
		ExchangeRate:  decimal.RequireFromString(rate),
		IsDefault:     isDefault,
		Status:        models.CurrencyActive,
	}
	l.currencies[id] = c
	return c
}

func (l *memLedger) setBalance(userID, currencyID int64, amount string) {
	value := decimal.RequireFromString(amount)
	l.balances[[2]int64{userID, currencyID}] = models.UserBalance{
		UserID:      userID,
		CurrencyID:  currencyID,
		Balance:     value,
		TotalEarned: value,
	}
}

func (l *memLedger) balance(userID, currencyID int64) decimal.Decimal {
	return l.balances[[2]int64{userID, currencyID}].Balance
}

func (l *memLedger) addItem(name string, tradeable bool, limit *int64) models.Item {
	id := l.id()
	item := models.Item{
		ID:            id,
		Name:          name,
		ItemType:      models.ItemCollectible,
		Rarity:        models.RarityCommon,
		IsTradeable:   tradeable,
		QuantityLimit: limit,
		BaseStats:     models.BaseStats{"attack": 10},
		Status:        "active",
	}
	l.items[id] = item
	return item
}

func (l *memLedger) setQuantity(userID, itemID, qty int64) {
	l.userItems[[2]int64{userID, itemID}] = qty
}

func (l *memLedger) quantity(userID, itemID int64) int64 {
	return l.userItems[[2]int64{userID, itemID}]
}

func (l *memLedger) addNFT(itemID, ownerID int64, rarity models.Rarity, tradeable bool) models.NFT {
	id := l.id()
	nft := models.NFT{
		ID:              id,
		ItemID:          itemID,
		NFTHash:         fmt.Sprintf("hash-%d", id),
		NFTToken:        fmt.Sprintf("token-%d", id),
		OwnerID:         ownerID,
		OriginalOwnerID: ownerID,
		Rarity:          rarity,
		IsTradeable:     tradeable,
		Metadata:        models.NFTMetadata{Version: models.NFTMetadataVersion, AuthenticityScore: 70},
		CreatedAt:       l.now,
		UpdatedAt:       l.now,
	}
	l.nfts[id] = nft
	return nft
}

// currencies

type currencyFake struct{ *memLedger }

func (f currencyFake) Create(ctx context.Context, tx store.Getter, input store.CurrencyInput) (int64, error) {
	for _, c := range f.currencies {
		if c.Slug == input.Slug {
			return 0, errUnique
		}
	}
	id := f.id()
	f.currencies[id] = models.Currency{
		ID: id, Name: input.Name, Slug: input.Slug, Symbol: input.Symbol,
		DecimalPlaces: input.DecimalPlaces, ExchangeRate: input.ExchangeRate,
		IsDefault: input.IsDefault, Status: input.Status,
	}
	return id, nil
}

func (f currencyFake) Update(ctx context.Context, tx store.Execer, id int64, input store.CurrencyInput) (int64, error) {
	c, ok := f.currencies[id]
	if !ok {
		return 0, nil
	}
	c.Name, c.Slug, c.Symbol = input.Name, input.Slug, input.Symbol
	c.DecimalPlaces, c.ExchangeRate = input.DecimalPlaces, input.ExchangeRate
	c.IsDefault, c.Status = input.IsDefault, input.Status
	f.currencies[id] = c
	return 1, nil
}

func (f currencyFake) Delete(ctx context.Context, tx store.Execer, id int64) (int64, error) {
	if _, ok := f.currencies[id]; !ok {
		return 0, nil
	}
	delete(f.currencies, id)
	return 1, nil
}

func (f currencyFake) GetByID(ctx context.Context, id int64) (models.Currency, error) {
	c, ok := f.currencies[id]
	if !ok {
		return models.Currency{}, sql.ErrNoRows
	}
	return c, nil
}

func (f currencyFake) GetForUpdate(ctx context.Context, tx store.Getter, id int64) (models.Currency, error) {
	return f.GetByID(ctx, id)
}

func (f currencyFake) GetDefault(ctx context.Context) (models.Currency, error) {
	for _, c := range f.currencies {
		if c.IsDefault && c.Status == models.CurrencyActive {
			return c, nil
		}
	}
	return models.Currency{}, sql.ErrNoRows
}

func (f currencyFake) List(ctx context.Context) ([]models.Currency, error) {
	var out []models.Currency
	for _, c := range f.currencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f currencyFake) SlugExists(ctx context.Context, tx store.Getter, slug string, excludeID int64) (bool, error) {
	for _, c := range f.currencies {
		if c.Slug == slug && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f currencyFake) ClearDefault(ctx context.Context, tx store.Execer, exceptID int64) error {
	for id, c := range f.currencies {
		if id != exceptID && c.IsDefault {
			c.IsDefault = false
			f.currencies[id] = c
		}
	}
	return nil
}

func (f currencyFake) Usage(ctx context.Context, tx store.Getter, id int64) (store.CurrencyUsage, error) {
	var usage store.CurrencyUsage
	for key, b := range f.balances {
		if key[1] == id && b.Balance.IsPositive() {
			usage.PositiveBalances++
		}
	}
	for _, t := range f.transactions {
		if t.CurrencyID == id {
			usage.Transactions++
		}
	}
	return usage, nil
}

// balances

type balanceFake struct{ *memLedger }

func (f balanceFake) Get(ctx context.Context, userID, currencyID int64) (models.UserBalance, error) {
	b, ok := f.balances[[2]int64{userID, currencyID}]
	if !ok {
		return models.UserBalance{}, sql.ErrNoRows
	}
	return b, nil
}

func (f balanceFake) ListByUser(ctx context.Context, userID int64) ([]models.UserBalance, error) {
	var out []models.UserBalance
	for key, b := range f.balances {
		if key[0] == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrencyID < out[j].CurrencyID })
	return out, nil
}

func (f balanceFake) Credit(ctx context.Context, tx store.Getter, userID, currencyID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := f.fail("balance.credit"); err != nil {
		return decimal.Zero, err
	}
	key := [2]int64{userID, currencyID}
	b := f.balances[key]
	b.UserID, b.CurrencyID = userID, currencyID
	b.Balance = b.Balance.Add(amount)
	b.TotalEarned = b.TotalEarned.Add(amount)
	f.balances[key] = b
	return b.Balance, nil
}

func (f balanceFake) Debit(ctx context.Context, tx store.Getter, userID, currencyID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	key := [2]int64{userID, currencyID}
	b, ok := f.balances[key]
	if !ok || b.Balance.LessThan(amount) {
		return decimal.Zero, sql.ErrNoRows
	}
	b.Balance = b.Balance.Sub(amount)
	b.TotalSpent = b.TotalSpent.Add(amount)
	f.balances[key] = b
	return b.Balance, nil
}

func (f balanceFake) Exists(ctx context.Context, tx store.Getter, userID, currencyID int64) (bool, error) {
	_, ok := f.balances[[2]int64{userID, currencyID}]
	return ok, nil
}

// transactions

type transactionFake struct{ *memLedger }

func (f transactionFake) Create(ctx context.Context, tx store.Getter, input store.TransactionInput) (int64, error) {
	id := f.id()
	f.transactions = append(f.transactions, models.CurrencyTransaction{
		ID:              id,
		UserID:          input.UserID,
		CurrencyID:      input.CurrencyID,
		Amount:          input.Amount,
		TransactionType: input.TransactionType,
		ReferenceType:   input.ReferenceType,
		ReferenceID:     input.ReferenceID,
		Description:     input.Description,
		BalanceAfter:    input.BalanceAfter,
		CreatedAt:       f.now,
	})
	return id, nil
}

func (f transactionFake) ListByUser(ctx context.Context, userID, currencyID int64, limit, offset int) ([]models.CurrencyTransaction, error) {
	var out []models.CurrencyTransaction
	for i := len(f.transactions) - 1; i >= 0; i-- {
		t := f.transactions[i]
		if t.UserID == userID && (currencyID == 0 || t.CurrencyID == currencyID) {
			out = append(out, t)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// items

type itemFake struct{ *memLedger }

func (f itemFake) Create(ctx context.Context, tx store.Getter, input store.ItemInput) (int64, error) {
	id := f.id()
	f.items[id] = models.Item{
		ID: id, ProductID: input.ProductID, Name: input.Name, ItemType: input.ItemType,
		Rarity: input.Rarity, MintNFT: input.MintNFT, IsTradeable: input.IsTradeable,
		QuantityLimit: input.QuantityLimit, BaseStats: input.BaseStats, Status: input.Status,
	}
	return id, nil
}

func (f itemFake) GetByID(ctx context.Context, id int64) (models.Item, error) {
	item, ok := f.items[id]
	if !ok {
		return models.Item{}, sql.ErrNoRows
	}
	return item, nil
}

func (f itemFake) GetByProductID(ctx context.Context, productID int64) (models.Item, error) {
	for _, item := range f.items {
		if item.ProductID != nil && *item.ProductID == productID && item.Active() {
			return item, nil
		}
	}
	return models.Item{}, sql.ErrNoRows
}

func (f itemFake) List(ctx context.Context) ([]models.Item, error) {
	var out []models.Item
	for _, item := range f.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f itemFake) ReserveIssue(ctx context.Context, tx store.Execer, id, qty int64) (int64, error) {
	item, ok := f.items[id]
	if !ok || !item.HasCapacity(qty) {
		return 0, nil
	}
	item.CurrentQuantity += qty
	f.items[id] = item
	return 1, nil
}

// user items

type userItemFake struct{ *memLedger }

func (f userItemFake) Quantity(ctx context.Context, q store.Getter, userID, itemID int64) (int64, error) {
	return f.quantity(userID, itemID), nil
}

func (f userItemFake) Add(ctx context.Context, tx store.Execer, userID, itemID, qty int64) error {
	if err := f.fail("items.add"); err != nil {
		return err
	}
	f.userItems[[2]int64{userID, itemID}] += qty
	return nil
}

func (f userItemFake) Remove(ctx context.Context, tx store.Execer, userID, itemID, qty int64) (int64, error) {
	key := [2]int64{userID, itemID}
	if f.userItems[key] < qty {
		return 0, nil
	}
	f.userItems[key] -= qty
	if f.userItems[key] == 0 {
		delete(f.userItems, key)
	}
	return 1, nil
}

func (f userItemFake) ListByUser(ctx context.Context, userID int64) ([]models.UserItem, error) {
	var out []models.UserItem
	for key, qty := range f.userItems {
		if key[0] == userID && qty > 0 {
			out = append(out, models.UserItem{UserID: userID, ItemID: key[1], Quantity: qty})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// nfts

type nftFake struct{ *memLedger }

func (f nftFake) Create(ctx context.Context, tx store.Getter, input store.NFTInput, createdAt time.Time) (int64, error) {
	for _, n := range f.nfts {
		if n.NFTHash == input.NFTHash || n.NFTToken == input.NFTToken {
			return 0, errUnique
		}
	}
	id := f.id()
	f.nfts[id] = models.NFT{
		ID: id, ItemID: input.ItemID, NFTHash: input.NFTHash, NFTToken: input.NFTToken,
		OwnerID: input.OwnerID, OriginalOwnerID: input.OwnerID, Rarity: input.Rarity,
		Metadata: input.Metadata, IsTradeable: input.IsTradeable,
		MintTransactionID: input.MintTransactionID, CreatedAt: createdAt, UpdatedAt: createdAt,
	}
	return id, nil
}

func (f nftFake) GetByID(ctx context.Context, id int64) (models.NFT, error) {
	n, ok := f.nfts[id]
	if !ok {
		return models.NFT{}, sql.ErrNoRows
	}
	return n, nil
}

func (f nftFake) GetByToken(ctx context.Context, token string) (models.NFT, error) {
	for _, n := range f.nfts {
		if n.NFTToken == token {
			return n, nil
		}
	}
	return models.NFT{}, sql.ErrNoRows
}

func (f nftFake) GetForUpdate(ctx context.Context, tx store.Getter, id int64) (models.NFT, error) {
	return f.GetByID(ctx, id)
}

func (f nftFake) ListByOwner(ctx context.Context, ownerID int64) ([]models.NFT, error) {
	var out []models.NFT
	for _, n := range f.nfts {
		if n.OwnerID == ownerID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f nftFake) ListUpgradeable(ctx context.Context, ownerID, itemID int64) ([]models.NFT, error) {
	var out []models.NFT
	for _, n := range f.nfts {
		if n.OwnerID == ownerID && n.ItemID == itemID && n.Rarity != models.RarityMythic {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f nftFake) CountByOwner(ctx context.Context, ownerID int64) (int64, error) {
	var count int64
	for _, n := range f.nfts {
		if n.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

func (f nftFake) TransferOwner(ctx context.Context, tx store.Execer, id, from, to int64) (int64, error) {
	if err := f.fail("nft.transfer"); err != nil {
		return 0, err
	}
	n, ok := f.nfts[id]
	if !ok || n.OwnerID != from || !n.IsTradeable {
		return 0, nil
	}
	n.OwnerID = to
	f.nfts[id] = n
	return 1, nil
}

func (f nftFake) SaveUpgrade(ctx context.Context, tx store.Execer, id int64, input store.UpgradeInput) (int64, error) {
	n, ok := f.nfts[id]
	if !ok {
		return 0, nil
	}
	n.Rarity = input.Rarity
	n.UpgradeLevel = input.UpgradeLevel
	n.CustomStats = input.CustomStats
	if input.CustomImage != nil {
		n.CustomImage = input.CustomImage
	}
	n.Metadata = input.Metadata
	n.IsTradeable = input.IsTradeable
	f.nfts[id] = n
	return 1, nil
}

func (f nftFake) Archive(ctx context.Context, tx store.Execer, record store.BurnRecord) error {
	f.burns = append(f.burns, record)
	return nil
}

func (f nftFake) Delete(ctx context.Context, tx store.Execer, id int64) (int64, error) {
	if _, ok := f.nfts[id]; !ok {
		return 0, nil
	}
	delete(f.nfts, id)
	return 1, nil
}

// trades

type tradeFake struct{ *memLedger }

func (f tradeFake) Create(ctx context.Context, tx store.Getter, input store.TradeInput) (int64, error) {
	if pending, _ := f.PendingBetween(ctx, tx, input.InitiatorID, input.TargetID); pending {
		return 0, errUnique
	}
	id := f.id()
	f.trades[id] = models.Trade{
		ID:                  id,
		TradeToken:          input.TradeToken,
		InitiatorID:         input.InitiatorID,
		TargetID:            input.TargetID,
		InitiatorItems:      input.InitiatorOffer.Items,
		TargetItems:         input.TargetOffer.Items,
		InitiatorCurrencies: input.InitiatorOffer.Currencies,
		TargetCurrencies:    input.TargetOffer.Currencies,
		InitiatorNFTs:       input.InitiatorOffer.NFTs,
		TargetNFTs:          input.TargetOffer.NFTs,
		Message:             input.Message,
		Status:              models.TradePending,
		CreatedAt:           f.now,
		ExpiresAt:           input.ExpiresAt,
	}
	return id, nil
}

func (f tradeFake) GetByID(ctx context.Context, id int64) (models.Trade, error) {
	t, ok := f.trades[id]
	if !ok {
		return models.Trade{}, sql.ErrNoRows
	}
	return t, nil
}

func (f tradeFake) GetForUpdate(ctx context.Context, tx store.Getter, id int64) (models.Trade, error) {
	return f.GetByID(ctx, id)
}

func (f tradeFake) PendingBetween(ctx context.Context, q store.Getter, a, b int64) (bool, error) {
	for _, t := range f.trades {
		if t.Status == models.TradePending && t.Involves(a) && t.Involves(b) {
			return true, nil
		}
	}
	return false, nil
}

func (f tradeFake) TransitionStatus(ctx context.Context, tx store.Execer, id int64, to models.TradeStatus, reason *string, from ...models.TradeStatus) (int64, error) {
	t, ok := f.trades[id]
	if !ok {
		return 0, nil
	}
	allowed := false
	for _, status := range from {
		if t.Status == status {
			allowed = true
		}
	}
	if !allowed {
		return 0, nil
	}
	t.Status = to
	if reason != nil {
		t.FailureReason = reason
	}
	if to == models.TradeCompleted {
		now := f.now
		t.CompletedAt = &now
	}
	f.trades[id] = t
	return 1, nil
}

func (f tradeFake) ListForUser(ctx context.Context, userID int64, status models.TradeStatus, limit, offset int) ([]models.Trade, error) {
	var out []models.Trade
	for _, t := range f.trades {
		if t.Involves(userID) && (status == "" || t.Status == status) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f tradeFake) ListExpired(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	for _, t := range f.trades {
		if t.Status == models.TradePending && t.ExpiresAt.Before(now) {
			ids = append(ids, t.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f tradeFake) AppendEvent(ctx context.Context, tx store.Execer, tradeID int64, status models.TradeStatus, actorID *int64, detail string) error {
	f.events = append(f.events, tradeEvent{TradeID: tradeID, Status: status, Detail: detail})
	return nil
}

// reservations

type reservationFake struct{ *memLedger }

func (f reservationFake) Reserve(ctx context.Context, tx store.Execer, r models.Reservation) error {
	f.reservations = append(f.reservations, r)
	return nil
}

func (f reservationFake) Release(ctx context.Context, tx store.Execer, tradeID int64) error {
	kept := f.reservations[:0:0]
	for _, r := range f.reservations {
		if r.TradeID != tradeID {
			kept = append(kept, r)
		}
	}
	f.reservations = kept
	return nil
}

func (f reservationFake) Reserved(ctx context.Context, q store.Getter, userID int64, assetType models.AssetType, assetID, excludeTradeID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, r := range f.reservations {
		if r.UserID != userID || r.AssetType != assetType || r.AssetID != assetID || r.TradeID == excludeTradeID {
			continue
		}
		status := f.trades[r.TradeID].Status
		if status == models.TradePending || status == models.TradeAccepted {
			total = total.Add(r.Quantity)
		}
	}
	return total, nil
}

// purchase awards

type awardFake struct{ *memLedger }

func (f awardFake) Record(ctx context.Context, tx store.Execer, orderID string, productID, userID, quantity int64) (int64, error) {
	key := fmt.Sprintf("%s|%d", orderID, productID)
	if f.awards[key] {
		return 0, nil
	}
	f.awards[key] = true
	return 1, nil
}

// gate and notifier

type fakeGate struct {
	ledger  *memLedger
	blocked map[int64]bool
	refuse  map[string]bool
	events  []security.Event
}

func newFakeGate(l *memLedger) *fakeGate {
	return &fakeGate{ledger: l, blocked: map[int64]bool{}, refuse: map[string]bool{}}
}

func (g *fakeGate) CheckRateLimit(ctx context.Context, userID int64, policy security.Policy) error {
	if g.refuse[policy.Action] {
		return security.ErrRateLimited
	}
	return nil
}

func (g *fakeGate) UserExists(ctx context.Context, userID int64) (bool, error) {
	_, ok := g.ledger.users[userID]
	return ok, nil
}

func (g *fakeGate) IsBlocked(ctx context.Context, userID int64) (bool, error) {
	return g.blocked[userID], nil
}

func (g *fakeGate) UserOwnsItem(ctx context.Context, userID, itemID int64) (bool, error) {
	return g.ledger.quantity(userID, itemID) > 0, nil
}

func (g *fakeGate) DisplayName(ctx context.Context, userID int64) (string, error) {
	user, ok := g.ledger.users[userID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return user.Username, nil
}

func (g *fakeGate) LogSecurityEvent(ctx context.Context, event security.Event) {
	g.events = append(g.events, event)
}

func (g *fakeGate) actions() []string {
	out := make([]string, 0, len(g.events))
	for _, e := range g.events {
		out = append(out, e.Action)
	}
	return out
}

type sentNotification struct {
	UserID    int64
	EventType string
}

type fakeNotifier struct {
	sent []sentNotification
}

func (n *fakeNotifier) Notify(ctx context.Context, userID int64, eventType string, payload map[string]any) {
	n.sent = append(n.sent, sentNotification{UserID: userID, EventType: eventType})
}

func (n *fakeNotifier) count(userID int64, eventType string) int {
	total := 0
	for _, s := range n.sent {
		if s.UserID == userID && s.EventType == eventType {
			total++
		}
	}
	return total
}

// harness wires every service over one ledger.
type harness struct {
	ledger     *memLedger
	tx         *fakeTxRunner
	gate       *fakeGate
	notifier   *fakeNotifier
	currencies *CurrencyService
	items      *ItemService
	nfts       *NFTService
	trades     *TradeService
	awards     *AwardService
}

func newHarness() *harness {
	l := newMemLedger()
	h := &harness{
		ledger:   l,
		tx:       &fakeTxRunner{ledger: l},
		gate:     newFakeGate(l),
		notifier: &fakeNotifier{},
	}
	policies := Policies{
		Balance: security.Policy{Action: "balance_op", Limit: 10, Window: time.Minute},
		Trade:   security.Policy{Action: "trade_create", Limit: 5, Window: time.Minute},
		NFT:     security.Policy{Action: "nft_op", Limit: 20, Window: time.Minute},
	}
	h.currencies = NewCurrencyService(h.tx, currencyFake{l}, balanceFake{l}, transactionFake{l}, h.gate, h.notifier, policies, decimal.NewFromInt(100))
	h.items = NewItemService(h.tx, itemFake{l}, userItemFake{l}, h.gate)
	nfts, err := NewNFTService(h.tx, nftFake{l}, itemFake{l}, h.gate, h.notifier, policies, "test-salt", 1)
	if err != nil {
		panic(err)
	}
	nfts.now = func() time.Time { return l.now }
	h.nfts = nfts
	h.trades = NewTradeService(TradeDeps{
		TxRunner:      h.tx,
		Trades:        tradeFake{l},
		Reservations:  reservationFake{l},
		Items:         itemFake{l},
		UserItems:     userItemFake{l},
		Currencies:    currencyFake{l},
		Balances:      balanceFake{l},
		NFTs:          nftFake{l},
		ItemMover:     h.items,
		CurrencyMover: h.currencies,
		NFTMover:      h.nfts,
		Gate:          h.gate,
		Notifier:      h.notifier,
		Policies:      policies,
		TTL:           24 * time.Hour,
	})
	h.trades.now = func() time.Time { return l.now }
	h.awards = NewAwardService(h.tx, itemFake{l}, awardFake{l}, h.items, h.nfts, h.gate, h.notifier)
	return h
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}
