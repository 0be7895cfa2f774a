package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"net/http/httptest"
	"testing"
	"time"

	"inventory/internal/auth"
	"inventory/internal/config"
	"inventory/internal/models"
	"inventory/internal/security"
	"inventory/internal/services"
	"inventory/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	commits   int
	rollbacks int
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if err := fn(nil); err != nil {
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

type stubUserStore struct {
	createFn        func(ctx context.Context, username, email, displayName, passwordHash string) (int64, error)
	getByEmailFn    func(ctx context.Context, email string) (models.User, error)
	getByUsernameFn func(ctx context.Context, username string) (models.User, error)
	getByIDFn       func(ctx context.Context, userID int64) (models.User, error)
	setBlockedFn    func(ctx context.Context, userID int64, blocked bool) (int64, error)
}

func (s stubUserStore) Create(ctx context.Context, _ store.Getter, username, email, displayName, passwordHash string) (int64, error) {
	if s.createFn == nil {
		return 1, nil
	}
	return s.createFn(ctx, username, email, displayName, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, sql.ErrNoRows
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByUsername(ctx context.Context, username string) (models.User, error) {
	if s.getByUsernameFn == nil {
		return models.User{}, sql.ErrNoRows
	}
	return s.getByUsernameFn(ctx, username)
}

func (s stubUserStore) GetByID(ctx context.Context, userID int64) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{ID: userID}, nil
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) SetBlocked(ctx context.Context, userID int64, blocked bool) (int64, error) {
	if s.setBlockedFn == nil {
		return 1, nil
	}
	return s.setBlockedFn(ctx, userID, blocked)
}

type stubAdminStore struct {
	isAdminFn     func(ctx context.Context, userID int64) (bool, bool, error)
	hasRoleFn     func(ctx context.Context, userID int64, role string) (bool, error)
	createAdminFn func(ctx context.Context, userID int64, isSuper bool, createdBy *int64) error
	grantRoleFn   func(ctx context.Context, adminUserID int64, role string) error
	hasAnyAdminFn func(ctx context.Context) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID int64) (bool, bool, error) {
	if s.isAdminFn == nil {
		return false, false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID int64, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) CreateAdmin(ctx context.Context, _ store.Execer, userID int64, isSuper bool, createdBy *int64) error {
	if s.createAdminFn == nil {
		return nil
	}
	return s.createAdminFn(ctx, userID, isSuper, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, _ store.Execer, adminUserID int64, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, adminUserID, role)
}

func (s stubAdminStore) HasAnyAdmin(ctx context.Context, _ store.Getter) (bool, error) {
	if s.hasAnyAdminFn == nil {
		return true, nil
	}
	return s.hasAnyAdminFn(ctx)
}

type stubAuditStore struct {
	listFn func(ctx context.Context, objectType string, limit, offset int) ([]models.AuditLog, error)
}

func (s stubAuditStore) List(ctx context.Context, objectType string, limit, offset int) ([]models.AuditLog, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, objectType, limit, offset)
}

type stubLedgerStore struct {
	discrepancies []store.Discrepancy
}

func (s stubLedgerStore) Discrepancies(ctx context.Context, limit int) ([]store.Discrepancy, error) {
	return s.discrepancies, nil
}

type stubNotificationStore struct {
	marked int64
}

func (s stubNotificationStore) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]models.Notification, error) {
	return []models.Notification{{ID: 1, UserID: userID, EventType: "trade_received"}}, nil
}

func (s stubNotificationStore) MarkRead(ctx context.Context, userID, id int64) (int64, error) {
	return s.marked, nil
}

type stubSecurityGate struct {
	events      []security.Event
	canManageFn func(ctx context.Context, userID, nftID int64) (bool, error)
}

func (l *stubSecurityGate) LogSecurityEvent(ctx context.Context, event security.Event) {
	l.events = append(l.events, event)
}

func (l *stubSecurityGate) CanManageNFT(ctx context.Context, userID, nftID int64) (bool, error) {
	if l.canManageFn == nil {
		return true, nil
	}
	return l.canManageFn(ctx, userID, nftID)
}

type stubCurrencyService struct {
	createFn     func(ctx context.Context, req services.CurrencyRequest) (int64, error)
	creditFn     func(ctx context.Context, req services.CreditRequest) (int64, error)
	transferFn   func(ctx context.Context, req services.TransferRequest) (services.TransferResult, error)
	convertFn    func(ctx context.Context, amount decimal.Decimal, fromID, toID int64) (decimal.Decimal, bool, error)
	initializeFn func(ctx context.Context, userID int64) (int64, error)
}

func (s stubCurrencyService) Create(ctx context.Context, req services.CurrencyRequest) (int64, error) {
	if s.createFn == nil {
		return 1, nil
	}
	return s.createFn(ctx, req)
}

func (s stubCurrencyService) Update(ctx context.Context, id int64, req services.CurrencyRequest) error {
	return nil
}

func (s stubCurrencyService) Delete(ctx context.Context, id int64) error {
	return nil
}

func (s stubCurrencyService) List(ctx context.Context) ([]models.Currency, error) {
	return nil, nil
}

func (s stubCurrencyService) GetBalance(ctx context.Context, userID, currencyID int64) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s stubCurrencyService) Balances(ctx context.Context, userID int64) ([]models.UserBalance, error) {
	return nil, nil
}

func (s stubCurrencyService) ListTransactions(ctx context.Context, userID, currencyID int64, limit, offset int) ([]models.CurrencyTransaction, error) {
	return nil, nil
}

func (s stubCurrencyService) Credit(ctx context.Context, req services.CreditRequest) (int64, error) {
	if s.creditFn == nil {
		return 1, nil
	}
	return s.creditFn(ctx, req)
}

func (s stubCurrencyService) Debit(ctx context.Context, req services.DebitRequest) (int64, error) {
	return s.Credit(ctx, req)
}

func (s stubCurrencyService) Transfer(ctx context.Context, req services.TransferRequest) (services.TransferResult, error) {
	if s.transferFn == nil {
		return services.TransferResult{}, nil
	}
	return s.transferFn(ctx, req)
}

func (s stubCurrencyService) Convert(ctx context.Context, amount decimal.Decimal, fromID, toID int64) (decimal.Decimal, bool, error) {
	if s.convertFn == nil {
		return amount, true, nil
	}
	return s.convertFn(ctx, amount, fromID, toID)
}

func (s stubCurrencyService) InitializeForNewUserWithin(ctx context.Context, _ store.Tx, userID int64) (int64, error) {
	if s.initializeFn == nil {
		return 0, nil
	}
	return s.initializeFn(ctx, userID)
}

func (s stubCurrencyService) BulkAward(ctx context.Context, currencyID int64, userIDs []int64, amount decimal.Decimal, description string) ([]services.BulkAwardResult, error) {
	return nil, nil
}

type stubItemService struct{}

func (stubItemService) CreateItem(ctx context.Context, req services.ItemRequest) (int64, error) {
	return 1, nil
}

func (stubItemService) ListItems(ctx context.Context) ([]models.Item, error) {
	return nil, nil
}

func (stubItemService) Inventory(ctx context.Context, userID int64) ([]models.UserItem, error) {
	return nil, nil
}

func (stubItemService) Grant(ctx context.Context, userID, itemID, qty int64, reason string) error {
	return nil
}

type stubNFTService struct {
	verifyFn      func(ctx context.Context, token string) (services.Verification, error)
	certificateFn func(ctx context.Context, nftID int64) (services.Certificate, bool, error)
	burnFn        func(ctx context.Context, nftID int64, reason string) (string, error)
}

func (s stubNFTService) ListByOwner(ctx context.Context, ownerID int64) ([]models.NFT, error) {
	return nil, nil
}

func (s stubNFTService) Mint(ctx context.Context, req services.MintRequest) (models.NFT, error) {
	return models.NFT{}, nil
}

func (s stubNFTService) Transfer(ctx context.Context, req services.NFTTransferRequest) error {
	return nil
}

func (s stubNFTService) Upgrade(ctx context.Context, req services.UpgradeRequest) (models.NFT, error) {
	return models.NFT{}, nil
}

func (s stubNFTService) UpgradeRandom(ctx context.Context, userID, itemID int64) (models.NFT, error) {
	return models.NFT{}, nil
}

func (s stubNFTService) VerifyAuthenticity(ctx context.Context, token string) (services.Verification, error) {
	if s.verifyFn == nil {
		return services.Verification{}, nil
	}
	return s.verifyFn(ctx, token)
}

func (s stubNFTService) Burn(ctx context.Context, nftID int64, reason string) (string, error) {
	if s.burnFn == nil {
		return "", nil
	}
	return s.burnFn(ctx, nftID, reason)
}

func (s stubNFTService) GenerateCertificate(ctx context.Context, nftID int64) (services.Certificate, bool, error) {
	if s.certificateFn == nil {
		return services.Certificate{}, false, nil
	}
	return s.certificateFn(ctx, nftID)
}

type stubTradeService struct {
	createFn func(ctx context.Context, req services.CreateTradeRequest) (models.Trade, error)
	acceptFn func(ctx context.Context, tradeID, actorID int64) (models.Trade, error)
	cancelFn func(ctx context.Context, tradeID, actorID int64) error
}

func (s stubTradeService) Create(ctx context.Context, req services.CreateTradeRequest) (models.Trade, error) {
	if s.createFn == nil {
		return models.Trade{}, nil
	}
	return s.createFn(ctx, req)
}

func (s stubTradeService) Get(ctx context.Context, tradeID, actorID int64) (models.Trade, error) {
	return models.Trade{ID: tradeID}, nil
}

func (s stubTradeService) ListForUser(ctx context.Context, userID int64, status models.TradeStatus, limit, offset int) ([]models.Trade, error) {
	return nil, nil
}

func (s stubTradeService) Accept(ctx context.Context, tradeID, actorID int64) (models.Trade, error) {
	if s.acceptFn == nil {
		return models.Trade{ID: tradeID}, nil
	}
	return s.acceptFn(ctx, tradeID, actorID)
}

func (s stubTradeService) Decline(ctx context.Context, tradeID, actorID int64) error {
	return nil
}

func (s stubTradeService) Cancel(ctx context.Context, tradeID, actorID int64) error {
	if s.cancelFn == nil {
		return nil
	}
	return s.cancelFn(ctx, tradeID, actorID)
}

type stubAwardService struct{}

func (stubAwardService) AwardForPurchase(ctx context.Context, req services.AwardRequest) (services.AwardResult, error) {
	return services.AwardResult{ItemID: 1, Quantity: req.Quantity}, nil
}

// testDeps returns stubs for every dependency; tests override what they use.
func testDeps() Deps {
	return Deps{
		TxRunner:      &fakeTxRunner{},
		Users:         stubUserStore{},
		Admin:         stubAdminStore{},
		Audit:         stubAuditStore{},
		Ledger:        stubLedgerStore{},
		Notifications: stubNotificationStore{},
		Security:      &stubSecurityGate{},
		Currencies:    stubCurrencyService{},
		Items:         stubItemService{},
		NFTs:          stubNFTService{},
		Trades:        stubTradeService{},
		Awards:        stubAwardService{},
	}
}

func newTestHandler(deps Deps) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		TokenTTL:       time.Minute,
		AllowedOrigins: "*",
	}
	return New(cfg, deps)
}

// serve routes a request through the full router, authenticated as userID
// when it is positive.
func serve(t *testing.T, h *Handler, method, path, body string, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		token, err := auth.GenerateToken("secret", userID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func superAdmin() stubAdminStore {
	return stubAdminStore{
		isAdminFn: func(context.Context, int64) (bool, bool, error) { return true, true, nil },
	}
}
