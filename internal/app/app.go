package app

import (
	"context"
	"log"
	"time"

	"inventory/internal/config"
	"inventory/internal/db"
	"inventory/internal/handlers"
	"inventory/internal/notify"
	"inventory/internal/security"
	"inventory/internal/services"
	"inventory/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// App is the wired service graph shared by the server and the admin CLI.
type App struct {
	Config   config.Config
	DB       *sqlx.DB
	Redis    *redis.Client
	TxRunner db.TxRunner

	Users         *store.UserStore
	Admins        *store.AdminStore
	Audit         *store.AuditStore
	Ledger        *store.LedgerStore
	Notifications *store.NotificationStore
	RateLimits    *store.RateLimitStore

	Gate       *security.Gate
	Currencies *services.CurrencyService
	Items      *services.ItemService
	NFTs       *services.NFTService
	Trades     *services.TradeService
	Awards     *services.AwardService
}

// Load connects to the database, and to Redis when REDIS_ADDR is set, then
// builds stores and services.
func Load(ctx context.Context, cfg config.Config) (*App, error) {
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: database, TxRunner: db.NewTxRunner(database)}
	if err := a.loadLimiter(ctx); err != nil {
		database.Close()
		return nil, err
	}
	if err := a.loadServices(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) loadLimiter(ctx context.Context) error {
	a.RateLimits = store.NewRateLimitStore(a.DB)
	if a.Config.RedisAddr == "" {
		return nil
	}
	client, err := security.NewRedisClient(ctx, a.Config.RedisAddr)
	if err != nil {
		return err
	}
	a.Redis = client
	return nil
}

func (a *App) limiter() security.Limiter {
	if a.Redis != nil {
		return security.NewRedisLimiter(a.Redis)
	}
	return security.NewStoreLimiter(a.RateLimits)
}

func (a *App) loadServices() error {
	cfg := a.Config
	a.Users = store.NewUserStore(a.DB)
	a.Admins = store.NewAdminStore(a.DB)
	a.Audit = store.NewAuditStore(a.DB)
	a.Ledger = store.NewLedgerStore(a.DB)
	a.Notifications = store.NewNotificationStore(a.DB)

	currencies := store.NewCurrencyStore(a.DB)
	balances := store.NewBalanceStore(a.DB)
	transactions := store.NewTransactionStore(a.DB)
	items := store.NewItemStore(a.DB)
	userItems := store.NewUserItemStore(a.DB)
	nfts := store.NewNFTStore(a.DB)

	a.Gate = security.NewGate(a.limiter(), a.Users, a.Admins, userItems, nfts, a.Audit)
	notifier := notify.New(a.Notifications)
	policies := services.PoliciesFromConfig(cfg.RateLimits)

	a.Currencies = services.NewCurrencyService(a.TxRunner, currencies, balances, transactions, a.Gate, notifier, policies, cfg.StartingBalance)
	a.Items = services.NewItemService(a.TxRunner, items, userItems, a.Gate)
	nftService, err := services.NewNFTService(a.TxRunner, nfts, items, a.Gate, notifier, policies, cfg.NFTHashSalt, cfg.MintNodeID)
	if err != nil {
		return err
	}
	a.NFTs = nftService
	a.Trades = services.NewTradeService(services.TradeDeps{
		TxRunner:      a.TxRunner,
		Trades:        store.NewTradeStore(a.DB),
		Reservations:  store.NewReservationStore(a.DB),
		Items:         items,
		UserItems:     userItems,
		Currencies:    currencies,
		Balances:      balances,
		NFTs:          nfts,
		ItemMover:     a.Items,
		CurrencyMover: a.Currencies,
		NFTMover:      a.NFTs,
		Gate:          a.Gate,
		Notifier:      notifier,
		Policies:      policies,
		TTL:           cfg.TradeTTL,
	})
	a.Awards = services.NewAwardService(a.TxRunner, items, store.NewPurchaseAwardStore(a.DB), a.Items, a.NFTs, a.Gate, notifier)
	return nil
}

// HandlerDeps exposes the graph to the HTTP layer.
func (a *App) HandlerDeps() handlers.Deps {
	return handlers.Deps{
		TxRunner:      a.TxRunner,
		Users:         a.Users,
		Admin:         a.Admins,
		Audit:         a.Audit,
		Ledger:        a.Ledger,
		Notifications: a.Notifications,
		Security:      a.Gate,
		Currencies:    a.Currencies,
		Items:         a.Items,
		NFTs:          a.NFTs,
		Trades:        a.Trades,
		Awards:        a.Awards,
	}
}

// Sweep expires overdue trades and drops stale rate-limit counters.
func (a *App) Sweep(ctx context.Context, now time.Time) {
	expired, err := a.Trades.ExpireDue(ctx, now)
	if err != nil {
		log.Printf("trade expiry sweep failed: %v", err)
	} else if expired > 0 {
		log.Printf("expired %d trades", expired)
	}
	if _, err := a.RateLimits.Purge(ctx, now); err != nil {
		log.Printf("rate limit purge failed: %v", err)
	}
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	_ = a.DB.Close()
}
