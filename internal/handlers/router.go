package handlers

import (
	"net/http"
	"strings"

	"inventory/internal/config"
	"inventory/internal/db"
	"inventory/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	TxRunner      db.TxRunner
	Users         UserStore
	Admin         AdminStore
	Audit         AuditStore
	Ledger        LedgerStore
	Notifications NotificationStore
	Security      SecurityGate
	Currencies    CurrencyService
	Items         ItemService
	NFTs          NFTService
	Trades        TradeService
	Awards        AwardService
}

type Handler struct {
	Deps
	cfg config.Config
}

func New(cfg config.Config, deps Deps) *Handler {
	return &Handler{Deps: deps, cfg: cfg}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.RequestMeta)
	if h.cfg.HTTPRate > 0 {
		router.Use(middleware.Throttle(h.cfg.HTTPRate))
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(h.cfg.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})
	router.Get("/nfts/verify/{token}", h.VerifyNFT)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Get("/currencies", h.ListCurrencies)
		r.Get("/currencies/convert", h.Convert)
		r.Post("/currencies/transfer", h.Transfer)
		r.Get("/balances", h.ListBalances)
		r.Get("/balances/{currencyID}", h.GetBalance)
		r.Get("/transactions", h.ListTransactions)

		r.Get("/items", h.ListItems)
		r.Get("/inventory", h.Inventory)
		r.Get("/nfts", h.ListNFTs)
		r.Post("/nfts/upgrade-random", h.UpgradeRandom)
		r.Post("/nfts/{id}/transfer", h.TransferNFT)
		r.Get("/nfts/{id}/certificate", h.Certificate)
		r.Post("/nfts/{id}/burn", h.BurnNFT)

		r.Post("/trades", h.CreateTrade)
		r.Get("/trades", h.ListTrades)
		r.Get("/trades/{id}", h.GetTrade)
		r.Post("/trades/{id}/accept", h.AcceptTrade)
		r.Post("/trades/{id}/decline", h.DeclineTrade)
		r.Post("/trades/{id}/cancel", h.CancelTrade)

		r.Get("/notifications", h.ListNotifications)
		r.Post("/notifications/{id}/read", h.MarkNotificationRead)
		r.Get("/users/username/{username}", h.GetUserByUsername)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleManageCurrencies)).Post("/currencies", h.CreateCurrency)
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleManageCurrencies)).Put("/currencies/{id}", h.UpdateCurrency)
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleManageCurrencies)).Delete("/currencies/{id}", h.DeleteCurrency)
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleManageCurrencies)).Post("/currencies/{id}/credit", h.CreditUser)
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleManageCurrencies)).Post("/currencies/{id}/debit", h.DebitUser)
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleManageCurrencies)).Post("/currencies/{id}/bulk-award", h.BulkAward)
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleManageItems)).Post("/items", h.CreateItem)
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleManageItems)).Post("/items/{id}/grant", h.GrantItem)
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleManageItems)).Post("/purchases/award", h.AwardPurchase)
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleManageNFTs)).Post("/nfts/mint", h.MintNFT)
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleManageNFTs)).Post("/nfts/{id}/upgrade", h.UpgradeNFT)
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleManageNFTs)).Post("/nfts/{id}/burn", h.BurnNFT)
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleManageUsers)).Post("/users/{id}/block", h.SetUserBlocked)
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleViewAudit)).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.Admin, middleware.RoleViewAudit)).Get("/reconcile", h.Reconcile)
		r.With(middleware.RequireAdmin(h.Admin, middleware.AnyAdmin)).Post("/roles/grant", h.GrantRole)
		r.With(middleware.RequireAdmin(h.Admin, middleware.AnyAdmin)).Post("/promote", h.PromoteAdmin)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
