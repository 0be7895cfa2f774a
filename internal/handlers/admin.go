package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"inventory/internal/db"
	"inventory/internal/middleware"
	"inventory/internal/models"
	"inventory/internal/security"
	"inventory/internal/services"

	"github.com/jmoiron/sqlx"
)

func (h *Handler) CreateCurrency(w http.ResponseWriter, r *http.Request) {
	var req services.CurrencyRequest
	if !decodeJSON(r, &req) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	id, err := h.Currencies.Create(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) UpdateCurrency(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid currency id")
		return
	}
	var req services.CurrencyRequest
	if !decodeJSON(r, &req) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.Currencies.Update(r.Context(), id, req); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (h *Handler) DeleteCurrency(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid currency id")
		return
	}
	if err := h.Currencies.Delete(r.Context(), id); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type balanceChangeRequest struct {
	UserID      int64                  `json:"user_id"`
	Amount      string                 `json:"amount"`
	Type        models.TransactionType `json:"type"`
	Description string                 `json:"description"`
}

func (h *Handler) CreditUser(w http.ResponseWriter, r *http.Request) {
	h.changeBalance(w, r, h.Currencies.Credit)
}

func (h *Handler) DebitUser(w http.ResponseWriter, r *http.Request) {
	h.changeBalance(w, r, h.Currencies.Debit)
}

func (h *Handler) changeBalance(w http.ResponseWriter, r *http.Request, apply func(context.Context, services.CreditRequest) (int64, error)) {
	actorID, _ := middleware.UserIDFromContext(r.Context())
	currencyID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid currency id")
		return
	}
	var req balanceChangeRequest
	if !decodeJSON(r, &req) || req.UserID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	transactionID, err := apply(r.Context(), services.CreditRequest{
		UserID:        req.UserID,
		CurrencyID:    currencyID,
		Amount:        amount,
		Type:          req.Type,
		ReferenceType: "admin",
		ReferenceID:   fmt.Sprint(actorID),
		Description:   req.Description,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"transaction_id": transactionID})
}

type bulkAwardRequest struct {
	UserIDs     []int64 `json:"user_ids"`
	Amount      string  `json:"amount"`
	Description string  `json:"description"`
}

func (h *Handler) BulkAward(w http.ResponseWriter, r *http.Request) {
	currencyID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid currency id")
		return
	}
	var req bulkAwardRequest
	if !decodeJSON(r, &req) || len(req.UserIDs) == 0 {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	results, err := h.Currencies.BulkAward(r.Context(), currencyID, req.UserIDs, amount, req.Description)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req services.ItemRequest
	if !decodeJSON(r, &req) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	id, err := h.Items.CreateItem(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"id": id})
}

type grantItemRequest struct {
	UserID   int64  `json:"user_id"`
	Quantity int64  `json:"quantity"`
	Reason   string `json:"reason"`
}

func (h *Handler) GrantItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	var req grantItemRequest
	if !decodeJSON(r, &req) || req.UserID <= 0 || req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.Items.Grant(r.Context(), req.UserID, itemID, req.Quantity, req.Reason); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"item_id": itemID, "user_id": req.UserID, "quantity": req.Quantity})
}

func (h *Handler) AwardPurchase(w http.ResponseWriter, r *http.Request) {
	var req services.AwardRequest
	if !decodeJSON(r, &req) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := h.Awards.AwardForPurchase(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *Handler) MintNFT(w http.ResponseWriter, r *http.Request) {
	var req services.MintRequest
	if !decodeJSON(r, &req) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	nft, err := h.NFTs.Mint(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, nft)
}

func (h *Handler) UpgradeNFT(w http.ResponseWriter, r *http.Request) {
	nftID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid nft id")
		return
	}
	var req services.UpgradeRequest
	if !decodeJSON(r, &req) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req.NFTID = nftID
	nft, err := h.NFTs.Upgrade(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nft)
}

type burnRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) BurnNFT(w http.ResponseWriter, r *http.Request) {
	nftID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid nft id")
		return
	}
	if !h.authorizeNFT(w, r, nftID) {
		return
	}
	var req burnRequest
	if !decodeJSON(r, &req) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	burnHash, err := h.NFTs.Burn(r.Context(), nftID, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"nft_id": nftID, "burn_hash": burnHash})
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	rows, err := h.Audit.List(r.Context(), r.URL.Query().Get("object_type"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// Reconcile lists balances that disagree with their transaction history.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	limit, _ := pageParams(r)
	rows, err := h.Ledger.Discrepancies(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to reconcile balances")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"balanced":      len(rows) == 0,
		"discrepancies": rows,
	})
}

type promoteRequest struct {
	Identifier string `json:"identifier"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireSuper(w, r)
	if !ok {
		return
	}
	var req promoteRequest
	if !decodeJSON(r, &req) || req.Identifier == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	target, err := h.resolveUser(r.Context(), req.Identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to resolve user")
		return
	}
	err = h.TxRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.Admin.CreateAdmin(r.Context(), tx, target.ID, false, &userID)
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			respondError(w, http.StatusConflict, "already_admin")
			return
		}
		respondError(w, http.StatusInternalServerError, "unable to promote admin")
		return
	}
	h.Security.LogSecurityEvent(r.Context(), security.Event{
		UserID:     userID,
		Action:     "promote_admin",
		ObjectType: "admin",
		ObjectID:   fmt.Sprint(target.ID),
		Severity:   "warning",
	})
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted"})
}

type grantRoleRequest struct {
	AdminUserID int64  `json:"admin_user_id"`
	Role        string `json:"role"`
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireSuper(w, r)
	if !ok {
		return
	}
	var req grantRoleRequest
	if !decodeJSON(r, &req) || req.AdminUserID <= 0 || !middleware.KnownRole(req.Role) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	isAdmin, isSuper, err := h.Admin.IsAdmin(r.Context(), req.AdminUserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify target admin")
		return
	}
	if !isAdmin {
		respondError(w, http.StatusBadRequest, "target is not an admin")
		return
	}
	if isSuper {
		respondError(w, http.StatusBadRequest, "cannot assign roles to super admin")
		return
	}
	err = h.TxRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.Admin.GrantRole(r.Context(), tx, req.AdminUserID, req.Role)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to grant role")
		return
	}
	h.Security.LogSecurityEvent(r.Context(), security.Event{
		UserID:     userID,
		Action:     "grant_role",
		ObjectType: "admin_role",
		ObjectID:   fmt.Sprint(req.AdminUserID),
		Details:    map[string]any{"role": req.Role},
	})
	respondJSON(w, http.StatusCreated, map[string]string{"status": "role_granted"})
}

func (h *Handler) requireSuper(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	_, isSuper, err := h.Admin.IsAdmin(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify admin")
		return 0, false
	}
	if !isSuper {
		respondError(w, http.StatusForbidden, "super_admin_required")
		return 0, false
	}
	return userID, true
}

func (h *Handler) resolveUser(ctx context.Context, identifier string) (models.User, error) {
	if strings.Contains(identifier, "@") {
		return h.Users.GetByEmail(ctx, strings.ToLower(identifier))
	}
	return h.Users.GetByUsername(ctx, identifier)
}
