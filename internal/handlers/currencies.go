package handlers

import (
	"net/http"
	"strconv"

	"inventory/internal/middleware"
	"inventory/internal/services"
)

func (h *Handler) ListCurrencies(w http.ResponseWriter, r *http.Request) {
	currencies, err := h.Currencies.List(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, currencies)
}

func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	balances, err := h.Currencies.Balances(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, balances)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	currencyID, ok := idParam(r, "currencyID")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid currency id")
		return
	}
	balance, err := h.Currencies.GetBalance(r.Context(), userID, currencyID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"currency_id": currencyID,
		"balance":     balance,
	})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := pageParams(r)
	currencyID := int64(parseInt(r.URL.Query().Get("currency_id"), 0))
	rows, err := h.Currencies.ListTransactions(r.Context(), userID, currencyID, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

type transferRequest struct {
	ToUserID    int64  `json:"to_user_id"`
	CurrencyID  int64  `json:"currency_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transferRequest
	if !decodeJSON(r, &req) || req.ToUserID <= 0 || req.CurrencyID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	result, err := h.Currencies.Transfer(r.Context(), services.TransferRequest{
		FromUserID:  userID,
		ToUserID:    req.ToUserID,
		CurrencyID:  req.CurrencyID,
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// Convert prices an amount across currencies through their exchange rates.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	amount, ok := parseAmount(query.Get("amount"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	fromID, errFrom := strconv.ParseInt(query.Get("from"), 10, 64)
	toID, errTo := strconv.ParseInt(query.Get("to"), 10, 64)
	if errFrom != nil || errTo != nil {
		respondError(w, http.StatusBadRequest, "invalid currency id")
		return
	}
	converted, found, err := h.Currencies.Convert(r.Context(), amount, fromID, toID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "not_found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"amount":    amount,
		"from":      fromID,
		"to":        toID,
		"converted": converted,
	})
}
