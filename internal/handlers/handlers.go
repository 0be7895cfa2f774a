package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"inventory/internal/money"
	"inventory/internal/services"
	"inventory/internal/validator"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service errors to a status and a stable error code.
func respondServiceError(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	var transferErr *services.TransferError
	var tradeErr *services.TradeExecutionError
	switch {
	case errors.As(err, &validationErr):
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_payload", "fields": validationErr.Fields})
	case errors.As(err, &tradeErr):
		respondJSON(w, http.StatusConflict, map[string]any{"error": "trade_failed", "trade_id": tradeErr.TradeID, "reason": tradeErr.Reason})
	case errors.As(err, &transferErr):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "transfer_failed", "reason": transferErr.Reason})
	default:
		status, code := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Printf("request failed: %v", err)
		}
		respondError(w, status, code)
	}
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, services.ErrNotAuthorized), errors.Is(err, services.ErrNotOwnedByUser):
		return http.StatusForbidden, "not_authorized"
	case errors.Is(err, services.ErrUserBlocked):
		return http.StatusForbidden, "user_blocked"
	case errors.Is(err, services.ErrInsufficientFunds), errors.Is(err, services.ErrNoBalance):
		return http.StatusUnprocessableEntity, "insufficient_funds"
	case errors.Is(err, services.ErrInsufficientQuantity):
		return http.StatusUnprocessableEntity, "insufficient_quantity"
	case errors.Is(err, services.ErrNotTradeable):
		return http.StatusUnprocessableEntity, "not_tradeable"
	case errors.Is(err, services.ErrQuantityLimitReached):
		return http.StatusUnprocessableEntity, "quantity_limit_reached"
	case errors.Is(err, services.ErrNoUpgradeableItems):
		return http.StatusUnprocessableEntity, "no_upgradeable_items"
	case errors.Is(err, services.ErrCurrencyInactive):
		return http.StatusUnprocessableEntity, "currency_inactive"
	case errors.Is(err, services.ErrInUse):
		return http.StatusConflict, "in_use"
	case errors.Is(err, services.ErrTradeNotPending):
		return http.StatusConflict, "trade_not_pending"
	case errors.Is(err, services.ErrTradeExpired):
		return http.StatusGone, "trade_expired"
	case errors.Is(err, services.ErrSameUser):
		return http.StatusBadRequest, "same_user"
	case errors.Is(err, services.ErrInvalidUpgrade):
		return http.StatusBadRequest, "invalid_upgrade"
	case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, money.ErrInvalidAmount), errors.Is(err, money.ErrTooManyDecimals):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, services.ErrInvalidTradeData):
		return http.StatusBadRequest, "invalid_trade_data"
	case errors.Is(err, services.ErrValidation), errors.Is(err, validator.ErrInvalidPayload):
		return http.StatusBadRequest, "invalid_payload"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func decodeJSON(r *http.Request, dest any) bool {
	return json.NewDecoder(r.Body).Decode(dest) == nil
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// pageParams reads limit and page from the query string. limit is capped at 100.
func pageParams(r *http.Request) (int, int) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	if limit > 100 {
		limit = 100
	}
	page := parseInt(query.Get("page"), 1)
	return limit, (page - 1) * limit
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	value, err := money.ParsePositive(raw, money.MaxDecimalPlaces)
	return value, err == nil
}
