package handlers

import (
	"net/http"

	"inventory/internal/middleware"
	"inventory/internal/models"
	"inventory/internal/services"
)

type createTradeRequest struct {
	TargetUserID   int64        `json:"target_user_id"`
	InitiatorOffer models.Offer `json:"initiator_offer"`
	TargetOffer    models.Offer `json:"target_offer"`
	Message        string       `json:"message"`
}

func (h *Handler) CreateTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req createTradeRequest
	if !decodeJSON(r, &req) {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	trade, err := h.Trades.Create(r.Context(), services.CreateTradeRequest{
		InitiatorID:    userID,
		TargetID:       req.TargetUserID,
		InitiatorOffer: req.InitiatorOffer,
		TargetOffer:    req.TargetOffer,
		Message:        req.Message,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, trade)
}

func (h *Handler) ListTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := pageParams(r)
	trades, err := h.Trades.ListForUser(r.Context(), userID, models.TradeStatus(r.URL.Query().Get("status")), limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, trades)
}

func (h *Handler) GetTrade(w http.ResponseWriter, r *http.Request) {
	userID, tradeID, ok := tradeParams(w, r)
	if !ok {
		return
	}
	trade, err := h.Trades.Get(r.Context(), tradeID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, trade)
}

func (h *Handler) AcceptTrade(w http.ResponseWriter, r *http.Request) {
	userID, tradeID, ok := tradeParams(w, r)
	if !ok {
		return
	}
	trade, err := h.Trades.Accept(r.Context(), tradeID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, trade)
}

func (h *Handler) DeclineTrade(w http.ResponseWriter, r *http.Request) {
	userID, tradeID, ok := tradeParams(w, r)
	if !ok {
		return
	}
	if err := h.Trades.Decline(r.Context(), tradeID, userID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": tradeID, "status": models.TradeDeclined})
}

func (h *Handler) CancelTrade(w http.ResponseWriter, r *http.Request) {
	userID, tradeID, ok := tradeParams(w, r)
	if !ok {
		return
	}
	if err := h.Trades.Cancel(r.Context(), tradeID, userID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": tradeID, "status": models.TradeCancelled})
}

func tradeParams(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return 0, 0, false
	}
	tradeID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid trade id")
		return 0, 0, false
	}
	return userID, tradeID, true
}
