package handlers

import (
	"net/http"

	"inventory/internal/middleware"
	"inventory/internal/services"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Items.ListItems(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handler) Inventory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	items, err := h.Items.Inventory(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}

func (h *Handler) ListNFTs(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	nfts, err := h.NFTs.ListByOwner(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nfts)
}

type nftTransferRequest struct {
	ToUserID int64 `json:"to_user_id"`
}

func (h *Handler) TransferNFT(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	nftID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid nft id")
		return
	}
	var req nftTransferRequest
	if !decodeJSON(r, &req) || req.ToUserID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	err := h.NFTs.Transfer(r.Context(), services.NFTTransferRequest{
		NFTID:      nftID,
		FromUserID: userID,
		ToUserID:   req.ToUserID,
		Type:       "gift",
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"nft_id": nftID, "owner_id": req.ToUserID})
}

type upgradeRandomRequest struct {
	ItemID int64 `json:"item_id"`
}

func (h *Handler) UpgradeRandom(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req upgradeRandomRequest
	if !decodeJSON(r, &req) || req.ItemID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	nft, err := h.NFTs.UpgradeRandom(r.Context(), userID, req.ItemID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, nft)
}

// VerifyNFT is public so third parties can check a token.
func (h *Handler) VerifyNFT(w http.ResponseWriter, r *http.Request) {
	verification, err := h.NFTs.VerifyAuthenticity(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, verification)
}

func (h *Handler) Certificate(w http.ResponseWriter, r *http.Request) {
	nftID, ok := idParam(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid nft id")
		return
	}
	if !h.authorizeNFT(w, r, nftID) {
		return
	}
	certificate, found, err := h.NFTs.GenerateCertificate(r.Context(), nftID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "not_found")
		return
	}
	respondJSON(w, http.StatusOK, certificate)
}

// authorizeNFT lets the owner of the NFT or an admin through.
func (h *Handler) authorizeNFT(w http.ResponseWriter, r *http.Request, nftID int64) bool {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return false
	}
	allowed, err := h.Security.CanManageNFT(r.Context(), userID, nftID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to check nft access")
		return false
	}
	if !allowed {
		respondError(w, http.StatusForbidden, "not_authorized")
		return false
	}
	return true
}
