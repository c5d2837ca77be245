package handler

import (
	"net/http"

	"github.com/julo/repayment-service/internal/models"
	"github.com/julo/repayment-service/internal/service"
)

type adjustWalletRequest struct {
	Accruing  int64                     `json:"accruing"`
	Available int64                     `json:"available"`
	Reason    models.WalletChangeReason `json:"reason"`
}

// GetWallet returns a customer's cashback balance
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid customer id", http.StatusBadRequest)
		return
	}
	wallet, err := h.svc.GetWallet(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

// AdjustWallet applies an operator correction or earned cashback
func (h *Handler) AdjustWallet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid customer id", http.StatusBadRequest)
		return
	}
	var req adjustWalletRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	history, err := h.svc.AdjustWallet(r.Context(), service.WalletChange{
		CustomerID: id,
		Accruing:   req.Accruing,
		Available:  req.Available,
		Reason:     req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, history)
}
