package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/julo/repayment-service/internal/models"
	"github.com/julo/repayment-service/internal/service"
	"github.com/sirupsen/logrus"
)

type createPaybackRequest struct {
	CustomerID      int64                 `json:"customer_id"`
	AccountID       int64                 `json:"account_id"`
	Amount          int64                 `json:"amount"`
	Service         models.PaybackService `json:"payback_service"`
	PaymentMethodID *int64                `json:"payment_method_id"`
	TransactionID   string                `json:"transaction_id"`
	TransactionDate time.Time             `json:"transaction_date"`
}

type processRequest struct {
	Note          string `json:"note"`
	UsingCashback bool   `json:"using_cashback"`
}

type cashbackPaymentRequest struct {
	Amount int64  `json:"amount"`
	Note   string `json:"note"`
}

type repaymentResponse struct {
	PaybackTransactionID     int64                      `json:"payback_transaction_id"`
	AlreadyProcessed         bool                       `json:"already_processed"`
	AccountTransaction       *models.AccountTransaction `json:"account_transaction,omitempty"`
	Overpayment              int64                      `json:"overpayment"`
	PaidOffAccountPaymentIDs []int64                    `json:"paid_off_account_payment_ids,omitempty"`
	WalletHistory            []models.WalletHistory     `json:"wallet_history,omitempty"`
}

func newRepaymentResponse(paybackID int64, res *service.RepaymentResult) repaymentResponse {
	if res == nil {
		return repaymentResponse{PaybackTransactionID: paybackID, AlreadyProcessed: true}
	}
	return repaymentResponse{
		PaybackTransactionID:     paybackID,
		AccountTransaction:       res.AccountTransaction,
		Overpayment:              res.Overpayment,
		PaidOffAccountPaymentIDs: res.PaidOffAccountPaymentIDs,
		WalletHistory:            res.WalletHistory,
	}
}

// CreatePaybackTransaction records a manual or gateway payment without
// allocating it
func (h *Handler) CreatePaybackTransaction(w http.ResponseWriter, r *http.Request) {
	var req createPaybackRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	pt, err := h.svc.CreatePaybackTransaction(r.Context(), service.IntakeRequest{
		CustomerID:      req.CustomerID,
		AccountID:       req.AccountID,
		Amount:          req.Amount,
		Service:         req.Service,
		PaymentMethodID: req.PaymentMethodID,
		TransactionID:   req.TransactionID,
		TransactionDate: req.TransactionDate,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pt)
}

// GetPaybackTransaction returns one payback transaction
func (h *Handler) GetPaybackTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid payback transaction id", http.StatusBadRequest)
		return
	}
	pt, err := h.svc.GetPaybackTransaction(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pt)
}

// ProcessPaybackTransaction allocates a recorded payback transaction
func (h *Handler) ProcessPaybackTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid payback transaction id", http.StatusBadRequest)
		return
	}
	// the body is optional
	var req processRequest
	if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	operatorID, _ := OperatorID(r.Context())
	h.log.WithFields(logrus.Fields{
		"operator_id":            operatorID,
		"payback_transaction_id": id,
	}).Info("Processing payback transaction")

	res, err := h.svc.ProcessRepaymentTrx(r.Context(), id, req.Note, req.UsingCashback)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newRepaymentResponse(id, res))
}

// ListUnprocessed lists payback transactions waiting for an operator
func (h *Handler) ListUnprocessed(w http.ResponseWriter, r *http.Request) {
	var olderThan time.Duration
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			http.Error(w, "Invalid older_than duration", http.StatusBadRequest)
			return
		}
		olderThan = d
	}
	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	pts, err := h.svc.ListUnprocessed(r.Context(), olderThan, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if pts == nil {
		pts = []models.PaybackTransaction{}
	}
	writeJSON(w, http.StatusOK, pts)
}

// OldestUnpaid returns the installment bucket the next payment would go to
func (h *Handler) OldestUnpaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return
	}
	ap, err := h.svc.OldestUnpaid(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ap == nil {
		http.Error(w, "No unpaid account payment", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ap)
}

// CashbackPayment pays an account's installments from the cashback wallet
func (h *Handler) CashbackPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, "Invalid account id", http.StatusBadRequest)
		return
	}
	var req cashbackPaymentRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	pt, res, err := h.svc.PayWithCashback(r.Context(), id, req.Amount, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newRepaymentResponse(pt.ID, res))
}
