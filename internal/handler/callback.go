package handler

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/julo/repayment-service/internal/integrations/gateway"
	"github.com/julo/repayment-service/internal/models"
	"github.com/julo/repayment-service/internal/utils"
	"github.com/sirupsen/logrus"
)

const maxCallbackBody = 1 << 20

type callbackResponse struct {
	Status               string `json:"status"`
	PaybackTransactionID int64  `json:"payback_transaction_id,omitempty"`
}

// Callback accepts a signed payment notification from a gateway, records it
// and allocates it. Once the payment is recorded the gateway gets a success
// answer even if allocation fails, so it stops retrying; the payback waits
// unprocessed for an operator.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	vendor, err := models.ParseGatewayVendor(mux.Vars(r)["vendor"])
	if err != nil {
		http.Error(w, "Unknown gateway", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if err := utils.VerifyHMAC(body, h.callbackSecret, r.Header.Get(utils.SignatureHeader)); err != nil {
		h.log.WithError(err).WithField("vendor", vendor).Warn("Rejected gateway callback signature")
		h.replyCallback(w, vendor, http.StatusUnauthorized, nil, "invalid signature")
		return
	}

	cb, err := gateway.ParseCallback(vendor, body)
	if err != nil {
		h.log.WithError(err).WithField("vendor", vendor).Warn("Malformed gateway callback")
		h.replyCallback(w, vendor, http.StatusBadRequest, nil, "malformed callback")
		return
	}

	out, err := h.svc.HandleGatewayCallback(r.Context(), cb)
	if err != nil {
		status := statusFor(err)
		reason := err.Error()
		if status == http.StatusInternalServerError {
			h.log.WithError(err).WithField("vendor", vendor).Error("Gateway callback failed")
			reason = "Internal server error"
		}
		h.replyCallback(w, vendor, status, cb, reason)
		return
	}

	resp := callbackResponse{Status: "processed"}
	if out.PaybackTransaction != nil {
		resp.PaybackTransactionID = out.PaybackTransaction.ID
	}
	switch {
	case out.Ignored:
		resp.Status = "ignored"
	case out.Duplicate:
		resp.Status = "duplicate"
	case out.ProcessErr != nil:
		resp.Status = "accepted"
		h.log.WithError(out.ProcessErr).WithFields(logrus.Fields{
			"vendor":                 vendor,
			"payback_transaction_id": resp.PaybackTransactionID,
		}).Error("Gateway payment recorded but not allocated")
	}
	h.replyCallback(w, vendor, http.StatusOK, cb, resp.Status)
}

// replyCallback answers in the vendor's format. BCA expects XML, the others JSON.
func (h *Handler) replyCallback(w http.ResponseWriter, vendor models.GatewayVendor, status int, cb *gateway.Callback, reason string) {
	if vendor == models.VendorBCA {
		out, err := gateway.BCAResponse(cb, status == http.StatusOK, reason)
		if err != nil {
			h.log.WithError(err).Error("Failed to build BCA response")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		w.Write(out)
		return
	}

	if status != http.StatusOK {
		http.Error(w, reason, status)
		return
	}
	resp := callbackResponse{Status: reason}
	writeJSON(w, status, resp)
}
