package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/julo/repayment-service/internal/models"
	"github.com/julo/repayment-service/internal/service"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	svc            *service.Service
	log            *logrus.Logger
	callbackSecret string
}

func NewHandler(svc *service.Service, log *logrus.Logger, callbackSecret string) *Handler {
	return &Handler{svc: svc, log: log, callbackSecret: callbackSecret}
}

// RegisterRoutes wires public routes on r and operator routes behind the JWT
// middleware
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Public routes
	r.HandleFunc("/healthz", h.Health).Methods("GET")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/callbacks/{vendor}", h.Callback).Methods("POST")

	// Protected routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(AuthMiddleware(h.svc, h.log))
	authRouter.HandleFunc("/payback-transactions", h.CreatePaybackTransaction).Methods("POST")
	authRouter.HandleFunc("/payback-transactions/unprocessed", h.ListUnprocessed).Methods("GET")
	authRouter.HandleFunc("/payback-transactions/{id:[0-9]+}", h.GetPaybackTransaction).Methods("GET")
	authRouter.HandleFunc("/payback-transactions/{id:[0-9]+}/process", h.ProcessPaybackTransaction).Methods("POST")
	authRouter.HandleFunc("/accounts/{id:[0-9]+}/oldest-unpaid", h.OldestUnpaid).Methods("GET")
	authRouter.HandleFunc("/accounts/{id:[0-9]+}/cashback-payments", h.CashbackPayment).Methods("POST")
	authRouter.HandleFunc("/customers/{id:[0-9]+}/wallet", h.GetWallet).Methods("GET")
	authRouter.HandleFunc("/customers/{id:[0-9]+}/wallet/adjustments", h.AdjustWallet).Methods("POST")
}

// Health answers liveness checks
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses. Unexpected errors are logged
// and hidden from the caller.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		http.Error(w, "Internal server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateTransaction):
		return http.StatusConflict
	case errors.Is(err, models.ErrAllocation), errors.Is(err, models.ErrInsufficientCashback):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
