package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/coinvault/coinvault/internal/domain"
	"github.com/coinvault/coinvault/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinvault_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coinvault_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	transfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinvault_transfers_total",
		Help: "Transfer outcomes by flow",
	}, []string{"flow", "outcome"})
)

// Handler wires the transfer and query services to the HTTP surface.
type Handler struct {
	transfers *service.TransferService
	queries   *service.QueryService
	logger    *slog.Logger
}

func NewHandler(transfers *service.TransferService, queries *service.QueryService, logger *slog.Logger) *Handler {
	return &Handler{transfers: transfers, queries: queries, logger: logger}
}

// Register mounts all routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/transfers/deposit", h.transferHandler(domain.FlowDeposit)).Methods("POST")
	r.HandleFunc("/transfers/bonus", h.transferHandler(domain.FlowBonus)).Methods("POST")
	r.HandleFunc("/transfers/spend", h.transferHandler(domain.FlowSpend)).Methods("POST")
	r.HandleFunc("/owners/{id}/balances", h.GetAllBalancesHandler).Methods("GET")
	r.HandleFunc("/owners/{id}/balances/{asset}", h.GetBalanceHandler).Methods("GET")
	r.HandleFunc("/owners/{id}/history", h.GetHistoryHandler).Methods("GET")
	r.HandleFunc("/transactions/{id}", h.GetTransactionHandler).Methods("GET")
}

type transferRequest struct {
	OwnerID   int64  `json:"owner_id"`
	AssetCode string `json:"asset_code"`
	Amount    int64  `json:"amount"`
}

func (h *Handler) transferHandler(flow domain.Flow) http.HandlerFunc {
	endpoint := "/transfers/" + string(flow)
	return func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
		defer timer.ObserveDuration()

		idempotencyKey := r.Header.Get("Idempotency-Key")
		if idempotencyKey == "" {
			h.respondError(w, http.StatusBadRequest, "Missing Idempotency-Key header", "POST", endpoint)
			return
		}

		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", endpoint)
			return
		}

		result, idempotent, err := h.transfers.Transfer(r.Context(), flow, req.OwnerID, req.AssetCode, req.Amount, idempotencyKey)
		if err != nil {
			transfersTotal.WithLabelValues(string(flow), "rejected").Inc()
			h.respondTransferError(w, err, endpoint)
			return
		}

		if idempotent {
			transfersTotal.WithLabelValues(string(flow), "replayed").Inc()
			h.respondJSON(w, http.StatusOK, result, "POST", endpoint)
			return
		}

		transfersTotal.WithLabelValues(string(flow), "created").Inc()
		w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%s", result.TransactionID))
		h.respondJSON(w, http.StatusCreated, result, "POST", endpoint)
	}
}

func (h *Handler) respondTransferError(w http.ResponseWriter, err error, endpoint string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), "POST", endpoint)
	case errors.Is(err, domain.ErrWalletNotFound):
		h.respondError(w, http.StatusNotFound, "Wallet not found", "POST", endpoint)
	case errors.Is(err, domain.ErrInsufficientBalance):
		h.respondError(w, http.StatusUnprocessableEntity, "Insufficient balance", "POST", endpoint)
	case errors.Is(err, domain.ErrBalanceOverflow):
		h.respondError(w, http.StatusUnprocessableEntity, "Balance limit exceeded", "POST", endpoint)
	case errors.Is(err, domain.ErrIdempotencyInProgress):
		h.respondError(w, http.StatusConflict, "Request processing in progress", "POST", endpoint)
	case errors.Is(err, domain.ErrTreasuryMissing):
		h.logger.Error("treasury wallet missing", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Treasury not configured", "POST", endpoint)
	default:
		h.logger.Error("transfer failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "POST", endpoint)
	}
}

func (h *Handler) GetAllBalancesHandler(w http.ResponseWriter, r *http.Request) {
	endpoint := "/owners/{id}/balances"
	ownerID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid owner id", "GET", endpoint)
		return
	}

	balances, err := h.queries.AllBalances(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("balances read failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, balances, "GET", endpoint)
}

func (h *Handler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	endpoint := "/owners/{id}/balances/{asset}"
	vars := mux.Vars(r)
	ownerID, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid owner id", "GET", endpoint)
		return
	}

	balance, err := h.queries.Balance(r.Context(), ownerID, vars["asset"])
	if err != nil {
		if errors.Is(err, domain.ErrWalletNotFound) {
			h.respondError(w, http.StatusNotFound, "Wallet not found", "GET", endpoint)
			return
		}
		h.logger.Error("balance read failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, balance, "GET", endpoint)
}

func (h *Handler) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	endpoint := "/owners/{id}/history"
	ownerID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid owner id", "GET", endpoint)
		return
	}

	filter := domain.HistoryFilter{AssetCode: r.URL.Query().Get("asset")}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	entries, err := h.queries.History(r.Context(), ownerID, filter)
	if err != nil {
		h.logger.Error("history read failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, entries, "GET", endpoint)
}

func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	endpoint := "/transactions/{id}"
	entries, err := h.queries.Transaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.logger.Error("transaction read failed", slog.Any("error", err))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", endpoint)
		return
	}
	if len(entries) == 0 {
		h.respondError(w, http.StatusNotFound, "Transaction not found", "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, entries, "GET", endpoint)
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, message, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": message}, method, endpoint)
}
