package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/response"
	"github.com/mstgnz/paygate/provider"
)

// Charger is satisfied by *provider.Manager
type Charger interface {
	Charge(ctx context.Context, request provider.PaymentRequest) (*provider.TransactionResult, error)
}

// TransactionReader looks up stored outcomes, e.g. the SQLite or Postgres store
type TransactionReader interface {
	FindByIdempotencyKey(ctx context.Context, key string) (*provider.TransactionResult, error)
	ListTransactions(ctx context.Context, gatewayName string, limit int) ([]provider.TransactionResult, error)
}

// PaymentHandler handles payment related HTTP requests
type PaymentHandler struct {
	charger      Charger
	transactions TransactionReader
}

// NewPaymentHandler creates a new payment handler. transactions may be nil,
// in which case the read endpoints answer 404.
func NewPaymentHandler(charger Charger, transactions TransactionReader) *PaymentHandler {
	return &PaymentHandler{
		charger:      charger,
		transactions: transactions,
	}
}

// Charge handles POST /v1/payments. The Idempotency-Key header wins over
// the body field.
func (h *PaymentHandler) Charge(w http.ResponseWriter, r *http.Request) {
	var req provider.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.ErrorWithCode(w, http.StatusBadRequest, "invalid_request", "Invalid request format", nil)
		return
	}

	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
		logger.Warn("charge without idempotency key, generated one", logger.LogContext{
			RequestID: middleware.GetReqID(r.Context()),
			Fields:    map[string]any{"orderId": req.OrderID, "idempotencyKey": req.IdempotencyKey},
		})
	}

	result, err := h.charger.Charge(r.Context(), req)
	if err != nil {
		h.writeChargeError(w, r, err)
		return
	}

	w.Header().Set("Idempotency-Key", result.IdempotencyKey)
	response.Success(w, statusCodeFor(result.Status), "Payment processed", result)
}

func statusCodeFor(status provider.TransactionStatus) int {
	switch status {
	case provider.StatusPending, provider.StatusRequiresAction:
		return http.StatusAccepted
	case provider.StatusFailed:
		return http.StatusPaymentRequired
	default:
		return http.StatusOK
	}
}

func (h *PaymentHandler) writeChargeError(w http.ResponseWriter, r *http.Request, err error) {
	var unsupported *provider.UnsupportedPaymentRequestError

	switch {
	case errors.Is(err, provider.ErrInvalidPaymentRequest):
		response.ErrorWithCode(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	case errors.As(err, &unsupported):
		response.ErrorWithCode(w, http.StatusUnprocessableEntity, "unsupported_payment",
			"This payment option is not available for the selected currency",
			map[string]string{"currency": unsupported.Currency, "method": unsupported.Method})
	case errors.Is(err, provider.ErrNoGatewayAvailable):
		response.ErrorWithCode(w, http.StatusServiceUnavailable, "no_gateway_available",
			"Payments are temporarily unavailable. Please try again in a few minutes.", nil)
	case errors.Is(err, provider.ErrChargeInProgress):
		response.ErrorWithCode(w, http.StatusConflict, "charge_in_progress",
			"A payment with this idempotency key is already being processed", nil)
	case r.Context().Err() != nil && isContextError(err):
		// the caller gave up; the coalesced attempt keeps running and its
		// result is replayed for the same key
		response.ErrorWithCode(w, http.StatusGatewayTimeout, "timeout",
			"The payment is still being processed. Retry with the same idempotency key to get the result.", nil)
	default:
		logger.Error("charge failed", err, logger.LogContext{RequestID: middleware.GetReqID(r.Context())})
		response.ErrorWithCode(w, http.StatusInternalServerError, "payment_failed",
			"The payment could not be processed", nil)
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// GetTransaction handles GET /v1/payments/{idempotencyKey}
func (h *PaymentHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	if h.transactions == nil {
		response.Error(w, http.StatusNotFound, "Transaction history is not enabled", nil)
		return
	}

	key := chi.URLParam(r, "idempotencyKey")
	result, err := h.transactions.FindByIdempotencyKey(r.Context(), key)
	if err != nil {
		logger.Error("transaction lookup failed", err, logger.LogContext{RequestID: middleware.GetReqID(r.Context())})
		response.Error(w, http.StatusInternalServerError, "Failed to load transaction", nil)
		return
	}
	if result == nil {
		response.Error(w, http.StatusNotFound, "Transaction not found", nil)
		return
	}

	response.Success(w, http.StatusOK, "Transaction retrieved", result)
}

// ListTransactions handles GET /v1/payments?gateway=stripe&limit=20
func (h *PaymentHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if h.transactions == nil {
		response.Error(w, http.StatusNotFound, "Transaction history is not enabled", nil)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			response.Error(w, http.StatusBadRequest, "limit must be between 1 and 500", nil)
			return
		}
		limit = parsed
	}

	results, err := h.transactions.ListTransactions(r.Context(), r.URL.Query().Get("gateway"), limit)
	if err != nil {
		logger.Error("transaction listing failed", err, logger.LogContext{RequestID: middleware.GetReqID(r.Context())})
		response.Error(w, http.StatusInternalServerError, "Failed to list transactions", nil)
		return
	}
	if results == nil {
		results = []provider.TransactionResult{}
	}

	response.Success(w, http.StatusOK, "Transactions retrieved", results)
}
