package rest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/payment-switch/internal/adapters/cryptogw"
	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/kevin07696/payment-switch/internal/domain/ports"
	"github.com/kevin07696/payment-switch/internal/services/cryptorail"
	"github.com/kevin07696/payment-switch/internal/services/psp"
	"github.com/kevin07696/payment-switch/pkg/resilience"
)

// Handler wires the PSP contracts onto HTTP. The core stays
// transport-agnostic; everything in this package is external-layer
// plumbing.
type Handler struct {
	psp            *psp.Service
	crypto         *cryptorail.Service
	callbackSecret string
	timeouts       *resilience.TimeoutConfig
	logger         ports.Logger
}

// NewHandler creates the HTTP handler
func NewHandler(pspSvc *psp.Service, cryptoSvc *cryptorail.Service, callbackSecret string, logger ports.Logger) *Handler {
	return &Handler{
		psp:            pspSvc,
		crypto:         cryptoSvc,
		callbackSecret: callbackSecret,
		timeouts:       resilience.DefaultTimeoutConfig(),
		logger:         logger,
	}
}

// Routes builds the router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requestTimeout)
	r.Post("/payments", h.submitPayment)
	r.Get("/payments/{id}", h.getStatus)
	r.Post("/callbacks/crypto", h.cryptoCallback)
	return r
}

// requestTimeout bounds every request so a hung downstream surfaces as
// a bounded error instead of a stuck connection
func (h *Handler) requestTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := h.timeouts.HandlerContext(r.Context())
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// submitPaymentRequest is the inbound payment intent
type submitPaymentRequest struct {
	MerchantOrderID string `json:"merchantOrderId"`
	Rail            string `json:"rail"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Card            *struct {
		PAN    string `json:"pan"`
		Expiry string `json:"expiry"`
		CVV    string `json:"cvv"`
	} `json:"card,omitempty"`
}

// paymentResponse is the caller-visible result
type paymentResponse struct {
	TransactionID string `json:"transactionId"`
	State         string `json:"state"`
	FailureReason string `json:"failureReason,omitempty"`
	QRPayload     string `json:"qrPayload,omitempty"`
	ExpiresAt     string `json:"expiresAt,omitempty"`
}

func (h *Handler) submitPayment(w http.ResponseWriter, r *http.Request) {
	var req submitPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	intent := &psp.PaymentIntent{
		MerchantOrderID: req.MerchantOrderID,
		Rail:            domain.Rail(req.Rail),
		Amount:          amount,
		Currency:        req.Currency,
	}
	if req.Card != nil {
		intent.Card = &psp.CardPayload{PAN: req.Card.PAN, Expiry: req.Card.Expiry, CVV: req.Card.CVV}
	}

	ctx, cancel := h.timeouts.ServiceContext(r.Context())
	defer cancel()

	result, err := h.psp.SubmitPayment(ctx, intent)
	if err != nil {
		if domain.GetErrorCode(err) == domain.ErrorCodeValidationFailed {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("submit payment failed", ports.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentResponse(result))
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.psp.GetStatus(r.Context(), id)
	if err != nil {
		if domain.GetErrorCode(err) == domain.ErrorCodeLedgerNotFound {
			writeError(w, http.StatusNotFound, "transaction not found")
			return
		}
		h.logger.Error("get status failed", ports.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(result))
}

// cryptoCallbackRequest is the gateway's status notification
type cryptoCallbackRequest struct {
	TxnID  string `json:"txnId"`
	Status string `json:"status"`
}

// cryptoCallback accepts gateway status notifications. The response is
// 200 regardless of correlation outcome: an unknown or unverifiable
// callback is logged and discarded, never echoed back in a way that
// lets a caller probe for valid ids.
func (h *Handler) cryptoCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	signature := r.Header.Get("X-Signature")
	if !cryptogw.ValidateSignature(h.callbackSecret, "/callbacks/crypto", body, signature) {
		// Unverifiable callbacks cannot be attributed; same discipline
		// as an unknown external id
		h.logger.Warn("discarding crypto callback with bad signature")
		w.WriteHeader(http.StatusOK)
		return
	}

	var req cryptoCallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.crypto.HandleCallback(r.Context(), req.TxnID, domain.InvoiceStatus(req.Status)); err != nil {
		if !domain.IsCorrelationError(err) {
			h.logger.Error("crypto callback failed", ports.Err(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		// Correlation failures are already logged and discarded
	}
	w.WriteHeader(http.StatusOK)
}

func toPaymentResponse(result *psp.PaymentResult) paymentResponse {
	return paymentResponse{
		TransactionID: result.TransactionID,
		State:         string(result.State),
		FailureReason: result.FailureReason,
		QRPayload:     result.QRPayload,
		ExpiresAt:     result.ExpiresAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
