package cryptogw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/kevin07696/payment-switch/internal/domain/ports"
)

// Adapter implements ports.CryptoGateway against a JSON HTTP gateway
// with HMAC-signed requests
type Adapter struct {
	config     AuthConfig
	baseURL    string
	httpClient ports.HTTPClient
	logger     ports.Logger
}

// NewAdapter creates a crypto gateway adapter with dependency injection
func NewAdapter(config AuthConfig, baseURL string, httpClient ports.HTTPClient, logger ports.Logger) *Adapter {
	return &Adapter{
		config:     config,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// NewAdapterWithDefaults creates a crypto gateway adapter with a default
// HTTP client
func NewAdapterWithDefaults(config AuthConfig, baseURL string, logger ports.Logger) *Adapter {
	return &Adapter{
		config:     config,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// createTxnRequest is the wire format of a create-transaction request
type createTxnRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	CallbackURL string `json:"callbackUrl,omitempty"`
	TTLSeconds  int    `json:"ttlSeconds,omitempty"`
}

// createTxnResponse is the gateway's invoice handle
type createTxnResponse struct {
	TxnID     string `json:"txnId"`
	QRPayload string `json:"qrPayload"`
	ExpiresAt string `json:"expiresAt"` // RFC 3339
}

// statusResponse is the gateway's status answer
type statusResponse struct {
	Status string `json:"status"` // PENDING | CONFIRMED | EXPIRED
}

// CreateTransaction creates an invoice at the gateway
func (a *Adapter) CreateTransaction(ctx context.Context, req *ports.CreateCryptoTxnRequest) (*ports.CreateCryptoTxnResult, error) {
	apiReq := createTxnRequest{
		Amount:      req.Amount.String(),
		Currency:    req.Currency,
		CallbackURL: req.CallbackURL,
		TTLSeconds:  int(req.TTL.Seconds()),
	}

	var resp createTxnResponse
	if err := a.makeRequest(ctx, http.MethodPost, "/transactions", apiReq, &resp); err != nil {
		return nil, err
	}

	if resp.TxnID == "" || resp.QRPayload == "" {
		return nil, domain.ErrMalformedResponse.WithDetail("endpoint", "/transactions")
	}
	expiresAt, err := time.Parse(time.RFC3339, resp.ExpiresAt)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeTransportBadResp, "parse invoice expiry", err)
	}

	a.logger.Info("crypto invoice created at gateway",
		ports.String("external_txn_id", resp.TxnID),
		ports.String("expires_at", resp.ExpiresAt),
	)

	return &ports.CreateCryptoTxnResult{
		ExternalTxnID: resp.TxnID,
		QRPayload:     resp.QRPayload,
		ExpiresAt:     expiresAt.UTC(),
	}, nil
}

// GetStatus queries the invoice status by the gateway's id
func (a *Adapter) GetStatus(ctx context.Context, externalTxnID string) (domain.InvoiceStatus, error) {
	endpoint := fmt.Sprintf("/transactions/%s/status", externalTxnID)

	var resp statusResponse
	if err := a.makeRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return domain.InvoiceError, err
	}

	switch domain.InvoiceStatus(resp.Status) {
	case domain.InvoicePending, domain.InvoiceConfirmed, domain.InvoiceExpired:
		return domain.InvoiceStatus(resp.Status), nil
	default:
		return domain.InvoiceError, domain.ErrMalformedResponse.WithDetail("status", resp.Status)
	}
}

// makeRequest makes an HMAC-signed HTTP request to the gateway
func (a *Adapter) makeRequest(ctx context.Context, method, endpoint string, request interface{}, response interface{}) error {
	var payloadBytes []byte
	var err error
	if request != nil {
		payloadBytes, err = json.Marshal(request)
		if err != nil {
			return domain.WrapError(domain.ErrorCodeInternalError, "marshal gateway request", err)
		}
	}

	signature := CalculateSignature(a.config.APISecret, endpoint, payloadBytes)

	url := a.baseURL + endpoint
	var body io.Reader
	if payloadBytes != nil {
		body = bytes.NewReader(payloadBytes)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "create gateway request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", a.config.APIKey)
	httpReq.Header.Set("X-Signature", signature)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return domain.WrapError(domain.ErrorCodeTransportTimeout, "crypto gateway timed out", err)
		}
		return domain.WrapError(domain.ErrorCodeTransportNetwork, "crypto gateway unreachable", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeTransportNetwork, "read gateway response", err)
	}

	if httpResp.StatusCode >= 500 {
		return domain.ErrGatewayNetwork.WithDetail("http_status", httpResp.StatusCode)
	}
	if httpResp.StatusCode >= 400 {
		return domain.ErrMalformedResponse.WithDetail("http_status", httpResp.StatusCode)
	}

	if err := json.Unmarshal(respBody, response); err != nil {
		return domain.WrapError(domain.ErrorCodeTransportBadResp, "unmarshal gateway response", err)
	}

	return nil
}
