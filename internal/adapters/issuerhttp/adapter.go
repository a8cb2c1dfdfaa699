package issuerhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/kevin07696/payment-switch/internal/domain/ports"
)

// Adapter implements ports.IssuerGateway over a plain JSON HTTP
// protocol. It is a stateless request/response wrapper: it translates
// the authorization request to the wire, parses the issuer's answer,
// and carries no business state, so callers may retry it freely.
type Adapter struct {
	httpClient ports.HTTPClient
	logger     ports.Logger
}

// NewAdapter creates an issuer gateway adapter with dependency injection
func NewAdapter(httpClient ports.HTTPClient, logger ports.Logger) *Adapter {
	return &Adapter{
		httpClient: httpClient,
		logger:     logger,
	}
}

// NewAdapterWithDefaults creates an issuer gateway adapter with a
// default HTTP client. The per-request deadline comes from the caller's
// context; the client timeout is only a backstop.
func NewAdapterWithDefaults(logger ports.Logger) *Adapter {
	return &Adapter{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// authRequest is the wire format of an authorization request
type authRequest struct {
	PAN             string `json:"pan"`
	Expiry          string `json:"expiry"`
	CVV             string `json:"cvv"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	AcquirerOrderID string `json:"acquirerOrderId"`
}

// authResponse is the wire format of the issuer's decision
type authResponse struct {
	Decision        string `json:"decision"` // approved | declined
	IssuerReference string `json:"issuerReference"`
	DeclineReason   string `json:"declineReason,omitempty"`
}

// Authorize sends one authorization request to the issuer endpoint and
// maps the response 1:1 into the canonical result. Transport faults and
// unparseable responses come back as transport-class domain errors so
// the switch can retry them.
func (a *Adapter) Authorize(ctx context.Context, issuerURL string, req *ports.IssuerAuthRequest) (*ports.IssuerAuthResult, error) {
	payload, err := json.Marshal(authRequest{
		PAN:             req.PAN,
		Expiry:          req.Expiry,
		CVV:             req.CVV,
		Amount:          req.Amount.String(),
		Currency:        req.Currency,
		AcquirerOrderID: req.AcquirerOrderID,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "marshal authorization request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, issuerURL, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "create authorization request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	a.logger.Debug("forwarding authorization to issuer",
		ports.String("issuer_url", issuerURL),
		ports.String("card", domain.MaskPAN(req.PAN)),
		ports.String("acquirer_order_id", req.AcquirerOrderID),
	)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, domain.WrapError(domain.ErrorCodeTransportTimeout, "issuer did not answer in time", err)
		}
		return nil, domain.WrapError(domain.ErrorCodeTransportNetwork, "issuer unreachable", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeTransportNetwork, "read issuer response", err)
	}

	if httpResp.StatusCode >= 500 {
		return nil, domain.ErrGatewayNetwork.WithDetail("http_status", httpResp.StatusCode)
	}
	if httpResp.StatusCode >= 400 {
		return nil, domain.ErrMalformedResponse.WithDetail("http_status", httpResp.StatusCode)
	}

	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeTransportBadResp, "unmarshal issuer response", err)
	}

	// A well-formed response must carry both a decision and the
	// issuer's acknowledgment reference
	decision := ports.AuthorizationDecision(resp.Decision)
	if (decision != ports.DecisionApproved && decision != ports.DecisionDeclined) || resp.IssuerReference == "" {
		return nil, domain.ErrMalformedResponse.WithDetail("decision", resp.Decision)
	}

	return &ports.IssuerAuthResult{
		Decision:        decision,
		IssuerReference: resp.IssuerReference,
		DeclineReason:   resp.DeclineReason,
	}, nil
}
