package issuerhttp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/payment-switch/internal/adapters/issuerhttp"
	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/kevin07696/payment-switch/internal/domain/ports"
	"github.com/kevin07696/payment-switch/pkg/logging"
)

func authReq() *ports.IssuerAuthRequest {
	return &ports.IssuerAuthRequest{
		PAN:             "4111111111111111",
		Expiry:          "12/27",
		CVV:             "123",
		Amount:          decimal.NewFromFloat(25.00),
		Currency:        "USD",
		AcquirerOrderID: "txn-1",
	}
}

func TestAuthorize_Approved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "4111111111111111", body["pan"])
		assert.Equal(t, "25", body["amount"])
		assert.Equal(t, "txn-1", body["acquirerOrderId"])

		json.NewEncoder(w).Encode(map[string]string{
			"decision":        "approved",
			"issuerReference": "AUTH-001",
		})
	}))
	defer server.Close()

	adapter := issuerhttp.NewAdapterWithDefaults(logging.Nop())
	result, err := adapter.Authorize(context.Background(), server.URL, authReq())

	require.NoError(t, err)
	assert.Equal(t, ports.DecisionApproved, result.Decision)
	assert.Equal(t, "AUTH-001", result.IssuerReference)
}

func TestAuthorize_Declined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"decision":        "declined",
			"issuerReference": "AUTH-002",
			"declineReason":   "insufficient_funds",
		})
	}))
	defer server.Close()

	adapter := issuerhttp.NewAdapterWithDefaults(logging.Nop())
	result, err := adapter.Authorize(context.Background(), server.URL, authReq())

	require.NoError(t, err)
	assert.Equal(t, ports.DecisionDeclined, result.Decision)
	assert.Equal(t, "insufficient_funds", result.DeclineReason)
}

func TestAuthorize_ServerError_IsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := issuerhttp.NewAdapterWithDefaults(logging.Nop())
	_, err := adapter.Authorize(context.Background(), server.URL, authReq())

	assert.Equal(t, domain.ErrorCodeTransportNetwork, domain.GetErrorCode(err))
	assert.True(t, domain.IsTransportError(err))
}

func TestAuthorize_MalformedResponses(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"http 400", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}},
		{"invalid json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
		{"unknown decision", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"decision": "maybe", "issuerReference": "AUTH-003"})
		}},
		{"missing issuer reference", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"decision": "approved"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			adapter := issuerhttp.NewAdapterWithDefaults(logging.Nop())
			_, err := adapter.Authorize(context.Background(), server.URL, authReq())

			assert.Equal(t, domain.ErrorCodeTransportBadResp, domain.GetErrorCode(err))
			assert.True(t, domain.IsTransportError(err))
		})
	}
}

func TestAuthorize_ContextDeadline_IsTimeout(t *testing.T) {
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-done
	}))
	defer server.Close()
	defer close(done)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	adapter := issuerhttp.NewAdapterWithDefaults(logging.Nop())
	_, err := adapter.Authorize(ctx, server.URL, authReq())

	assert.Equal(t, domain.ErrorCodeTransportTimeout, domain.GetErrorCode(err))
}

// failingClient simulates a transport-level client failure
type failingClient struct {
	err error
}

func (c failingClient) Do(req *http.Request) (*http.Response, error) {
	return nil, c.err
}

func TestAuthorize_ClientDeadline_IsTimeout(t *testing.T) {
	adapter := issuerhttp.NewAdapter(failingClient{err: fmt.Errorf("round trip: %w", context.DeadlineExceeded)}, logging.Nop())

	_, err := adapter.Authorize(context.Background(), "http://bank-a", authReq())

	assert.Equal(t, domain.ErrorCodeTransportTimeout, domain.GetErrorCode(err))
}

func TestAuthorize_ConnectionRefused_IsNetwork(t *testing.T) {
	adapter := issuerhttp.NewAdapterWithDefaults(logging.Nop())
	_, err := adapter.Authorize(context.Background(), "http://127.0.0.1:1", authReq())

	assert.Equal(t, domain.ErrorCodeTransportNetwork, domain.GetErrorCode(err))
}
