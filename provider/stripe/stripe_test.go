package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mstgnz/paygate/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v82"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gw, err := NewGateway(provider.GatewaySettings{
		Descriptor: provider.GatewayDescriptor{
			Name:                "stripe",
			SupportedCurrencies: []string{"USD"},
			SupportedMethods:    []string{"card"},
			Enabled:             true,
		},
		Credentials: map[string]string{
			"secretKey": "sk_test_1234567890abcdefghij",
			"baseUrl":   server.URL,
		},
	})
	require.NoError(t, err)
	return gw.(*Gateway)
}

func testRequest() provider.PaymentRequest {
	return provider.PaymentRequest{
		Amount:         decimal.RequireFromString("10.50"),
		Currency:       "USD",
		OrderID:        "order-1",
		IdempotencyKey: "idem-1",
		Metadata:       map[string]string{"paymentMethod": "pm_card_visa"},
	}
}

func TestNewGateway_RequiresSecretKey(t *testing.T) {
	_, err := NewGateway(provider.GatewaySettings{Credentials: map[string]string{}})
	assert.Error(t, err)
}

func TestRequiredConfig_Validation(t *testing.T) {
	fields := RequiredConfig("production")

	err := provider.ValidateConfigFields("stripe", map[string]string{"secretKey": "sk_test_1234567890abcdefghij"}, fields)
	assert.Error(t, err, "test keys must be rejected in production")

	err = provider.ValidateConfigFields("stripe", map[string]string{"secretKey": "sk_live_1234567890abcdefghij"}, fields)
	assert.NoError(t, err)
}

func TestCharge_Succeeded(t *testing.T) {
	var gotIdempotencyKey, gotAmount, gotCurrency string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotIdempotencyKey = r.Header.Get("Idempotency-Key")
		gotAmount = r.PostForm.Get("amount")
		gotCurrency = r.PostForm.Get("currency")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","object":"payment_intent","amount":1050,"currency":"usd","status":"succeeded"}`))
	})

	resp, err := gw.Charge(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "idem-1", gotIdempotencyKey)
	assert.Equal(t, "1050", gotAmount)
	assert.Equal(t, "usd", gotCurrency)
	assert.Equal(t, "pi_123", resp.TransactionID)
	assert.Equal(t, provider.StatusSucceeded, resp.Status)
	assert.True(t, resp.Amount.Equal(decimal.RequireFromString("10.50")))
	assert.Equal(t, "USD", resp.Currency)
}

func TestCharge_CardDeclinedIsTerminal(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`))
	})

	_, err := gw.Charge(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, provider.IsTerminal(err))

	gwErr := provider.AsGatewayError("stripe", err)
	assert.Equal(t, "insufficient_funds", gwErr.Code)
}

func TestCharge_ServerErrorIsTransient(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"api_error","message":"Something went wrong"}}`))
	})

	_, err := gw.Charge(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, provider.IsTransient(err))
}

func TestCharge_MissingPaymentMethod(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	req := testRequest()
	req.Metadata = nil
	_, err := gw.Charge(context.Background(), req)
	assert.True(t, provider.IsTerminal(err))
}

func TestCharge_SubMinorUnitAmountIsRejected(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	req := testRequest()
	req.Amount = decimal.RequireFromString("10.005")
	req.Currency = "USD"
	_, err := gw.Charge(context.Background(), req)

	require.Error(t, err)
	assert.True(t, provider.IsTerminal(err))
	assert.Contains(t, err.Error(), "invalid_amount")
}

func TestHealthCheck(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/balance", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"balance","available":[],"pending":[],"livemode":false}`))
	})

	assert.NoError(t, gw.HealthCheck(context.Background()))
}

func TestHealthCheck_InvalidKey(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid API Key provided"}}`))
	})

	assert.Error(t, gw.HealthCheck(context.Background()))
}

func TestClassifyError(t *testing.T) {
	gw := &Gateway{descriptor: provider.GatewayDescriptor{Name: "stripe"}}

	tests := []struct {
		name     string
		err      *stripego.Error
		terminal bool
		code     string
	}{
		{"card decline", &stripego.Error{Type: stripego.ErrorTypeCard, Code: "card_declined", HTTPStatusCode: 402}, true, "card_declined"},
		{"invalid request", &stripego.Error{Type: stripego.ErrorTypeInvalidRequest, HTTPStatusCode: 400}, true, "invalid_request"},
		{"api error", &stripego.Error{Type: stripego.ErrorTypeAPI, HTTPStatusCode: 500}, false, "http_500"},
		{"rate limit", &stripego.Error{Type: stripego.ErrorTypeInvalidRequest, HTTPStatusCode: 429}, false, "rate_limited"},
		{"bad credentials", &stripego.Error{Type: stripego.ErrorTypeInvalidRequest, HTTPStatusCode: 401}, false, "authentication_failed"},
		{"idempotency conflict", &stripego.Error{Type: stripego.ErrorTypeIdempotency, HTTPStatusCode: 409}, false, "idempotency_conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gwErr := gw.classifyError(tt.err)
			assert.Equal(t, tt.terminal, gwErr.Kind == provider.Terminal)
			assert.Equal(t, tt.code, gwErr.Code)
		})
	}
}

func TestToResponse_StatusMapping(t *testing.T) {
	tests := []struct {
		status   stripego.PaymentIntentStatus
		expected provider.TransactionStatus
	}{
		{stripego.PaymentIntentStatusSucceeded, provider.StatusSucceeded},
		{stripego.PaymentIntentStatusProcessing, provider.StatusPending},
		{stripego.PaymentIntentStatusRequiresCapture, provider.StatusPending},
		{stripego.PaymentIntentStatusRequiresAction, provider.StatusRequiresAction},
		{stripego.PaymentIntentStatusRequiresPaymentMethod, provider.StatusFailed},
		{stripego.PaymentIntentStatusCanceled, provider.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			resp := toResponse(&stripego.PaymentIntent{ID: "pi_1", Status: tt.status, Amount: 100, Currency: "usd"})
			assert.Equal(t, tt.expected, resp.Status)
		})
	}

	unknown := toResponse(&stripego.PaymentIntent{ID: "pi_1", Status: "mystery", Currency: "usd"})
	result := provider.Normalize("stripe", testRequest(), unknown, unknownTime)
	assert.Equal(t, provider.StatusFailed, result.Status)
	assert.Equal(t, "mystery", result.RawProviderCode)
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     int64
		ok       bool
	}{
		{"10.50", "USD", 1050, true},
		{"10.500", "usd", 1050, true},
		{"500", "JPY", 500, true},
		{"10.005", "USD", 0, false},
		{"500.5", "JPY", 0, false},
	}
	for _, tt := range tests {
		got, ok := minorUnits(decimal.RequireFromString(tt.amount), tt.currency)
		assert.Equal(t, tt.ok, ok, "%s %s", tt.amount, tt.currency)
		assert.Equal(t, tt.want, got, "%s %s", tt.amount, tt.currency)
	}

	assert.True(t, fromMinorUnits(500, "jpy").Equal(decimal.NewFromInt(500)))
	assert.True(t, fromMinorUnits(1999, "eur").Equal(decimal.RequireFromString("19.99")))
}

var unknownTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
