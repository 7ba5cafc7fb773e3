package iyzico

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mstgnz/paygate/provider"
	"github.com/shopspring/decimal"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gw, err := NewGateway(provider.GatewaySettings{
		Descriptor: provider.GatewayDescriptor{Name: "iyzico", Enabled: true},
		Credentials: map[string]string{
			"apiKey":    "sandbox-api-key",
			"secretKey": "sandbox-secret-key",
			"baseUrl":   server.URL,
		},
	})
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}
	return gw.(*Gateway)
}

func testRequest() provider.PaymentRequest {
	return provider.PaymentRequest{
		Amount:         decimal.RequireFromString("100.5"),
		Currency:       "TRY",
		OrderID:        "order-42",
		IdempotencyKey: "idem-42",
		Metadata: map[string]string{
			"cardToken":   "card-token",
			"cardUserKey": "card-user-key",
			"buyerEmail":  "buyer@example.com",
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestNewGateway_MissingCredentials(t *testing.T) {
	_, err := NewGateway(provider.GatewaySettings{Credentials: map[string]string{"apiKey": "key"}})
	if err == nil {
		t.Error("expected error when secretKey is missing")
	}
}

func TestNewGateway_DefaultName(t *testing.T) {
	gw, err := NewGateway(provider.GatewaySettings{
		Environment: "production",
		Credentials: map[string]string{"apiKey": "key", "secretKey": "secret"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.Name() != "iyzico" {
		t.Errorf("default name = %s, want iyzico", gw.Name())
	}
}

func TestCharge_Success(t *testing.T) {
	var body map[string]any
	var authHeader string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != endpointPayment {
			t.Errorf("path = %s, want %s", r.URL.Path, endpointPayment)
		}
		authHeader = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, `{"status":"success","paymentId":"12345","paidPrice":"100.50","currency":"TRY","fraudStatus":1}`)
	})

	resp, err := gw.Charge(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Charge() error = %v", err)
	}

	if !strings.HasPrefix(authHeader, "IYZWS sandbox-api-key:") {
		t.Errorf("Authorization header = %q", authHeader)
	}
	if body["price"] != "100.50" || body["conversationId"] != "idem-42" {
		t.Errorf("unexpected request body: %v", body)
	}
	if resp.Status != provider.StatusSucceeded {
		t.Errorf("status = %s, want succeeded", resp.Status)
	}
	if resp.TransactionID != "12345" {
		t.Errorf("transaction id = %s", resp.TransactionID)
	}
	if !resp.Amount.Equal(decimal.RequireFromString("100.5")) {
		t.Errorf("amount = %s", resp.Amount)
	}
}

func TestCharge_FraudReviewIsPending(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"success","paymentId":"1","paidPrice":"100.50","currency":"TRY","fraudStatus":0}`)
	})

	resp, err := gw.Charge(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Charge() error = %v", err)
	}
	if resp.Status != provider.StatusPending {
		t.Errorf("status = %s, want pending", resp.Status)
	}
}

func TestCharge_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
		code      string
	}{
		{"insufficient funds", http.StatusOK, `{"status":"failure","errorCode":"10051","errorMessage":"Kart limiti yetersiz"}`, false, "10051"},
		{"invalid card", http.StatusOK, `{"status":"failure","errorCode":"5007","errorMessage":"invalid card"}`, false, "5007"},
		{"unknown business code", http.StatusOK, `{"status":"failure","errorCode":"99999","errorMessage":"unknown"}`, false, "99999"},
		{"system error", http.StatusOK, `{"status":"failure","errorCode":"1","errorMessage":"Sistem hatası"}`, true, "1"},
		{"error group", http.StatusOK, `{"status":"failure","errorCode":"777","errorGroup":"SYSTEM_ERROR"}`, true, "777"},
		{"bad request body", http.StatusBadRequest, `{"status":"failure","errorCode":"5007","errorMessage":"invalid card"}`, false, "5007"},
		{"server error", http.StatusServiceUnavailable, `maintenance`, true, "http_503"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})

			_, err := gw.Charge(context.Background(), testRequest())
			if err == nil {
				t.Fatal("expected error")
			}
			gwErr := provider.AsGatewayError("iyzico", err)
			if gwErr.Temporary() != tt.transient {
				t.Errorf("transient = %v, want %v (%v)", gwErr.Temporary(), tt.transient, err)
			}
			if gwErr.Code != tt.code {
				t.Errorf("code = %s, want %s", gwErr.Code, tt.code)
			}
		})
	}
}

func TestCharge_Timeout(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := gw.Charge(ctx, testRequest())
	if !provider.IsTransient(err) {
		t.Errorf("timeout should be transient, got %v", err)
	}
}

func TestCharge_MissingCardToken(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	req := testRequest()
	delete(req.Metadata, "cardToken")
	_, err := gw.Charge(context.Background(), req)
	if !provider.IsTerminal(err) {
		t.Errorf("missing card token should be terminal, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != endpointHealth {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, `{"status":"success","locale":"tr","systemTime":1700000000000}`)
	})

	if err := gw.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_Failure(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"status":"failure"}`)
	})

	if err := gw.HealthCheck(context.Background()); err == nil {
		t.Error("expected health check error")
	}
}

func TestAuthorization(t *testing.T) {
	gw := &Gateway{apiKey: "api", secretKey: "secret"}

	first := gw.authorization(endpointPayment, `{"b":"2","a":"1"}`)
	second := gw.authorization(endpointPayment, `{"a":"1","b":"2"}`)
	if first != second {
		t.Error("authorization must not depend on key order")
	}
	if !strings.HasPrefix(first, "IYZWS api:") {
		t.Errorf("authorization = %s", first)
	}
}

func TestSortAndConcat(t *testing.T) {
	got := sortAndConcat(`{"locale":"tr","conversationId":"123","empty":""}`)
	if got != "conversationId123localetr" {
		t.Errorf("sortAndConcat() = %s", got)
	}
}
