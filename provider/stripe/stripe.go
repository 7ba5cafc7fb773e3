package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/paygate/provider"
	"github.com/shopspring/decimal"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/balance"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

const (
	defaultTimeout = 30 * time.Second

	metadataPaymentMethod = "paymentMethod"
	metadataCustomer      = "customer"
)

// currencies without a minor unit
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true,
	"KMF": true, "KRW": true, "MGA": true, "PYG": true, "RWF": true,
	"UGX": true, "VND": true, "VUV": true, "XAF": true, "XOF": true,
	"XPF": true,
}

// Gateway implements provider.Gateway on top of the Stripe PaymentIntents API
type Gateway struct {
	descriptor provider.GatewayDescriptor
	intents    paymentintent.Client
	balances   balance.Client
}

// RequiredConfig returns the credential fields required for Stripe
func RequiredConfig(environment string) []provider.ConfigField {
	pattern := "^sk_(test|live)_"
	if environment == "production" {
		pattern = "^sk_live_"
	}
	return []provider.ConfigField{
		{
			Key:         "secretKey",
			Required:    true,
			Type:        "string",
			Description: "Stripe Secret Key (starts with sk_test_ or sk_live_)",
			Example:     "sk_test_51234567890abcdef...",
			Pattern:     pattern,
			MinLength:   20,
		},
		{
			Key:         "baseUrl",
			Required:    false,
			Type:        "url",
			Description: "Override of the Stripe API base URL",
			Example:     "https://api.stripe.com",
		},
	}
}

// NewGateway creates a Stripe gateway from settings
func NewGateway(settings provider.GatewaySettings) (provider.Gateway, error) {
	secretKey := settings.Credentials["secretKey"]
	if secretKey == "" {
		return nil, errors.New("stripe: secretKey is required")
	}

	config := &stripego.BackendConfig{
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		// failover across gateways replaces SDK level retries
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelError},
	}
	if baseURL := settings.Credentials["baseUrl"]; baseURL != "" {
		config.URL = stripego.String(baseURL)
	}
	backend := stripego.GetBackendWithConfig(stripego.APIBackend, config)

	descriptor := settings.Descriptor
	if descriptor.Name == "" {
		descriptor.Name = "stripe"
	}

	return &Gateway{
		descriptor: descriptor,
		intents:    paymentintent.Client{B: backend, Key: secretKey},
		balances:   balance.Client{B: backend, Key: secretKey},
	}, nil
}

// Name returns the configured gateway name
func (g *Gateway) Name() string {
	return g.descriptor.Name
}

// Descriptor returns the gateway metadata
func (g *Gateway) Descriptor() provider.GatewayDescriptor {
	return g.descriptor
}

// HealthCheck retrieves the account balance, which needs a valid key and a
// reachable API.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	params := &stripego.BalanceParams{}
	params.Context = ctx
	if _, err := g.balances.Get(params); err != nil {
		return fmt.Errorf("stripe health check failed: %w", err)
	}
	return nil
}

// Charge creates and confirms a PaymentIntent with the request's idempotency key
func (g *Gateway) Charge(ctx context.Context, request provider.PaymentRequest) (*provider.ProviderResponse, error) {
	paymentMethod := request.Metadata[metadataPaymentMethod]
	if paymentMethod == "" {
		return nil, provider.NewTerminalError(g.Name(), "missing_payment_method", "paymentMethod metadata is required", nil)
	}

	amount, ok := minorUnits(request.Amount, request.Currency)
	if !ok {
		return nil, provider.NewTerminalError(g.Name(), "invalid_amount",
			fmt.Sprintf("amount %s has more decimals than %s allows", request.Amount, strings.ToUpper(request.Currency)), nil)
	}

	params := &stripego.PaymentIntentParams{
		Amount:             stripego.Int64(amount),
		Currency:           stripego.String(strings.ToLower(request.Currency)),
		PaymentMethod:      stripego.String(paymentMethod),
		PaymentMethodTypes: []*string{stripego.String(request.PaymentMethod())},
		Confirm:            stripego.Bool(true),
		Description:        stripego.String("Order " + request.OrderID),
	}
	if customer := request.Metadata[metadataCustomer]; customer != "" {
		params.Customer = stripego.String(customer)
	}
	params.Context = ctx
	params.SetIdempotencyKey(request.IdempotencyKey)
	params.AddMetadata("order_id", request.OrderID)
	for key, value := range request.Metadata {
		if key == metadataPaymentMethod || key == metadataCustomer {
			continue
		}
		params.AddMetadata(key, value)
	}

	intent, err := g.intents.New(params)
	if err != nil {
		return nil, g.classifyError(err)
	}
	return toResponse(intent), nil
}

func toResponse(intent *stripego.PaymentIntent) *provider.ProviderResponse {
	out := &provider.ProviderResponse{
		TransactionID: intent.ID,
		Code:          string(intent.Status),
		Amount:        fromMinorUnits(intent.Amount, string(intent.Currency)),
		Currency:      strings.ToUpper(string(intent.Currency)),
	}

	switch intent.Status {
	case stripego.PaymentIntentStatusSucceeded:
		out.Status = provider.StatusSucceeded
	case stripego.PaymentIntentStatusProcessing,
		stripego.PaymentIntentStatusRequiresCapture,
		stripego.PaymentIntentStatusRequiresConfirmation:
		out.Status = provider.StatusPending
	case stripego.PaymentIntentStatusRequiresAction:
		out.Status = provider.StatusRequiresAction
		out.Message = "customer authentication required"
	case stripego.PaymentIntentStatusRequiresPaymentMethod,
		stripego.PaymentIntentStatusCanceled:
		out.Status = provider.StatusFailed
		if intent.LastPaymentError != nil {
			out.Code = string(intent.LastPaymentError.Code)
			out.Message = intent.LastPaymentError.Msg
		}
	default:
		// left for the normalizer, which fails it with the raw status as code
		out.Status = provider.TransactionStatus(intent.Status)
	}
	return out
}

// classifyError maps Stripe errors onto transient and terminal failures.
// Card and request errors are final. API errors, rate limiting, idempotency
// conflicts with an in-flight request and network failures are transient.
func (g *Gateway) classifyError(err error) *provider.GatewayError {
	var stripeErr *stripego.Error
	if !errors.As(err, &stripeErr) {
		return provider.NewTransientError(g.Name(), "network", "stripe unreachable", err)
	}

	code := string(stripeErr.Code)
	if stripeErr.DeclineCode != "" {
		code = string(stripeErr.DeclineCode)
	}
	message := stripeErr.Msg

	switch {
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.Code == stripego.ErrorCodeRateLimit:
		return provider.NewTransientError(g.Name(), "rate_limited", message, err)
	case stripeErr.HTTPStatusCode >= 500:
		return provider.NewTransientError(g.Name(), orDefault(code, fmt.Sprintf("http_%d", stripeErr.HTTPStatusCode)), message, err)
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized || stripeErr.HTTPStatusCode == http.StatusForbidden:
		// bad credentials are a gateway problem, not the buyer's
		return provider.NewTransientError(g.Name(), orDefault(code, "authentication_failed"), message, err)
	case stripeErr.Type == stripego.ErrorTypeCard:
		return provider.NewTerminalError(g.Name(), orDefault(code, "card_declined"), message, err)
	case stripeErr.Type == stripego.ErrorTypeInvalidRequest:
		return provider.NewTerminalError(g.Name(), orDefault(code, "invalid_request"), message, err)
	case stripeErr.Type == stripego.ErrorTypeIdempotency:
		return provider.NewTransientError(g.Name(), orDefault(code, "idempotency_conflict"), message, err)
	}
	return provider.NewTransientError(g.Name(), orDefault(code, string(stripeErr.Type)), message, err)
}

// minorUnits converts to the currency's smallest unit. It reports false when
// the amount is more precise than that unit.
func minorUnits(amount decimal.Decimal, currency string) (int64, bool) {
	shifted := amount.Shift(2)
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		shifted = amount
	}
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, false
	}
	return shifted.IntPart(), true
}

func fromMinorUnits(amount int64, currency string) decimal.Decimal {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
