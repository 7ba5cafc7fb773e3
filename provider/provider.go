package provider

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus represents the normalized state of a charge attempt
type TransactionStatus string

const (
	StatusPending        TransactionStatus = "pending"
	StatusSucceeded      TransactionStatus = "succeeded"
	StatusFailed         TransactionStatus = "failed"
	StatusRequiresAction TransactionStatus = "requires_action"
)

// Valid reports whether the status is one of the four normalized values
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSucceeded, StatusFailed, StatusRequiresAction:
		return true
	}
	return false
}

// DefaultMethod is used when a payment request does not name a method
const DefaultMethod = "card"

// GatewayDescriptor is the static metadata of a configured gateway
type GatewayDescriptor struct {
	Name                string   `json:"name"`
	DisplayPriority     int      `json:"displayPriority"`
	SupportedCurrencies []string `json:"supportedCurrencies"`
	SupportedMethods    []string `json:"supportedMethods"`
	Enabled             bool     `json:"isEnabled"`
}

// SupportsCurrency reports whether the gateway accepts the given currency
func (d GatewayDescriptor) SupportsCurrency(currency string) bool {
	return slices.Contains(d.SupportedCurrencies, strings.ToUpper(currency))
}

// SupportsMethod reports whether the gateway accepts the given payment method
func (d GatewayDescriptor) SupportsMethod(method string) bool {
	if method == "" {
		method = DefaultMethod
	}
	return slices.Contains(d.SupportedMethods, strings.ToLower(method))
}

// normalized returns a deep copy with canonical casing and deduplicated sets
func (d GatewayDescriptor) normalized() GatewayDescriptor {
	d.SupportedCurrencies = canonicalSet(d.SupportedCurrencies, strings.ToUpper)
	d.SupportedMethods = canonicalSet(d.SupportedMethods, strings.ToLower)
	return d
}

func (d GatewayDescriptor) clone() GatewayDescriptor {
	d.SupportedCurrencies = slices.Clone(d.SupportedCurrencies)
	d.SupportedMethods = slices.Clone(d.SupportedMethods)
	return d
}

func canonicalSet(values []string, fold func(string) string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = fold(strings.TrimSpace(v))
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// GatewayAvailability is the live health record of a registered gateway
type GatewayAvailability struct {
	GatewayName   string    `json:"gatewayName"`
	Available     bool      `json:"isAvailable"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
	LastError     string    `json:"lastError,omitempty"`
}

// PaymentRequest is a single checkout attempt submitted by the caller
type PaymentRequest struct {
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency" validate:"required,currency"`
	OrderID        string            `json:"orderId" validate:"required,max=128"`
	IdempotencyKey string            `json:"idempotencyKey" validate:"required,max=255"`
	Method         string            `json:"method,omitempty" validate:"omitempty,max=32"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// PaymentMethod returns the requested method, falling back to DefaultMethod
func (r PaymentRequest) PaymentMethod() string {
	if r.Method == "" {
		return DefaultMethod
	}
	return strings.ToLower(r.Method)
}

// ProviderResponse is what an adapter hands back after talking to its provider.
// Status is the adapter's own mapping of the provider state and may be empty
// when the provider returned something the adapter does not recognise.
type ProviderResponse struct {
	TransactionID string
	Status        TransactionStatus
	Code          string
	Message       string
	Amount        decimal.Decimal
	Currency      string
}

// TransactionResult is the cross-provider outcome returned to callers
type TransactionResult struct {
	GatewayName           string            `json:"gatewayName"`
	ProviderTransactionID string            `json:"providerTransactionId"`
	Status                TransactionStatus `json:"status"`
	Amount                decimal.Decimal   `json:"amount"`
	Currency              string            `json:"currency"`
	RawProviderCode       string            `json:"rawProviderCode,omitempty"`
	Message               string            `json:"message,omitempty"`
	OrderID               string            `json:"orderId"`
	IdempotencyKey        string            `json:"idempotencyKey"`
	OccurredAt            time.Time         `json:"occurredAt"`
}

// Gateway defines the contract every payment provider adapter must satisfy
type Gateway interface {
	// Name returns the unique gateway name, equal to Descriptor().Name
	Name() string

	// Descriptor returns the static metadata of the gateway
	Descriptor() GatewayDescriptor

	// HealthCheck verifies credentials and reachability. It must return quickly
	// and report ordinary unavailability as an error, never by panicking.
	HealthCheck(ctx context.Context) error

	// Charge submits the payment to the provider. Failures are reported as
	// *GatewayError so the manager can tell transient from terminal outcomes.
	Charge(ctx context.Context, request PaymentRequest) (*ProviderResponse, error)
}

// TransactionStore persists finalized transaction results
type TransactionStore interface {
	SaveTransaction(ctx context.Context, result TransactionResult) error
}
