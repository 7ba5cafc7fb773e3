package provider

import (
	"context"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// fakeGateway is a scriptable adapter that counts its calls
type fakeGateway struct {
	descriptor GatewayDescriptor
	charges    atomic.Int32
	probes     atomic.Int32
	chargeFn   func(ctx context.Context, req PaymentRequest) (*ProviderResponse, error)
	healthFn   func(ctx context.Context) error
}

func newFakeGateway(name string, priority int, currencies ...string) *fakeGateway {
	if len(currencies) == 0 {
		currencies = []string{"USD", "EUR"}
	}
	return &fakeGateway{
		descriptor: GatewayDescriptor{
			Name:                name,
			DisplayPriority:     priority,
			SupportedCurrencies: currencies,
			SupportedMethods:    []string{"card"},
			Enabled:             true,
		},
	}
}

func (f *fakeGateway) disabled() *fakeGateway {
	f.descriptor.Enabled = false
	return f
}

func (f *fakeGateway) Name() string                  { return f.descriptor.Name }
func (f *fakeGateway) Descriptor() GatewayDescriptor { return f.descriptor }

func (f *fakeGateway) HealthCheck(ctx context.Context) error {
	f.probes.Add(1)
	if f.healthFn != nil {
		return f.healthFn(ctx)
	}
	return nil
}

func (f *fakeGateway) Charge(ctx context.Context, req PaymentRequest) (*ProviderResponse, error) {
	n := f.charges.Add(1)
	if f.chargeFn != nil {
		return f.chargeFn(ctx, req)
	}
	return &ProviderResponse{
		TransactionID: f.descriptor.Name + "-tx-" + decimal.NewFromInt32(n).String(),
		Status:        StatusSucceeded,
	}, nil
}

func succeed(ctx context.Context, req PaymentRequest) (*ProviderResponse, error) {
	return &ProviderResponse{TransactionID: "tx-ok", Status: StatusSucceeded}, nil
}

func failTransient(name string) func(context.Context, PaymentRequest) (*ProviderResponse, error) {
	return func(ctx context.Context, req PaymentRequest) (*ProviderResponse, error) {
		return nil, NewTransientError(name, "http_503", "provider unavailable", nil)
	}
}

func failTerminal(name string) func(context.Context, PaymentRequest) (*ProviderResponse, error) {
	return func(ctx context.Context, req PaymentRequest) (*ProviderResponse, error) {
		return nil, NewTerminalError(name, "card_declined", "insufficient funds", nil)
	}
}

func paymentRequest(key string) PaymentRequest {
	return PaymentRequest{
		Amount:         decimal.RequireFromString("49.90"),
		Currency:       "usd",
		OrderID:        "order-" + key,
		IdempotencyKey: key,
	}
}
