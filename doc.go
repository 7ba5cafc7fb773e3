// Package paygate provides a payment gateway abstraction that routes checkout
// attempts across several payment providers behind one normalized API.
//
// # Overview
//
// Callers submit a payment once. PayGate picks the highest priority gateway
// that is enabled, currently healthy and able to handle the currency and
// method, fails over to the next one on transient provider errors and returns
// a provider independent TransactionResult.
//
// # Architecture
//
// The payment flow follows this pattern:
//
//	┌─────────────┐    ┌─────────────┐    ┌─────────────┐    ┌─────────────┐
//	│             │    │   Manager   │    │   Adapter   │    │   Payment   │
//	│  Your Apps  │───►│  (select,   │───►│  (stripe,   │───►│  Providers  │
//	│             │◄───│  failover)  │◄───│   iyzico)   │◄───│             │
//	└─────────────┘    └──────┬──────┘    └─────────────┘    └─────────────┘
//	                          │
//	                   ┌──────┴──────┐
//	                   │  Registry   │◄─── Prober (periodic health checks)
//	                   └─────────────┘
//
// # Supported Providers
//
//   - Stripe: PaymentIntents confirmed with a saved payment method
//   - iyzico: non-3D payments with a stored card token
//
// # Quick Start
//
//	package main
//
//	import (
//	    "context"
//
//	    "github.com/mstgnz/paygate/provider"
//	    _ "github.com/mstgnz/paygate/provider/stripe" // registers the factory
//	    "github.com/shopspring/decimal"
//	)
//
//	func main() {
//	    gw, err := provider.NewGateway("stripe", provider.GatewaySettings{
//	        Descriptor: provider.GatewayDescriptor{
//	            Name:                "stripe",
//	            SupportedCurrencies: []string{"USD", "EUR"},
//	            SupportedMethods:    []string{"card"},
//	            Enabled:             true,
//	        },
//	        Environment: "sandbox",
//	        Credentials: map[string]string{"secretKey": "sk_test_..."},
//	    })
//	    if err != nil {
//	        panic(err)
//	    }
//
//	    registry := provider.NewRegistry()
//	    _ = registry.Register(gw)
//
//	    prober := provider.NewProber(registry, provider.ProberConfig{})
//	    _ = prober.ProbeAll(context.Background())
//
//	    manager := provider.NewManager(registry, provider.ManagerConfig{}, provider.WithProber(prober))
//	    result, err := manager.Charge(context.Background(), provider.PaymentRequest{
//	        Amount:         decimal.RequireFromString("100.50"),
//	        Currency:       "USD",
//	        OrderID:        "order-1",
//	        IdempotencyKey: "order-1-attempt-1",
//	        Metadata:       map[string]string{"paymentMethod": "pm_card_visa"},
//	    })
//	    _ = result
//	}
//
// # HTTP API
//
//	GET  /health                          public, gateway availability
//	GET  /v1/gateways                     available gateways in selection order
//	POST /v1/payments                     charge (Idempotency-Key header or body field)
//	GET  /v1/payments                     recent transactions
//	GET  /v1/payments/{idempotencyKey}    a single transaction
//	POST /v1/auth/token                   mint a JWT with the API key
//	POST /v1/auth/refresh                 refresh a JWT
//
// Every /v1 route requires "Authorization: Bearer <api key or JWT>".
//
// # Configuration
//
// Gateways are declared with GATEWAYS and configured by prefix:
//
//	GATEWAYS=stripe,iyzico
//	STRIPE_PRIORITY=0
//	STRIPE_CURRENCIES=USD,EUR
//	STRIPE_SECRET_KEY=sk_test_...
//	IYZICO_PRIORITY=1
//	IYZICO_CURRENCIES=TRY
//	IYZICO_API_KEY=...
//	IYZICO_SECRET_KEY=...
//
// Persistence is optional and additive: SQLITE_PATH, DATABASE_URL, REDIS_URL
// and OPENSEARCH_URL each enable one backend.
//
// # Contributing
//
// To add a new payment provider:
//
//  1. Implement the provider.Gateway interface
//  2. Add the adapter package under provider/{provider}/
//  3. Register the factory in provider/{provider}/register.go
//  4. Add tests using httptest against the provider API
package paygate
