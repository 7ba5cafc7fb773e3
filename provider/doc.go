// Package provider implements the payment gateway abstraction layer: a registry
// of configured gateways, a background availability prober, and a manager that
// routes charges to the best available gateway with failover.
//
// # Core Concepts
//
//   - Gateway: the contract every adapter (stripe, iyzico, ...) implements
//   - Registry: descriptors and live availability, no network I/O
//   - Prober: periodic health checks with per-gateway exponential backoff
//   - Manager: gateway selection, failover and idempotent replay
//   - Normalize: adapter responses to a cross-provider TransactionResult
//
// # Selection Order
//
// Gateways are ranked by (available desc, displayPriority asc, name asc).
// GetAvailableGateways only ever returns enabled gateways whose last probe
// succeeded. The first gateway of a charge's candidate list that supports the
// request currency and method is the primary.
//
// # Failures
//
// Adapters report failures as *GatewayError. Transient failures (timeouts,
// outages, 5xx) mark the gateway unavailable and the manager moves on to the
// next candidate. Terminal failures (declines, validation) are returned as a
// failed TransactionResult without trying another gateway.
//
// # Basic Usage
//
//	registry := provider.NewRegistry()
//	gw, err := provider.NewGateway("stripe", provider.GatewaySettings{
//	    Descriptor: provider.GatewayDescriptor{
//	        Name:                "stripe",
//	        DisplayPriority:     1,
//	        SupportedCurrencies: []string{"USD", "EUR"},
//	        SupportedMethods:    []string{"card"},
//	        Enabled:             true,
//	    },
//	    Credentials: map[string]string{"secretKey": "sk_test_..."},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = registry.Register(gw)
//
//	prober := provider.NewProber(registry, provider.ProberConfig{})
//	_ = prober.ProbeAll(ctx)
//	go prober.Run(ctx)
//
//	manager := provider.NewManager(registry, provider.ManagerConfig{}, provider.WithProber(prober))
//	result, err := manager.Charge(ctx, provider.PaymentRequest{
//	    Amount:         decimal.RequireFromString("100.50"),
//	    Currency:       "USD",
//	    OrderID:        "order-1",
//	    IdempotencyKey: "checkout-1",
//	    Metadata:       map[string]string{"paymentMethod": "pm_card_visa"},
//	})
package provider
