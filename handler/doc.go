// Package handler provides the HTTP handlers of the paygate API.
//
// Handlers depend on small interfaces (GatewayLister, Charger, StatusSource,
// TransactionReader) that *provider.Manager and the transaction stores
// satisfy, so they can be tested with fakes.
//
// # Endpoints
//
//	GET  /health                        gateway availability, never calls a provider
//	GET  /v1/gateways                   {gateways, count, primary} without envelope
//	POST /v1/payments                   charge with failover and idempotent replay
//	GET  /v1/payments                   recent stored transactions
//	GET  /v1/payments/{idempotencyKey}  one stored transaction
//	POST /v1/auth/token                 exchange the API key for a dashboard token
//	POST /v1/auth/refresh               extend a dashboard token
//
// # Charge errors
//
// Manager errors map to HTTP status codes:
//
//	provider.ErrInvalidPaymentRequest     400 invalid_request
//	provider.ErrUnsupportedPaymentRequest 422 unsupported_payment
//	provider.ErrNoGatewayAvailable        503 no_gateway_available
//	provider.ErrChargeInProgress          409 charge_in_progress
//	context deadline or cancellation      504 timeout
//	anything else                         500 payment_failed
//
// A declined payment is not an error: it is returned as a transaction with
// status "failed" and HTTP 402.
package handler
