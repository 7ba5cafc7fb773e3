package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/validate"
	"github.com/zoobzio/clockz"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCallTimeout     = 30 * time.Second
	defaultResultTTL       = 15 * time.Minute
	defaultResultCacheSize = 10000
)

// ManagerConfig controls charge routing
type ManagerConfig struct {
	// CallTimeout bounds every adapter charge call
	CallTimeout time.Duration
	// MaxAttempts limits failover; zero tries every matching gateway once
	MaxAttempts int
	// ResultTTL is how long finalized results are replayed for an idempotency key
	ResultTTL time.Duration
	// ResultCacheSize bounds the in-memory result cache
	ResultCacheSize int
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	cfg := c
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = defaultResultTTL
	}
	if cfg.ResultCacheSize <= 0 {
		cfg.ResultCacheSize = defaultResultCacheSize
	}
	return cfg
}

// ResultStore shares finalized results between manager instances
type ResultStore interface {
	// GetResult returns nil without error when the key is unknown
	GetResult(ctx context.Context, key string) (*TransactionResult, error)
	PutResult(ctx context.Context, key string, result TransactionResult, ttl time.Duration) error
}

// KeyLocker serializes charges for one idempotency key across manager instances
type KeyLocker interface {
	// Lock blocks until the key is held or ctx ends. The returned func releases it.
	Lock(ctx context.Context, key string) (func(), error)
}

// Manager is the entry point for callers: it lists available gateways and
// routes charges with failover and idempotent replay.
type Manager struct {
	registry     *Registry
	prober       *Prober
	config       ManagerConfig
	validate     *validator.Validate
	results      ResultCache
	shared       ResultStore
	transactions TransactionStore
	locker       KeyLocker
	clock        clockz.Clock
	flights      singleflight.Group
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithProber lets transient charge failures feed the prober's backoff state
func WithProber(prober *Prober) ManagerOption {
	return func(m *Manager) { m.prober = prober }
}

// WithResultStore adds a shared second-level result store
func WithResultStore(store ResultStore) ManagerOption {
	return func(m *Manager) { m.shared = store }
}

// WithTransactionStore hands every finalized result to a persistence collaborator
func WithTransactionStore(store TransactionStore) ManagerOption {
	return func(m *Manager) { m.transactions = store }
}

// WithKeyLocker guards each charge with a distributed lock on its idempotency key
func WithKeyLocker(locker KeyLocker) ManagerOption {
	return func(m *Manager) { m.locker = locker }
}

// WithResultCache replaces the in-memory result cache
func WithResultCache(cache ResultCache) ManagerOption {
	return func(m *Manager) {
		if cache != nil {
			m.results = cache
		}
	}
}

// WithValidator sets the request validator
func WithValidator(v *validator.Validate) ManagerOption {
	return func(m *Manager) {
		if v != nil {
			m.validate = v
		}
	}
}

// WithManagerClock sets the clock used for result timestamps and cache expiry
func WithManagerClock(clock clockz.Clock) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewManager creates a gateway manager over the registry
func NewManager(registry *Registry, config ManagerConfig, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry: registry,
		config:   config.withDefaults(),
		validate: validate.New(),
		clock:    clockz.RealClock,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.results == nil {
		m.results = NewResultCache(m.config.ResultCacheSize, m.config.ResultTTL, m.clock)
	}
	return m
}

// Registry returns the underlying gateway registry
func (m *Manager) Registry() *Registry {
	return m.registry
}

// GetAvailableGateways returns enabled, available gateways in selection order.
// It has no side effects.
func (m *Manager) GetAvailableGateways() []GatewayDescriptor {
	return m.registry.GetAvailable()
}

// Statuses returns every gateway with its availability, in selection order
func (m *Manager) Statuses() []GatewayStatus {
	return m.registry.Ranked()
}

// CacheStats returns idempotency cache statistics
func (m *Manager) CacheStats() CacheStats {
	return m.results.Stats()
}

// Charge routes a payment to the primary matching gateway, failing over to the
// next one on transient failures. A request whose idempotency key already has
// a finalized result gets that result back without any adapter being called;
// concurrent requests with the same key share a single attempt.
func (m *Manager) Charge(ctx context.Context, request PaymentRequest) (*TransactionResult, error) {
	if err := m.validateRequest(&request); err != nil {
		return nil, err
	}

	if cached, ok := m.lookupResult(ctx, request.IdempotencyKey); ok {
		return &cached, nil
	}

	// The shared attempt outlives any single caller: abandoning a charge
	// halfway would leave the provider state unknown.
	flight := m.flights.DoChan(request.IdempotencyKey, func() (any, error) {
		return m.chargeOnce(context.WithoutCancel(ctx), request)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		result := res.Val.(TransactionResult)
		return &result, nil
	}
}

func (m *Manager) validateRequest(request *PaymentRequest) error {
	if err := m.validate.Struct(request); err != nil {
		return &ValidationError{Err: err}
	}
	if !request.Amount.IsPositive() {
		return &ValidationError{Err: errors.New("amount must be greater than zero")}
	}
	request.Currency = strings.ToUpper(request.Currency)
	request.Method = request.PaymentMethod()
	return nil
}

func (m *Manager) chargeOnce(ctx context.Context, request PaymentRequest) (TransactionResult, error) {
	if m.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, m.config.CallTimeout)
		unlock, err := m.locker.Lock(lockCtx, request.IdempotencyKey)
		cancel()
		if err != nil {
			return TransactionResult{}, fmt.Errorf("%w: %v", ErrChargeInProgress, err)
		}
		defer unlock()
	}

	// a flight for the same key, here or on another instance, may have
	// finished between lookup and acquiring the key
	if cached, ok := m.lookupResult(ctx, request.IdempotencyKey); ok {
		return cached, nil
	}

	candidates := m.registry.Snapshot()
	if len(candidates) == 0 {
		return TransactionResult{}, ErrNoGatewayAvailable
	}

	matching := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Descriptor.SupportsCurrency(request.Currency) && c.Descriptor.SupportsMethod(request.Method) {
			matching = append(matching, c)
		}
	}
	if len(matching) == 0 {
		return TransactionResult{}, &UnsupportedPaymentRequestError{
			Currency: request.Currency,
			Method:   request.Method,
		}
	}
	if m.config.MaxAttempts > 0 && len(matching) > m.config.MaxAttempts {
		matching = matching[:m.config.MaxAttempts]
	}

	attempts := make([]*GatewayError, 0, len(matching))
	for _, c := range matching {
		name := c.Descriptor.Name
		response, failure := m.attempt(ctx, c.Gateway, request)

		switch {
		case failure == nil:
			result := Normalize(name, request, response, m.clock.Now())
			m.finalize(ctx, result)
			return result, nil

		case failure.Kind == Terminal:
			result := NormalizeFailure(name, request, failure, m.clock.Now())
			logger.Info("payment declined by gateway", logger.LogContext{
				Provider:  name,
				RequestID: request.IdempotencyKey,
				Fields: map[string]any{
					"order_id": request.OrderID,
					"code":     failure.Code,
				},
			})
			m.finalize(ctx, result)
			return result, nil

		default:
			attempts = append(attempts, failure)
			m.markUnavailable(name, failure)
			logger.Warn("transient gateway failure, trying next gateway", logger.LogContext{
				Provider:  name,
				RequestID: request.IdempotencyKey,
				Fields: map[string]any{
					"order_id": request.OrderID,
					"error":    failure.Error(),
				},
			})
		}
	}

	exhausted := &GatewaysExhaustedError{Attempts: attempts}
	logger.Error("all gateway attempts failed", exhausted, logger.LogContext{
		RequestID: request.IdempotencyKey,
		Fields:    map[string]any{"order_id": request.OrderID},
	})
	return TransactionResult{}, exhausted
}

type chargeOutcome struct {
	response *ProviderResponse
	err      error
}

// attempt calls a single adapter under the per-call timeout. Adapters that do
// not honour ctx are abandoned when the timeout fires.
func (m *Manager) attempt(ctx context.Context, gw Gateway, request PaymentRequest) (*ProviderResponse, *GatewayError) {
	name := gw.Name()
	callCtx, cancel := context.WithTimeout(ctx, m.config.CallTimeout)
	defer cancel()

	done := make(chan chargeOutcome, 1)
	go func() {
		response, err := safeCharge(callCtx, gw, request)
		done <- chargeOutcome{response: response, err: err}
	}()

	var outcome chargeOutcome
	select {
	case outcome = <-done:
	case <-callCtx.Done():
		select {
		case outcome = <-done:
		default:
			return nil, NewTransientError(name, "timeout",
				fmt.Sprintf("no response within %s", m.config.CallTimeout), callCtx.Err())
		}
	}

	if outcome.err != nil {
		return nil, AsGatewayError(name, outcome.err)
	}
	if outcome.response == nil {
		return nil, NewTransientError(name, "empty_response", "gateway returned no response", nil)
	}
	return outcome.response, nil
}

func safeCharge(ctx context.Context, gw Gateway, request PaymentRequest) (response *ProviderResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			response = nil
			err = NewTransientError(gw.Name(), "panic", "adapter panicked", fmt.Errorf("%v", r))
		}
	}()
	return gw.Charge(ctx, request)
}

func (m *Manager) markUnavailable(name string, failure *GatewayError) {
	if m.prober != nil {
		m.prober.ReportFailure(name, failure)
		return
	}
	_ = m.registry.SetAvailability(name, false, failure)
}

func (m *Manager) lookupResult(ctx context.Context, key string) (TransactionResult, bool) {
	if result, ok := m.results.Get(key); ok {
		return result, true
	}
	if m.shared == nil {
		return TransactionResult{}, false
	}

	result, err := m.shared.GetResult(ctx, key)
	if err != nil {
		logger.Warn("shared result store lookup failed", logger.LogContext{
			RequestID: key,
			Fields:    map[string]any{"error": err.Error()},
		})
		return TransactionResult{}, false
	}
	if result == nil {
		return TransactionResult{}, false
	}
	m.results.Set(key, *result)
	return *result, true
}

// finalize records a result for replay and hands it to persistence. Storage
// errors are logged and never change the charge outcome.
func (m *Manager) finalize(ctx context.Context, result TransactionResult) {
	m.results.Set(result.IdempotencyKey, result)

	if m.shared != nil {
		if err := m.shared.PutResult(ctx, result.IdempotencyKey, result, m.config.ResultTTL); err != nil {
			logger.Error("failed to share transaction result", err, logger.LogContext{
				Provider:  result.GatewayName,
				RequestID: result.IdempotencyKey,
			})
		}
	}

	if m.transactions != nil {
		if err := m.transactions.SaveTransaction(ctx, result); err != nil {
			logger.Error("failed to persist transaction result", err, logger.LogContext{
				Provider:  result.GatewayName,
				RequestID: result.IdempotencyKey,
			})
		}
	}
}
