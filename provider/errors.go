package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoGatewayAvailable is returned when no enabled gateway is currently available
	ErrNoGatewayAvailable = errors.New("no payment gateway available")

	// ErrUnsupportedPaymentRequest is matched by *UnsupportedPaymentRequestError
	ErrUnsupportedPaymentRequest = errors.New("payment request not supported by any available gateway")

	// ErrInvalidPaymentRequest is matched by request validation failures
	ErrInvalidPaymentRequest = errors.New("invalid payment request")

	// ErrChargeInProgress is returned when another instance holds the idempotency key
	ErrChargeInProgress = errors.New("a charge with this idempotency key is already in progress")
)

// DuplicateGatewayError is returned when a gateway name is registered twice
type DuplicateGatewayError struct {
	Name string
}

func (e *DuplicateGatewayError) Error() string {
	return fmt.Sprintf("payment gateway '%s' is already registered", e.Name)
}

// UnknownGatewayError is returned for operations on a name that was never registered
type UnknownGatewayError struct {
	Name string
}

func (e *UnknownGatewayError) Error() string {
	return fmt.Sprintf("payment gateway '%s' is not registered", e.Name)
}

// UnsupportedPaymentRequestError describes a request no available gateway can serve
type UnsupportedPaymentRequestError struct {
	Currency string
	Method   string
}

func (e *UnsupportedPaymentRequestError) Error() string {
	return fmt.Sprintf("no available gateway supports currency %s with method %s", e.Currency, e.Method)
}

func (e *UnsupportedPaymentRequestError) Is(target error) bool {
	return target == ErrUnsupportedPaymentRequest
}

// ValidationError wraps struct validation failures of a payment request
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrInvalidPaymentRequest.Error(), e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPaymentRequest
}

// FailureKind separates failures worth retrying elsewhere from final decisions
type FailureKind int

const (
	// Transient failures (timeouts, outages, 5xx) may succeed on another gateway
	Transient FailureKind = iota
	// Terminal failures (declines, validation) are the provider's final answer
	Terminal
)

func (k FailureKind) String() string {
	if k == Terminal {
		return "terminal"
	}
	return "transient"
}

// GatewayError is the normalized failure returned by adapters
type GatewayError struct {
	Gateway string
	Kind    FailureKind
	Code    string
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s failure", e.Gateway, e.Kind)
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Temporary reports whether the failure is transient
func (e *GatewayError) Temporary() bool { return e.Kind == Transient }

// NewTransientError creates a transient adapter failure
func NewTransientError(gateway, code, message string, err error) *GatewayError {
	return &GatewayError{Gateway: gateway, Kind: Transient, Code: code, Message: message, Err: err}
}

// NewTerminalError creates a terminal adapter failure
func NewTerminalError(gateway, code, message string, err error) *GatewayError {
	return &GatewayError{Gateway: gateway, Kind: Terminal, Code: code, Message: message, Err: err}
}

// AsGatewayError converts any adapter error into a *GatewayError.
// Unclassified errors and deadline overruns become transient failures that
// keep the original error for logging.
func AsGatewayError(gateway string, err error) *GatewayError {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		if gwErr.Gateway == "" {
			gwErr.Gateway = gateway
		}
		return gwErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError(gateway, "timeout", "gateway call timed out", err)
	}
	return NewTransientError(gateway, "unclassified", "unexpected adapter error", err)
}

// IsTransient reports whether err is a transient gateway failure
func IsTransient(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Kind == Transient
}

// IsTerminal reports whether err is a terminal gateway failure
func IsTerminal(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Kind == Terminal
}

// GatewaysExhaustedError is returned when every attempted gateway failed transiently
type GatewaysExhaustedError struct {
	Attempts []*GatewayError
}

func (e *GatewaysExhaustedError) Error() string {
	names := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		names = append(names, a.Gateway)
	}
	return fmt.Sprintf("all %d gateway attempts failed (%s)", len(e.Attempts), strings.Join(names, ", "))
}

// Unwrap exposes the individual attempt failures to errors.Is/As
func (e *GatewaysExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a)
	}
	return errs
}
