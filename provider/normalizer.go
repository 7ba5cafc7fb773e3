package provider

import (
	"strings"
	"time"
)

// Normalize converts an adapter response into a TransactionResult.
// Unknown statuses become StatusFailed with the raw provider code preserved;
// a response is never promoted to StatusSucceeded unless the adapter said so.
func Normalize(gateway string, request PaymentRequest, response *ProviderResponse, at time.Time) TransactionResult {
	result := baseResult(gateway, request, at)
	if response == nil {
		result.Status = StatusFailed
		result.Message = "empty provider response"
		return result
	}

	result.ProviderTransactionID = response.TransactionID
	result.RawProviderCode = response.Code
	result.Message = response.Message

	if response.Status.Valid() {
		result.Status = response.Status
	} else {
		result.Status = StatusFailed
		if result.RawProviderCode == "" {
			result.RawProviderCode = string(response.Status)
		}
		if result.Message == "" {
			result.Message = "unmapped provider status"
		}
	}

	if response.Amount.IsPositive() {
		result.Amount = response.Amount
	}
	if response.Currency != "" {
		result.Currency = strings.ToUpper(response.Currency)
	}
	return result
}

// NormalizeFailure converts a terminal adapter failure into a declined TransactionResult
func NormalizeFailure(gateway string, request PaymentRequest, failure *GatewayError, at time.Time) TransactionResult {
	result := baseResult(gateway, request, at)
	result.Status = StatusFailed
	if failure != nil {
		result.RawProviderCode = failure.Code
		result.Message = failure.Message
		if result.Message == "" && failure.Err != nil {
			result.Message = failure.Err.Error()
		}
	}
	return result
}

func baseResult(gateway string, request PaymentRequest, at time.Time) TransactionResult {
	return TransactionResult{
		GatewayName:    gateway,
		Amount:         request.Amount,
		Currency:       strings.ToUpper(request.Currency),
		OrderID:        request.OrderID,
		IdempotencyKey: request.IdempotencyKey,
		OccurredAt:     at.UTC(),
	}
}
