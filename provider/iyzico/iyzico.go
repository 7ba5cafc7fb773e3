package iyzico

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/paygate/provider"
	"github.com/shopspring/decimal"
)

const (
	// API URLs
	apiSandboxURL    = "https://sandbox-api.iyzipay.com"
	apiProductionURL = "https://api.iyzipay.com"

	// API Endpoints
	endpointPayment = "/payment/auth"
	endpointHealth  = "/payment/test"

	statusSuccess = "success"

	// fraudStatus values
	fraudApproved = 1
	fraudReview   = 0

	defaultLocale   = "tr"
	defaultItemType = "VIRTUAL"
	defaultTimeout  = 30 * time.Second
)

// Business errors are the provider's final answer: retrying them on another
// gateway could charge the buyer twice.
var terminalErrorCodes = map[string]string{
	"5006":  "transaction not permitted",
	"5007":  "invalid card",
	"5208":  "fraudulent transaction",
	"5053":  "insufficient balance",
	"10005": "do not honour",
	"10012": "invalid transaction",
	"10041": "lost card",
	"10043": "stolen card",
	"10051": "insufficient funds",
	"10054": "expired card",
	"10057": "not permitted to cardholder",
	"10058": "not permitted to terminal",
	"10084": "invalid cvc",
	"10093": "card blocked",
}

// errorCode "1" is iyzico's generic system error
var transientErrorCodes = map[string]string{
	"1":     "system error",
	"10034": "bank timeout",
	"10217": "bank unavailable",
}

var transientErrorGroups = []string{"SYSTEM_ERROR", "REQUEST_TIMEOUT", "BANK_NOT_AVAILABLE"}

// Gateway implements provider.Gateway for iyzico
type Gateway struct {
	descriptor provider.GatewayDescriptor
	apiKey     string
	secretKey  string
	client     *provider.ProviderHTTPClient
}

// RequiredConfig returns the credential fields required for iyzico
func RequiredConfig(environment string) []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "apiKey",
			Required:    true,
			Type:        "string",
			Description: "Iyzico API Key (found in Iyzico merchant panel)",
			Example:     "sandbox-BIOoONNaqF8UZZmP3...",
			MinLength:   8,
			MaxLength:   200,
		},
		{
			Key:         "secretKey",
			Required:    true,
			Type:        "string",
			Description: "Iyzico Secret Key (found in Iyzico merchant panel)",
			Example:     "sandbox-NjQwOTRkMDBkZmE1...",
			MinLength:   8,
			MaxLength:   200,
		},
		{
			Key:         "baseUrl",
			Required:    false,
			Type:        "url",
			Description: "Override of the iyzico API base URL",
			Example:     apiSandboxURL,
		},
	}
}

// NewGateway creates an iyzico gateway from settings
func NewGateway(settings provider.GatewaySettings) (provider.Gateway, error) {
	apiKey := settings.Credentials["apiKey"]
	secretKey := settings.Credentials["secretKey"]
	if apiKey == "" || secretKey == "" {
		return nil, errors.New("iyzico: apiKey and secretKey are required")
	}

	baseURL := apiSandboxURL
	if settings.Environment == "production" {
		baseURL = apiProductionURL
	}
	if override := settings.Credentials["baseUrl"]; override != "" {
		baseURL = override
	}

	descriptor := settings.Descriptor
	if descriptor.Name == "" {
		descriptor.Name = "iyzico"
	}

	return &Gateway{
		descriptor: descriptor,
		apiKey:     apiKey,
		secretKey:  secretKey,
		client:     provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(baseURL, defaultTimeout)),
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

// HealthCheck calls iyzico's API test endpoint
func (g *Gateway) HealthCheck(ctx context.Context) error {
	resp, err := g.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodGet,
		Endpoint: endpointHealth,
	})
	if err != nil {
		return fmt.Errorf("iyzico health check failed: %w", err)
	}

	var body response
	if err := g.client.ParseJSONResponse(resp, &body); err != nil {
		return fmt.Errorf("iyzico health check returned invalid JSON: %w", err)
	}
	if body.Status != statusSuccess {
		return fmt.Errorf("iyzico health check status %q: %s", body.Status, body.ErrorMessage)
	}
	return nil
}

// response is the subset of iyzico's payment response the adapter reads
type response struct {
	Status             string `json:"status"`
	ErrorCode          string `json:"errorCode"`
	ErrorMessage       string `json:"errorMessage"`
	ErrorGroup         string `json:"errorGroup"`
	ConversationID     string `json:"conversationId"`
	PaymentID          string `json:"paymentId"`
	Price              string `json:"price"`
	PaidPrice          string `json:"paidPrice"`
	Currency           string `json:"currency"`
	FraudStatus        *int   `json:"fraudStatus"`
	ThreeDSHTMLContent string `json:"threeDSHtmlContent"`
}

// Charge creates a payment using a stored card token from request metadata
func (g *Gateway) Charge(ctx context.Context, request provider.PaymentRequest) (*provider.ProviderResponse, error) {
	body, err := g.paymentBody(request)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, provider.NewTerminalError(g.Name(), "encoding", "failed to encode payment request", err)
	}

	resp, err := g.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpointPayment,
		Headers: map[string]string{
			"Authorization": g.authorization(endpointPayment, string(payload)),
			"x-iyzi-rnd":    body["conversationId"].(string),
		},
		Body: json.RawMessage(payload),
	})
	if err != nil {
		if gwErr, ok := provider.ClassifyTransportError(g.Name(), err); ok {
			return nil, gwErr
		}
		// 4xx with a business error body is handled like any other failure response
		if resp == nil {
			return nil, provider.NewTransientError(g.Name(), "http", "unexpected HTTP failure", err)
		}
	}

	var parsed response
	if err := g.client.ParseJSONResponse(resp, &parsed); err != nil {
		return nil, provider.NewTransientError(g.Name(), "invalid_response", "unreadable provider response", err)
	}
	return g.toResponse(parsed)
}

func (g *Gateway) paymentBody(request provider.PaymentRequest) (map[string]any, error) {
	cardToken := request.Metadata["cardToken"]
	cardUserKey := request.Metadata["cardUserKey"]
	if cardToken == "" || cardUserKey == "" {
		return nil, provider.NewTerminalError(g.Name(), "missing_card", "cardToken and cardUserKey metadata are required", nil)
	}

	price := request.Amount.StringFixed(2)
	conversationID := request.IdempotencyKey
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	locale := request.Metadata["locale"]
	if locale == "" {
		locale = defaultLocale
	}

	buyerID := request.Metadata["buyerId"]
	if buyerID == "" {
		buyerID = request.OrderID
	}

	address := map[string]any{
		"contactName": request.Metadata["buyerName"],
		"city":        request.Metadata["city"],
		"country":     request.Metadata["country"],
		"address":     request.Metadata["address"],
	}

	return map[string]any{
		"locale":         locale,
		"conversationId": conversationID,
		"price":          price,
		"paidPrice":      price,
		"currency":       request.Currency,
		"installment":    1,
		"basketId":       request.OrderID,
		"paymentChannel": "WEB",
		"paymentGroup":   "PRODUCT",
		"paymentCard": map[string]any{
			"cardToken":   cardToken,
			"cardUserKey": cardUserKey,
		},
		"buyer": map[string]any{
			"id":                  buyerID,
			"name":                request.Metadata["buyerName"],
			"surname":             request.Metadata["buyerSurname"],
			"email":               request.Metadata["buyerEmail"],
			"identityNumber":      request.Metadata["identityNumber"],
			"registrationAddress": request.Metadata["address"],
			"ip":                  request.Metadata["ip"],
			"city":                request.Metadata["city"],
			"country":             request.Metadata["country"],
		},
		"billingAddress": address,
		"basketItems": []map[string]any{{
			"id":        request.OrderID,
			"name":      "Order " + request.OrderID,
			"category1": "General",
			"itemType":  defaultItemType,
			"price":     price,
		}},
	}, nil
}

func (g *Gateway) toResponse(parsed response) (*provider.ProviderResponse, error) {
	if parsed.Status != statusSuccess {
		return nil, g.classifyFailure(parsed)
	}

	out := &provider.ProviderResponse{
		TransactionID: parsed.PaymentID,
		Status:        provider.StatusSucceeded,
		Currency:      parsed.Currency,
	}
	if paid, err := decimal.NewFromString(strings.ReplaceAll(parsed.PaidPrice, ",", ".")); err == nil {
		out.Amount = paid
	}

	switch {
	case parsed.ThreeDSHTMLContent != "":
		out.Status = provider.StatusRequiresAction
		out.Message = "3D Secure authentication required"
	case parsed.FraudStatus == nil:
	case *parsed.FraudStatus == fraudReview:
		out.Status = provider.StatusPending
		out.Code = "fraud_review"
		out.Message = "payment is under fraud review"
	case *parsed.FraudStatus != fraudApproved:
		// unknown fraud state, let the normalizer fail it with the code kept
		out.Status = provider.TransactionStatus(fmt.Sprintf("fraud_%d", *parsed.FraudStatus))
		out.Code = string(out.Status)
	}
	return out, nil
}

func (g *Gateway) classifyFailure(parsed response) *provider.GatewayError {
	message := parsed.ErrorMessage
	if message == "" {
		message = "payment failed"
	}

	if reason, ok := transientErrorCodes[parsed.ErrorCode]; ok {
		return provider.NewTransientError(g.Name(), parsed.ErrorCode, reason+": "+message, nil)
	}
	if slices.Contains(transientErrorGroups, parsed.ErrorGroup) {
		return provider.NewTransientError(g.Name(), parsed.ErrorCode, message, nil)
	}
	if reason, ok := terminalErrorCodes[parsed.ErrorCode]; ok {
		return provider.NewTerminalError(g.Name(), parsed.ErrorCode, reason+": "+message, nil)
	}
	// any other business failure is still a provider decision
	return provider.NewTerminalError(g.Name(), parsed.ErrorCode, message, nil)
}

// authorization builds the IYZWS header from an HMAC-SHA1 of the request
func (g *Gateway) authorization(uri, body string) string {
	hash := hmac.New(sha1.New, []byte(g.secretKey))
	hash.Write([]byte(g.apiKey + uri + sortAndConcat(body) + g.secretKey))
	digest := base64.StdEncoding.EncodeToString(hash.Sum(nil))
	return fmt.Sprintf("IYZWS %s:%s", g.apiKey, digest)
}

// sortAndConcat flattens the top level of a JSON object into sorted key/value pairs
func sortAndConcat(jsonString string) string {
	var data map[string]any
	if err := json.Unmarshal([]byte(jsonString), &data); err != nil {
		return ""
	}

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, key := range keys {
		value := fmt.Sprintf("%v", data[key])
		if value != "" && value != "[]" && value != "map[]" {
			b.WriteString(key)
			b.WriteString(value)
		}
	}
	return b.String()
}
