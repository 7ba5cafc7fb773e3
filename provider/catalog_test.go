package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFields(environment string) []ConfigField {
	return []ConfigField{
		{Key: "apiKey", Required: true, Type: "string", MinLength: 4},
		{Key: "webhookUrl", Required: false, Type: "url"},
		{Key: "retries", Required: false, Type: "number"},
	}
}

func TestCatalog_NewGateway(t *testing.T) {
	catalog := NewCatalog()
	catalog.Register("fake", func(settings GatewaySettings) (Gateway, error) {
		gw := newFakeGateway(settings.Descriptor.Name, settings.Descriptor.DisplayPriority)
		return gw, nil
	}, testFields)

	gw, err := catalog.NewGateway("fake", GatewaySettings{
		Descriptor:  GatewayDescriptor{Name: "primary", DisplayPriority: 1},
		Credentials: map[string]string{"apiKey": "secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, "primary", gw.Name())
	assert.Equal(t, []string{"fake"}, catalog.Kinds())
}

func TestCatalog_UnknownKind(t *testing.T) {
	_, err := NewCatalog().NewGateway("paypal", GatewaySettings{})
	assert.ErrorContains(t, err, "is not registered")
}

func TestCatalog_FactoryError(t *testing.T) {
	catalog := NewCatalog()
	catalog.Register("broken", func(GatewaySettings) (Gateway, error) {
		return nil, errors.New("bad config")
	}, nil)

	_, err := catalog.NewGateway("broken", GatewaySettings{Descriptor: GatewayDescriptor{Name: "x"}})
	assert.ErrorContains(t, err, "bad config")
}

func TestValidateConfigFields(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]string
		wantErr string
	}{
		{"valid", map[string]string{"apiKey": "abcd"}, ""},
		{"missing required", map[string]string{}, "required field 'apiKey' is missing"},
		{"blank required", map[string]string{"apiKey": "  "}, "required field 'apiKey' is missing"},
		{"too short", map[string]string{"apiKey": "abc"}, "at least 4 characters"},
		{"bad url", map[string]string{"apiKey": "abcd", "webhookUrl": "not a url"}, "valid url"},
		{"bad number", map[string]string{"apiKey": "abcd", "retries": "three"}, "valid number"},
		{"optional ok", map[string]string{"apiKey": "abcd", "webhookUrl": "https://example.com/hook", "retries": "3"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfigFields("fake", tt.config, testFields(""))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestAsGatewayError(t *testing.T) {
	assert.Nil(t, AsGatewayError("x", nil))

	terminal := NewTerminalError("", "declined", "no", nil)
	got := AsGatewayError("stripe", terminal)
	assert.Equal(t, Terminal, got.Kind)
	assert.Equal(t, "stripe", got.Gateway)

	plain := AsGatewayError("stripe", errors.New("boom"))
	assert.Equal(t, Transient, plain.Kind)
	assert.Equal(t, "unclassified", plain.Code)
	assert.ErrorContains(t, plain, "boom")
}
