package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// GatewayConfig is the startup configuration of one payment gateway
type GatewayConfig struct {
	Name          string            `validate:"required,gateway_name,max=64"`
	Kind          string            `validate:"required"`
	Priority      int               `validate:"gte=0"`
	Enabled       bool
	Currencies    []string          `validate:"required,min=1,dive,currency"`
	Methods       []string          `validate:"required,min=1,dive,required"`
	Environment   string            `validate:"oneof=sandbox test production"`
	ProbeInterval time.Duration     `validate:"gte=0"`
	Credentials   map[string]string
}

// settings read from <NAME>_<KEY>; everything else under the prefix is a credential
var reservedGatewayKeys = []string{"KIND", "PRIORITY", "ENABLED", "CURRENCIES", "METHODS", "ENVIRONMENT", "PROBE_INTERVAL"}

// LoadGatewayConfigs reads the gateways listed in GATEWAYS. For a gateway
// named "stripe" the variables are STRIPE_KIND, STRIPE_PRIORITY,
// STRIPE_ENABLED, STRIPE_CURRENCIES, STRIPE_METHODS, STRIPE_ENVIRONMENT and
// STRIPE_PROBE_INTERVAL; any other STRIPE_* variable becomes a credential,
// e.g. STRIPE_SECRET_KEY is passed to the adapter as "secretKey".
func LoadGatewayConfigs(v *validator.Validate) ([]GatewayConfig, error) {
	names := GetListEnv("GATEWAYS", nil)
	if len(names) == 0 {
		return nil, errors.New("GATEWAYS is not set")
	}

	environ := os.Environ()
	configs := make([]GatewayConfig, 0, len(names))
	seen := make(map[string]bool, len(names))

	for i, name := range names {
		name = strings.ToLower(name)
		if seen[name] {
			return nil, fmt.Errorf("gateway '%s' is listed more than once in GATEWAYS", name)
		}
		seen[name] = true

		prefix := envPrefix(name)
		cfg := GatewayConfig{
			Name:          name,
			Kind:          GetEnv(prefix+"KIND", name),
			Priority:      GetIntEnv(prefix+"PRIORITY", i),
			Enabled:       GetBoolEnv(prefix+"ENABLED", true),
			Currencies:    upper(GetListEnv(prefix+"CURRENCIES", nil)),
			Methods:       lower(GetListEnv(prefix+"METHODS", []string{"card"})),
			Environment:   GetEnv(prefix+"ENVIRONMENT", "sandbox"),
			ProbeInterval: GetDurationEnv(prefix+"PROBE_INTERVAL", 0),
			Credentials:   credentials(prefix, environ),
		}

		if raw := os.Getenv(prefix + "PRIORITY"); raw != "" {
			if _, err := strconv.Atoi(raw); err != nil {
				return nil, fmt.Errorf("gateway '%s': %sPRIORITY must be an integer", name, prefix)
			}
		}
		if err := v.Struct(cfg); err != nil {
			return nil, fmt.Errorf("gateway '%s': invalid configuration: %w", name, err)
		}
		configs = append(configs, cfg)
	}

	return configs, nil
}

func envPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_"
}

func credentials(prefix string, environ []string) map[string]string {
	creds := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) || value == "" {
			continue
		}
		suffix := strings.TrimPrefix(key, prefix)
		if suffix == "" || slices.Contains(reservedGatewayKeys, suffix) {
			continue
		}
		creds[camelCase(suffix)] = value
	}
	return creds
}

// camelCase turns SECRET_KEY into secretKey
func camelCase(snake string) string {
	parts := strings.Split(strings.ToLower(snake), "_")
	var b strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 || b.Len() == 0 {
			b.WriteString(part)
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

func upper(values []string) []string {
	for i, v := range values {
		values[i] = strings.ToUpper(v)
	}
	return values
}

func lower(values []string) []string {
	for i, v := range values {
		values[i] = strings.ToLower(v)
	}
	return values
}
