package provider

import (
	"fmt"
	"slices"
	"sync"
)

// ConfigField represents a required configuration field for a gateway adapter
type ConfigField struct {
	Key         string `json:"key"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // "string", "number", "url", "email", "boolean"
	Description string `json:"description"`
	Example     string `json:"example"`
	Pattern     string `json:"pattern,omitempty"`   // regex pattern for validation
	MinLength   int    `json:"minLength,omitempty"` // minimum length for string fields
	MaxLength   int    `json:"maxLength,omitempty"` // maximum length for string fields
}

// GatewaySettings is everything an adapter factory needs to build a gateway
type GatewaySettings struct {
	Descriptor  GatewayDescriptor
	Environment string
	Credentials map[string]string
}

// GatewayFactory builds a configured adapter
type GatewayFactory func(settings GatewaySettings) (Gateway, error)

type catalogEntry struct {
	factory        GatewayFactory
	requiredConfig func(environment string) []ConfigField
}

// Catalog maps adapter kinds (stripe, iyzico, ...) to their factories
type Catalog struct {
	kinds map[string]catalogEntry
	mu    sync.RWMutex
}

// NewCatalog creates an empty adapter catalog
func NewCatalog() *Catalog {
	return &Catalog{
		kinds: make(map[string]catalogEntry),
	}
}

// Register adds an adapter factory and the credentials it needs
func (c *Catalog) Register(kind string, factory GatewayFactory, requiredConfig func(environment string) []ConfigField) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds[kind] = catalogEntry{factory: factory, requiredConfig: requiredConfig}
}

func (c *Catalog) get(kind string) (catalogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.kinds[kind]
	if !exists {
		return catalogEntry{}, fmt.Errorf("gateway adapter '%s' is not registered", kind)
	}
	return entry, nil
}

// RequiredConfig returns the credential fields an adapter kind expects
func (c *Catalog) RequiredConfig(kind, environment string) ([]ConfigField, error) {
	entry, err := c.get(kind)
	if err != nil {
		return nil, err
	}
	if entry.requiredConfig == nil {
		return nil, nil
	}
	return entry.requiredConfig(environment), nil
}

// NewGateway validates the credentials and builds an adapter of the given kind
func (c *Catalog) NewGateway(kind string, settings GatewaySettings) (Gateway, error) {
	entry, err := c.get(kind)
	if err != nil {
		return nil, err
	}

	if entry.requiredConfig != nil {
		fields := entry.requiredConfig(settings.Environment)
		if err := ValidateConfigFields(settings.Descriptor.Name, settings.Credentials, fields); err != nil {
			return nil, err
		}
	}

	gw, err := entry.factory(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway '%s': %w", settings.Descriptor.Name, err)
	}
	return gw, nil
}

// Kinds returns the registered adapter kinds, sorted
func (c *Catalog) Kinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	kinds := make([]string, 0, len(c.kinds))
	for kind := range c.kinds {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}

// DefaultCatalog is the catalog adapter packages register into from init
var DefaultCatalog = NewCatalog()

// RegisterFactory registers an adapter with the default catalog
func RegisterFactory(kind string, factory GatewayFactory, requiredConfig func(environment string) []ConfigField) {
	DefaultCatalog.Register(kind, factory, requiredConfig)
}

// NewGateway builds an adapter from the default catalog
func NewGateway(kind string, settings GatewaySettings) (Gateway, error) {
	return DefaultCatalog.NewGateway(kind, settings)
}
