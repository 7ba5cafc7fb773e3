package provider

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registryWith(t *testing.T, gateways ...*fakeGateway) *Registry {
	t.Helper()
	registry := NewRegistry()
	for _, gw := range gateways {
		require.NoError(t, registry.Register(gw))
	}
	return registry
}

func names(descriptors []GatewayDescriptor) []string {
	out := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, d.Name)
	}
	return out
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	registry := registryWith(t, newFakeGateway("stripe", 1))

	err := registry.Register(newFakeGateway("stripe", 2))
	var dup *DuplicateGatewayError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "stripe", dup.Name)
	assert.Equal(t, 1, registry.Len())
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	registry := NewRegistry()

	assert.Error(t, registry.Register(nil))
	assert.Error(t, registry.Register(newFakeGateway("", 1)))
}

func TestRegistry_NewGatewayStartsUnavailable(t *testing.T) {
	registry := registryWith(t, newFakeGateway("stripe", 1))

	availability, err := registry.Availability("stripe")
	require.NoError(t, err)
	assert.False(t, availability.Available)
	assert.Equal(t, "not probed yet", availability.LastError)
	assert.Empty(t, registry.GetAvailable())
}

func TestRegistry_AllKeepsRegistrationOrder(t *testing.T) {
	registry := registryWith(t,
		newFakeGateway("zeta", 3),
		newFakeGateway("alpha", 1),
		newFakeGateway("mid", 2),
	)

	first := slices.Collect(registry.All())
	second := slices.Collect(registry.All())
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names(first))
	assert.Equal(t, first, second, "sequence must be restartable")

	// early break
	for d := range registry.All() {
		assert.Equal(t, "zeta", d.Name)
		break
	}
}

func TestRegistry_SetAvailabilityUnknown(t *testing.T) {
	registry := NewRegistry()

	err := registry.SetAvailability("missing", true, nil)
	var unknown *UnknownGatewayError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "missing", unknown.Name)
}

func TestRegistry_SetAvailabilityRecordsError(t *testing.T) {
	registry := registryWith(t, newFakeGateway("stripe", 1))

	require.NoError(t, registry.SetAvailability("stripe", false, errors.New("connection refused")))
	availability, err := registry.Availability("stripe")
	require.NoError(t, err)
	assert.False(t, availability.Available)
	assert.Equal(t, "connection refused", availability.LastError)
	assert.False(t, availability.LastCheckedAt.IsZero())

	require.NoError(t, registry.SetAvailability("stripe", true, nil))
	availability, _ = registry.Availability("stripe")
	assert.True(t, availability.Available)
	assert.Empty(t, availability.LastError)
}

func TestRegistry_GetAvailableOrdering(t *testing.T) {
	registry := registryWith(t,
		newFakeGateway("charlie", 3),
		newFakeGateway("alpha", 1),
		newFakeGateway("bravo", 2),
	)

	tests := []struct {
		name      string
		available map[string]bool
		want      []string
	}{
		{"all available", map[string]bool{"alpha": true, "bravo": true, "charlie": true}, []string{"alpha", "bravo", "charlie"}},
		{"primary down", map[string]bool{"alpha": false, "bravo": true, "charlie": true}, []string{"bravo", "charlie"}},
		{"only last", map[string]bool{"alpha": false, "bravo": false, "charlie": true}, []string{"charlie"}},
		{"none", map[string]bool{"alpha": false, "bravo": false, "charlie": false}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for name, up := range tt.available {
				require.NoError(t, registry.SetAvailability(name, up, nil))
			}
			got := registry.GetAvailable()
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, names(got))

			// repeated reads give the same order
			assert.Equal(t, got, registry.GetAvailable())
		})
	}
}

func TestRegistry_RankedTotalOrder(t *testing.T) {
	registry := registryWith(t,
		newFakeGateway("b-gate", 1),
		newFakeGateway("a-gate", 1),
		newFakeGateway("c-gate", 0),
	)
	require.NoError(t, registry.SetAvailability("a-gate", true, nil))
	require.NoError(t, registry.SetAvailability("b-gate", true, nil))

	var got []string
	for _, s := range registry.Ranked() {
		got = append(got, s.Descriptor.Name)
	}
	// available first, then priority, then name
	assert.Equal(t, []string{"a-gate", "b-gate", "c-gate"}, got)
}

func TestRegistry_DisabledNeverAvailable(t *testing.T) {
	registry := registryWith(t,
		newFakeGateway("enabled", 2),
		newFakeGateway("disabled", 1).disabled(),
	)
	require.NoError(t, registry.SetAvailability("enabled", true, nil))
	require.NoError(t, registry.SetAvailability("disabled", true, nil))

	assert.Equal(t, []string{"enabled"}, names(registry.GetAvailable()))
	for _, c := range registry.Snapshot() {
		assert.NotEqual(t, "disabled", c.Descriptor.Name)
	}

	ranked := registry.Ranked()
	require.Len(t, ranked, 2)
	assert.Equal(t, "disabled", ranked[1].Descriptor.Name, "disabled gateways rank as unavailable")
}

func TestRegistry_DescriptorIsCopied(t *testing.T) {
	gw := newFakeGateway("stripe", 1, "usd", "USD", " eur ")
	registry := registryWith(t, gw)
	require.NoError(t, registry.SetAvailability("stripe", true, nil))

	got := registry.GetAvailable()
	require.Len(t, got, 1)
	assert.Equal(t, []string{"EUR", "USD"}, got[0].SupportedCurrencies)

	got[0].SupportedCurrencies[0] = "XXX"
	again := registry.GetAvailable()
	assert.Equal(t, "EUR", again[0].SupportedCurrencies[0])
}

func TestRegistry_SnapshotIsStable(t *testing.T) {
	registry := registryWith(t, newFakeGateway("a", 1), newFakeGateway("b", 2))
	require.NoError(t, registry.SetAvailability("a", true, nil))
	require.NoError(t, registry.SetAvailability("b", true, nil))

	snapshot := registry.Snapshot()
	require.NoError(t, registry.SetAvailability("a", false, nil))

	assert.Len(t, snapshot, 2)
	assert.Equal(t, "a", snapshot[0].Descriptor.Name)
	assert.Len(t, registry.Snapshot(), 1)
}
