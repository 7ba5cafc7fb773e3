package provider

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
)

// errNotProbed is the initial availability error of a freshly registered gateway
var errNotProbed = errors.New("not probed yet")

type registryEntry struct {
	descriptor   GatewayDescriptor
	gateway      Gateway
	availability atomic.Pointer[GatewayAvailability]
}

// Candidate pairs a descriptor with its adapter for a single selection pass
type Candidate struct {
	Descriptor GatewayDescriptor
	Gateway    Gateway
}

// GatewayStatus is a descriptor together with its current availability
type GatewayStatus struct {
	Descriptor   GatewayDescriptor   `json:"descriptor"`
	Availability GatewayAvailability `json:"availability"`
}

// Registry is the in-memory source of truth for gateway descriptors and availability.
// It performs no network I/O.
type Registry struct {
	mu      sync.RWMutex
	order   []*registryEntry
	entries map[string]*registryEntry
	clock   clockz.Clock
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRegistryClock sets the clock used to stamp availability records
func WithRegistryClock(clock clockz.Clock) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRegistry creates an empty gateway registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]*registryEntry),
		clock:   clockz.RealClock,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an adapter and its descriptor. A new gateway starts unavailable
// until the prober has checked it.
func (r *Registry) Register(gw Gateway) error {
	if gw == nil {
		return errors.New("cannot register a nil gateway")
	}
	descriptor := gw.Descriptor().normalized()
	if descriptor.Name == "" {
		return errors.New("gateway name cannot be empty")
	}
	if descriptor.Name != gw.Name() {
		return fmt.Errorf("gateway name '%s' does not match descriptor name '%s'", gw.Name(), descriptor.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[descriptor.Name]; exists {
		return &DuplicateGatewayError{Name: descriptor.Name}
	}

	entry := &registryEntry{descriptor: descriptor, gateway: gw}
	entry.availability.Store(&GatewayAvailability{
		GatewayName: descriptor.Name,
		LastError:   errNotProbed.Error(),
	})
	r.entries[descriptor.Name] = entry
	r.order = append(r.order, entry)
	return nil
}

// All returns every registered descriptor in registration order. The sequence
// is lazy and can be ranged over any number of times.
func (r *Registry) All() iter.Seq[GatewayDescriptor] {
	return func(yield func(GatewayDescriptor) bool) {
		r.mu.RLock()
		entries := slices.Clone(r.order)
		r.mu.RUnlock()

		for _, entry := range entries {
			if !yield(entry.descriptor.clone()) {
				return
			}
		}
	}
}

// Len returns the number of registered gateways
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// GetAvailable returns enabled, available descriptors in selection order.
// It returns an empty slice, never nil, when nothing qualifies.
func (r *Registry) GetAvailable() []GatewayDescriptor {
	candidates := r.Snapshot()
	descriptors := make([]GatewayDescriptor, 0, len(candidates))
	for _, c := range candidates {
		descriptors = append(descriptors, c.Descriptor)
	}
	return descriptors
}

// Snapshot captures the ordered available gateways together with their adapters.
// Later availability changes do not affect the returned slice.
func (r *Registry) Snapshot() []Candidate {
	statuses := r.Ranked()
	candidates := make([]Candidate, 0, len(statuses))

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range statuses {
		if !s.Descriptor.Enabled || !s.Availability.Available {
			continue
		}
		entry, ok := r.entries[s.Descriptor.Name]
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{Descriptor: s.Descriptor, Gateway: entry.gateway})
	}
	return candidates
}

// Ranked returns every registered gateway with its availability, ordered by
// (available desc, displayPriority asc, name asc). Disabled gateways rank as unavailable.
func (r *Registry) Ranked() []GatewayStatus {
	r.mu.RLock()
	statuses := make([]GatewayStatus, 0, len(r.order))
	for _, entry := range r.order {
		statuses = append(statuses, GatewayStatus{
			Descriptor:   entry.descriptor.clone(),
			Availability: *entry.availability.Load(),
		})
	}
	r.mu.RUnlock()

	slices.SortStableFunc(statuses, compareStatus)
	return statuses
}

func compareStatus(a, b GatewayStatus) int {
	aUp := a.Descriptor.Enabled && a.Availability.Available
	bUp := b.Descriptor.Enabled && b.Availability.Available
	if aUp != bUp {
		if aUp {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.Descriptor.DisplayPriority, b.Descriptor.DisplayPriority); c != 0 {
		return c
	}
	return strings.Compare(a.Descriptor.Name, b.Descriptor.Name)
}

// Availability returns the current availability record of a gateway
func (r *Registry) Availability(name string) (GatewayAvailability, error) {
	entry, err := r.lookup(name)
	if err != nil {
		return GatewayAvailability{}, err
	}
	return *entry.availability.Load(), nil
}

// Gateway returns the adapter registered under name
func (r *Registry) Gateway(name string) (Gateway, error) {
	entry, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return entry.gateway, nil
}

// SetAvailability replaces the availability record of a gateway in one atomic step
func (r *Registry) SetAvailability(name string, available bool, cause error) error {
	entry, err := r.lookup(name)
	if err != nil {
		return err
	}

	record := &GatewayAvailability{
		GatewayName:   name,
		Available:     available,
		LastCheckedAt: r.clock.Now().UTC(),
	}
	if cause != nil {
		record.LastError = cause.Error()
	}
	entry.availability.Store(record)
	return nil
}

func (r *Registry) lookup(name string) (*registryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil, &UnknownGatewayError{Name: name}
	}
	return entry, nil
}
