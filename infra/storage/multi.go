package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/mstgnz/paygate/provider"
	"golang.org/x/sync/errgroup"
)

// MultiStore writes every transaction to all of its stores in parallel
type MultiStore struct {
	stores []namedStore
}

type namedStore struct {
	name  string
	store provider.TransactionStore
}

// NewMultiStore returns an empty fan-out store; add backends with Add
func NewMultiStore() *MultiStore {
	return &MultiStore{}
}

// Add registers a backend under a name used in error messages. Nil stores
// are ignored so optional backends can be passed unconditionally.
func (m *MultiStore) Add(name string, store provider.TransactionStore) *MultiStore {
	if store != nil {
		m.stores = append(m.stores, namedStore{name: name, store: store})
	}
	return m
}

// Len returns the number of backends
func (m *MultiStore) Len() int {
	return len(m.stores)
}

// SaveTransaction saves to every backend. One failing backend does not stop
// the others; all failures are joined into the returned error.
func (m *MultiStore) SaveTransaction(ctx context.Context, result provider.TransactionResult) error {
	errs := make([]error, len(m.stores))

	var g errgroup.Group
	for i, s := range m.stores {
		g.Go(func() error {
			if err := s.store.SaveTransaction(ctx, result); err != nil {
				errs[i] = fmt.Errorf("%s: %w", s.name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
