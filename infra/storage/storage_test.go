package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mstgnz/paygate/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "paygate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult(key, gateway string, at time.Time) provider.TransactionResult {
	return provider.TransactionResult{
		GatewayName:           gateway,
		ProviderTransactionID: "tx-" + key,
		Status:                provider.StatusSucceeded,
		Amount:                decimal.RequireFromString("49.90"),
		Currency:              "USD",
		RawProviderCode:       "succeeded",
		OrderID:               "order-" + key,
		IdempotencyKey:        key,
		OccurredAt:            at,
	}
}

func TestSQLiteStore_SaveAndFind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveTransaction(ctx, sampleResult("key-1", "stripe", at)))

	got, err := store.FindByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "stripe", got.GatewayName)
	assert.Equal(t, provider.StatusSucceeded, got.Status)
	assert.True(t, decimal.RequireFromString("49.90").Equal(got.Amount))
	assert.Equal(t, "order-key-1", got.OrderID)
	assert.True(t, at.Equal(got.OccurredAt))

	missing, err := store.FindByIdempotencyKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLiteStore_UpsertByIdempotencyKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := sampleResult("key-1", "stripe", at)
	first.Status = provider.StatusPending
	require.NoError(t, store.SaveTransaction(ctx, first))

	second := sampleResult("key-1", "stripe", at.Add(time.Minute))
	require.NoError(t, store.SaveTransaction(ctx, second))

	all, err := store.ListTransactions(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, provider.StatusSucceeded, all[0].Status)
}

func TestSQLiteStore_ListTransactions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveTransaction(ctx, sampleResult("a", "stripe", base)))
	require.NoError(t, store.SaveTransaction(ctx, sampleResult("b", "iyzico", base.Add(time.Minute))))
	require.NoError(t, store.SaveTransaction(ctx, sampleResult("c", "stripe", base.Add(2*time.Minute))))

	all, err := store.ListTransactions(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].IdempotencyKey, "newest first")

	stripeOnly, err := store.ListTransactions(ctx, "stripe", 1)
	require.NoError(t, err)
	require.Len(t, stripeOnly, 1)
	assert.Equal(t, "c", stripeOnly[0].IdempotencyKey)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats["total_transactions"])
}

func TestSQLiteStore_ConcurrentWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := string(rune('a' + i))
			assert.NoError(t, store.SaveTransaction(ctx, sampleResult(key, "stripe", at)))
		}()
	}
	wg.Wait()

	all, err := store.ListTransactions(ctx, "", 100)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

type recordingStore struct {
	mu    sync.Mutex
	saved []provider.TransactionResult
	err   error
}

func (r *recordingStore) SaveTransaction(_ context.Context, result provider.TransactionResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, result)
	return nil
}

func TestMultiStore(t *testing.T) {
	ok := &recordingStore{}
	broken := &recordingStore{err: errors.New("disk full")}

	multi := NewMultiStore().Add("ok", ok).Add("broken", broken).Add("absent", nil)
	assert.Equal(t, 2, multi.Len())

	err := multi.SaveTransaction(context.Background(), sampleResult("k", "stripe", time.Now()))
	require.Error(t, err)
	assert.ErrorContains(t, err, "broken: disk full")
	assert.Len(t, ok.saved, 1, "healthy backend still receives the write")

	assert.NoError(t, NewMultiStore().SaveTransaction(context.Background(), sampleResult("k", "stripe", time.Now())))
}
