package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mstgnz/paygate/infra/opensearch"
	"github.com/mstgnz/paygate/provider"
)

// DocumentIndexer is the part of the OpenSearch indexer the store needs
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, index, id string, doc any) error
	Search(ctx context.Context, index string, query map[string]any) ([]json.RawMessage, error)
}

// OpenSearchStore indexes charge outcomes for search and dashboards
type OpenSearchStore struct {
	indexer DocumentIndexer
	index   string
}

// NewOpenSearchStore writes to the paygate transactions index
func NewOpenSearchStore(indexer DocumentIndexer) *OpenSearchStore {
	return &OpenSearchStore{indexer: indexer, index: opensearch.TransactionsIndex}
}

// SaveTransaction indexes the result keyed by its idempotency key, so a
// replayed write overwrites instead of duplicating.
func (s *OpenSearchStore) SaveTransaction(ctx context.Context, result provider.TransactionResult) error {
	return s.indexer.IndexDocument(ctx, s.index, result.IdempotencyKey, result)
}

// RecentTransactions returns the newest indexed results, optionally for one gateway
func (s *OpenSearchStore) RecentTransactions(ctx context.Context, gatewayName string, limit int) ([]provider.TransactionResult, error) {
	if limit <= 0 {
		limit = 50
	}

	query := map[string]any{
		"size": limit,
		"sort": []map[string]any{
			{"occurredAt": map[string]string{"order": "desc"}},
		},
		"query": map[string]any{"match_all": map[string]any{}},
	}
	if gatewayName != "" {
		query["query"] = map[string]any{
			"term": map[string]any{"gatewayName": gatewayName},
		}
	}

	docs, err := s.indexer.Search(ctx, s.index, query)
	if err != nil {
		return nil, err
	}

	results := make([]provider.TransactionResult, 0, len(docs))
	for _, doc := range docs {
		var r provider.TransactionResult
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("failed to decode indexed transaction: %w", err)
		}
		results = append(results, r)
	}
	return results, nil
}
