package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// ErrDisabled is returned by queries when indexing is switched off
var ErrDisabled = errors.New("opensearch indexing is disabled")

// Indexer writes and searches JSON documents
type Indexer struct {
	client *Client
}

// NewIndexer creates a new OpenSearch indexer
func NewIndexer(client *Client) *Indexer {
	return &Indexer{
		client: client,
	}
}

// IsEnabled reports whether documents are actually sent
func (i *Indexer) IsEnabled() bool {
	return i.client.IsEnabled()
}

// IndexDocument stores doc in index. A non-empty id makes the write an
// upsert of that document.
func (i *Indexer) IndexDocument(ctx context.Context, index, id string, doc any) error {
	if !i.client.IsEnabled() {
		return nil
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("opensearch error: %s", res.String())
	}

	return nil
}

// LogSystemEvent indexes a system log entry
func (i *Indexer) LogSystemEvent(ctx context.Context, entry any) error {
	return i.IndexDocument(ctx, SystemLogsIndex, "", entry)
}

// Search runs query against index and returns the raw _source of each hit
func (i *Indexer) Search(ctx context.Context, index string, query map[string]any) ([]json.RawMessage, error) {
	if !i.client.IsEnabled() {
		return nil, ErrDisabled
	}

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	docs := make([]json.RawMessage, len(searchResult.Hits.Hits))
	for n, hit := range searchResult.Hits.Hits {
		docs[n] = hit.Source
	}
	return docs, nil
}

var sensitivePatterns = func() []*regexp.Regexp {
	fields := []string{
		"cardNumber", "card_number", "cvv", "cvc", "cardToken", "cardUserKey",
		"paymentMethod", "apiKey", "api_key", "secretKey", "secret_key", "password",
		"token", "authorization",
	}

	var out []*regexp.Regexp
	for _, field := range fields {
		out = append(out,
			regexp.MustCompile(fmt.Sprintf(`"(%s)"\s*:\s*"[^"]*"`, field)),
			regexp.MustCompile(fmt.Sprintf(`(%s)=[^&\s]+`, field)),
		)
	}
	return out
}()

// SanitizeForLog masks credentials and card data in JSON or query strings
func SanitizeForLog(data string) string {
	result := data
	for n, re := range sensitivePatterns {
		if n%2 == 0 {
			result = re.ReplaceAllString(result, `"$1":"***REDACTED***"`)
		} else {
			result = re.ReplaceAllString(result, `$1=***REDACTED***`)
		}
	}
	return result
}
