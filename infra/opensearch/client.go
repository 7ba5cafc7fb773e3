package opensearch

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mstgnz/paygate/infra/config"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

const (
	TransactionsIndex = "paygate-transactions"
	SystemLogsIndex   = "paygate-system-logs"
)

// Client wraps the OpenSearch client
type Client struct {
	client *opensearch.Client
	config *config.AppConfig
}

// NewClient creates a new OpenSearch client and makes sure the paygate
// indices exist. Index setup failures are logged, not returned.
func NewClient(cfg *config.AppConfig) (*Client, error) {
	opensearchConfig := opensearch.Config{
		Addresses: []string{cfg.OpenSearchURL},
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Environment != "production",
			},
		},
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 100 * time.Millisecond
		},
	}

	if cfg.OpenSearchUser != "" && cfg.OpenSearchPass != "" {
		opensearchConfig.Username = cfg.OpenSearchUser
		opensearchConfig.Password = cfg.OpenSearchPass
	}

	client, err := opensearch.NewClient(opensearchConfig)
	if err != nil {
		return nil, err
	}

	osClient := &Client{
		client: client,
		config: cfg,
	}

	if cfg.EnableLogging {
		if err := osClient.setupIndices(context.Background()); err != nil {
			log.Printf("Warning: Failed to setup OpenSearch indices: %v", err)
		}
	}

	return osClient, nil
}

// GetClient returns the underlying OpenSearch client
func (c *Client) GetClient() *opensearch.Client {
	return c.client
}

// IsEnabled returns whether OpenSearch indexing is enabled
func (c *Client) IsEnabled() bool {
	return c.config.EnableLogging
}

func (c *Client) setupIndices(ctx context.Context) error {
	indices := map[string]string{
		TransactionsIndex: transactionsMapping,
		SystemLogsIndex:   systemLogsMapping,
	}

	var failed []string
	for name, mapping := range indices {
		if err := c.createIndexIfNotExists(ctx, name, mapping); err != nil {
			log.Printf("Error preparing index %s: %v", name, err)
			failed = append(failed, name)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("could not prepare indices: %s", strings.Join(failed, ", "))
	}
	return nil
}

func (c *Client) createIndexIfNotExists(ctx context.Context, name, mapping string) error {
	exists, err := c.indexExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	req := opensearchapi.IndicesCreateRequest{
		Index: name,
		Body:  strings.NewReader(mapping),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index creation error: %s", res.String())
	}

	log.Printf("Created OpenSearch index: %s", name)
	return nil
}

func (c *Client) indexExists(ctx context.Context, name string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{
		Index: []string{name},
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK, nil
}

const transactionsMapping = `{
	"mappings": {
		"properties": {
			"gatewayName": {"type": "keyword"},
			"providerTransactionId": {"type": "keyword"},
			"status": {"type": "keyword"},
			"amount": {"type": "scaled_float", "scaling_factor": 100},
			"currency": {"type": "keyword"},
			"rawProviderCode": {"type": "keyword"},
			"message": {"type": "text"},
			"orderId": {"type": "keyword"},
			"idempotencyKey": {"type": "keyword"},
			"occurredAt": {"type": "date", "format": "strict_date_optional_time||epoch_millis"}
		}
	},
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0
	}
}`

const systemLogsMapping = `{
	"mappings": {
		"properties": {
			"timestamp": {"type": "date", "format": "strict_date_optional_time||epoch_millis"},
			"level": {"type": "keyword"},
			"message": {"type": "text"},
			"component": {"type": "keyword"},
			"provider": {"type": "keyword"},
			"request_id": {"type": "keyword"},
			"error": {"type": "text"},
			"service": {"type": "keyword"},
			"environment": {"type": "keyword"}
		}
	},
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0
	}
}`
