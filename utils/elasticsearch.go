package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// CustomerDocument is what the search index stores per customer.
type CustomerDocument struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	BranchID uint   `json:"branch_id"`
	Status   string `json:"status"`
	Source   string `json:"source"`
	Notes    string `json:"notes"`
}

type ElasticsearchClient interface {
	IndexCustomer(ctx context.Context, doc CustomerDocument) error
	SearchCustomers(ctx context.Context, text string, branchID *uint, limit int) ([]CustomerDocument, error)
	DeleteCustomer(ctx context.Context, id uint) error
	Close() error
}

type elasticsearchClient struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchClient(url, index string) (ElasticsearchClient, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{url},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := es.Ping()
	if err != nil {
		return nil, fmt.Errorf("failed to ping Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch ping error: %s", res.Status())
	}

	return &elasticsearchClient{client: es, index: index}, nil
}

func (e *elasticsearchClient) Close() error {
	return nil
}

func (e *elasticsearchClient) IndexCustomer(ctx context.Context, doc CustomerDocument) error {
	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      e.index,
		DocumentID: fmt.Sprintf("%d", doc.ID),
		Body:       bytes.NewReader(jsonDoc),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("Elasticsearch error: %s", res.String())
	}

	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source CustomerDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (e *elasticsearchClient) SearchCustomers(ctx context.Context, text string, branchID *uint, limit int) ([]CustomerDocument, error) {
	query := map[string]interface{}{
		"size":  limit,
		"query": customerQuery(text, branchID),
	}

	var buf strings.Builder
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(strings.NewReader(buf.String())),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch error: %s", res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	results := make([]CustomerDocument, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		results = append(results, hit.Source)
	}

	return results, nil
}

func customerQuery(text string, branchID *uint) map[string]interface{} {
	boolQuery := map[string]interface{}{
		"must": []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":     text,
					"fields":    []string{"name^3", "phone^2", "email", "notes"},
					"fuzziness": "AUTO",
				},
			},
		},
	}
	if branchID != nil {
		boolQuery["filter"] = []interface{}{
			map[string]interface{}{"term": map[string]interface{}{"branch_id": *branchID}},
		}
	}
	return map[string]interface{}{"bool": boolQuery}
}

func (e *elasticsearchClient) DeleteCustomer(ctx context.Context, id uint) error {
	req := esapi.DeleteRequest{
		Index:      e.index,
		DocumentID: fmt.Sprintf("%d", id),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, e.client)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("Elasticsearch error: %s", res.String())
	}

	return nil
}
