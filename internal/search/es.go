package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/grailsmarket/backend-sub002/internal/domain"
)

const scrollKeepAlive = 2 * time.Minute

// Config holds Elasticsearch connection configuration
type Config struct {
	Addresses      []string
	Username       string
	Password       string
	IndexName      string
	RequestTimeout time.Duration
	ScrollPageSize int
}

type esIndex struct {
	client *elasticsearch.Client
	index  string
	config Config
}

// NewESIndex creates a new Elasticsearch-backed index. It pings the cluster so
// an unreachable index fails at startup rather than on the first write.
func NewESIndex(ctx context.Context, cfg Config) (Index, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	res, err := client.Ping(client.Ping.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to ping elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch ping returned %s", res.Status())
	}

	if cfg.ScrollPageSize == 0 {
		cfg.ScrollPageSize = 500
	}

	return &esIndex{client: client, index: cfg.IndexName, config: cfg}, nil
}

// Upsert writes one document keyed by entity id
func (e *esIndex) Upsert(ctx context.Context, entityID uint64, doc *Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	res, err := e.client.Index(
		e.index,
		bytes.NewReader(body),
		e.client.Index.WithDocumentID(docID(entityID)),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index document %d: %w", entityID, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index request for document %d returned %s", entityID, res.Status())
	}

	return nil
}

// Delete removes one document; absent documents are tolerated
func (e *esIndex) Delete(ctx context.Context, entityID uint64) error {
	res, err := e.client.Delete(
		e.index,
		docID(entityID),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete document %d: %w", entityID, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete request for document %d returned %s", entityID, res.Status())
	}

	return nil
}

// Get retrieves one document
func (e *esIndex) Get(ctx context.Context, entityID uint64) (*Document, error) {
	res, err := e.client.Get(
		e.index,
		docID(entityID),
		e.client.Get.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get document %d: %w", entityID, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, domain.ErrDocumentNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("get request for document %d returned %s", entityID, res.Status())
	}

	var envelope struct {
		Source Document `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode document %d: %w", entityID, err)
	}

	return &envelope.Source, nil
}

// BulkUpsert writes many documents through the bulk indexer. Individual
// document failures are captured with the offending id and reported in the
// result instead of failing the call.
func (e *esIndex) BulkUpsert(ctx context.Context, docs map[uint64]*Document) (*BulkResult, error) {
	if len(docs) == 0 {
		return &BulkResult{}, nil
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:  e.client,
		Index:   e.index,
		Timeout: e.config.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	var (
		mu     sync.Mutex
		result BulkResult
	)

	for entityID, doc := range docs {
		body, err := json.Marshal(doc)
		if err != nil {
			result.Errors = append(result.Errors, BulkItemError{
				EntityID: entityID,
				Reason:   fmt.Sprintf("marshal: %v", err),
			})
			continue
		}

		id := entityID
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: docID(id),
			Body:       bytes.NewReader(body),
			OnSuccess: func(_ context.Context, _ esutil.BulkIndexerItem, _ esutil.BulkIndexerResponseItem) {
				mu.Lock()
				result.Written++
				mu.Unlock()
			},
			OnFailure: func(_ context.Context, _ esutil.BulkIndexerItem, resp esutil.BulkIndexerResponseItem, err error) {
				reason := resp.Error.Reason
				if err != nil {
					reason = err.Error()
				}
				mu.Lock()
				result.Errors = append(result.Errors, BulkItemError{EntityID: id, Reason: reason})
				mu.Unlock()
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to enqueue document %d: %w", entityID, err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return nil, fmt.Errorf("failed to flush bulk indexer: %w", err)
	}

	return &result, nil
}

// Scroll iterates every document matching the filter using the scroll API
func (e *esIndex) Scroll(ctx context.Context, filter Filter, fn ScrollFunc) error {
	query, err := buildQuery(filter)
	if err != nil {
		return err
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithBody(strings.NewReader(query)),
		e.client.Search.WithSize(e.config.ScrollPageSize),
		e.client.Search.WithScroll(scrollKeepAlive),
	)
	if err != nil {
		return fmt.Errorf("failed to start scroll: %w", err)
	}

	page, scrollID, err := decodeScrollPage(res)
	if err != nil {
		return err
	}
	defer e.clearScroll(scrollID)

	for len(page) > 0 {
		for _, hit := range page {
			if err := fn(hit.entityID, hit.doc); err != nil {
				return err
			}
		}

		res, err := e.client.Scroll(
			e.client.Scroll.WithContext(ctx),
			e.client.Scroll.WithScrollID(scrollID),
			e.client.Scroll.WithScroll(scrollKeepAlive),
		)
		if err != nil {
			return fmt.Errorf("failed to continue scroll: %w", err)
		}

		page, scrollID, err = decodeScrollPage(res)
		if err != nil {
			return err
		}
	}

	return nil
}

// SetRefreshInterval adjusts the index refresh interval
func (e *esIndex) SetRefreshInterval(ctx context.Context, interval string) error {
	body := fmt.Sprintf(`{"index":{"refresh_interval":%q}}`, interval)

	res, err := e.client.Indices.PutSettings(
		strings.NewReader(body),
		e.client.Indices.PutSettings.WithIndex(e.index),
		e.client.Indices.PutSettings.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to set refresh interval: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("put settings returned %s", res.Status())
	}

	return nil
}

// Refresh forces an immediate refresh
func (e *esIndex) Refresh(ctx context.Context) error {
	res, err := e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithIndex(e.index),
		e.client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to refresh index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("refresh returned %s", res.Status())
	}

	return nil
}

func (e *esIndex) clearScroll(scrollID string) {
	if scrollID == "" {
		return
	}
	res, err := e.client.ClearScroll(e.client.ClearScroll.WithScrollID(scrollID))
	if err != nil {
		return
	}
	res.Body.Close()
}

type scrollHit struct {
	entityID uint64
	doc      *Document
}

func decodeScrollPage(res *esapi.Response) ([]scrollHit, string, error) {
	defer res.Body.Close()

	if res.IsError() {
		return nil, "", fmt.Errorf("scroll request returned %s", res.Status())
	}

	var envelope struct {
		ScrollID string `json:"_scroll_id"`
		Hits     struct {
			Hits []struct {
				ID     string   `json:"_id"`
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, "", fmt.Errorf("failed to decode scroll page: %w", err)
	}

	hits := make([]scrollHit, 0, len(envelope.Hits.Hits))
	for i := range envelope.Hits.Hits {
		entityID, err := strconv.ParseUint(envelope.Hits.Hits[i].ID, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("unexpected document id %q: %w", envelope.Hits.Hits[i].ID, err)
		}
		hits = append(hits, scrollHit{entityID: entityID, doc: &envelope.Hits.Hits[i].Source})
	}

	return hits, envelope.ScrollID, nil
}

func buildQuery(filter Filter) (string, error) {
	if filter.Status == nil {
		return `{"query":{"match_all":{}}}`, nil
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"status": *filter.Status,
			},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal query: %w", err)
	}
	return string(data), nil
}

func docID(entityID uint64) string {
	return strconv.FormatUint(entityID, 10)
}
