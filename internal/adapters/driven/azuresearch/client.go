package azuresearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
	"github.com/custodia-labs/sppurge/internal/logger"
)

const (
	// APIVersion is the Azure AI Search data-plane API version.
	APIVersion = "2023-11-01"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// HeaderAPIKey carries the admin key.
	HeaderAPIKey = "api-key"
)

var tracer = otel.Tracer("github.com/custodia-labs/sppurge/internal/adapters/driven/azuresearch")

// Ensure Client implements the interface.
var _ driven.SearchIndex = (*Client)(nil)

// Client is an Azure AI Search data-plane client.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewClient creates a client for the service at endpoint.
// httpClient may be nil.
func NewClient(endpoint, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     httpClient,
	}
}

// searchRequest is the POST body of docs/search.
type searchRequest struct {
	Search string `json:"search"`
	Filter string `json:"filter,omitempty"`
	Select string `json:"select,omitempty"`
	Top    int    `json:"top,omitempty"`
	Skip   int    `json:"skip,omitempty"`
}

type searchResponse struct {
	Value          []map[string]any `json:"value"`
	NextPageParams *searchRequest   `json:"@search.nextPageParameters"`
}

// Search runs query against index. When the service pages a large result,
// the continuation parameters are followed until the requested top is reached.
func (c *Client) Search(ctx context.Context, index string, query domain.SearchQuery) ([]domain.IndexDocument, error) {
	ctx, span := tracer.Start(ctx, "azuresearch.search")
	defer span.End()
	span.SetAttributes(
		attribute.String("index", index),
		attribute.String("filter", query.Filter),
		attribute.Int("top", query.Top),
	)

	req := &searchRequest{
		Search: query.Text,
		Filter: query.Filter,
		Top:    query.Top,
	}
	if req.Search == "" {
		req.Search = "*"
	}
	if len(query.Select) > 0 && !(len(query.Select) == 1 && query.Select[0] == "*") {
		req.Select = strings.Join(query.Select, ",")
	}

	var docs []domain.IndexDocument
	for req != nil {
		var resp searchResponse
		if err := c.post(ctx, index, "search", req, &resp); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "search failed")
			return nil, err
		}
		for _, raw := range resp.Value {
			docs = append(docs, document(raw))
		}
		req = resp.NextPageParams
	}
	span.SetAttributes(attribute.Int("documents", len(docs)))
	logger.Debug("search %q filter %q returned %d documents", query.Text, query.Filter, len(docs))
	return docs, nil
}

// document drops the service's @search.* annotations.
func document(raw map[string]any) domain.IndexDocument {
	doc := make(domain.IndexDocument, len(raw))
	for k, v := range raw {
		if strings.HasPrefix(k, "@search.") {
			continue
		}
		doc[k] = v
	}
	return doc
}

type indexResponse struct {
	Value []struct {
		Key          string `json:"key"`
		Status       bool   `json:"status"`
		ErrorMessage string `json:"errorMessage"`
		StatusCode   int    `json:"statusCode"`
	} `json:"value"`
}

// Delete removes documents by key in one indexing batch. A partially failed
// batch returns an *IndexingError naming the failed keys.
func (c *Client) Delete(ctx context.Context, index, keyField string, keys []string) error {
	ctx, span := tracer.Start(ctx, "azuresearch.delete")
	defer span.End()
	span.SetAttributes(attribute.String("index", index), attribute.Int("keys", len(keys)))

	if len(keys) == 0 {
		return nil
	}
	actions := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		actions = append(actions, map[string]string{"@search.action": "delete", keyField: k})
	}

	var resp indexResponse
	if err := c.post(ctx, index, "index", map[string]any{"value": actions}, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}

	failed := make(map[string]string)
	for _, r := range resp.Value {
		// Deleting an absent key succeeds with 200; anything else is a failure.
		if !r.Status {
			failed[r.Key] = fmt.Sprintf("%d %s", r.StatusCode, r.ErrorMessage)
		}
	}
	if len(failed) > 0 {
		err := &IndexingError{Failed: failed}
		span.RecordError(err)
		span.SetStatus(codes.Error, "partial failure")
		return err
	}
	return nil
}

func (c *Client) post(ctx context.Context, index, op string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	u := fmt.Sprintf("%s/indexes/%s/docs/%s?api-version=%s", c.endpoint, url.PathEscape(index), op, APIVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAPIKey, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, index, err)
	}
	defer resp.Body.Close()

	// 207 is returned by docs/index when some actions failed.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultiStatus {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(msg, resp.StatusCode), URL: u}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func errorMessage(body []byte, status int) string {
	var eb struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &eb) == nil && eb.Error.Message != "" {
		return eb.Error.Message
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return http.StatusText(status)
}
