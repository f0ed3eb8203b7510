package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
	"github.com/custodia-labs/sppurge/internal/logger"
)

const (
	// DefaultBaseURL is the Graph v1.0 API root.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	// DefaultAuthorityURL is the Microsoft identity platform host.
	DefaultAuthorityURL = "https://login.microsoftonline.com"

	// Scope requests the app's configured Graph permissions.
	Scope = "https://graph.microsoft.com/.default"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the maximum number of retries for throttled requests.
	MaxRetries = 3

	// RetryDelay is the initial delay between retries without Retry-After.
	RetryDelay = time.Second

	// HeaderRetryAfter is the retry-after header (seconds).
	HeaderRetryAfter = "Retry-After"
)

var tracer = otel.Tracer("github.com/custodia-labs/sppurge/internal/adapters/driven/graph")

// Ensure Client implements the interface.
var _ driven.GraphClient = (*Client)(nil)

// Options tunes the client. Zero values select the defaults.
type Options struct {
	// BaseURL overrides DefaultBaseURL.
	BaseURL string

	// AuthorityURL overrides DefaultAuthorityURL.
	AuthorityURL string

	// HTTPClient is the underlying client used for token and API calls.
	HTTPClient *http.Client

	// RateLimit overrides DefaultRateLimit.
	RateLimit RateLimitConfig

	// Metrics records response status codes and latencies when set.
	Metrics driven.Metrics
}

// Client is a Microsoft Graph client scoped to one SharePoint site.
type Client struct {
	config  domain.SharePointConfig
	baseURL string
	tokens  oauth2.TokenSource
	http    *http.Client
	limiter *RateLimiter
	metrics driven.Metrics
}

// NewClient creates a Graph client for the configured app registration and site.
// No request is made until a method is called.
func NewClient(config domain.SharePointConfig, opts Options) *Client {
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: DefaultTimeout}
	}
	authority := opts.AuthorityURL
	if authority == "" {
		authority = DefaultAuthorityURL
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	creds := &clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     strings.TrimSuffix(authority, "/") + "/" + url.PathEscape(config.TenantID) + "/oauth2/v2.0/token",
		Scopes:       []string{Scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	// The token source keeps this context for refreshes; it only carries the HTTP client.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	tokens := creds.TokenSource(ctx)
	tc := oauth2.NewClient(ctx, tokens)
	tc.Timeout = DefaultTimeout

	return &Client{
		config:  config,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tokens:  tokens,
		http:    tc,
		limiter: NewRateLimiter(opts.RateLimit),
		metrics: opts.Metrics,
	}
}

// AcquireToken obtains (or reuses) a client-credentials access token.
func (c *Client) AcquireToken(ctx context.Context) error {
	_, span := tracer.Start(ctx, "graph.token")
	defer span.End()

	if _, err := c.tokens.Token(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token request failed")
		return fmt.Errorf("%w: %w", domain.ErrAuthFailed, err)
	}
	return nil
}

// ResolveSite looks up the configured site, or the tenant root site when no
// site name is set.
func (c *Client) ResolveSite(ctx context.Context) (domain.Site, error) {
	site := domain.Site{Host: c.config.SiteDomain}
	resource := "/sites/" + c.config.SiteDomain
	if !c.config.IsRootSite() {
		site.Path = "/sites/" + strings.Trim(c.config.SiteName, "/")
		resource += ":" + escapeSegments(site.Path)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.get(ctx, resource, &resp); err != nil {
		return domain.Site{}, fmt.Errorf("%w: %w", domain.ErrSiteUnresolved, err)
	}
	if resp.ID == "" {
		return domain.Site{}, fmt.Errorf("%w: empty site id", domain.ErrSiteUnresolved)
	}
	site.ID = resp.ID
	logger.Debug("resolved site %s%s to %s", site.Host, site.Path, site.ID)
	return site, nil
}

// DefaultDriveID returns the ID of the site's default document library.
func (c *Client) DefaultDriveID(ctx context.Context, siteID string) (string, error) {
	var resp driveResource
	if err := c.get(ctx, "/sites/"+siteID+"/drive", &resp); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrDriveUnresolved, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: empty drive id", domain.ErrDriveUnresolved)
	}
	return resp.ID, nil
}

// DriveIDByName returns the ID of the document library named name.
func (c *Client) DriveIDByName(ctx context.Context, siteID, name string) (string, error) {
	drives, err := collect[driveResource](ctx, c, "/sites/"+siteID+"/drives?$select=id,name")
	if err != nil {
		return "", fmt.Errorf("list drives: %w", err)
	}
	for _, d := range drives {
		if strings.EqualFold(d.Name, name) {
			return d.ID, nil
		}
	}
	return "", fmt.Errorf("drive %q: %w", name, domain.ErrNotFound)
}

// GetItem fetches a single drive item.
func (c *Client) GetItem(ctx context.Context, resource string) (*domain.DriveItem, error) {
	var resp itemResource
	if err := c.get(ctx, resource, &resp); err != nil {
		return nil, err
	}
	item := resp.toDomain()
	return &item, nil
}

// ListChildren returns every child of a folder, following @odata.nextLink.
func (c *Client) ListChildren(ctx context.Context, resource string) ([]domain.DriveItem, error) {
	items, err := collect[itemResource](ctx, c, resource)
	if err != nil {
		return nil, err
	}
	out := make([]domain.DriveItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.toDomain())
	}
	return out, nil
}

// page is one page of a Graph collection.
type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// collect reads every page of a collection.
func collect[T any](ctx context.Context, c *Client, resource string) ([]T, error) {
	var all []T
	next := c.baseURL + resource
	for next != "" {
		var p page[T]
		if err := c.do(ctx, resource, next, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Value...)
		next = p.NextLink
	}
	return all, nil
}

func (c *Client) get(ctx context.Context, resource string, out any) error {
	return c.do(ctx, resource, c.baseURL+resource, out)
}

// do issues a GET and decodes a 200 response into out. Throttled responses
// are retried up to MaxRetries times.
func (c *Client) do(ctx context.Context, resource, rawURL string, out any) error {
	ctx, span := tracer.Start(ctx, "graph.get")
	defer span.End()
	span.SetAttributes(attribute.String("graph.resource", resource))

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
		if err != nil {
			return fmt.Errorf("graph %s: %w", resource, err)
		}
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "request failed")
			return c.wrapTransportError(resource, err)
		}
		c.observe(resp.StatusCode, time.Since(start))
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

		if throttled(resp.StatusCode) && attempt < MaxRetries {
			wait := retryAfter(resp, attempt)
			drain(resp)
			logger.Debug("graph %s throttled (%d), retrying in %s", resource, resp.StatusCode, wait)
			c.limiter.Backoff(wait)
			continue
		}

		err = decode(resp, rawURL, out)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}

func (c *Client) observe(status int, d time.Duration) {
	if c.metrics != nil {
		c.metrics.ObserveGraphRequest(status, d)
	}
}

// wrapTransportError marks token failures as authentication errors.
func (c *Client) wrapTransportError(resource string, err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		return fmt.Errorf("graph %s: %w: %w", resource, domain.ErrAuthFailed, err)
	}
	return fmt.Errorf("graph %s: %w", resource, err)
}

func decode(resp *http.Response, rawURL string, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{StatusCode: resp.StatusCode, URL: rawURL, Message: http.StatusText(resp.StatusCode)}
		var eb errorBody
		if json.Unmarshal(body, &eb) == nil && eb.Error.Message != "" {
			apiErr.Code = eb.Error.Code
			apiErr.Message = eb.Error.Message
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

func throttled(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// retryAfter reads Retry-After in seconds, falling back to exponential backoff.
func retryAfter(resp *http.Response, attempt int) time.Duration {
	if v := resp.Header.Get(HeaderRetryAfter); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return RetryDelay << attempt
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// escapeSegments path-escapes each segment of p, keeping the slashes.
func escapeSegments(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
