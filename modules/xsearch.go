package modules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"coinpulse/pkg/network"
)

const recentSearchEndpoint = "/2/tweets/search/recent"

// DefaultTweetFields are requested when a SearchRequest names no fields.
var DefaultTweetFields = []string{"created_at", "public_metrics"}

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s status %d: %s", e.Provider, e.Code, e.Body)
}

// newStatusError reads a truncated body so provider error details reach the logs.
func newStatusError(provider string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{Provider: provider, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// classifySearchError retries transport failures, 429 and 5xx.
func classifySearchError(err error) network.Action {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return network.Stop
	}
	var se *StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusTooManyRequests || se.Code >= 500 {
			return network.Retry
		}
		return network.Stop
	}
	var de *decodeError
	if errors.As(err, &de) {
		return network.Stop
	}
	return network.Retry
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode search response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// recent-search wire format
type searchResponse struct {
	Data []struct {
		ID            string    `json:"id"`
		Text          string    `json:"text"`
		CreatedAt     time.Time `json:"created_at"`
		PublicMetrics *struct {
			LikeCount    int `json:"like_count"`
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Meta struct {
		NextToken   string `json:"next_token"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

func (r searchResponse) page() PageResult {
	out := PageResult{NextCursor: r.Meta.NextToken, Posts: make([]Post, 0, len(r.Data))}
	for _, d := range r.Data {
		p := Post{ID: d.ID, Text: d.Text, CreatedAt: d.CreatedAt}
		if m := d.PublicMetrics; m != nil {
			p.Engagement = Engagement{Likes: m.LikeCount, Shares: m.RetweetCount, Replies: m.ReplyCount}
		}
		out.Posts = append(out.Posts, p)
	}
	return out
}

// decodeSearchResponse accepts the provider JSON either bare or wrapped in
// {"output": ...}, where output may itself be a JSON-encoded string.
func decodeSearchResponse(body []byte) (PageResult, error) {
	var wrapper struct {
		Output json.RawMessage `json:"output"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Output) > 0 && string(wrapper.Output) != "null" {
		body = wrapper.Output
		var s string
		if json.Unmarshal(body, &s) == nil {
			body = []byte(s)
		}
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return PageResult{}, &decodeError{err: err}
	}
	return resp.page(), nil
}

func searchParams(req SearchRequest) map[string]string {
	fields := req.Fields
	if len(fields) == 0 {
		fields = DefaultTweetFields
	}
	params := map[string]string{
		"query":        req.Query,
		"start_time":   req.Since.UTC().Truncate(time.Second).Format(time.RFC3339),
		"max_results":  strconv.Itoa(req.PageSize),
		"tweet.fields": strings.Join(fields, ","),
	}
	if req.Cursor != "" {
		params["next_token"] = req.Cursor
	}
	return params
}

// XClient calls the X API v2 recent-search endpoint directly with a bearer token.
type XClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      network.RetryPolicy
}

func NewXClient(baseURL, bearerToken string, httpClient *http.Client) *XClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &XClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      bearerToken,
		httpClient: httpClient,
		retry:      network.RetryPolicy{MaxAttempts: 1},
	}
}

// WithRetry enables bounded retries of transient failures.
func (c *XClient) WithRetry(p network.RetryPolicy) *XClient {
	c.retry = p
	return c
}

func (c *XClient) Search(ctx context.Context, req SearchRequest) (PageResult, error) {
	q := url.Values{}
	for k, v := range searchParams(req) {
		q.Set(k, v)
	}
	endpoint := c.baseURL + recentSearchEndpoint + "?" + q.Encode()

	return network.Do(ctx, c.retry, classifySearchError, func() (PageResult, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return PageResult{}, fmt.Errorf("build search request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
		httpReq.Header.Set("Accept", "application/json")
		return doSearch(c.httpClient, httpReq, "x")
	})
}

func doSearch(client *http.Client, req *http.Request, provider string) (PageResult, error) {
	resp, err := client.Do(req)
	if err != nil {
		return PageResult{}, fmt.Errorf("%s http err: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return PageResult{}, newStatusError(provider, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PageResult{}, fmt.Errorf("%s read body: %w", provider, err)
	}
	return decodeSearchResponse(body)
}

// IntegrationClient brokers the search through the workspace integration proxy,
// which holds the provider credentials for the workspace.
type IntegrationClient struct {
	baseURL       string
	apiKey        string
	integrationID string
	httpClient    *http.Client
	retry         network.RetryPolicy
}

func NewIntegrationClient(baseURL, apiKey, integrationID string, httpClient *http.Client) *IntegrationClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &IntegrationClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        apiKey,
		integrationID: integrationID,
		httpClient:    httpClient,
		retry:         network.RetryPolicy{MaxAttempts: 1},
	}
}

// WithRetry enables bounded retries of transient failures.
func (c *IntegrationClient) WithRetry(p network.RetryPolicy) *IntegrationClient {
	c.retry = p
	return c
}

type integrationRequest struct {
	Endpoint string            `json:"endpoint"`
	Method   string            `json:"method"`
	Params   map[string]string `json:"params"`
}

func (c *IntegrationClient) Search(ctx context.Context, req SearchRequest) (PageResult, error) {
	if req.WorkspaceID == "" {
		return PageResult{}, errors.New("integration search requires a workspace id")
	}

	payload, err := json.Marshal(integrationRequest{
		Endpoint: recentSearchEndpoint,
		Method:   http.MethodGet,
		Params:   searchParams(req),
	})
	if err != nil {
		return PageResult{}, fmt.Errorf("encode integration request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/workspaces/%s/integration/%s/proxy",
		c.baseURL, url.PathEscape(req.WorkspaceID), url.PathEscape(c.integrationID))

	return network.Do(ctx, c.retry, classifySearchError, func() (PageResult, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return PageResult{}, fmt.Errorf("build integration request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("x-openserv-key", c.apiKey)
		return doSearch(c.httpClient, httpReq, "integration")
	})
}

// retryLogger reports retry attempts of a search collaborator.
func retryLogger(provider string) func(int, error, time.Duration) {
	return func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Search request failed, retrying",
			"component", "collector",
			"provider", provider,
			"attempt", attempt,
			"backoff", backoff,
			"error", err)
	}
}

// SearchRetryPolicy builds the retry policy for search collaborators. One
// attempt means fail-fast.
func SearchRetryPolicy(provider string, attempts int) network.RetryPolicy {
	return network.RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		OnRetry:        retryLogger(provider),
	}
}
