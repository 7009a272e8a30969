// Package search is the optional web search tool available to the pipeline
// agents. It talks to the Serper (google.serper.dev) HTTP API.
package search

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/findoc/internal/cache"
	"golang.org/x/crypto/blake2b"
)

// Sentinel errors for search failures.
var (
	ErrSearchUnreachable = errors.New("search unreachable")
	ErrSearchQueryError  = errors.New("search query error")
	ErrSearchTimeout     = errors.New("search timeout")
)

const (
	defaultResultCount = 5
	resultCacheTTL     = time.Hour
)

// Client is the interface for running web searches.
type Client interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// HTTPClient implements Client using Serper's HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cache   cache.Cache
}

// NewHTTPClient creates a new search client. c may be nil to disable result caching.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, c cache.Cache) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		cache:   c,
	}
}

func (c *HTTPClient) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}

	key := cache.SearchResultKey(queryHash(query))
	if cached, ok := c.fromCache(ctx, key); ok {
		return cached, nil
	}

	body, err := json.Marshal(serperRequest{Q: query, Num: defaultResultCount})
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("X-API-KEY", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrSearchQueryError, resp.StatusCode)
	}

	var sr serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	results := sr.results()
	c.toCache(ctx, key, results)
	return results, nil
}

func (c *HTTPClient) fromCache(ctx context.Context, key string) ([]Result, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, found, err := c.cache.Get(ctx, key)
	if err != nil || !found {
		return nil, false
	}
	var results []Result
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false
	}
	return results, true
}

func (c *HTTPClient) toCache(ctx context.Context, key string, results []Result) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, resultCacheTTL); err != nil {
		slog.Debug("search result cache write failed", "error", err)
	}
}

// Format renders results as a plain-text block for a prompt.
func Format(results []Result) string {
	if len(results) == 0 {
		return "No web results found."
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s (%s)\n   %s\n", i+1, r.Title, r.Link, r.Snippet)
	}
	return strings.TrimRight(b.String(), "\n")
}

func queryHash(query string) string {
	sum := blake2b.Sum256([]byte(strings.ToLower(query)))
	return hex.EncodeToString(sum[:16])
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrSearchTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrSearchTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrSearchUnreachable, err)
}

// --- Serper wire types ---

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type serperResponse struct {
	AnswerBox *struct {
		Title   string `json:"title"`
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"answerBox"`
	Organic []Result `json:"organic"`
}

func (r serperResponse) results() []Result {
	results := make([]Result, 0, len(r.Organic)+1)
	if ab := r.AnswerBox; ab != nil {
		snippet := ab.Answer
		if snippet == "" {
			snippet = ab.Snippet
		}
		if snippet != "" {
			results = append(results, Result{Title: ab.Title, Link: ab.Link, Snippet: snippet})
		}
	}
	results = append(results, r.Organic...)
	return results
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
