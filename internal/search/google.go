package search

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

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultGoogleBaseURL is the Custom Search JSON API endpoint.
const DefaultGoogleBaseURL = "https://www.googleapis.com/customsearch/v1"

// ErrMissingCredentials is returned when the API key or engine ID is empty.
var ErrMissingCredentials = errors.New("search API key and engine ID are required")

// GoogleConfig configures the Custom Search client.
type GoogleConfig struct {
	APIKey   string
	EngineID string

	// BaseURL overrides DefaultGoogleBaseURL (tests, proxies).
	BaseURL string

	// Timeout bounds a single request. Zero means 10s.
	Timeout time.Duration

	// RateLimit is requests per second; zero means 1.
	RateLimit float64
	Burst     int
}

// GoogleSearcher queries the Google Custom Search JSON API.
type GoogleSearcher struct {
	apiKey   string
	engineID string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewGoogleSearcher validates cfg and creates a client.
func NewGoogleSearcher(cfg GoogleConfig, logger *zap.Logger) (*GoogleSearcher, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.EngineID) == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGoogleBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GoogleSearcher{
		apiKey:   cfg.APIKey,
		engineID: cfg.EngineID,
		baseURL:  cfg.BaseURL,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:   logger,
	}, nil
}

type googleItem struct {
	Title       string `json:"title"`
	Snippet     string `json:"snippet"`
	HTMLSnippet string `json:"htmlSnippet"`
	Link        string `json:"link"`
	DisplayLink string `json:"displayLink"`
}

type googleResponse struct {
	Items []googleItem `json:"items"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Search issues one request for up to min(maxResults, 10) results.
func (g *GoogleSearcher) Search(ctx context.Context, company string, maxResults int) ([]Result, error) {
	if maxResults <= 0 || maxResults > MaxResultsPerRequest {
		maxResults = MaxResultsPerRequest
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("key", g.apiKey)
	params.Set("cx", g.engineID)
	params.Set("q", Query(company))
	params.Set("num", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	var parsed googleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode search response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("search API returned %d: %s", resp.StatusCode, msg)
	}

	results := make([]Result, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		snippet := cleanText(item.Snippet)
		if snippet == "" && item.HTMLSnippet != "" {
			snippet = htmlToText(item.HTMLSnippet)
		}
		results = append(results, Result{
			Title:       cleanText(item.Title),
			Snippet:     snippet,
			Link:        item.Link,
			DisplayLink: item.DisplayLink,
		})
	}

	g.logger.Debug("search completed",
		zap.String("company", company),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)))

	return results, nil
}

// htmlToText strips markup from an HTML fragment.
func htmlToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return cleanText(fragment)
	}
	return cleanText(doc.Text())
}

// cleanText collapses whitespace, including the line breaks the API inserts.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var _ Searcher = (*GoogleSearcher)(nil)
