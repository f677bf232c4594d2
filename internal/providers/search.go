package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	cache "github.com/patrickmn/go-cache"

	"mosaic/internal/errdefs"
	"mosaic/internal/models"
)

const (
	tavilyEndpoint = "https://api.tavily.com/search"
	serperEndpoint = "https://google.serper.dev/search"

	searchTimeout  = 60 * time.Second
	searchCacheTTL = 15 * time.Minute

	// Serper returns no relevance score; use a fixed default
	serperDefaultScore = 0.7
)

// Search queries a web-search provider (Tavily or Serper) and maps results
// into the common SearchResult shape. Recent queries are cached to spare
// provider quota during re-ranking bursts.
type Search struct {
	provider     string
	tavilyAPIKey string
	serperAPIKey string
	httpClient   *http.Client
	resultCache  *cache.Cache
}

// NewSearch creates a search client for the configured provider
func NewSearch(provider, tavilyAPIKey, serperAPIKey string) *Search {
	log.Printf("🔍 [SEARCH] Initialized with provider: %s", provider)
	return &Search{
		provider:     provider,
		tavilyAPIKey: tavilyAPIKey,
		serperAPIKey: serperAPIKey,
		httpClient:   &http.Client{Timeout: searchTimeout},
		resultCache:  cache.New(searchCacheTTL, 5*time.Minute),
	}
}

// Query runs one web search capped at maxResults
func (s *Search) Query(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	cacheKey := fmt.Sprintf("%s|%d", query, maxResults)
	if cached, found := s.resultCache.Get(cacheKey); found {
		log.Printf("✅ [SEARCH] Cache hit for query: %s", query)
		return cached.([]models.SearchResult), nil
	}

	var (
		results []models.SearchResult
		err     error
	)
	switch s.provider {
	case "tavily":
		results, err = s.searchTavily(ctx, query, maxResults)
	case "serper":
		results, err = s.searchSerper(ctx, query, maxResults)
	default:
		return nil, fmt.Errorf("unsupported search provider: %s", s.provider)
	}
	if err != nil {
		return nil, err
	}

	s.resultCache.Set(cacheKey, results, cache.DefaultExpiration)
	return results, nil
}

func (s *Search) searchTavily(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	if s.tavilyAPIKey == "" {
		return nil, fmt.Errorf("tavily API key not configured")
	}

	payload := map[string]interface{}{
		"api_key":             s.tavilyAPIKey,
		"query":               query,
		"search_depth":        "advanced",
		"max_results":         maxResults,
		"include_answer":      true,
		"include_raw_content": false,
	}

	var parsed struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}
	if err := s.post(ctx, tavilyEndpoint, nil, payload, &parsed); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		score := item.Score
		if score == 0 {
			score = 0.5
		}
		results = append(results, models.SearchResult{
			Title:   item.Title,
			URL:     item.URL,
			Content: item.Content,
			Score:   score,
			Source:  "tavily",
		})
	}

	log.Printf("🔍 [SEARCH] Tavily returned %d results for %q", len(results), query)
	return results, nil
}

func (s *Search) searchSerper(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	if s.serperAPIKey == "" {
		return nil, fmt.Errorf("serper API key not configured")
	}

	payload := map[string]interface{}{
		"q":   query,
		"num": maxResults,
	}
	headers := map[string]string{"X-API-KEY": s.serperAPIKey}

	var parsed struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := s.post(ctx, serperEndpoint, headers, payload, &parsed); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(parsed.Organic))
	for _, item := range parsed.Organic {
		results = append(results, models.SearchResult{
			Title:   item.Title,
			URL:     item.Link,
			Content: item.Snippet,
			Score:   serperDefaultScore,
			Source:  "serper",
		})
	}

	log.Printf("🔍 [SEARCH] Serper returned %d results for %q", len(results), query)
	return results, nil
}

func (s *Search) post(ctx context.Context, endpoint string, headers map[string]string, payload, out interface{}) error {
	requestJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(requestJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &errdefs.ProviderError{Provider: "search", Op: "query", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errdefs.ProviderError{Provider: "search", Op: "query", Cause: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &errdefs.ProviderError{
			Provider:   "search",
			Op:         "query",
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%s", string(body)),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &errdefs.ProviderError{Provider: "search", Op: "query", Cause: err}
	}
	return nil
}
