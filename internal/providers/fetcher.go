package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/markusmobius/go-trafilatura"
	cache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"mosaic/internal/errdefs"
	"mosaic/internal/models"
)

const (
	fetcherUserAgent   = "Mosaic-Bot/1.0 (+https://mosaic.example.com/bot)"
	fetcherTimeout     = 60 * time.Second
	fetcherMaxBodySize = 10 * 1024 * 1024 // 10MB
	fetcherRate        = 5.0              // requests per second across all fetches
)

// Fetcher converts a URL into normalized text using static fetching and
// trafilatura main-content extraction.
type Fetcher struct {
	httpClient   *http.Client
	contentCache *cache.Cache
	limiter      *rate.Limiter
}

// NewFetcher creates a fetcher with a one-hour content cache
func NewFetcher() *Fetcher {
	return &Fetcher{
		httpClient:   &http.Client{Timeout: fetcherTimeout},
		contentCache: cache.New(1*time.Hour, 10*time.Minute),
		limiter:      rate.NewLimiter(rate.Limit(fetcherRate), 1),
	}
}

// FetchURL fetches a page and returns its title and normalized text.
// The title is the extractor's metadata title when present, else the first
// non-empty line of the content with markdown markers stripped.
func (f *Fetcher) FetchURL(ctx context.Context, urlStr string) (*models.PageContent, error) {
	if err := validateFetchURL(urlStr); err != nil {
		return nil, err
	}

	if cached, found := f.contentCache.Get(urlStr); found {
		log.Printf("✅ [FETCHER] Cache hit for %s", urlStr)
		page := cached.(models.PageContent)
		return &page, nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", fetcherUserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &errdefs.ProviderError{Provider: "fetcher", Op: "get", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &errdefs.ProviderError{
			Provider:   "fetcher",
			Op:         "get",
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if !isFetchableContentType(contentType) {
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetcherMaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	parsedURL, _ := url.Parse(urlStr)
	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{
		OriginalURL: parsedURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract content: %w", err)
	}
	if result == nil || result.ContentText == "" {
		return nil, fmt.Errorf("no content extracted from page")
	}

	title := result.Metadata.Title
	if title == "" {
		title = firstLineTitle(result.ContentText)
	}

	page := models.PageContent{
		Title:   title,
		Content: result.ContentText,
		URL:     urlStr,
	}
	f.contentCache.Set(urlStr, page, cache.DefaultExpiration)

	log.Printf("✅ [FETCHER] Fetched %s (latency: %dms, length: %d chars)",
		urlStr, time.Since(start).Milliseconds(), len(page.Content))

	return &page, nil
}

// validateFetchURL allows only http/https targets
func validateFetchURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

func isFetchableContentType(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") ||
		strings.Contains(ct, "application/xhtml") ||
		strings.Contains(ct, "text/plain")
}

// firstLineTitle derives a title from the first non-empty content line,
// stripping heading markers.
func firstLineTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "#", ""))
		if line != "" {
			return line
		}
	}
	return "Untitled"
}
