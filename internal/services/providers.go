package services

import (
	"context"

	"mosaic/internal/models"
	"mosaic/internal/providers"
)

// UnderstandingProvider is the capability surface of the vision/text
// understanding model. Implemented by providers.Understanding; narrowed to
// an interface so pipeline services can be tested with fakes.
type UnderstandingProvider interface {
	AnalyzeImage(ctx context.Context, imageURL string) (*models.ImageInsight, error)
	AnalyzeText(ctx context.Context, content string, maxChars int) (string, error)
	JudgeIntent(ctx context.Context, content, visualContext string, historyKeywords []string) (*models.IntentJudgment, error)
	ClassifyResults(ctx context.Context, resultsSummary, intentSummary string, count int) ([]providers.RankingEntry, error)
	GenerateArticle(ctx context.Context, rec *models.Recommendation, searchResults []models.SearchResult) (string, error)
}

// SearchProvider returns ranked snippets for a query
type SearchProvider interface {
	Query(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error)
}

// FetchProvider converts a URL into normalized text
type FetchProvider interface {
	FetchURL(ctx context.Context, urlStr string) (*models.PageContent, error)
}
