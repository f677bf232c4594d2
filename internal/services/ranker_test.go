package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"mosaic/internal/errdefs"
	"mosaic/internal/models"
	"mosaic/internal/providers"
)

// fakeSearch returns canned results per query
type fakeSearch struct {
	results map[string][]models.SearchResult
	err     error
}

func (f *fakeSearch) Query(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

// fakeUnderstanding stubs the model with function fields; unset methods fail
type fakeUnderstanding struct {
	analyzeImage    func(ctx context.Context, imageURL string) (*models.ImageInsight, error)
	analyzeText     func(ctx context.Context, content string, maxChars int) (string, error)
	judgeIntent     func(ctx context.Context, content, visualContext string, historyKeywords []string) (*models.IntentJudgment, error)
	classifyResults func(ctx context.Context, resultsSummary, intentSummary string, count int) ([]providers.RankingEntry, error)
	generateArticle func(ctx context.Context, rec *models.Recommendation, searchResults []models.SearchResult) (string, error)
}

func (f *fakeUnderstanding) AnalyzeImage(ctx context.Context, imageURL string) (*models.ImageInsight, error) {
	if f.analyzeImage == nil {
		return nil, errors.New("AnalyzeImage not stubbed")
	}
	return f.analyzeImage(ctx, imageURL)
}

func (f *fakeUnderstanding) AnalyzeText(ctx context.Context, content string, maxChars int) (string, error) {
	if f.analyzeText == nil {
		return "", errors.New("AnalyzeText not stubbed")
	}
	return f.analyzeText(ctx, content, maxChars)
}

func (f *fakeUnderstanding) JudgeIntent(ctx context.Context, content, visualContext string, historyKeywords []string) (*models.IntentJudgment, error) {
	if f.judgeIntent == nil {
		return nil, errors.New("JudgeIntent not stubbed")
	}
	return f.judgeIntent(ctx, content, visualContext, historyKeywords)
}

func (f *fakeUnderstanding) ClassifyResults(ctx context.Context, resultsSummary, intentSummary string, count int) ([]providers.RankingEntry, error) {
	if f.classifyResults == nil {
		return nil, errors.New("ClassifyResults not stubbed")
	}
	return f.classifyResults(ctx, resultsSummary, intentSummary, count)
}

func (f *fakeUnderstanding) GenerateArticle(ctx context.Context, rec *models.Recommendation, searchResults []models.SearchResult) (string, error) {
	if f.generateArticle == nil {
		return "", errors.New("GenerateArticle not stubbed")
	}
	return f.generateArticle(ctx, rec, searchResults)
}

func searchResults(n int) []models.SearchResult {
	results := make([]models.SearchResult, n)
	for i := range results {
		results[i] = models.SearchResult{
			Title:   fmt.Sprintf("Result %d", i+1),
			URL:     fmt.Sprintf("https://example.com/%d", i+1),
			Content: fmt.Sprintf("Snippet %d", i+1),
			Score:   0.8,
			Source:  "test",
		}
	}
	return results
}

func TestRanker_NoQueryTerms(t *testing.T) {
	ranker := NewRanker(&fakeSearch{}, &fakeUnderstanding{})

	judgment := &models.IntentJudgment{PrimaryIntent: "explore"}
	_, err := ranker.Rank(context.Background(), judgment, nil, 10)
	if !errors.Is(err, errdefs.ErrNoQueryTerms) {
		t.Fatalf("expected ErrNoQueryTerms, got %v", err)
	}
}

func TestRanker_KeywordsStandInForQueries(t *testing.T) {
	search := &fakeSearch{results: map[string][]models.SearchResult{
		"go": searchResults(2),
	}}
	understanding := &fakeUnderstanding{
		classifyResults: func(ctx context.Context, resultsSummary, intentSummary string, count int) ([]providers.RankingEntry, error) {
			return []providers.RankingEntry{
				{Index: 1, TileType: "knowledge", RelevanceScore: 0.9},
			}, nil
		},
	}
	ranker := NewRanker(search, understanding)

	// No search queries; the first keywords are used instead
	judgment := &models.IntentJudgment{Keywords: []string{"go", "gardening", "jazz", "chess"}}
	outcome, err := ranker.Rank(context.Background(), judgment, nil, 10)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if outcome.Mode != RankModeRanked {
		t.Errorf("expected ranked mode, got %s", outcome.Mode)
	}
	if len(outcome.Recommendations) != 1 {
		t.Fatalf("expected 1 recommendation, got %d", len(outcome.Recommendations))
	}
}

func TestRanker_SearchFallback(t *testing.T) {
	// Search fails entirely; one synthetic tile per keyword, in order
	search := &fakeSearch{err: errors.New("search down")}
	ranker := NewRanker(search, &fakeUnderstanding{})

	judgment := &models.IntentJudgment{
		SearchQueries: []string{"a", "b"},
		Keywords:      []string{"vintage cameras", "film photography"},
	}
	outcome, err := ranker.Rank(context.Background(), judgment, nil, 10)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if outcome.Mode != RankModeSearchFallback {
		t.Fatalf("expected search fallback mode, got %s", outcome.Mode)
	}
	if len(outcome.Recommendations) != 2 {
		t.Fatalf("expected one tile per keyword, got %d", len(outcome.Recommendations))
	}
	for i, rec := range outcome.Recommendations {
		if rec.TileType != models.TileTypeFallback {
			t.Errorf("tile %d: expected fallback type, got %s", i, rec.TileType)
		}
		if rec.DisplayOrder != i {
			t.Errorf("tile %d: expected display order %d, got %d", i, i, rec.DisplayOrder)
		}
		if rec.RelevanceScore != 0.5 {
			t.Errorf("tile %d: expected neutral score, got %f", i, rec.RelevanceScore)
		}
	}
}

func TestRanker_ParseFallback(t *testing.T) {
	search := &fakeSearch{results: map[string][]models.SearchResult{
		"q": searchResults(4),
	}}
	understanding := &fakeUnderstanding{
		classifyResults: func(ctx context.Context, resultsSummary, intentSummary string, count int) ([]providers.RankingEntry, error) {
			return nil, &errdefs.ParseError{Provider: "llm", Raw: "not json"}
		},
	}
	ranker := NewRanker(search, understanding)

	judgment := &models.IntentJudgment{SearchQueries: []string{"q"}}
	outcome, err := ranker.Rank(context.Background(), judgment, nil, 3)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if outcome.Mode != RankModeParseFallback {
		t.Fatalf("expected parse fallback mode, got %s", outcome.Mode)
	}
	// Raw results in original order, capped at the requested count
	if len(outcome.Recommendations) != 3 {
		t.Fatalf("expected 3 recommendations, got %d", len(outcome.Recommendations))
	}
	for i, rec := range outcome.Recommendations {
		if rec.Title != fmt.Sprintf("Result %d", i+1) {
			t.Errorf("rec %d: expected original order, got title %q", i, rec.Title)
		}
	}
}

func TestRanker_ClassificationGuards(t *testing.T) {
	search := &fakeSearch{results: map[string][]models.SearchResult{
		"q": searchResults(3),
	}}
	understanding := &fakeUnderstanding{
		classifyResults: func(ctx context.Context, resultsSummary, intentSummary string, count int) ([]providers.RankingEntry, error) {
			return []providers.RankingEntry{
				{Index: 99, TileType: "knowledge", RelevanceScore: 0.9}, // out of range: dropped
				{Index: 1, TileType: "alien", RelevanceScore: 1.5},      // invalid type and score: coerced
				{Index: 2, TileType: "product", RelevanceScore: 0.7},
			}, nil
		},
	}
	ranker := NewRanker(search, understanding)

	judgment := &models.IntentJudgment{SearchQueries: []string{"q"}}
	outcome, err := ranker.Rank(context.Background(), judgment, nil, 10)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}
	if outcome.Mode != RankModeRanked {
		t.Fatalf("expected ranked mode, got %s", outcome.Mode)
	}
	if len(outcome.Recommendations) != 2 {
		t.Fatalf("expected the out-of-range entry to be dropped, got %d recs", len(outcome.Recommendations))
	}

	first := outcome.Recommendations[0]
	if first.TileType != models.TileTypeKnowledge {
		t.Errorf("invalid tile type should coerce to knowledge, got %s", first.TileType)
	}
	if first.RelevanceScore != 0.5 {
		t.Errorf("out-of-range score should coerce to 0.5, got %f", first.RelevanceScore)
	}
	if outcome.Recommendations[1].TileType != models.TileTypeProduct {
		t.Errorf("valid tile type should pass through, got %s", outcome.Recommendations[1].TileType)
	}

	// Display order is dense regardless of dropped entries
	for i, rec := range outcome.Recommendations {
		if rec.DisplayOrder != i {
			t.Errorf("rec %d: expected display order %d, got %d", i, i, rec.DisplayOrder)
		}
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	multibyte := "a" + strings.Repeat("咖", 150)

	tests := []struct {
		name  string
		s     string
		limit int
	}{
		{"ascii under limit", "short", 300},
		{"ascii at limit", strings.Repeat("x", 300), 300},
		{"multibyte spanning limit", multibyte, 300},
		{"multibyte tiny limit", "咖啡", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.s, tt.limit)
			if len(got) > tt.limit {
				t.Fatalf("truncate exceeded limit: %d > %d", len(got), tt.limit)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("truncate produced invalid UTF-8: %q", got)
			}
			if !strings.HasPrefix(tt.s, got) {
				t.Fatal("truncate must return a prefix of its input")
			}
		})
	}
}

func TestRanker_ParseFallbackDescriptionIsValidUTF8(t *testing.T) {
	results := []models.SearchResult{{
		Title:   "多字节",
		URL:     "https://example.com",
		Content: "a" + strings.Repeat("咖", 150),
		Score:   0.8,
	}}

	recs := parseFallbackRecommendations(results, 10)
	if len(recs) != 1 {
		t.Fatalf("expected 1 recommendation, got %d", len(recs))
	}
	if !utf8.ValidString(recs[0].Description) {
		t.Fatal("description must not be cut mid-rune")
	}
	if len(recs[0].Description) > descriptionLimit {
		t.Fatalf("description exceeds limit: %d", len(recs[0].Description))
	}
}
