package services

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"unicode/utf8"

	"mosaic/internal/errdefs"
	"mosaic/internal/models"
)

const (
	maxFanOutQueries      = 5
	maxResultsPerQuery    = 5
	maxResultsToClassify  = 15
	maxFallbackTiles      = 5
	promptSnippetLimit    = 200
	descriptionLimit      = 300
	fallbackScore         = 0.5
	maxPreferencesInQuery = 10
)

// RankMode tags which path produced a ranking outcome
type RankMode string

const (
	// RankModeRanked - results selected and classified by the model
	RankModeRanked RankMode = "ranked"
	// RankModeSearchFallback - web search returned nothing; synthetic
	// keyword tiles were generated instead
	RankModeSearchFallback RankMode = "search_fallback"
	// RankModeParseFallback - the model's classification was unusable;
	// raw results were taken in original order
	RankModeParseFallback RankMode = "parse_fallback"
)

// RankOutcome is the tagged result of one ranking pass. The mode makes the
// degrade paths observable instead of being inferred from emptiness.
type RankOutcome struct {
	Mode            RankMode
	Recommendations []models.Recommendation
	SearchResults   []models.SearchResult
}

// Ranker fans out search queries, aggregates the hits, and asks the
// understanding model to select and classify the best of them into typed
// recommendation tiles. Search outage never blocks the pipeline: both
// degrade tiers still yield displayable tiles.
type Ranker struct {
	search        SearchProvider
	understanding UnderstandingProvider
}

// NewRanker creates a ranking engine
func NewRanker(search SearchProvider, understanding UnderstandingProvider) *Ranker {
	return &Ranker{
		search:        search,
		understanding: understanding,
	}
}

// Rank produces count recommendations for an intent judgment, biased by
// the user's preference profile.
func (r *Ranker) Rank(ctx context.Context, judgment *models.IntentJudgment, prefs *models.UserPreference, count int) (*RankOutcome, error) {
	queries := judgment.SearchQueries
	if len(queries) == 0 && len(judgment.Keywords) > 0 {
		queries = judgment.Keywords
		if len(queries) > 3 {
			queries = queries[:3]
		}
	}
	if len(queries) == 0 {
		return nil, errdefs.ErrNoQueryTerms
	}
	if len(queries) > maxFanOutQueries {
		queries = queries[:maxFanOutQueries]
	}

	allResults := r.fanOut(ctx, queries)

	if len(allResults) == 0 {
		log.Printf("⚠️ [RANKER] Search returned no results, using keyword fallback")
		return &RankOutcome{
			Mode:            RankModeSearchFallback,
			Recommendations: fallbackRecommendations(judgment.Keywords),
		}, nil
	}

	recs, mode := r.classify(ctx, allResults, judgment, prefs, count)
	return &RankOutcome{
		Mode:            mode,
		Recommendations: recs,
		SearchResults:   allResults,
	}, nil
}

// fanOut runs the queries concurrently and combines results on arrival.
// A single query's failure is logged and skipped, never fatal.
func (r *Ranker) fanOut(ctx context.Context, queries []string) []models.SearchResult {
	var (
		mu         sync.Mutex
		allResults []models.SearchResult
		wg         sync.WaitGroup
	)

	for _, query := range queries {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			results, err := r.search.Query(ctx, q, maxResultsPerQuery)
			if err != nil {
				log.Printf("⚠️ [RANKER] Search query %q failed: %v", q, err)
				return
			}
			mu.Lock()
			allResults = append(allResults, results...)
			mu.Unlock()
		}(query)
	}
	wg.Wait()

	return allResults
}

// classify asks the model to pick the best results; on any classification
// failure it degrades to the raw results in original order.
func (r *Ranker) classify(ctx context.Context, results []models.SearchResult, judgment *models.IntentJudgment, prefs *models.UserPreference, count int) ([]models.Recommendation, RankMode) {
	summarized := results
	if len(summarized) > maxResultsToClassify {
		summarized = summarized[:maxResultsToClassify]
	}

	var resultsText strings.Builder
	for i, res := range summarized {
		fmt.Fprintf(&resultsText, "%d. %s: %s\n", i+1, res.Title, truncate(res.Content, promptSnippetLimit))
	}

	entries, err := r.understanding.ClassifyResults(ctx, resultsText.String(), intentSummary(judgment, prefs), count)
	if err != nil {
		if errdefs.IsParseError(err) {
			log.Printf("⚠️ [RANKER] Classification response unparseable, using original order")
		} else {
			log.Printf("⚠️ [RANKER] Classification failed, using original order: %v", err)
		}
		return parseFallbackRecommendations(results, count), RankModeParseFallback
	}

	var recs []models.Recommendation
	for _, entry := range entries {
		if len(recs) >= count {
			break
		}
		idx := entry.Index - 1
		if idx < 0 || idx >= len(summarized) {
			// Model hallucinated an index; drop silently
			continue
		}
		original := summarized[idx]

		tileType := models.TileType(entry.TileType)
		if !models.ValidTileType(tileType) {
			tileType = models.TileTypeKnowledge
		}
		score := entry.RelevanceScore
		if score < 0 || score > 1 {
			score = fallbackScore
		}

		recs = append(recs, models.Recommendation{
			Title:          original.Title,
			Description:    truncate(original.Content, descriptionLimit),
			URL:            original.URL,
			Source:         original.Source,
			RelevanceScore: score,
			TileType:       tileType,
			DisplayOrder:   len(recs),
		})
	}

	if len(recs) == 0 {
		log.Printf("⚠️ [RANKER] Classification produced no usable entries, using original order")
		return parseFallbackRecommendations(results, count), RankModeParseFallback
	}
	return recs, RankModeRanked
}

// intentSummary builds the user-context block of the classification prompt
func intentSummary(judgment *models.IntentJudgment, prefs *models.UserPreference) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User intent: %s\n", judgment.PrimaryIntent)
	fmt.Fprintf(&b, "Interest tags: %s\n", strings.Join(judgment.InterestTags, ", "))

	if prefs != nil {
		if liked := tail(prefs.LikedKeywords, maxPreferencesInQuery); len(liked) > 0 {
			fmt.Fprintf(&b, "User likes: %s\n", strings.Join(liked, ", "))
		}
		if disliked := tail(prefs.DislikedKeywords, maxPreferencesInQuery); len(disliked) > 0 {
			fmt.Fprintf(&b, "User dislikes: %s\n", strings.Join(disliked, ", "))
		}
	}
	return b.String()
}

// parseFallbackRecommendations takes the first count raw results in
// original order with a default tile type
func parseFallbackRecommendations(results []models.SearchResult, count int) []models.Recommendation {
	if len(results) > count {
		results = results[:count]
	}

	recs := make([]models.Recommendation, 0, len(results))
	for i, res := range results {
		score := res.Score
		if score <= 0 || score > 1 {
			score = fallbackScore
		}
		recs = append(recs, models.Recommendation{
			Title:          res.Title,
			Description:    truncate(res.Content, descriptionLimit),
			URL:            res.URL,
			Source:         res.Source,
			RelevanceScore: score,
			TileType:       models.TileTypeKnowledge,
			DisplayOrder:   i,
		})
	}
	return recs
}

// fallbackRecommendations synthesizes one tile per keyword pointing at a
// generic external search, for when web search yields nothing at all
func fallbackRecommendations(keywords []string) []models.Recommendation {
	if len(keywords) > maxFallbackTiles {
		keywords = keywords[:maxFallbackTiles]
	}

	recs := make([]models.Recommendation, 0, len(keywords))
	for i, keyword := range keywords {
		recs = append(recs, models.Recommendation{
			Title:          fmt.Sprintf("Explore more about %s", keyword),
			Description:    "Search is temporarily unavailable. Try again later or search for this topic directly.",
			URL:            "https://www.google.com/search?q=" + url.QueryEscape(keyword),
			Source:         "fallback",
			RelevanceScore: fallbackScore,
			TileType:       models.TileTypeFallback,
			DisplayOrder:   i,
		})
	}
	return recs
}

// truncate cuts s to at most limit bytes without splitting a rune
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// tail returns the most recent n entries of a recency-ordered list
func tail(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[len(list)-n:]
}
