package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"mosaic/internal/errdefs"
	"mosaic/internal/models"
)

const (
	defaultLLMTimeout     = 60 * time.Second
	articleTimeout        = 120 * time.Second // long-form output needs more headroom
	maxHistoryKeywords    = 10
	intentReasoningLimit  = 500
	articleContextSnippet = 300
)

// Understanding calls an OpenAI-compatible chat-completions endpoint for
// visual and textual content understanding.
type Understanding struct {
	baseURL     string
	apiKey      string
	model       string
	visionModel string
	httpClient  *http.Client
}

// NewUnderstanding creates an understanding provider client
func NewUnderstanding(baseURL, apiKey, model, visionModel string) *Understanding {
	return &Understanding{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		visionModel: visionModel,
		httpClient:  &http.Client{Timeout: articleTimeout},
	}
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// chatCompletion posts one chat request and returns the first choice's content
func (u *Understanding) chatCompletion(ctx context.Context, req chatRequest, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	requestJSON, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		u.baseURL+"/chat/completions", bytes.NewReader(requestJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+u.apiKey)

	resp, err := u.httpClient.Do(httpReq)
	if err != nil {
		return "", &errdefs.ProviderError{Provider: "understanding", Op: "chat", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &errdefs.ProviderError{Provider: "understanding", Op: "chat", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [UNDERSTANDING] API error: %d - %s", resp.StatusCode, string(body))
		return "", &errdefs.ProviderError{
			Provider:   "understanding",
			Op:         "chat",
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%s", string(body)),
		}
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", &errdefs.ProviderError{Provider: "understanding", Op: "chat", Cause: err}
	}
	if len(apiResp.Choices) == 0 {
		return "", &errdefs.ProviderError{Provider: "understanding", Op: "chat",
			Cause: fmt.Errorf("empty response from model")}
	}

	return apiResp.Choices[0].Message.Content, nil
}

// AnalyzeImage sends an image to the vision model and returns a structured
// description. Non-JSON responses degrade to "whole response is the
// description" rather than failing.
func (u *Understanding) AnalyzeImage(ctx context.Context, imageURL string) (*models.ImageInsight, error) {
	log.Printf("👁 [UNDERSTANDING] Analyzing image with %s", u.visionModel)

	prompt := `Analyze this image in detail and return JSON with these fields:
1. visual_description: overall visual description (scene, objects, colors, composition)
2. extracted_text: all text visible in the image, if any
3. scene_type: type of scene (gaming, shopping, article, social media, design work, ...)
4. main_subjects: list of main subjects
5. possible_intent: list of directions the user may be interested in (guides, buying, learning, appreciation, ...)

Return the JSON directly without extra explanation.`

	content, err := u.chatCompletion(ctx, chatRequest{
		Model: u.visionModel,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []map[string]interface{}{
					{"type": "image_url", "image_url": map[string]interface{}{"url": imageURL}},
					{"type": "text", "text": prompt},
				},
			},
		},
		Temperature: 0.3,
		MaxTokens:   1000,
	}, defaultLLMTimeout)
	if err != nil {
		return nil, fmt.Errorf("image analysis failed: %w", err)
	}

	var insight models.ImageInsight
	if raw, ok := extractJSON(content); ok {
		if err := json.Unmarshal(raw, &insight); err == nil {
			return &insight, nil
		}
	}

	// Not the expected shape: keep the full response as the description
	log.Printf("⚠️ [UNDERSTANDING] Image response not JSON, degrading: %v",
		&errdefs.ParseError{Provider: "understanding", Raw: content})
	return &models.ImageInsight{
		VisualDescription: content,
		SceneType:         "unknown",
	}, nil
}

// AnalyzeText produces a structured analysis report of long-form text.
// Input beyond maxChars is truncated silently.
func (u *Understanding) AnalyzeText(ctx context.Context, content string, maxChars int) (string, error) {
	log.Printf("📄 [UNDERSTANDING] Analyzing text content (%d chars)", len(content))

	if maxChars > 0 {
		content = truncate(content, maxChars)
	}

	prompt := fmt.Sprintf(`Read and analyze the following content in depth:

%s

Provide a structured analysis report with these sections (skip any without relevant information):
1. **Summary**: one sentence capturing the core content.
2. **Key points**: the 3-5 most important ideas or facts.
3. **Events/timeline**: notable events or timeline, if present.
4. **People/places**: important people or places mentioned.
5. **Terminology/techniques**: specialist concepts, technology, or methods mentioned.

Output the analysis directly in a clear, readable format (markdown lists are fine).`, content)

	result, err := u.chatCompletion(ctx, chatRequest{
		Model: u.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a professional content analyst skilled at extracting the core value and key information from long-form text."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   2000,
	}, defaultLLMTimeout)
	if err != nil {
		return "", fmt.Errorf("text analysis failed: %w", err)
	}
	return result, nil
}

// JudgeIntent asks the model for an intent judgment over the decoded
// content, optionally enriched with visual context and the user's liked
// keyword history. On unparseable responses it degrades to a minimal
// judgment carrying the raw text as reasoning.
func (u *Understanding) JudgeIntent(ctx context.Context, content string, visualContext string, historyKeywords []string) (*models.IntentJudgment, error) {
	log.Printf("🧭 [UNDERSTANDING] Judging intent (%d history keywords)", len(historyKeywords))

	contextParts := []string{"Content: " + content}
	if visualContext != "" {
		contextParts = append(contextParts, "Visual context: "+visualContext)
	}
	if len(historyKeywords) > 0 {
		if len(historyKeywords) > maxHistoryKeywords {
			historyKeywords = historyKeywords[:maxHistoryKeywords]
		}
		contextParts = append(contextParts, "User's historical interests: "+strings.Join(historyKeywords, ", "))
	}

	prompt := fmt.Sprintf(`%s

Analyze the content above from the user's perspective, expand associatively, and return JSON with:
1. primary_intent: the main intent (learning, buying a product, looking for guides, entertainment, social sharing, ...)
2. interest_level: interest strength (1-10)
3. keywords: list of 8-12 core keywords, concrete nouns and abstract concepts
4. interest_tags: list of interest tags (gaming, coffee, design, travel, ...)
5. search_queries: 6-8 suggested search queries. Include direct search terms, concrete questions the user may have ("how to", "where to buy", "is it good"), and associative expansions (competitors, adjacent knowledge, trends)
6. content_preferences: recommended content types (knowledge, product links, offline locations, tutorial videos, ...)
7. reasoning: a short rationale

Return the JSON directly without extra explanation.`, strings.Join(contextParts, "\n"))

	content, err := u.chatCompletion(ctx, chatRequest{
		Model: u.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a divergent-thinking user intent analyst. Take the user's point of view and dig into the latent needs, interests, and related topics behind the content."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7, // slightly higher for associative expansion
		MaxTokens:   1500,
	}, defaultLLMTimeout)
	if err != nil {
		return nil, fmt.Errorf("intent analysis failed: %w", err)
	}

	var judgment models.IntentJudgment
	if raw, ok := extractJSON(content); ok {
		if err := json.Unmarshal(raw, &judgment); err == nil {
			return &judgment, nil
		}
	}

	log.Printf("⚠️ [UNDERSTANDING] Intent response not JSON, degrading: %v",
		&errdefs.ParseError{Provider: "understanding", Raw: content})
	reasoning := truncate(content, intentReasoningLimit)
	return &models.IntentJudgment{
		PrimaryIntent: "explore",
		InterestLevel: 5,
		Reasoning:     reasoning,
	}, nil
}

// RankingEntry is one item of the model's ranking over raw search results
type RankingEntry struct {
	Index          int     `json:"index"` // 1-based index into the summarized results
	TileType       string  `json:"tile_type"`
	RelevanceScore float64 `json:"relevance_score"`
	Why            string  `json:"why"`
}

// ClassifyResults asks the model to pick and classify the best count
// results. Returns a ParseError-wrapped failure when the response is not a
// JSON array; the caller degrades to heuristic ordering.
func (u *Understanding) ClassifyResults(ctx context.Context, resultsSummary, intentSummary string, count int) ([]RankingEntry, error) {
	prompt := fmt.Sprintf(`%s

Search results:
%s

From the search results above select the %d most relevant items and assign each a type and score.
Return a JSON list where each item has:
- index: 1-based index of the original result
- tile_type: one of knowledge/product/location/tutorial/news/community
- relevance_score: relevance in 0.0-1.0
- why: a one-sentence rationale

Return the JSON array directly without extra text.`, intentSummary, resultsSummary, count)

	content, err := u.chatCompletion(ctx, chatRequest{
		Model: u.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a recommendation-system expert skilled at filtering content by user interest."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   2000,
	}, defaultLLMTimeout)
	if err != nil {
		return nil, err
	}

	raw, ok := extractJSON(content)
	if !ok {
		return nil, &errdefs.ParseError{Provider: "understanding", Raw: content}
	}
	var entries []RankingEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &errdefs.ParseError{Provider: "understanding", Raw: content}
	}
	return entries, nil
}

// GenerateArticle writes a long-form HTML article for a recommendation,
// grounded in the raw search results kept in the analysis context.
func (u *Understanding) GenerateArticle(ctx context.Context, rec *models.Recommendation, searchResults []models.SearchResult) (string, error) {
	log.Printf("✍️ [UNDERSTANDING] Generating article for %q", rec.Title)

	var refs strings.Builder
	for _, r := range searchResults {
		fmt.Fprintf(&refs, "- %s: %s\n", r.Title, truncate(r.Content, articleContextSnippet))
	}

	prompt := fmt.Sprintf(`Based on the information below, write an in-depth article about "%s".

Topic: %s
Summary: %s

Reference material:
%s

Requirements:
1. Deep, professional, engaging content of at least 1500 words.
2. Output HTML (body content only, no html/head tags).
3. Use Tailwind CSS classes for layout (e.g. class="text-2xl font-bold mb-4", class="text-gray-700 mb-4 leading-relaxed", class="bg-gray-50 p-4 rounded-lg border-l-4 border-blue-500 italic").
4. Include suitable headings (h2, h3), paragraphs, lists (ul/li), and blockquotes.
5. For image concepts use <div class="bg-gray-200 h-64 w-full rounded-lg flex items-center justify-center text-gray-500 mb-6">[image placeholder: description]</div>.

Return the HTML directly.`, rec.Title, rec.Title, rec.Description, refs.String())

	content, err := u.chatCompletion(ctx, chatRequest{
		Model: u.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a professional columnist and editor skilled at writing rich, in-depth articles."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   5000,
	}, articleTimeout)
	if err != nil {
		return "", fmt.Errorf("article generation failed: %w", err)
	}

	// Strip markdown code fences the model sometimes wraps HTML in
	content = strings.ReplaceAll(content, "```html", "")
	content = strings.ReplaceAll(content, "```", "")
	return strings.TrimSpace(content), nil
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

// extractJSON finds the outermost JSON object or array embedded in model
// output. Models frequently wrap JSON in prose or code fences.
func extractJSON(content string) ([]byte, bool) {
	start := strings.IndexAny(content, "[{")
	if start == -1 {
		return nil, false
	}

	var end int
	if content[start] == '[' {
		end = strings.LastIndex(content, "]")
	} else {
		end = strings.LastIndex(content, "}")
	}
	if end <= start {
		return nil, false
	}
	return []byte(content[start : end+1]), true
}
