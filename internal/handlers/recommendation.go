package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"mosaic/internal/errdefs"
	"mosaic/internal/models"
	"mosaic/internal/services"
)

// RecommendationHandler serves mosaic tiles, long-form articles, and the
// keep/discard feedback endpoint
type RecommendationHandler struct {
	analyses  *services.AnalysisStore
	generator *services.Generator
	feedback  *services.Feedback
}

func NewRecommendationHandler(analyses *services.AnalysisStore, generator *services.Generator, feedback *services.Feedback) *RecommendationHandler {
	return &RecommendationHandler{analyses: analyses, generator: generator, feedback: feedback}
}

// List returns the analysis's recommendations in display order
// GET /api/analysis/:analysisId/recommendations
func (h *RecommendationHandler) List(c *fiber.Ctx) error {
	userID := currentUserID(c)
	analysisID, ok := parseObjectIDParam(c, "analysisId")
	if !ok {
		return nil
	}

	// Ownership check before listing
	if _, err := h.analyses.GetByID(c.Context(), userID, analysisID); err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Analysis not found",
			})
		}
		log.Printf("❌ [RECS] Analysis lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load recommendations",
		})
	}

	recs, err := h.analyses.ListRecommendations(c.Context(), analysisID)
	if err != nil {
		log.Printf("❌ [RECS] Listing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load recommendations",
		})
	}
	return c.JSON(fiber.Map{
		"recommendations": recs,
		"count":           len(recs),
	})
}

// Article returns the long-form article for one recommendation, generating
// it on first request. Concurrent requests for the same article coalesce.
// ?regenerate=true discards the stored copy and writes a fresh one.
// GET /api/recommendations/:recId/article
func (h *RecommendationHandler) Article(c *fiber.Ctx) error {
	userID := currentUserID(c)
	recID, ok := parseObjectIDParam(c, "recId")
	if !ok {
		return nil
	}
	regenerate := c.Query("regenerate") == "true"

	rec, err := h.analyses.GetRecommendation(c.Context(), userID, recID)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Recommendation not found",
			})
		}
		log.Printf("❌ [RECS] Recommendation lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load recommendation",
		})
	}

	if rec.ArticleHTML != "" && !regenerate {
		return c.JSON(fiber.Map{
			"recommendation_id": recID.Hex(),
			"article_html":      rec.ArticleHTML,
		})
	}

	// Ground the article in the search results captured during analysis
	var searchResults []models.SearchResult
	if analysis, lookupErr := h.analyses.GetByID(c.Context(), userID, rec.AnalysisID); lookupErr == nil {
		searchResults = analysis.StoredSearchResults()
	}

	article, err := h.generator.GetOrGenerate(c.Context(), rec, searchResults)
	if errors.Is(err, errdefs.ErrAlreadyGenerated) {
		// Another request finished the generation; re-read the stored copy
		if rec, err = h.analyses.GetRecommendation(c.Context(), userID, recID); err == nil {
			article = rec.ArticleHTML
		}
	}
	if err != nil {
		log.Printf("❌ [RECS] Article generation failed for %s: %v", recID.Hex(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate article",
		})
	}

	return c.JSON(fiber.Map{
		"recommendation_id": recID.Hex(),
		"article_html":      article,
	})
}

type feedbackRequest struct {
	Action string `json:"action"`
}

// Feedback records a keep/discard action and returns the refreshed mosaic
// POST /api/recommendations/:recId/feedback
func (h *RecommendationHandler) Feedback(c *fiber.Ctx) error {
	userID := currentUserID(c)
	recID, ok := parseObjectIDParam(c, "recId")
	if !ok {
		return nil
	}

	var req feedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	action := models.FeedbackAction(req.Action)
	if action != models.FeedbackKeep && action != models.FeedbackDiscard {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "action must be \"keep\" or \"discard\"",
		})
	}

	result, err := h.feedback.Record(c.Context(), userID, recID, action)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Recommendation not found",
			})
		}
		log.Printf("❌ [RECS] Feedback failed for %s: %v", recID.Hex(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record feedback",
		})
	}
	return c.JSON(result)
}
