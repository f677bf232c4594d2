package handlers

import (
	"errors"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"

	"mosaic/internal/errdefs"
	"mosaic/internal/models"
	"mosaic/internal/services"
)

const defaultHistoryPageSize = 20

// HistoryHandler serves the user's past uploads with their analysis state
type HistoryHandler struct {
	uploads  *services.UploadStore
	analyses *services.AnalysisStore
}

func NewHistoryHandler(uploads *services.UploadStore, analyses *services.AnalysisStore) *HistoryHandler {
	return &HistoryHandler{uploads: uploads, analyses: analyses}
}

// historyEntry joins one upload with its analysis summary, if any
type historyEntry struct {
	Upload              models.Upload         `json:"upload"`
	AnalysisID          string                `json:"analysis_id,omitempty"`
	AnalysisStatus      models.AnalysisStatus `json:"analysis_status,omitempty"`
	Keywords            []string              `json:"keywords,omitempty"`
	InterestTags        []string              `json:"interest_tags,omitempty"`
	RecommendationCount int64                 `json:"recommendation_count"`
}

// List returns the user's uploads newest first, each with its analysis
// summary when one exists
// GET /api/history?page=1&page_size=20
func (h *HistoryHandler) List(c *fiber.Ctx) error {
	userID := currentUserID(c)
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", defaultHistoryPageSize)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = defaultHistoryPageSize
	}

	uploads, total, err := h.uploads.List(c.Context(), userID, page, pageSize)
	if err != nil {
		log.Printf("❌ [HISTORY] Listing failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}

	entries := make([]historyEntry, 0, len(uploads))
	for _, upload := range uploads {
		entry := historyEntry{Upload: upload}
		if analysis, err := h.analyses.GetByUploadID(c.Context(), upload.ID); err != nil {
			log.Printf("⚠️ [HISTORY] Analysis lookup for upload %s failed: %v", upload.ID.Hex(), err)
		} else if analysis != nil {
			entry.AnalysisID = analysis.ID.Hex()
			entry.AnalysisStatus = analysis.Status
			entry.Keywords = analysis.Keywords
			entry.InterestTags = analysis.InterestTags
			if n, err := h.analyses.CountRecommendations(c.Context(), analysis.ID); err == nil {
				entry.RecommendationCount = n
			}
		}
		entries = append(entries, entry)
	}

	return c.JSON(fiber.Map{
		"entries":   entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Delete removes an upload with everything derived from it: the analysis,
// its recommendations, and the stored image file
// DELETE /api/history/:uploadId
func (h *HistoryHandler) Delete(c *fiber.Ctx) error {
	userID := currentUserID(c)
	uploadID, ok := parseObjectIDParam(c, "uploadId")
	if !ok {
		return nil
	}

	upload, err := h.uploads.GetByID(c.Context(), userID, uploadID)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Upload not found",
			})
		}
		log.Printf("❌ [HISTORY] Upload lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete upload",
		})
	}

	if err := h.analyses.DeleteByUpload(c.Context(), uploadID); err != nil {
		log.Printf("❌ [HISTORY] Cascade delete failed for upload %s: %v", uploadID.Hex(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete upload",
		})
	}
	if err := h.uploads.Delete(c.Context(), userID, uploadID); err != nil {
		log.Printf("❌ [HISTORY] Upload delete failed for %s: %v", uploadID.Hex(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete upload",
		})
	}

	if upload.ImagePath != "" {
		if err := os.Remove(upload.ImagePath); err != nil && !os.IsNotExist(err) {
			log.Printf("⚠️ [HISTORY] Image file removal failed for %s: %v", upload.ImagePath, err)
		}
	}

	log.Printf("🗑️ [HISTORY] Upload %s deleted for user %s", uploadID.Hex(), userID)
	return c.JSON(fiber.Map{"message": "upload deleted"})
}
