package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"mosaic/internal/errdefs"
	"mosaic/internal/services"
)

// AnalysisHandler drives analysis submission, task polling, and results
type AnalysisHandler struct {
	orchestrator *services.Orchestrator
	analyses     *services.AnalysisStore
}

func NewAnalysisHandler(orchestrator *services.Orchestrator, analyses *services.AnalysisStore) *AnalysisHandler {
	return &AnalysisHandler{orchestrator: orchestrator, analyses: analyses}
}

// Submit schedules the analysis pipeline for an upload. Resubmitting while
// a task is still running returns the running task with 200 instead of 202.
// POST /api/analyze/:uploadId
func (h *AnalysisHandler) Submit(c *fiber.Ctx) error {
	userID := currentUserID(c)
	uploadID, ok := parseObjectIDParam(c, "uploadId")
	if !ok {
		return nil
	}

	task, existing, err := h.orchestrator.Submit(c.Context(), userID, uploadID)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Upload not found",
			})
		}
		log.Printf("❌ [ANALYSIS] Submit failed for upload %s: %v", uploadID.Hex(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to schedule analysis",
		})
	}

	status := fiber.StatusAccepted
	if existing {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(task)
}

// TaskStatus returns the task's progress and accumulated context
// GET /api/tasks/:taskId
func (h *AnalysisHandler) TaskStatus(c *fiber.Ctx) error {
	userID := currentUserID(c)
	taskID, ok := parseObjectIDParam(c, "taskId")
	if !ok {
		return nil
	}

	task, err := h.orchestrator.Status(c.Context(), userID, taskID)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Task not found",
			})
		}
		log.Printf("❌ [ANALYSIS] Task lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load task",
		})
	}
	return c.JSON(task)
}

// Get returns a completed (or failed) analysis document
// GET /api/analysis/:analysisId
func (h *AnalysisHandler) Get(c *fiber.Ctx) error {
	userID := currentUserID(c)
	analysisID, ok := parseObjectIDParam(c, "analysisId")
	if !ok {
		return nil
	}

	analysis, err := h.analyses.GetByID(c.Context(), userID, analysisID)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Analysis not found",
			})
		}
		log.Printf("❌ [ANALYSIS] Lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load analysis",
		})
	}
	return c.JSON(analysis)
}
