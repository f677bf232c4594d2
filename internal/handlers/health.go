package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"mosaic/internal/database"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	mongodb *database.MongoDB
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(mongodb *database.MongoDB) *HealthHandler {
	return &HealthHandler{mongodb: mongodb}
}

// Handle responds with server health status including database reachability
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	dbStatus := "connected"
	status := "healthy"
	if err := h.mongodb.Ping(ctx); err != nil {
		dbStatus = "unreachable"
		status = "degraded"
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"database":  dbStatus,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
