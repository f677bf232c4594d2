package handlers

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"mosaic/internal/models"
	"mosaic/internal/services"
)

const (
	maxImageSize  = 10 * 1024 * 1024
	minTextLength = 10
	maxTextLength = 10000
	previewLength = 200
)

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// UploadHandler handles artifact intake: image files, URLs, and free text
type UploadHandler struct {
	uploads   *services.UploadStore
	fetcher   services.FetchProvider
	uploadDir string
}

func NewUploadHandler(uploads *services.UploadStore, fetcher services.FetchProvider, uploadDir string) *UploadHandler {
	return &UploadHandler{uploads: uploads, fetcher: fetcher, uploadDir: uploadDir}
}

// UploadImage accepts a multipart image and stores it on disk
// POST /api/upload/image
func (h *UploadHandler) UploadImage(c *fiber.Ctx) error {
	userID := currentUserID(c)

	file, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Image file is required",
		})
	}
	if file.Size > maxImageSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "Image exceeds the 10MB limit",
		})
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedImageExts[ext] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported image format (jpg, png, webp, gif)",
		})
	}

	userDir := filepath.Join(h.uploadDir, userID)
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		log.Printf("❌ [UPLOAD] Failed to create upload dir: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store image",
		})
	}

	filename := uuid.New().String() + ext
	diskPath := filepath.Join(userDir, filename)
	if err := c.SaveFile(file, diskPath); err != nil {
		log.Printf("❌ [UPLOAD] Failed to save image: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store image",
		})
	}

	upload := &models.Upload{
		UserID:         userID,
		Type:           models.UploadTypeImage,
		ImagePath:      diskPath,
		ImageURL:       fmt.Sprintf("/uploads/%s/%s", userID, filename),
		ContentPreview: file.Filename,
		FileSize:       file.Size,
	}
	if err := h.uploads.Create(c.Context(), upload); err != nil {
		log.Printf("❌ [UPLOAD] Failed to persist image upload: %v", err)
		os.Remove(diskPath)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store image",
		})
	}

	log.Printf("📷 [UPLOAD] Image %s stored for user %s (%d bytes)", upload.ID.Hex(), userID, file.Size)
	return c.Status(fiber.StatusCreated).JSON(upload)
}

type urlUploadRequest struct {
	URL string `json:"url"`
}

// UploadURL accepts a web page URL for later analysis
// POST /api/upload/url
func (h *UploadHandler) UploadURL(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var req urlUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.URL = strings.TrimSpace(req.URL)
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A valid http(s) URL is required",
		})
	}

	// Best-effort title prefetch; the URL itself is the fallback preview
	preview := req.URL
	if page, err := h.fetcher.FetchURL(c.Context(), req.URL); err == nil && page.Title != "" {
		preview = truncatePreview(page.Title)
	} else if err != nil {
		log.Printf("⚠️ [UPLOAD] Title prefetch failed for %s: %v", req.URL, err)
	}

	upload := &models.Upload{
		UserID:         userID,
		Type:           models.UploadTypeURL,
		ContentText:    req.URL,
		ContentPreview: preview,
	}
	if err := h.uploads.Create(c.Context(), upload); err != nil {
		log.Printf("❌ [UPLOAD] Failed to persist URL upload: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store URL",
		})
	}

	log.Printf("🔗 [UPLOAD] URL %s stored for user %s", upload.ID.Hex(), userID)
	return c.Status(fiber.StatusCreated).JSON(upload)
}

type textUploadRequest struct {
	Text string `json:"text"`
}

// UploadText accepts free text for later analysis
// POST /api/upload/text
func (h *UploadHandler) UploadText(c *fiber.Ctx) error {
	userID := currentUserID(c)

	var req textUploadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	text := strings.TrimSpace(req.Text)
	if len(text) < minTextLength || len(text) > maxTextLength {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Text must be between %d and %d characters", minTextLength, maxTextLength),
		})
	}

	upload := &models.Upload{
		UserID:         userID,
		Type:           models.UploadTypeText,
		ContentText:    text,
		ContentPreview: truncatePreview(text),
	}
	if err := h.uploads.Create(c.Context(), upload); err != nil {
		log.Printf("❌ [UPLOAD] Failed to persist text upload: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store text",
		})
	}

	log.Printf("📝 [UPLOAD] Text %s stored for user %s (%d chars)", upload.ID.Hex(), userID, len(text))
	return c.Status(fiber.StatusCreated).JSON(upload)
}

func truncatePreview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewLength {
		return s
	}
	return string(runes[:previewLength]) + "..."
}
