package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
)

// Mock user middleware for testing
func mockAuthMiddleware(userID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", userID)
		return c.Next()
	}
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode body: %v", err)
	}

	req := httptest.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]interface{}
	_ = json.Unmarshal(raw, &decoded)
	return resp.StatusCode, decoded
}

func TestUploadHandler_UploadText_Validation(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
	}{
		{
			name:           "invalid JSON body",
			body:           "not json",
			expectedStatus: fiber.StatusBadRequest,
		},
		{
			name:           "text too short",
			body:           map[string]string{"text": "short"},
			expectedStatus: fiber.StatusBadRequest,
		},
		{
			name:           "text too long",
			body:           map[string]string{"text": strings.Repeat("a", maxTextLength+1)},
			expectedStatus: fiber.StatusBadRequest,
		},
		{
			name:           "whitespace only",
			body:           map[string]string{"text": "                    "},
			expectedStatus: fiber.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(mockAuthMiddleware("user-123"))

			// Validation rejects the request before any store access
			handler := NewUploadHandler(nil, nil, t.TempDir())
			app.Post("/api/upload/text", handler.UploadText)

			status, resp := postJSON(t, app, "/api/upload/text", tt.body)
			if status != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d (%v)", tt.expectedStatus, status, resp)
			}
			if resp["error"] == nil {
				t.Error("expected an error message")
			}
		})
	}
}

func TestUploadHandler_UploadURL_Validation(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"empty url", ""},
		{"no scheme", "example.com/article"},
		{"ftp scheme", "ftp://example.com/file"},
		{"scheme only", "https://"},
		{"javascript scheme", "javascript:alert(1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(mockAuthMiddleware("user-123"))

			handler := NewUploadHandler(nil, nil, t.TempDir())
			app.Post("/api/upload/url", handler.UploadURL)

			status, _ := postJSON(t, app, "/api/upload/url", map[string]string{"url": tt.url})
			if status != fiber.StatusBadRequest {
				t.Fatalf("expected 400 for %q, got %d", tt.url, status)
			}
		})
	}
}

func TestUploadHandler_UploadImage_RequiresFile(t *testing.T) {
	app := fiber.New()
	app.Use(mockAuthMiddleware("user-123"))

	handler := NewUploadHandler(nil, nil, t.TempDir())
	app.Post("/api/upload/image", handler.UploadImage)

	req := httptest.NewRequest("POST", "/api/upload/image", nil)
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without a file, got %d", resp.StatusCode)
	}
}

func TestTruncatePreview(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantRunes int
		ellipsis  bool
	}{
		{"short text untouched", "a quick note", 12, false},
		{"exactly at cap", strings.Repeat("x", 200), 200, false},
		{"over cap", strings.Repeat("x", 201), 200, true},
		{"multibyte over cap", strings.Repeat("咖", 250), 200, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncatePreview(tt.text)
			trimmed := strings.TrimSuffix(got, "...")
			if tt.ellipsis == (trimmed == got) {
				t.Fatalf("ellipsis presence wrong for %q", got)
			}
			if n := len([]rune(trimmed)); n != tt.wantRunes {
				t.Fatalf("expected %d rune preview, got %d", tt.wantRunes, n)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("preview is not valid UTF-8: %q", got)
			}
		})
	}
}
