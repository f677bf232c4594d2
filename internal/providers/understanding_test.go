package providers

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		ok      bool
	}{
		{
			name:    "bare object",
			content: `{"a": 1}`,
			want:    `{"a": 1}`,
			ok:      true,
		},
		{
			name:    "object in markdown fences",
			content: "```json\n{\"a\": 1}\n```",
			want:    `{"a": 1}`,
			ok:      true,
		},
		{
			name:    "object with surrounding prose",
			content: `Here is the result: {"primary_intent": "learn"} Hope that helps!`,
			want:    `{"primary_intent": "learn"}`,
			ok:      true,
		},
		{
			name:    "array with prose",
			content: `The ranking: [{"index": 1}, {"index": 2}] as requested`,
			want:    `[{"index": 1}, {"index": 2}]`,
			ok:      true,
		},
		{
			name:    "nested braces",
			content: `{"outer": {"inner": 1}}`,
			want:    `{"outer": {"inner": 1}}`,
			ok:      true,
		},
		{
			name:    "no json at all",
			content: "I cannot classify these results.",
			ok:      false,
		},
		{
			name:    "unterminated object",
			content: `{"a": 1`,
			ok:      false,
		},
		{
			name:    "empty input",
			content: "",
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSON(tt.content)
			if ok != tt.ok {
				t.Fatalf("extractJSON(%q) ok = %v, want %v", tt.content, ok, tt.ok)
			}
			if ok && string(got) != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	multibyte := strings.Repeat("咖", 200)

	tests := []struct {
		name  string
		s     string
		limit int
	}{
		{"under limit", "short", 500},
		{"ascii at limit", strings.Repeat("x", 500), 500},
		{"multibyte spanning limit", multibyte, 500},
		{"zero limit", multibyte, 0},
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
