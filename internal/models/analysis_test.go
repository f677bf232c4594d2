package models

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStoredSearchResults(t *testing.T) {
	typed := []SearchResult{
		{Title: "Pour-over basics", URL: "https://example.com/a", Score: 0.9},
		{Title: "Grinder reviews", URL: "https://example.com/b", Score: 0.7},
	}

	t.Run("typed slice passes through", func(t *testing.T) {
		a := &Analysis{FullContext: map[string]interface{}{"search_results": typed}}
		got := a.StoredSearchResults()
		if len(got) != 2 || got[0].Title != "Pour-over basics" {
			t.Fatalf("got %+v", got)
		}
	})

	t.Run("bson primitives decode", func(t *testing.T) {
		// Shape the driver produces when fullContext is read back
		raw := primitive.A{
			bson.M{"title": "Pour-over basics", "url": "https://example.com/a", "score": 0.9},
			bson.M{"title": "Grinder reviews", "url": "https://example.com/b", "score": 0.7},
		}
		a := &Analysis{FullContext: map[string]interface{}{"search_results": raw}}
		got := a.StoredSearchResults()
		if len(got) != 2 {
			t.Fatalf("expected 2 results, got %d", len(got))
		}
		if got[1].URL != "https://example.com/b" || got[1].Score != 0.7 {
			t.Errorf("got %+v", got[1])
		}
	})

	t.Run("missing key returns nil", func(t *testing.T) {
		a := &Analysis{FullContext: map[string]interface{}{}}
		if got := a.StoredSearchResults(); got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})

	t.Run("nil context returns nil", func(t *testing.T) {
		a := &Analysis{}
		if got := a.StoredSearchResults(); got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})
}
