package services

import (
	"context"
	"fmt"
	"html"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"mosaic/internal/errdefs"
	"mosaic/internal/models"
)

// articleSaver persists a generated article body. Satisfied by
// *AnalysisStore; narrowed so generator tests run without MongoDB.
type articleSaver interface {
	SetArticle(ctx context.Context, recID primitive.ObjectID, articleHTML string) error
}

// Generator produces long-form article bodies for recommendations with
// at-most-one-active-generation-per-key semantics. Concurrent callers for
// the same recommendation wait for the holder and then re-read the
// committed result from storage instead of re-triggering the expensive
// generation call.
type Generator struct {
	understanding UnderstandingProvider
	store         articleSaver
	locks         *KeyLockTable
}

// NewGenerator creates a content generator using the given lock table
func NewGenerator(understanding UnderstandingProvider, store articleSaver, locks *KeyLockTable) *Generator {
	return &Generator{
		understanding: understanding,
		store:         store,
		locks:         locks,
	}
}

// GetOrGenerate generates, persists, and returns the article for one
// recommendation. When another caller is already generating for the same
// recommendation it waits for that generation to finish and returns
// errdefs.ErrAlreadyGenerated; the caller re-reads from storage.
//
// Generation failure never propagates: a rendered error placeholder is
// persisted and returned so every requested tile ends up with something
// displayable.
func (g *Generator) GetOrGenerate(ctx context.Context, rec *models.Recommendation, searchResults []models.SearchResult) (string, error) {
	key := rec.ID.Hex()

	release, done, acquired := g.locks.TryAcquire(key)
	if !acquired {
		log.Printf("⏳ [GENERATOR] Article for %s already generating, waiting", key)
		select {
		case <-done:
			return "", errdefs.ErrAlreadyGenerated
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	defer release()

	articleHTML, err := g.understanding.GenerateArticle(ctx, rec, searchResults)
	if err != nil {
		log.Printf("❌ [GENERATOR] Article generation failed for %s: %v", key, err)
		articleHTML = errorPlaceholder(err)
	}

	if err := g.store.SetArticle(ctx, rec.ID, articleHTML); err != nil {
		log.Printf("❌ [GENERATOR] Failed to persist article for %s: %v", key, err)
	}

	return articleHTML, nil
}

// GenerateBatch generates articles for a batch of tiles sequentially to
// bound provider load. Individual failures are logged and do not abort
// the batch.
func (g *Generator) GenerateBatch(ctx context.Context, recs []models.Recommendation, searchResults []models.SearchResult) {
	log.Printf("📚 [GENERATOR] Generating %d articles in background", len(recs))

	for i := range recs {
		rec := &recs[i]
		if _, err := g.GetOrGenerate(ctx, rec, searchResults); err != nil {
			if err == errdefs.ErrAlreadyGenerated {
				continue
			}
			log.Printf("⚠️ [GENERATOR] Batch item %s failed: %v", rec.ID.Hex(), err)
			continue
		}
		log.Printf("✅ [GENERATOR] Article ready for %s", rec.ID.Hex())
	}
}

// errorPlaceholder renders a user-visible stand-in for a failed generation
func errorPlaceholder(err error) string {
	return fmt.Sprintf(`<div class="p-4 text-red-600">Article generation failed: %s</div>`,
		html.EscapeString(err.Error()))
}
