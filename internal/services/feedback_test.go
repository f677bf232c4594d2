package services

import (
	"context"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"mosaic/internal/errdefs"
	"mosaic/internal/models"
	"mosaic/internal/providers"
)

// fakeFeedbackStore keeps one analysis and its recommendations in memory,
// mirroring the store's replace-unacted semantics
type fakeFeedbackStore struct {
	mu       sync.Mutex
	analysis *models.Analysis
	recs     []models.Recommendation
}

func (f *fakeFeedbackStore) GetByID(ctx context.Context, userID string, analysisID primitive.ObjectID) (*models.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.analysis, nil
}

func (f *fakeFeedbackStore) GetRecommendation(ctx context.Context, userID string, recID primitive.ObjectID) (*models.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.recs {
		if f.recs[i].ID == recID {
			rec := f.recs[i]
			return &rec, nil
		}
	}
	return nil, errdefs.ErrNotFound
}

func (f *fakeFeedbackStore) SetUserAction(ctx context.Context, recID primitive.ObjectID, action models.FeedbackAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.recs {
		if f.recs[i].ID == recID {
			f.recs[i].UserAction = &action
		}
	}
	return nil
}

func (f *fakeFeedbackStore) ReplaceUnacted(ctx context.Context, analysisID primitive.ObjectID, newRecs []models.Recommendation) ([]models.Recommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []models.Recommendation
	for _, rec := range f.recs {
		if rec.UserAction != nil {
			kept = append(kept, rec)
		}
	}
	for i := range kept {
		kept[i].DisplayOrder = i
	}
	offset := len(kept)
	for i := range newRecs {
		newRecs[i].ID = primitive.NewObjectID()
		newRecs[i].DisplayOrder = offset + i
		kept = append(kept, newRecs[i])
	}
	f.recs = kept
	return kept, nil
}

type fakePrefStore struct {
	mu      sync.Mutex
	profile *models.UserPreference
	saved   *models.UserPreference
}

func (f *fakePrefStore) Get(ctx context.Context, userID string) (*models.UserPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profile != nil {
		return f.profile, nil
	}
	return &models.UserPreference{UserID: userID}, nil
}

func (f *fakePrefStore) Save(ctx context.Context, pref *models.UserPreference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = pref
	return nil
}

func newTestFeedback(store *fakeFeedbackStore, prefs *fakePrefStore, understanding *fakeUnderstanding, search *fakeSearch) *Feedback {
	return &Feedback{
		analyses:            store,
		prefs:               prefs,
		ranker:              NewRanker(search, understanding),
		generator:           NewGenerator(understanding, newMemorySaver(), NewKeyLockTable()),
		rerankLocks:         NewKeyLockTable(),
		recommendationCount: 10,
	}
}

func actedOn(action models.FeedbackAction) *models.FeedbackAction {
	return &action
}

func feedbackFixture(recCount, actedCount int) *fakeFeedbackStore {
	analysis := &models.Analysis{
		ID:       primitive.NewObjectID(),
		UserID:   "user-1",
		Keywords: []string{"coffee", "pour over"},
		IntentJudgment: &models.IntentJudgment{
			PrimaryIntent: "learn",
			Keywords:      []string{"coffee", "pour over"},
			SearchQueries: []string{"pour over technique"},
		},
	}
	recs := make([]models.Recommendation, recCount)
	for i := range recs {
		recs[i] = models.Recommendation{
			ID:           primitive.NewObjectID(),
			AnalysisID:   analysis.ID,
			UserID:       "user-1",
			Title:        "tile",
			TileType:     models.TileTypeKnowledge,
			DisplayOrder: i,
		}
		if i < actedCount {
			recs[i].UserAction = actedOn(models.FeedbackKeep)
		}
	}
	return &fakeFeedbackStore{analysis: analysis, recs: recs}
}

func TestFeedback_Record_PreservesActedItems(t *testing.T) {
	store := feedbackFixture(10, 2)
	actedBefore := []primitive.ObjectID{store.recs[0].ID, store.recs[1].ID}
	target := store.recs[2].ID

	understanding := &fakeUnderstanding{
		classifyResults: func(ctx context.Context, resultsSummary, intentSummary string, count int) ([]providers.RankingEntry, error) {
			return []providers.RankingEntry{
				{Index: 1, TileType: "knowledge", RelevanceScore: 0.9},
				{Index: 2, TileType: "tutorial", RelevanceScore: 0.8},
				{Index: 3, TileType: "product", RelevanceScore: 0.7},
			}, nil
		},
		generateArticle: func(ctx context.Context, rec *models.Recommendation, searchResults []models.SearchResult) (string, error) {
			return "<article/>", nil
		},
	}
	search := &fakeSearch{results: map[string][]models.SearchResult{
		"pour over technique": searchResults(5),
	}}
	prefs := &fakePrefStore{}
	f := newTestFeedback(store, prefs, understanding, search)

	result, err := f.Record(context.Background(), "user-1", target, models.FeedbackKeep)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if !result.Reranked {
		t.Fatal("expected a successful re-rank")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	surviving := map[primitive.ObjectID]bool{}
	for _, rec := range store.recs {
		surviving[rec.ID] = true
	}
	for _, id := range actedBefore {
		if !surviving[id] {
			t.Error("previously acted recommendation was replaced")
		}
	}
	if !surviving[target] {
		t.Error("the recommendation just acted on was replaced")
	}
	// 3 acted survivors plus the 3 newly classified tiles, densely ordered
	if len(store.recs) != 6 {
		t.Fatalf("expected 6 recommendations after re-rank, got %d", len(store.recs))
	}
	for i, rec := range store.recs {
		if rec.DisplayOrder != i {
			t.Errorf("rec %d: expected display order %d, got %d", i, i, rec.DisplayOrder)
		}
	}
	for _, rec := range store.recs[3:] {
		if rec.AnalysisID != store.analysis.ID {
			t.Error("new recommendation missing analysis ID")
		}
		if rec.UserID != "user-1" {
			t.Error("new recommendation missing user ID")
		}
	}
}

func TestFeedback_Record_RerankFailureStillSavesFeedback(t *testing.T) {
	store := feedbackFixture(3, 0)
	// No queries and no keywords leaves the ranker nothing to work with
	store.analysis.IntentJudgment = &models.IntentJudgment{PrimaryIntent: "learn"}
	store.analysis.Keywords = []string{"coffee"}
	target := store.recs[0].ID

	prefs := &fakePrefStore{}
	f := newTestFeedback(store, prefs, &fakeUnderstanding{}, &fakeSearch{})

	result, err := f.Record(context.Background(), "user-1", target, models.FeedbackDiscard)
	if err != nil {
		t.Fatalf("a failed re-rank must not fail the feedback call: %v", err)
	}
	if result.Reranked {
		t.Fatal("re-rank should not have succeeded")
	}
	if result.Message != "feedback saved" {
		t.Fatalf("unexpected message: %q", result.Message)
	}

	store.mu.Lock()
	if store.recs[0].UserAction == nil || *store.recs[0].UserAction != models.FeedbackDiscard {
		t.Error("action should be recorded before the re-rank attempt")
	}
	if len(store.recs) != 3 {
		t.Errorf("recommendations must be untouched after a failed re-rank, got %d", len(store.recs))
	}
	store.mu.Unlock()

	prefs.mu.Lock()
	defer prefs.mu.Unlock()
	if prefs.saved == nil {
		t.Fatal("preference profile should be saved")
	}
	if len(prefs.saved.DislikedKeywords) == 0 {
		t.Error("discard should fold keywords into the disliked set")
	}
}

func TestFeedback_Record_InvalidAction(t *testing.T) {
	f := newTestFeedback(feedbackFixture(1, 0), &fakePrefStore{}, &fakeUnderstanding{}, &fakeSearch{})

	if _, err := f.Record(context.Background(), "user-1", primitive.NewObjectID(), models.FeedbackAction("maybe")); err == nil {
		t.Fatal("expected an error for an unknown action")
	}
}
