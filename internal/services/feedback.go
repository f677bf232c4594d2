package services

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"mosaic/internal/models"
)

// FeedbackResult reports what a feedback event produced. Reranked is false
// when the preference update stuck but the follow-up re-rank could not run.
type FeedbackResult struct {
	Reranked        bool                    `json:"reranked"`
	Recommendations []models.Recommendation `json:"recommendations,omitempty"`
	Message         string                  `json:"message"`
}

// Store surfaces narrowed to what the feedback loop touches, satisfied by
// the concrete Mongo stores
type feedbackAnalysisStore interface {
	GetByID(ctx context.Context, userID string, analysisID primitive.ObjectID) (*models.Analysis, error)
	GetRecommendation(ctx context.Context, userID string, recID primitive.ObjectID) (*models.Recommendation, error)
	SetUserAction(ctx context.Context, recID primitive.ObjectID, action models.FeedbackAction) error
	ReplaceUnacted(ctx context.Context, analysisID primitive.ObjectID, newRecs []models.Recommendation) ([]models.Recommendation, error)
}

type feedbackPreferenceStore interface {
	Get(ctx context.Context, userID string) (*models.UserPreference, error)
	Save(ctx context.Context, pref *models.UserPreference) error
}

// Feedback folds user keep/discard actions into the preference profile and
// refreshes the unacted portion of the mosaic. Re-ranks for the same
// analysis are serialized through a per-analysis lock so concurrent
// feedback cannot interleave ReplaceUnacted writes.
type Feedback struct {
	analyses    feedbackAnalysisStore
	prefs       feedbackPreferenceStore
	ranker      *Ranker
	generator   *Generator
	rerankLocks *KeyLockTable

	recommendationCount int
}

func NewFeedback(analyses *AnalysisStore, prefs *PreferenceStore, ranker *Ranker, generator *Generator, recommendationCount int) *Feedback {
	return &Feedback{
		analyses:            analyses,
		prefs:               prefs,
		ranker:              ranker,
		generator:           generator,
		rerankLocks:         NewKeyLockTable(),
		recommendationCount: recommendationCount,
	}
}

// Record applies one keep/discard action. The preference mutation is the
// primary effect; the re-rank is best effort and a re-rank failure still
// returns success with Reranked false.
func (f *Feedback) Record(ctx context.Context, userID string, recID primitive.ObjectID, action models.FeedbackAction) (*FeedbackResult, error) {
	if action != models.FeedbackKeep && action != models.FeedbackDiscard {
		return nil, fmt.Errorf("invalid feedback action: %s", action)
	}

	rec, err := f.analyses.GetRecommendation(ctx, userID, recID)
	if err != nil {
		return nil, err
	}

	analysis, err := f.analyses.GetByID(ctx, userID, rec.AnalysisID)
	if err != nil {
		return nil, err
	}

	if err := f.analyses.SetUserAction(ctx, recID, action); err != nil {
		return nil, fmt.Errorf("failed to record action: %w", err)
	}

	prefs, err := f.prefs.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	prefs.Apply(analysis.Keywords, rec.TileType, action)
	if err := f.prefs.Save(ctx, prefs); err != nil {
		return nil, fmt.Errorf("failed to save preferences: %w", err)
	}

	log.Printf("👍 [FEEDBACK] User %s %s rec %s (liked=%d disliked=%d)",
		userID, action, recID.Hex(), len(prefs.LikedKeywords), len(prefs.DislikedKeywords))

	recs, err := f.rerank(ctx, userID, analysis, prefs)
	if err != nil {
		log.Printf("⚠️ [FEEDBACK] Re-rank for analysis %s failed, feedback saved anyway: %v",
			rec.AnalysisID.Hex(), err)
		return &FeedbackResult{
			Reranked: false,
			Message:  "feedback saved",
		}, nil
	}

	return &FeedbackResult{
		Reranked:        true,
		Recommendations: recs,
		Message:         "feedback saved, recommendations refreshed",
	}, nil
}

// rerank replaces every unacted recommendation of the analysis with a
// fresh ranking under the updated preferences. Acted items survive and keep
// the low display positions.
func (f *Feedback) rerank(ctx context.Context, userID string, analysis *models.Analysis, prefs *models.UserPreference) ([]models.Recommendation, error) {
	if analysis.IntentJudgment == nil {
		return nil, fmt.Errorf("analysis %s has no intent judgment to re-rank from", analysis.ID.Hex())
	}

	release, err := f.rerankLocks.Acquire(ctx, analysis.ID.Hex())
	if err != nil {
		return nil, err
	}
	defer release()

	outcome, err := f.ranker.Rank(ctx, analysis.IntentJudgment, prefs, f.recommendationCount)
	if err != nil {
		return nil, err
	}

	for i := range outcome.Recommendations {
		outcome.Recommendations[i].AnalysisID = analysis.ID
		outcome.Recommendations[i].UserID = userID
	}

	recs, err := f.analyses.ReplaceUnacted(ctx, analysis.ID, outcome.Recommendations)
	if err != nil {
		return nil, err
	}

	go f.generator.GenerateBatch(context.Background(), recs, outcome.SearchResults)

	log.Printf("🔄 [FEEDBACK] Analysis %s re-ranked: %d recommendations (%s)",
		analysis.ID.Hex(), len(recs), outcome.Mode)
	return recs, nil
}
