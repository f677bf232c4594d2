package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mosaic/internal/database"
	"mosaic/internal/errdefs"
	"mosaic/internal/models"
)

// AnalysisStore handles MongoDB CRUD for analyses and their recommendations
type AnalysisStore struct {
	analyses        *mongo.Collection
	recommendations *mongo.Collection
}

// NewAnalysisStore creates a new analysis store
func NewAnalysisStore(mongodb *database.MongoDB) *AnalysisStore {
	return &AnalysisStore{
		analyses:        mongodb.Collection(database.CollectionAnalyses),
		recommendations: mongodb.Collection(database.CollectionRecommendations),
	}
}

// Create inserts a new analysis
func (s *AnalysisStore) Create(ctx context.Context, analysis *models.Analysis) error {
	analysis.CreatedAt = time.Now()

	result, err := s.analyses.InsertOne(ctx, analysis)
	if err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}

	analysis.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

// GetByID retrieves an analysis by ID, scoped to user
func (s *AnalysisStore) GetByID(ctx context.Context, userID string, analysisID primitive.ObjectID) (*models.Analysis, error) {
	var analysis models.Analysis
	err := s.analyses.FindOne(ctx, bson.M{
		"_id":    analysisID,
		"userId": userID,
	}).Decode(&analysis)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errdefs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return &analysis, nil
}

// GetByUploadID retrieves the analysis for an upload, if one exists
func (s *AnalysisStore) GetByUploadID(ctx context.Context, uploadID primitive.ObjectID) (*models.Analysis, error) {
	var analysis models.Analysis
	err := s.analyses.FindOne(ctx, bson.M{"uploadId": uploadID}).Decode(&analysis)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get analysis by upload: %w", err)
	}
	return &analysis, nil
}

// Complete marks an analysis completed and stores the full pipeline context
func (s *AnalysisStore) Complete(ctx context.Context, analysisID primitive.ObjectID, fullContext map[string]interface{}) error {
	now := time.Now()
	_, err := s.analyses.UpdateOne(ctx,
		bson.M{"_id": analysisID},
		bson.M{"$set": bson.M{
			"status":      models.AnalysisStatusCompleted,
			"fullContext": fullContext,
			"completedAt": now,
		}})
	if err != nil {
		return fmt.Errorf("failed to complete analysis: %w", err)
	}
	return nil
}

// MarkFailedByUpload best-effort marks the upload's analysis failed.
// Callers swallow the returned error so it never masks the primary failure.
func (s *AnalysisStore) MarkFailedByUpload(ctx context.Context, uploadID primitive.ObjectID, analysisErr string) error {
	_, err := s.analyses.UpdateMany(ctx,
		bson.M{"uploadId": uploadID},
		bson.M{"$set": bson.M{
			"status": models.AnalysisStatusFailed,
			"error":  analysisErr,
		}})
	if err != nil {
		return fmt.Errorf("failed to mark analysis failed: %w", err)
	}
	return nil
}

// DeleteByUpload removes the upload's analysis and all its recommendations
func (s *AnalysisStore) DeleteByUpload(ctx context.Context, uploadID primitive.ObjectID) error {
	analysis, err := s.GetByUploadID(ctx, uploadID)
	if err != nil {
		return err
	}
	if analysis == nil {
		return nil
	}

	if _, err := s.recommendations.DeleteMany(ctx, bson.M{"analysisId": analysis.ID}); err != nil {
		return fmt.Errorf("failed to delete recommendations: %w", err)
	}
	if _, err := s.analyses.DeleteOne(ctx, bson.M{"_id": analysis.ID}); err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	return nil
}

// InsertRecommendations persists a freshly ranked batch
func (s *AnalysisStore) InsertRecommendations(ctx context.Context, recs []models.Recommendation) ([]models.Recommendation, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	now := time.Now()
	docs := make([]interface{}, len(recs))
	for i := range recs {
		recs[i].CreatedAt = now
		docs[i] = recs[i]
	}

	result, err := s.recommendations.InsertMany(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("failed to insert recommendations: %w", err)
	}
	for i, id := range result.InsertedIDs {
		recs[i].ID = id.(primitive.ObjectID)
	}
	return recs, nil
}

// ListRecommendations returns an analysis's tiles in display order
func (s *AnalysisStore) ListRecommendations(ctx context.Context, analysisID primitive.ObjectID) ([]models.Recommendation, error) {
	cursor, err := s.recommendations.Find(ctx,
		bson.M{"analysisId": analysisID},
		options.Find().SetSort(bson.D{{Key: "displayOrder", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations: %w", err)
	}
	defer cursor.Close(ctx)

	var recs []models.Recommendation
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("failed to decode recommendations: %w", err)
	}
	return recs, nil
}

// CountRecommendations returns the number of tiles under an analysis
func (s *AnalysisStore) CountRecommendations(ctx context.Context, analysisID primitive.ObjectID) (int64, error) {
	count, err := s.recommendations.CountDocuments(ctx, bson.M{"analysisId": analysisID})
	if err != nil {
		return 0, fmt.Errorf("failed to count recommendations: %w", err)
	}
	return count, nil
}

// GetRecommendation retrieves one tile by ID, scoped to user
func (s *AnalysisStore) GetRecommendation(ctx context.Context, userID string, recID primitive.ObjectID) (*models.Recommendation, error) {
	var rec models.Recommendation
	err := s.recommendations.FindOne(ctx, bson.M{
		"_id":    recID,
		"userId": userID,
	}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errdefs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	return &rec, nil
}

// SetUserAction records the user's verdict on a tile, making it immutable
// for future re-ranking
func (s *AnalysisStore) SetUserAction(ctx context.Context, recID primitive.ObjectID, action models.FeedbackAction) error {
	now := time.Now()
	_, err := s.recommendations.UpdateOne(ctx,
		bson.M{"_id": recID},
		bson.M{"$set": bson.M{
			"userAction":   action,
			"userActionAt": now,
		}})
	if err != nil {
		return fmt.Errorf("failed to set user action: %w", err)
	}
	return nil
}

// SetArticle persists a generated article body on a tile
func (s *AnalysisStore) SetArticle(ctx context.Context, recID primitive.ObjectID, articleHTML string) error {
	_, err := s.recommendations.UpdateOne(ctx,
		bson.M{"_id": recID},
		bson.M{"$set": bson.M{"articleHtml": articleHTML}})
	if err != nil {
		return fmt.Errorf("failed to set article: %w", err)
	}
	return nil
}

// ReplaceUnacted atomically (from the caller's perspective) swaps out all
// tiles the user has not acted on: unacted tiles are deleted, surviving
// acted tiles are re-densified to orders 0..k-1, and the new batch is
// inserted after them. Returns the inserted tiles.
func (s *AnalysisStore) ReplaceUnacted(ctx context.Context, analysisID primitive.ObjectID, newRecs []models.Recommendation) ([]models.Recommendation, error) {
	if _, err := s.recommendations.DeleteMany(ctx, bson.M{
		"analysisId": analysisID,
		"userAction": bson.M{"$exists": false},
	}); err != nil {
		return nil, fmt.Errorf("failed to delete unacted recommendations: %w", err)
	}

	// Re-densify the surviving acted tiles so display order stays
	// contiguous from 0
	survivors, err := s.ListRecommendations(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	for i, rec := range survivors {
		if rec.DisplayOrder != i {
			if _, err := s.recommendations.UpdateOne(ctx,
				bson.M{"_id": rec.ID},
				bson.M{"$set": bson.M{"displayOrder": i}}); err != nil {
				return nil, fmt.Errorf("failed to redensify display order: %w", err)
			}
		}
	}

	offset := len(survivors)
	for i := range newRecs {
		newRecs[i].DisplayOrder = offset + i
	}
	return s.InsertRecommendations(ctx, newRecs)
}
