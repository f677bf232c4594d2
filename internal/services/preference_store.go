package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mosaic/internal/database"
	"mosaic/internal/models"
)

// PreferenceStore handles MongoDB CRUD for user preference profiles.
// Profiles are created lazily on first feedback; the mutation rules
// themselves live on models.UserPreference.
type PreferenceStore struct {
	collection *mongo.Collection
}

// NewPreferenceStore creates a new preference store
func NewPreferenceStore(mongodb *database.MongoDB) *PreferenceStore {
	return &PreferenceStore{
		collection: mongodb.Collection(database.CollectionUserPreferences),
	}
}

// Get returns the user's profile, or an empty profile when none exists yet
func (s *PreferenceStore) Get(ctx context.Context, userID string) (*models.UserPreference, error) {
	var pref models.UserPreference
	err := s.collection.FindOne(ctx, bson.M{"userId": userID}).Decode(&pref)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &models.UserPreference{
				UserID:           userID,
				LikedKeywords:    []string{},
				DislikedKeywords: []string{},
				PreferredTypes:   []models.TileType{},
				AvoidedTypes:     []models.TileType{},
			}, nil
		}
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	return &pref, nil
}

// Save upserts the profile by user ID
func (s *PreferenceStore) Save(ctx context.Context, pref *models.UserPreference) error {
	now := time.Now()
	pref.UpdatedAt = now
	if pref.CreatedAt.IsZero() {
		pref.CreatedAt = now
	}

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"userId": pref.UserID},
		bson.M{"$set": bson.M{
			"likedKeywords":      pref.LikedKeywords,
			"dislikedKeywords":   pref.DislikedKeywords,
			"preferredTileTypes": pref.PreferredTypes,
			"avoidedTileTypes":   pref.AvoidedTypes,
			"totalKeeps":         pref.TotalKeeps,
			"totalDiscards":      pref.TotalDiscards,
			"updatedAt":          pref.UpdatedAt,
		}, "$setOnInsert": bson.M{
			"userId":    pref.UserID,
			"createdAt": pref.CreatedAt,
		}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
