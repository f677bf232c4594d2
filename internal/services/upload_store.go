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

// UploadStore handles MongoDB CRUD for submitted artifacts
type UploadStore struct {
	collection *mongo.Collection
}

// NewUploadStore creates a new upload store
func NewUploadStore(mongodb *database.MongoDB) *UploadStore {
	return &UploadStore{
		collection: mongodb.Collection(database.CollectionUploads),
	}
}

// Create inserts a new upload record
func (s *UploadStore) Create(ctx context.Context, upload *models.Upload) error {
	upload.CreatedAt = time.Now()

	result, err := s.collection.InsertOne(ctx, upload)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}

	upload.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

// GetByID retrieves an upload by ID, scoped to user
func (s *UploadStore) GetByID(ctx context.Context, userID string, uploadID primitive.ObjectID) (*models.Upload, error) {
	var upload models.Upload
	err := s.collection.FindOne(ctx, bson.M{
		"_id":    uploadID,
		"userId": userID,
	}).Decode(&upload)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errdefs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return &upload, nil
}

// List returns a page of the user's uploads, newest first, plus the total count
func (s *UploadStore) List(ctx context.Context, userID string, page, pageSize int) ([]models.Upload, int64, error) {
	filter := bson.M{"userId": userID}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count uploads: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer cursor.Close(ctx)

	var uploads []models.Upload
	if err := cursor.All(ctx, &uploads); err != nil {
		return nil, 0, fmt.Errorf("failed to decode uploads: %w", err)
	}
	return uploads, total, nil
}

// Delete removes an upload, scoped to user
func (s *UploadStore) Delete(ctx context.Context, userID string, uploadID primitive.ObjectID) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{
		"_id":    uploadID,
		"userId": userID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	if result.DeletedCount == 0 {
		return errdefs.ErrNotFound
	}
	return nil
}
