package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"mosaic/internal/database"
	"mosaic/internal/errdefs"
	"mosaic/internal/models"
)

// ErrEmailTaken is returned on signup with an already-registered email
var ErrEmailTaken = errors.New("email already registered")

// UserStore handles MongoDB CRUD for user accounts
type UserStore struct {
	collection *mongo.Collection
}

func NewUserStore(mongodb *database.MongoDB) *UserStore {
	return &UserStore{
		collection: mongodb.Collection(database.CollectionUsers),
	}
}

// Create inserts a new user. Email uniqueness is enforced by the unique
// index; a duplicate-key write maps to ErrEmailTaken.
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = time.Now()

	result, err := s.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

// GetByEmail looks a user up by normalized email
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errdefs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetByID looks a user up by ID
func (s *UserStore) GetByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	var user models.User
	err := s.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errdefs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// TouchLogin records a successful sign-in
func (s *UserStore) TouchLogin(ctx context.Context, userID primitive.ObjectID) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"lastLoginAt": time.Now()}})
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}
