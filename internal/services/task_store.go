package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"mosaic/internal/database"
	"mosaic/internal/errdefs"
	"mosaic/internal/models"
)

// TaskStore handles MongoDB CRUD for analysis tasks
type TaskStore struct {
	collection *mongo.Collection
}

// NewTaskStore creates a new task store
func NewTaskStore(mongodb *database.MongoDB) *TaskStore {
	return &TaskStore{
		collection: mongodb.Collection(database.CollectionTasks),
	}
}

// Create inserts a new task in pending state
func (s *TaskStore) Create(ctx context.Context, task *models.Task) error {
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}

	result, err := s.collection.InsertOne(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	task.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

// GetByID retrieves a task by ID, scoped to user
func (s *TaskStore) GetByID(ctx context.Context, userID string, taskID primitive.ObjectID) (*models.Task, error) {
	var task models.Task
	err := s.collection.FindOne(ctx, bson.M{
		"_id":    taskID,
		"userId": userID,
	}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errdefs.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// FindActiveForUpload returns the processing or pending task for an upload,
// if one exists. Used for idempotent submission.
func (s *TaskStore) FindActiveForUpload(ctx context.Context, uploadID primitive.ObjectID) (*models.Task, error) {
	var task models.Task
	err := s.collection.FindOne(ctx, bson.M{
		"uploadId": uploadID,
		"status":   bson.M{"$in": bson.A{models.TaskStatusPending, models.TaskStatusProcessing}},
	}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active task: %w", err)
	}
	return &task, nil
}

// Checkpoint advances a task's progress and merges the context snapshot.
// Progress never moves backwards: the update is guarded on the stored value.
func (s *TaskStore) Checkpoint(ctx context.Context, taskID primitive.ObjectID, progress int, taskContext map[string]interface{}) error {
	update := bson.M{
		"progress":  progress,
		"updatedAt": time.Now(),
	}
	if taskContext != nil {
		update["context"] = taskContext
	}

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": taskID, "progress": bson.M{"$lte": progress}},
		bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("failed to checkpoint task: %w", err)
	}
	return nil
}

// MarkProcessing moves a pending task into processing
func (s *TaskStore) MarkProcessing(ctx context.Context, taskID primitive.ObjectID, progress int) error {
	now := time.Now()
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": taskID},
		bson.M{"$set": bson.M{
			"status":    models.TaskStatusProcessing,
			"progress":  progress,
			"startedAt": now,
			"updatedAt": now,
		}})
	if err != nil {
		return fmt.Errorf("failed to mark task processing: %w", err)
	}
	return nil
}

// MarkCompleted finalizes a task at progress 100 with its final context
func (s *TaskStore) MarkCompleted(ctx context.Context, taskID primitive.ObjectID, taskContext map[string]interface{}) error {
	now := time.Now()
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": taskID},
		bson.M{"$set": bson.M{
			"status":      models.TaskStatusCompleted,
			"progress":    100,
			"context":     taskContext,
			"completedAt": now,
			"updatedAt":   now,
		}})
	if err != nil {
		return fmt.Errorf("failed to mark task completed: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure. Progress stays at the last
// successful checkpoint.
func (s *TaskStore) MarkFailed(ctx context.Context, taskID primitive.ObjectID, taskErr string) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": taskID},
		bson.M{"$set": bson.M{
			"status":    models.TaskStatusFailed,
			"error":     taskErr,
			"updatedAt": time.Now(),
		}})
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	return nil
}

// ReapStale marks tasks stuck since before cutoff as failed: processing
// tasks whose process died mid-run, and pending tasks that were created
// but never picked up. Both block idempotent resubmission until failed.
func (s *TaskStore) ReapStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.collection.UpdateMany(ctx,
		bson.M{"$or": bson.A{
			bson.M{
				"status":    models.TaskStatusProcessing,
				"startedAt": bson.M{"$lt": cutoff},
			},
			bson.M{
				"status":    models.TaskStatusPending,
				"createdAt": bson.M{"$lt": cutoff},
			},
		}},
		bson.M{"$set": bson.M{
			"status":    models.TaskStatusFailed,
			"error":     "task orphaned: no progress within maximum age",
			"updatedAt": time.Now(),
		}})
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale tasks: %w", err)
	}
	return result.ModifiedCount, nil
}
