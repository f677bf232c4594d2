package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TaskStatus represents the lifecycle state of an analysis task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task represents one asynchronous analysis run driven by the orchestrator.
// Progress only ever moves forward; Context accumulates per-stage results
// keyed by stage name and is the shape returned to status pollers.
type Task struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID   string             `bson:"userId" json:"user_id"`
	UploadID primitive.ObjectID `bson:"uploadId" json:"upload_id"`

	Status   TaskStatus             `bson:"status" json:"status"`
	Progress int                    `bson:"progress" json:"progress"`
	Context  map[string]interface{} `bson:"context,omitempty" json:"context,omitempty"`
	Error    string                 `bson:"error,omitempty" json:"error,omitempty"`

	CreatedAt   time.Time  `bson:"createdAt" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updated_at"`
	StartedAt   *time.Time `bson:"startedAt,omitempty" json:"started_at,omitempty"`
	CompletedAt *time.Time `bson:"completedAt,omitempty" json:"completed_at,omitempty"`
}
