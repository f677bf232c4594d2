package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UploadType identifies the kind of artifact a user submitted
type UploadType string

const (
	UploadTypeImage UploadType = "image"
	UploadTypeURL   UploadType = "url"
	UploadTypeText  UploadType = "text"
)

// Upload represents one submitted artifact (image, URL, or free text)
type Upload struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID string             `bson:"userId" json:"user_id"`
	Type   UploadType         `bson:"type" json:"type"`

	// ContentText holds the URL string or the raw text, depending on Type
	ContentText    string `bson:"contentText,omitempty" json:"content_text,omitempty"`
	ImagePath      string `bson:"imagePath,omitempty" json:"-"`
	ImageURL       string `bson:"imageUrl,omitempty" json:"image_url,omitempty"`
	ContentPreview string `bson:"contentPreview" json:"content_preview"`
	FileSize       int64  `bson:"fileSize,omitempty" json:"file_size,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}
