package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TileType classifies a recommendation's content category
type TileType string

const (
	TileTypeKnowledge TileType = "knowledge"
	TileTypeProduct   TileType = "product"
	TileTypeLocation  TileType = "location"
	TileTypeTutorial  TileType = "tutorial"
	TileTypeNews      TileType = "news"
	TileTypeCommunity TileType = "community"
	TileTypeFallback  TileType = "fallback"
)

// ValidTileType reports whether t is a known tile type.
func ValidTileType(t TileType) bool {
	switch t {
	case TileTypeKnowledge, TileTypeProduct, TileTypeLocation,
		TileTypeTutorial, TileTypeNews, TileTypeCommunity, TileTypeFallback:
		return true
	}
	return false
}

// FeedbackAction is a user's verdict on a recommendation
type FeedbackAction string

const (
	FeedbackKeep    FeedbackAction = "keep"
	FeedbackDiscard FeedbackAction = "discard"
)

// Recommendation is one ranked tile belonging to an analysis. Tiles the
// user has acted on are immutable and survive re-ranking; the rest may be
// deleted and replaced when feedback arrives.
type Recommendation struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AnalysisID primitive.ObjectID `bson:"analysisId" json:"analysis_id"`
	UserID     string             `bson:"userId" json:"user_id"`

	Title          string   `bson:"title" json:"title"`
	Description    string   `bson:"description" json:"description"`
	URL            string   `bson:"url,omitempty" json:"url,omitempty"`
	ImageURL       string   `bson:"imageUrl,omitempty" json:"image_url,omitempty"`
	Source         string   `bson:"source" json:"source"`
	RelevanceScore float64  `bson:"relevanceScore" json:"relevance_score"`
	TileType       TileType `bson:"tileType" json:"tile_type"`
	DisplayOrder   int      `bson:"displayOrder" json:"display_order"`

	UserAction   *FeedbackAction `bson:"userAction,omitempty" json:"user_action,omitempty"`
	UserActionAt *time.Time      `bson:"userActionAt,omitempty" json:"user_action_at,omitempty"`

	// ArticleHTML is populated asynchronously by the content generator
	ArticleHTML string `bson:"articleHtml,omitempty" json:"article_html,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
}

// SearchResult is one raw web-search hit in the providers' common shape
type SearchResult struct {
	Title   string  `bson:"title" json:"title"`
	URL     string  `bson:"url" json:"url"`
	Content string  `bson:"content" json:"content"`
	Score   float64 `bson:"score" json:"score"`
	Source  string  `bson:"source" json:"source"`
}

// PageContent is the fetcher's normalized view of a web page
type PageContent struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// ImageInsight is the structured result of visual understanding
type ImageInsight struct {
	VisualDescription string   `json:"visual_description"`
	ExtractedText     string   `json:"extracted_text"`
	SceneType         string   `json:"scene_type"`
	MainSubjects      []string `json:"main_subjects"`
	PossibleIntent    []string `json:"possible_intent"`
}
