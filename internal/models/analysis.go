package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AnalysisStatus tracks how far the pipeline got for one artifact. The
// record is first persisted once expand finishes, so expand_complete is
// the earliest stored status. Transitions are
// expand_complete -> completed, or failed at any point.
type AnalysisStatus string

const (
	AnalysisStatusExpandComplete AnalysisStatus = "expand_complete"
	AnalysisStatusCompleted      AnalysisStatus = "completed"
	AnalysisStatusFailed         AnalysisStatus = "failed"
)

// IntentJudgment is the structured output of the intent-analysis call
type IntentJudgment struct {
	PrimaryIntent      string   `bson:"primaryIntent" json:"primary_intent"`
	InterestLevel      int      `bson:"interestLevel" json:"interest_level"`
	Keywords           []string `bson:"keywords" json:"keywords"`
	InterestTags       []string `bson:"interestTags" json:"interest_tags"`
	SearchQueries      []string `bson:"searchQueries" json:"search_queries"`
	ContentPreferences []string `bson:"contentPreferences" json:"content_preferences"`
	Reasoning          string   `bson:"reasoning,omitempty" json:"reasoning,omitempty"`
}

// Analysis is the durable output of the decode and expand stages for one
// upload. It survives after the driving task is gone; FullContext keeps the
// complete accumulated pipeline context for later article generation.
type Analysis struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UploadID primitive.ObjectID `bson:"uploadId" json:"upload_id"`
	UserID   string             `bson:"userId" json:"user_id"`

	VisualDescription string                 `bson:"visualDescription,omitempty" json:"visual_description,omitempty"`
	ExtractedText     string                 `bson:"extractedText,omitempty" json:"extracted_text,omitempty"`
	IntentJudgment    *IntentJudgment        `bson:"intentJudgment,omitempty" json:"intent_judgment,omitempty"`
	Keywords          []string               `bson:"keywords" json:"keywords"`
	InterestTags      []string               `bson:"interestTags" json:"interest_tags"`
	FullContext       map[string]interface{} `bson:"fullContext,omitempty" json:"full_context,omitempty"`

	Status AnalysisStatus `bson:"status" json:"status"`
	Error  string         `bson:"error,omitempty" json:"error,omitempty"`

	CreatedAt   time.Time  `bson:"createdAt" json:"created_at"`
	CompletedAt *time.Time `bson:"completedAt,omitempty" json:"completed_at,omitempty"`
}

// StoredSearchResults recovers the raw search results kept in FullContext.
// After a Mongo round trip the map holds primitive.A of bson.M rather than
// typed slices, so the value is re-decoded through BSON. Returns nil when
// the analysis has no usable search results.
func (a *Analysis) StoredSearchResults() []SearchResult {
	raw, ok := a.FullContext["search_results"]
	if !ok {
		return nil
	}
	if typed, ok := raw.([]SearchResult); ok {
		return typed
	}
	doc, err := bson.Marshal(bson.M{"results": raw})
	if err != nil {
		return nil
	}
	var wrapper struct {
		Results []SearchResult `bson:"results"`
	}
	if err := bson.Unmarshal(doc, &wrapper); err != nil {
		return nil
	}
	return wrapper.Results
}
