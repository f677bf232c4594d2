package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Bounds for the preference recency windows and per-feedback keyword intake
const (
	MaxPreferenceKeywords = 50
	KeywordsPerFeedback   = 5
)

// UserPreference is one profile per user, mutated only by the feedback
// loop. Keyword sets are bounded recency windows: newest entries are kept,
// oldest evicted. A keyword is never in both the liked and disliked set.
type UserPreference struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID string             `bson:"userId" json:"user_id"`

	LikedKeywords    []string   `bson:"likedKeywords" json:"liked_keywords"`
	DislikedKeywords []string   `bson:"dislikedKeywords" json:"disliked_keywords"`
	PreferredTypes   []TileType `bson:"preferredTileTypes" json:"preferred_tile_types"`
	AvoidedTypes     []TileType `bson:"avoidedTileTypes" json:"avoided_tile_types"`

	TotalKeeps    int `bson:"totalKeeps" json:"total_keeps"`
	TotalDiscards int `bson:"totalDiscards" json:"total_discards"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// Apply folds one feedback event into the profile. The first
// KeywordsPerFeedback keywords move into the agreeing set and are evicted
// from the opposite set; same rule for the tile type. Both keyword sets are
// then truncated to the most recent MaxPreferenceKeywords entries.
func (p *UserPreference) Apply(keywords []string, tileType TileType, action FeedbackAction) {
	if len(keywords) > KeywordsPerFeedback {
		keywords = keywords[:KeywordsPerFeedback]
	}

	agree, oppose := &p.LikedKeywords, &p.DislikedKeywords
	agreeTypes, opposeTypes := &p.PreferredTypes, &p.AvoidedTypes
	if action == FeedbackDiscard {
		agree, oppose = oppose, agree
		agreeTypes, opposeTypes = opposeTypes, agreeTypes
	}

	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if !containsString(*agree, kw) {
			*agree = append(*agree, kw)
		}
		*oppose = removeString(*oppose, kw)
	}

	if tileType != "" {
		if !containsTileType(*agreeTypes, tileType) {
			*agreeTypes = append(*agreeTypes, tileType)
		}
		*opposeTypes = removeTileType(*opposeTypes, tileType)
	}

	if action == FeedbackKeep {
		p.TotalKeeps++
	} else {
		p.TotalDiscards++
	}

	p.LikedKeywords = tail(p.LikedKeywords, MaxPreferenceKeywords)
	p.DislikedKeywords = tail(p.DislikedKeywords, MaxPreferenceKeywords)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func containsTileType(list []TileType, t TileType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func removeTileType(list []TileType, t TileType) []TileType {
	out := list[:0]
	for _, v := range list {
		if v != t {
			out = append(out, v)
		}
	}
	return out
}

func tail(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[len(list)-n:]
}
