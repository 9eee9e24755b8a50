package models

import "time"

// HistoryRecord is one successful generation saved for a user
type HistoryRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	FeatureID string    `json:"feature_id"`
	Input     any       `json:"input"`  // string, or an object of named fields
	Output    any       `json:"output"` // conformed generation result
	Timestamp time.Time `json:"timestamp"`
}
