package models

import "time"

// UsageCount is an invocation counter for one feature, either per user or global
type UsageCount struct {
	FeatureID string     `json:"feature_id"`
	Count     int64      `json:"count"`
	LastUsed  *time.Time `json:"last_used,omitempty"` // per-user counters only
}

// ToolUsage is a counter enriched with catalog metadata for display
type ToolUsage struct {
	FeatureID string `json:"feature_id"`
	Title     string `json:"title"`
	Category  string `json:"category"`
	Count     int64  `json:"count"`
}

// AdminStats summarises global usage
type AdminStats struct {
	TotalInvocations int64 `json:"total_invocations"`
	UniqueToolsCount int   `json:"unique_tools_count"`
}
