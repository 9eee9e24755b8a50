package models

// FeatureFlag toggles a feature. A feature without a flag is enabled.
type FeatureFlag struct {
	FeatureID string `bson:"_id" json:"feature_id"`
	IsEnabled bool   `bson:"isEnabled" json:"is_enabled"`
}

// BroadcastMessage is the site-wide banner configured by admins
type BroadcastMessage struct {
	Message  string `bson:"broadcastMessage" json:"message"`
	IsActive bool   `bson:"isBroadcastActive" json:"is_active"`
}
