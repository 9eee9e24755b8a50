package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"studyforge/internal/database"
	"studyforge/internal/models"
)

// siteConfigID is the key of the singleton site configuration row/document
const siteConfigID = "config"

// SiteStore persists feature flags and the broadcast banner
type SiteStore interface {
	// Flags returns every stored flag. Features without an entry are enabled.
	Flags(ctx context.Context) (map[string]bool, error)
	SetFlag(ctx context.Context, featureID string, enabled bool) error
	// Broadcast returns the stored banner, or nil when none was ever set
	Broadcast(ctx context.Context) (*models.BroadcastMessage, error)
	SetBroadcast(ctx context.Context, msg models.BroadcastMessage) error
}

// SQLSiteStore keeps site configuration in feature_flags and site_info
type SQLSiteStore struct {
	db *database.DB
}

// NewSQLSiteStore creates a site store on a MySQL or SQLite database
func NewSQLSiteStore(db *database.DB) *SQLSiteStore {
	return &SQLSiteStore{db: db}
}

func (s *SQLSiteStore) Flags(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT feature_id, is_enabled FROM feature_flags`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature flags: %w", err)
	}
	defer rows.Close()

	flags := make(map[string]bool)
	for rows.Next() {
		var (
			id      string
			enabled bool
		)
		if err := rows.Scan(&id, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan feature flag: %w", err)
		}
		flags[id] = enabled
	}
	return flags, rows.Err()
}

func (s *SQLSiteStore) SetFlag(ctx context.Context, featureID string, enabled bool) error {
	query := `INSERT INTO feature_flags (feature_id, is_enabled) VALUES (?, ?)` +
		s.db.Upsert([]string{"feature_id"}, "is_enabled = "+s.db.Inserted("is_enabled"))
	if _, err := s.db.ExecContext(ctx, query, featureID, enabled); err != nil {
		return fmt.Errorf("failed to set feature flag: %w", err)
	}
	return nil
}

func (s *SQLSiteStore) Broadcast(ctx context.Context) (*models.BroadcastMessage, error) {
	var msg models.BroadcastMessage
	err := s.db.QueryRowContext(ctx,
		`SELECT broadcast_message, is_broadcast_active FROM site_info WHERE id = ?`, siteConfigID,
	).Scan(&msg.Message, &msg.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query broadcast: %w", err)
	}
	return &msg, nil
}

func (s *SQLSiteStore) SetBroadcast(ctx context.Context, msg models.BroadcastMessage) error {
	query := `INSERT INTO site_info (id, broadcast_message, is_broadcast_active) VALUES (?, ?, ?)` +
		s.db.Upsert([]string{"id"}, fmt.Sprintf("broadcast_message = %s, is_broadcast_active = %s",
			s.db.Inserted("broadcast_message"), s.db.Inserted("is_broadcast_active")))
	if _, err := s.db.ExecContext(ctx, query, siteConfigID, msg.Message, msg.IsActive); err != nil {
		return fmt.Errorf("failed to set broadcast: %w", err)
	}
	return nil
}

// MongoSiteStore keeps flags in feature_flags and the banner in site_info
type MongoSiteStore struct {
	flags *mongo.Collection
	site  *mongo.Collection
}

// NewMongoSiteStore creates a site store on MongoDB
func NewMongoSiteStore(db *database.MongoDB) *MongoSiteStore {
	return &MongoSiteStore{
		flags: db.Collection(database.CollectionFeatureFlags),
		site:  db.Collection(database.CollectionSiteInfo),
	}
}

func (s *MongoSiteStore) Flags(ctx context.Context) (map[string]bool, error) {
	cursor, err := s.flags.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query feature flags: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.FeatureFlag
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode feature flags: %w", err)
	}

	flags := make(map[string]bool, len(docs))
	for _, f := range docs {
		flags[f.FeatureID] = f.IsEnabled
	}
	return flags, nil
}

func (s *MongoSiteStore) SetFlag(ctx context.Context, featureID string, enabled bool) error {
	_, err := s.flags.UpdateOne(ctx,
		bson.M{"_id": featureID},
		bson.M{"$set": bson.M{"isEnabled": enabled}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to set feature flag: %w", err)
	}
	return nil
}

func (s *MongoSiteStore) Broadcast(ctx context.Context) (*models.BroadcastMessage, error) {
	var msg models.BroadcastMessage
	err := s.site.FindOne(ctx, bson.M{"_id": siteConfigID}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query broadcast: %w", err)
	}
	return &msg, nil
}

func (s *MongoSiteStore) SetBroadcast(ctx context.Context, msg models.BroadcastMessage) error {
	_, err := s.site.UpdateOne(ctx,
		bson.M{"_id": siteConfigID},
		bson.M{"$set": bson.M{
			"broadcastMessage":  msg.Message,
			"isBroadcastActive": msg.IsActive,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to set broadcast: %w", err)
	}
	return nil
}
