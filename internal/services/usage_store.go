package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"studyforge/internal/database"
	"studyforge/internal/models"
)

// UsageStore holds per-user and global invocation counters.
// Every increment is atomic in the backend; nothing reads then writes.
type UsageStore interface {
	Track(ctx context.Context, userID, featureID string) error
	TopUser(ctx context.Context, userID string, n int) ([]models.UsageCount, error)
	TopGlobal(ctx context.Context, n int) ([]models.UsageCount, error)
	AllGlobal(ctx context.Context) ([]models.UsageCount, error)
	Stats(ctx context.Context) (*models.AdminStats, error)
}

// SQLUsageStore keeps counters in tool_usage and global_tool_usage
type SQLUsageStore struct {
	db *database.DB
}

// NewSQLUsageStore creates a usage store on a MySQL or SQLite database
func NewSQLUsageStore(db *database.DB) *SQLUsageStore {
	return &SQLUsageStore{db: db}
}

func (s *SQLUsageStore) Track(ctx context.Context, userID, featureID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin usage transaction: %w", err)
	}
	defer tx.Rollback()

	userUpsert := `INSERT INTO tool_usage (user_id, feature_id, count, last_used) VALUES (?, ?, 1, CURRENT_TIMESTAMP)` +
		s.db.Upsert([]string{"user_id", "feature_id"}, "count = count + 1, last_used = CURRENT_TIMESTAMP")
	if _, err := tx.ExecContext(ctx, userUpsert, userID, featureID); err != nil {
		return fmt.Errorf("failed to increment user usage: %w", err)
	}

	globalUpsert := `INSERT INTO global_tool_usage (feature_id, count) VALUES (?, 1)` +
		s.db.Upsert([]string{"feature_id"}, "count = count + 1")
	if _, err := tx.ExecContext(ctx, globalUpsert, featureID); err != nil {
		return fmt.Errorf("failed to increment global usage: %w", err)
	}

	return tx.Commit()
}

func (s *SQLUsageStore) TopUser(ctx context.Context, userID string, n int) ([]models.UsageCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT feature_id, count, last_used FROM tool_usage
		WHERE user_id = ?
		ORDER BY count DESC, last_used DESC
		LIMIT ?`,
		userID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query user usage: %w", err)
	}
	defer rows.Close()

	counts := []models.UsageCount{}
	for rows.Next() {
		var (
			uc       models.UsageCount
			lastUsed sql.NullTime
		)
		if err := rows.Scan(&uc.FeatureID, &uc.Count, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan user usage: %w", err)
		}
		if lastUsed.Valid {
			t := lastUsed.Time
			uc.LastUsed = &t
		}
		counts = append(counts, uc)
	}
	return counts, rows.Err()
}

func (s *SQLUsageStore) TopGlobal(ctx context.Context, n int) ([]models.UsageCount, error) {
	return s.queryGlobal(ctx, `SELECT feature_id, count FROM global_tool_usage ORDER BY count DESC, feature_id LIMIT ?`, n)
}

func (s *SQLUsageStore) AllGlobal(ctx context.Context) ([]models.UsageCount, error) {
	return s.queryGlobal(ctx, `SELECT feature_id, count FROM global_tool_usage ORDER BY count DESC, feature_id`)
}

func (s *SQLUsageStore) queryGlobal(ctx context.Context, query string, args ...any) ([]models.UsageCount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query global usage: %w", err)
	}
	defer rows.Close()

	counts := []models.UsageCount{}
	for rows.Next() {
		var uc models.UsageCount
		if err := rows.Scan(&uc.FeatureID, &uc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan global usage: %w", err)
		}
		counts = append(counts, uc)
	}
	return counts, rows.Err()
}

func (s *SQLUsageStore) Stats(ctx context.Context) (*models.AdminStats, error) {
	var stats models.AdminStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(count), 0), COUNT(*) FROM global_tool_usage`,
	).Scan(&stats.TotalInvocations, &stats.UniqueToolsCount)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage stats: %w", err)
	}
	return &stats, nil
}

// MongoUsageStore keeps counters in tool_usage and global_tool_usage
type MongoUsageStore struct {
	users  *mongo.Collection
	global *mongo.Collection
}

// NewMongoUsageStore creates a usage store on MongoDB
func NewMongoUsageStore(db *database.MongoDB) *MongoUsageStore {
	return &MongoUsageStore{
		users:  db.Collection(database.CollectionToolUsage),
		global: db.Collection(database.CollectionGlobalToolUsage),
	}
}

type usageDocument struct {
	FeatureID string    `bson:"featureId"`
	Count     int64     `bson:"count"`
	LastUsed  time.Time `bson:"lastUsed"`
}

type globalUsageDocument struct {
	FeatureID string `bson:"_id"`
	Count     int64  `bson:"count"`
}

func (s *MongoUsageStore) Track(ctx context.Context, userID, featureID string) error {
	upsert := options.Update().SetUpsert(true)

	_, err := s.users.UpdateOne(ctx,
		bson.M{"userId": userID, "featureId": featureID},
		bson.M{
			"$inc":         bson.M{"count": 1},
			"$currentDate": bson.M{"lastUsed": true},
		},
		upsert,
	)
	if err != nil {
		return fmt.Errorf("failed to increment user usage: %w", err)
	}

	_, err = s.global.UpdateOne(ctx,
		bson.M{"_id": featureID},
		bson.M{"$inc": bson.M{"count": 1}},
		upsert,
	)
	if err != nil {
		return fmt.Errorf("failed to increment global usage: %w", err)
	}
	return nil
}

func (s *MongoUsageStore) TopUser(ctx context.Context, userID string, n int) ([]models.UsageCount, error) {
	if n <= 0 {
		return []models.UsageCount{}, nil // a zero limit means unlimited to Mongo
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "count", Value: -1}, {Key: "lastUsed", Value: -1}}).
		SetLimit(int64(n))

	cursor, err := s.users.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query user usage: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []usageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode user usage: %w", err)
	}

	counts := make([]models.UsageCount, 0, len(docs))
	for _, doc := range docs {
		lastUsed := doc.LastUsed
		counts = append(counts, models.UsageCount{FeatureID: doc.FeatureID, Count: doc.Count, LastUsed: &lastUsed})
	}
	return counts, nil
}

func (s *MongoUsageStore) TopGlobal(ctx context.Context, n int) ([]models.UsageCount, error) {
	if n <= 0 {
		return []models.UsageCount{}, nil
	}
	return s.findGlobal(ctx, options.Find().SetLimit(int64(n)))
}

func (s *MongoUsageStore) AllGlobal(ctx context.Context) ([]models.UsageCount, error) {
	return s.findGlobal(ctx, options.Find())
}

func (s *MongoUsageStore) findGlobal(ctx context.Context, opts *options.FindOptions) ([]models.UsageCount, error) {
	opts.SetSort(bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}})

	cursor, err := s.global.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query global usage: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []globalUsageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode global usage: %w", err)
	}

	counts := make([]models.UsageCount, 0, len(docs))
	for _, doc := range docs {
		counts = append(counts, models.UsageCount{FeatureID: doc.FeatureID, Count: doc.Count})
	}
	return counts, nil
}

func (s *MongoUsageStore) Stats(ctx context.Context) (*models.AdminStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$count"}}},
			{Key: "tools", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := s.global.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage stats: %w", err)
	}
	defer cursor.Close(ctx)

	var result []struct {
		Total int64 `bson:"total"`
		Tools int   `bson:"tools"`
	}
	if err := cursor.All(ctx, &result); err != nil {
		return nil, fmt.Errorf("failed to decode usage stats: %w", err)
	}

	stats := &models.AdminStats{}
	if len(result) > 0 {
		stats.TotalInvocations = result[0].Total
		stats.UniqueToolsCount = result[0].Tools
	}
	return stats, nil
}
