package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"studyforge/internal/database"
	"studyforge/internal/models"
)

// HistoryStore is the append-only per-user, per-feature generation log
type HistoryStore interface {
	// Append stores a record. The store assigns the id and the authoritative
	// timestamp; the returned timestamp is a local approximation.
	Append(ctx context.Context, userID, featureID string, input, output any) (*models.HistoryRecord, error)
	// List returns the partition newest first
	List(ctx context.Context, userID, featureID string) ([]models.HistoryRecord, error)
	// Delete removes one record. Deleting an absent id is not an error.
	Delete(ctx context.Context, userID, featureID, id string) error
}

// SQLHistoryStore keeps history in the history table
type SQLHistoryStore struct {
	db *database.DB
}

// NewSQLHistoryStore creates a history store on a MySQL or SQLite database
func NewSQLHistoryStore(db *database.DB) *SQLHistoryStore {
	return &SQLHistoryStore{db: db}
}

func (s *SQLHistoryStore) Append(ctx context.Context, userID, featureID string, input, output any) (*models.HistoryRecord, error) {
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode history input: %w", err)
	}
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to encode history output: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history (id, user_id, feature_id, input_json, output_json) VALUES (?, ?, ?, ?, ?)`,
		id, userID, featureID, string(inputJSON), string(outputJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append history: %w", err)
	}

	return &models.HistoryRecord{
		ID:        id,
		UserID:    userID,
		FeatureID: featureID,
		Input:     input,
		Output:    output,
		Timestamp: time.Now(),
	}, nil
}

func (s *SQLHistoryStore) List(ctx context.Context, userID, featureID string) ([]models.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input_json, output_json, created_at FROM history
		WHERE user_id = ? AND feature_id = ?
		ORDER BY seq DESC`,
		userID, featureID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	records := []models.HistoryRecord{}
	for rows.Next() {
		var (
			rec                   models.HistoryRecord
			inputJSON, outputJSON string
		)
		if err := rows.Scan(&rec.ID, &inputJSON, &outputJSON, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		if err := json.Unmarshal([]byte(inputJSON), &rec.Input); err != nil {
			return nil, fmt.Errorf("failed to decode history input %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(outputJSON), &rec.Output); err != nil {
			return nil, fmt.Errorf("failed to decode history output %s: %w", rec.ID, err)
		}
		rec.UserID = userID
		rec.FeatureID = featureID
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLHistoryStore) Delete(ctx context.Context, userID, featureID, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM history WHERE id = ? AND user_id = ? AND feature_id = ?`,
		id, userID, featureID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}

// MongoHistoryStore keeps history in the history collection
type MongoHistoryStore struct {
	collection *mongo.Collection
}

// NewMongoHistoryStore creates a history store on MongoDB
func NewMongoHistoryStore(db *database.MongoDB) *MongoHistoryStore {
	return &MongoHistoryStore{collection: db.Collection(database.CollectionHistory)}
}

type historyDocument struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	FeatureID string    `bson:"featureId"`
	Input     any       `bson:"input"`
	Output    any       `bson:"output"`
	Timestamp time.Time `bson:"timestamp"`
	Seq       int64     `bson:"seq"` // orders records within one server millisecond
}

func (s *MongoHistoryStore) Append(ctx context.Context, userID, featureID string, input, output any) (*models.HistoryRecord, error) {
	id := uuid.New().String()

	// Upsert on a fresh id so the server stamps the timestamp with $currentDate
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$setOnInsert": bson.M{
				"userId":    userID,
				"featureId": featureID,
				"input":     input,
				"output":    output,
				"seq":       time.Now().UnixNano(),
			},
			"$currentDate": bson.M{"timestamp": true},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append history: %w", err)
	}

	return &models.HistoryRecord{
		ID:        id,
		UserID:    userID,
		FeatureID: featureID,
		Input:     input,
		Output:    output,
		Timestamp: time.Now(),
	}, nil
}

func (s *MongoHistoryStore) List(ctx context.Context, userID, featureID string) ([]models.HistoryRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "seq", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{"userId": userID, "featureId": featureID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []historyDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	records := make([]models.HistoryRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, models.HistoryRecord{
			ID:        doc.ID,
			UserID:    doc.UserID,
			FeatureID: doc.FeatureID,
			Input:     normalizeBSON(doc.Input),
			Output:    normalizeBSON(doc.Output),
			Timestamp: doc.Timestamp,
		})
	}
	return records, nil
}

func (s *MongoHistoryStore) Delete(ctx context.Context, userID, featureID, id string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": id, "userId": userID, "featureId": featureID})
	if err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	return nil
}
