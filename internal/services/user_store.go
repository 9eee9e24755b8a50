package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"studyforge/internal/database"
	"studyforge/internal/models"
)

// ErrDuplicateEmail is returned when an account with the email already exists
var ErrDuplicateEmail = errors.New("email already registered")

// UserStore persists accounts and their mailed action tokens
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	IncrementTokenVersion(ctx context.Context, id string) error

	CreateToken(ctx context.Context, token *models.ActionToken) error
	// ConsumeToken deletes and returns a token of the given purpose
	ConsumeToken(ctx context.Context, token, purpose string) (*models.ActionToken, error)
	DeleteTokens(ctx context.Context, userID, purpose string) error
	PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// SQLUserStore keeps accounts in users and action_tokens
type SQLUserStore struct {
	db *database.DB
}

// NewSQLUserStore creates a user store on a MySQL or SQLite database
func NewSQLUserStore(db *database.DB) *SQLUserStore {
	return &SQLUserStore{db: db}
}

func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLUserStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, email_verified, provider, role, token_version, created_at, last_login_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.EmailVerified, user.Provider, user.Role,
		user.TokenVersion, user.CreatedAt.UTC(), nullTime(user.LastLoginAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

const userColumns = `id, email, password_hash, email_verified, provider, role, token_version, created_at, last_login_at`

func (s *SQLUserStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *SQLUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (s *SQLUserStore) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var (
		user      models.User
		lastLogin sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.EmailVerified, &user.Provider,
		&user.Role, &user.TokenVersion, &user.CreatedAt, &lastLogin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if lastLogin.Valid {
		user.LastLoginAt = lastLogin.Time
	}
	return &user, nil
}

func (s *SQLUserStore) UpdateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, email_verified = ?, provider = ?, role = ?, last_login_at = ? WHERE id = ?`,
		user.PasswordHash, user.EmailVerified, user.Provider, user.Role, nullTime(user.LastLoginAt), user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (s *SQLUserStore) IncrementTokenVersion(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE users SET token_version = token_version + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to increment token version: %w", err)
	}
	return nil
}

func (s *SQLUserStore) CreateToken(ctx context.Context, token *models.ActionToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO action_tokens (token, user_id, purpose, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		token.Token, token.UserID, token.Purpose, token.ExpiresAt.UTC(), token.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

func (s *SQLUserStore) ConsumeToken(ctx context.Context, token, purpose string) (*models.ActionToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin token transaction: %w", err)
	}
	defer tx.Rollback()

	t := models.ActionToken{Token: token}
	err = tx.QueryRowContext(ctx,
		`SELECT user_id, purpose, expires_at, created_at FROM action_tokens WHERE token = ? AND purpose = ?`,
		token, purpose,
	).Scan(&t.UserID, &t.Purpose, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM action_tokens WHERE token = ?`, token)
	if err != nil {
		return nil, fmt.Errorf("failed to delete token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit token: %w", err)
	}
	return &t, nil
}

func (s *SQLUserStore) DeleteTokens(ctx context.Context, userID, purpose string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM action_tokens WHERE user_id = ? AND purpose = ?`, userID, purpose); err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	return nil
}

func (s *SQLUserStore) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM action_tokens WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge tokens: %w", err)
	}
	return res.RowsAffected()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// MongoUserStore keeps accounts in users and action_tokens
type MongoUserStore struct {
	users  *mongo.Collection
	tokens *mongo.Collection
}

// NewMongoUserStore creates a user store on MongoDB
func NewMongoUserStore(db *database.MongoDB) *MongoUserStore {
	return &MongoUserStore{
		users:  db.Collection(database.CollectionUsers),
		tokens: db.Collection(database.CollectionActionTokens),
	}
}

func (s *MongoUserStore) CreateUser(ctx context.Context, user *models.User) error {
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *MongoUserStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoUserStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *MongoUserStore) UpdateUser(ctx context.Context, user *models.User) error {
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": user.ID},
		bson.M{"$set": bson.M{
			"passwordHash":  user.PasswordHash,
			"emailVerified": user.EmailVerified,
			"provider":      user.Provider,
			"role":          user.Role,
			"lastLoginAt":   user.LastLoginAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (s *MongoUserStore) IncrementTokenVersion(ctx context.Context, id string) error {
	_, err := s.users.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"tokenVersion": 1}},
	)
	if err != nil {
		return fmt.Errorf("failed to increment token version: %w", err)
	}
	return nil
}

func (s *MongoUserStore) CreateToken(ctx context.Context, token *models.ActionToken) error {
	if _, err := s.tokens.InsertOne(ctx, token); err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}
	return nil
}

func (s *MongoUserStore) ConsumeToken(ctx context.Context, token, purpose string) (*models.ActionToken, error) {
	var t models.ActionToken
	err := s.tokens.FindOneAndDelete(ctx, bson.M{"_id": token, "purpose": purpose}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume token: %w", err)
	}
	return &t, nil
}

func (s *MongoUserStore) DeleteTokens(ctx context.Context, userID, purpose string) error {
	if _, err := s.tokens.DeleteMany(ctx, bson.M{"userId": userID, "purpose": purpose}); err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	return nil
}

func (s *MongoUserStore) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.tokens.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to purge tokens: %w", err)
	}
	return res.DeletedCount, nil
}
