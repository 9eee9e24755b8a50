package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"studyforge/internal/database"
	"studyforge/internal/features"
	"studyforge/internal/models"
	"studyforge/internal/schema"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { db.Close() })
	return db
}

func testRegistry(t *testing.T) *features.Registry {
	t.Helper()
	reg, err := features.Default()
	require.NoError(t, err)
	return reg
}

func verifiedSession(userID string) *models.Session {
	return &models.Session{UserID: userID, Email: userID + "@example.com", EmailVerified: true}
}

// fakeGenerator answers with a fixed value or error. When gate is set,
// Generate blocks until it is closed.
type fakeGenerator struct {
	mu        sync.Mutex
	result    any
	err       error
	gate      chan struct{}
	started   chan struct{}
	calls     atomic.Int32
	prompts   []string
	affirm    string
	affirmErr error
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string, node *schema.Node) (any, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.started != nil {
		g.started <- struct{}{}
	}
	if g.gate != nil {
		<-g.gate
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func (g *fakeGenerator) Affirmation(ctx context.Context) (string, error) {
	return g.affirm, g.affirmErr
}

// failingUsageStore fails every call
type failingUsageStore struct{}

var errStoreDown = errors.New("store unavailable")

func (failingUsageStore) Track(context.Context, string, string) error { return errStoreDown }
func (failingUsageStore) TopUser(context.Context, string, int) ([]models.UsageCount, error) {
	return nil, errStoreDown
}
func (failingUsageStore) TopGlobal(context.Context, int) ([]models.UsageCount, error) {
	return nil, errStoreDown
}
func (failingUsageStore) AllGlobal(context.Context) ([]models.UsageCount, error) {
	return nil, errStoreDown
}
func (failingUsageStore) Stats(context.Context) (*models.AdminStats, error) {
	return nil, errStoreDown
}
