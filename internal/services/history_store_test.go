package services

import (
	"context"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyforge/internal/database"
)

func historyStoreContract(t *testing.T, store HistoryStore, userID string) {
	ctx := context.Background()

	t.Run("list is newest first and round-trips values", func(t *testing.T) {
		inputs := []any{
			"Photosynthesis",
			map[string]any{"topicA": "Rivers", "topicB": "Economies"},
			"Black holes",
		}
		output := map[string]any{
			"topic":   "Photosynthesis",
			"analogy": "A kitchen",
			"steps":   []any{"one", "two"},
			"nested":  map[string]any{"note": "x"},
		}

		for _, in := range inputs {
			rec, err := store.Append(ctx, userID, "analogy-generator", in, output)
			require.NoError(t, err)
			assert.NotEmpty(t, rec.ID)
			assert.False(t, rec.Timestamp.IsZero())
		}

		records, err := store.List(ctx, userID, "analogy-generator")
		require.NoError(t, err)
		require.Len(t, records, 3)

		for i := range records {
			want := inputs[len(inputs)-1-i]
			if diff := cmp.Diff(want, records[i].Input); diff != "" {
				t.Errorf("record %d input mismatch (-want +got):\n%s", i, diff)
			}
			if diff := cmp.Diff(output, records[i].Output); diff != "" {
				t.Errorf("record %d output mismatch (-want +got):\n%s", i, diff)
			}
			if i > 0 {
				assert.False(t, records[i].Timestamp.After(records[i-1].Timestamp), "timestamps must not increase")
			}
		}
	})

	t.Run("partitions are isolated", func(t *testing.T) {
		_, err := store.Append(ctx, userID+"-other", "analogy-generator", "Secret", "x")
		require.NoError(t, err)
		_, err = store.Append(ctx, userID, "text-summarizer", "Text", map[string]any{"summary": "s"})
		require.NoError(t, err)

		records, err := store.List(ctx, userID, "analogy-generator")
		require.NoError(t, err)
		for _, r := range records {
			assert.NotEqual(t, "Secret", r.Input)
		}

		other, err := store.List(ctx, userID, "text-summarizer")
		require.NoError(t, err)
		assert.Len(t, other, 1)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		rec, err := store.Append(ctx, userID, "socratic-questioner", "Justice", map[string]any{"question": "q"})
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, userID, "socratic-questioner", rec.ID))
		require.NoError(t, store.Delete(ctx, userID, "socratic-questioner", rec.ID))
		require.NoError(t, store.Delete(ctx, userID, "socratic-questioner", "does-not-exist"))

		records, err := store.List(ctx, userID, "socratic-questioner")
		require.NoError(t, err)
		for _, r := range records {
			assert.NotEqual(t, rec.ID, r.ID)
		}
	})

	t.Run("other users cannot delete", func(t *testing.T) {
		rec, err := store.Append(ctx, userID, "concept-mapper", "Cells", map[string]any{"x": "y"})
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, "intruder", "concept-mapper", rec.ID))

		records, err := store.List(ctx, userID, "concept-mapper")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, rec.ID, records[0].ID)
	})

	t.Run("empty partition lists nothing", func(t *testing.T) {
		records, err := store.List(ctx, "nobody", "concept-mapper")
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestSQLHistoryStore(t *testing.T) {
	historyStoreContract(t, NewSQLHistoryStore(newTestDB(t)), "user-1")
}

func TestMongoHistoryStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("TEST_MONGODB_URI not set")
	}

	db, err := database.NewMongoDB(uri)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(context.Background()) })
	require.NoError(t, db.Initialize(context.Background()))

	userID := "history-test-" + uuid.NewString()
	historyStoreContract(t, NewMongoHistoryStore(db), userID)
}
