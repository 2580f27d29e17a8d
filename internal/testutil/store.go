package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bwise1/voteledger/internal/db"
	"github.com/bwise1/voteledger/internal/model"
)

// NewTestStore opens a migrated SQLite ledger in a temp directory that is
// removed when the test ends.
func NewTestStore(t *testing.T) *db.SQLiteStore {
	t.Helper()
	store, err := db.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), true)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// SeedEntity creates an entity owned by owner with a zero count.
func SeedEntity(t *testing.T, store interface {
	CreateEntity(context.Context, model.Entity) (model.Entity, error)
}, name string, owner uuid.UUID) model.Entity {
	t.Helper()
	e, err := store.CreateEntity(context.Background(), model.Entity{
		ID:        uuid.New(),
		Name:      name,
		OwnerID:   owner,
		Trend:     model.TrendStable,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return e
}
