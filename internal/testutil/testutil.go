// Package testutil provides shared test helpers for setting up vaults and
// session log databases.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/starford/dagaz/internal/metadata"
	"github.com/starford/dagaz/internal/storage"
	"github.com/starford/dagaz/internal/timelog"
)

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, storage.Provider) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// TestTimeLog creates a temporary session log database that is automatically
// cleaned up.
func TestTimeLog(t *testing.T) *timelog.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "dagaz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := timelog.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestEngine creates a metadata engine over the given provider with a fixed
// clock, closed automatically at the end of the test.
func TestEngine(t *testing.T, store storage.Provider, params metadata.Params, now time.Time) *metadata.Engine {
	t.Helper()
	eng := metadata.NewEngine(metadata.NewVaultSource(store), params,
		metadata.WithClock(func() time.Time { return now }),
	)
	t.Cleanup(eng.Close)
	return eng
}
