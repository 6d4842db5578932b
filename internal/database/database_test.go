package database

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_AppliesSessionPragmas(t *testing.T) {
	m := NewManager(zerolog.Nop(), filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, m.Connect())
	defer m.Close()

	var journalMode string
	require.NoError(t, m.DB.Raw("PRAGMA journal_mode;").Scan(&journalMode).Error)
	assert.Equal(t, "wal", journalMode)

	var fk int
	require.NoError(t, m.DB.Raw("PRAGMA foreign_keys;").Scan(&fk).Error)
	assert.Equal(t, 1, fk)
}

func TestSetup_MigratesSchema(t *testing.T) {
	m := NewManager(zerolog.Nop(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, m.Connect())
	defer m.Close()

	require.NoError(t, m.Setup())
	for _, table := range []string{"flights", "events", "changes", "chunks"} {
		assert.True(t, m.DB.Migrator().HasTable(table), "missing table %s", table)
	}

	// Running the migration again is a no-op.
	require.NoError(t, m.Setup())
}
