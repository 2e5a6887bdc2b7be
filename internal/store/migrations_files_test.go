package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var migrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsHaveUpAndDownScripts(t *testing.T) {
	migrations, err := LoadMigrations(migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.NotEmpty(t, strings.TrimSpace(m.Down), "migration %s needs a down script", m.ID())
		if i > 0 {
			assert.Less(t, migrations[i-1].Version, m.Version)
		}
	}
	assert.Equal(t, "0001_users_sessions.up.sql", migrations[0].ID())
}

func TestLoadMigrationsRejectsMissingUp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_init.down.sql"), []byte("DROP TABLE x;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	_, err := LoadMigrations(dir)
	assert.ErrorContains(t, err, "no up script")
}

func TestLoadMigrationsRejectsConflictingNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_init.up.sql"), []byte("SELECT 1;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_other.down.sql"), []byte("SELECT 1;"), 0o644))

	_, err := LoadMigrations(dir)
	assert.ErrorContains(t, err, "conflicting names")
}

func TestReportsMigrationIndexesTurkishFullText(t *testing.T) {
	migrations, err := LoadMigrations(migrationsDir)
	require.NoError(t, err)

	var up string
	for _, m := range migrations {
		if m.Name == "reports" {
			up = m.Up
		}
	}
	require.NotEmpty(t, up)
	for _, snippet := range []string{
		"to_tsvector('turkish'",
		"USING GIN (fts)",
		"CHECK (status IN ('Açık', 'İnceleniyor', 'Çözüldü'))",
		"REFERENCES reports(id) ON DELETE CASCADE",
	} {
		assert.Contains(t, up, snippet)
	}
}
