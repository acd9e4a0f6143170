package migrations

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSchema_ContainsBothTables(t *testing.T) {
	entries, err := embeddedSchema.ReadDir(schemaDir)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "00001_create_projections.sql")
	assert.Contains(t, names, "00002_create_projector_state.sql")

	projections, err := embeddedSchema.ReadFile(filepath.Join(schemaDir, "00001_create_projections.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(projections), "CREATE TABLE IF NOT EXISTS projections")

	state, err := embeddedSchema.ReadFile(filepath.Join(schemaDir, "00002_create_projector_state.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(state), "CREATE TABLE IF NOT EXISTS projector_state")
}

func TestCreateSQLMigration_WritesTimestampedFile(t *testing.T) {
	dir := t.TempDir()

	err := CreateSQLMigration(dir, "add_index")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "expected exactly one scaffolded migration file, got %v", entries)

	name := entries[0].Name()
	assert.True(t, strings.HasSuffix(name, "_add_index.sql"), "expected a name ending in _add_index.sql, got %s", name)

	contents, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Contains(t, string(contents), "+goose Up")
	assert.Contains(t, string(contents), "+goose Down")
}
