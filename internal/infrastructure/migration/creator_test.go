package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/marketsync/migrations"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add marketplace channels", "add_marketplace_channels"},
		{"Add-Order-Items", "add_order_items"},
		{"ADD_SYNC_LEASE", "add_sync_lease"},
		{"add__order__index", "add_order_index"},
		{"Amazon Region 2", "amazon_region_2"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "special_chars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	tmpDir := t.TempDir()

	mf, err := CreateMigration(tmpDir, "add order notes", "Add a notes column to marketplace orders")
	require.NoError(t, err)

	assert.Equal(t, "000001", mf.Version)
	assert.Equal(t, "000001_add_order_notes.up.sql", filepath.Base(mf.UpPath))
	assert.Equal(t, "000001_add_order_notes.down.sql", filepath.Base(mf.DownPath))

	upContent, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(upContent), "add order notes")
	assert.Contains(t, string(upContent), "Add a notes column to marketplace orders")

	downContent, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(downContent), "Rollback")

	t.Run("next migration increments the version", func(t *testing.T) {
		next, err := CreateMigration(tmpDir, "add channel region", "")
		require.NoError(t, err)
		assert.Equal(t, "000002", next.Version)
	})
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nestedPath := filepath.Join(t.TempDir(), "nested", "migrations")

	_, err := CreateMigration(nestedPath, "test", "test migration")
	require.NoError(t, err)

	info, err := os.Stat(nestedPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestListMigrations(t *testing.T) {
	tmpDir := t.TempDir()

	files := []string{
		"000010_add_index.up.sql",
		"000010_add_index.down.sql",
		"000002_add_items.up.sql",
		"000002_add_items.down.sql",
		"000001_init.up.sql",
		"000001_init.down.sql",
		"README.md",
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, f), []byte("-- test"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "subdir.up.sql"), 0755))

	names, err := ListMigrations(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_init", "000002_add_items", "000010_add_index"}, names)
}

func TestListMigrations_NonexistentDirectory(t *testing.T) {
	names, err := ListMigrations("/nonexistent/path/to/migrations")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestValidatePairs(t *testing.T) {
	t.Run("paired", func(t *testing.T) {
		fsys := fstest.MapFS{
			"000001_init.up.sql":   {Data: []byte("-- up")},
			"000001_init.down.sql": {Data: []byte("-- down")},
		}
		assert.NoError(t, ValidatePairs(fsys))
	})

	t.Run("missing down", func(t *testing.T) {
		fsys := fstest.MapFS{"000001_init.up.sql": {Data: []byte("-- up")}}
		assert.ErrorIs(t, ValidatePairs(fsys), ErrUnpairedMigration)
	})

	t.Run("missing up", func(t *testing.T) {
		fsys := fstest.MapFS{"000001_init.down.sql": {Data: []byte("-- down")}}
		assert.ErrorIs(t, ValidatePairs(fsys), ErrUnpairedMigration)
	})
}

func TestEmbeddedMigrations(t *testing.T) {
	require.NoError(t, ValidatePairs(migrations.FS))

	names, err := listMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "000001_create_marketplace_tables", names[0])

	up, err := migrations.FS.ReadFile(names[0] + upSuffix)
	require.NoError(t, err)
	for _, table := range []string{"marketplace_channels", "marketplace_orders", "marketplace_order_items"} {
		assert.True(t, strings.Contains(string(up), "CREATE TABLE IF NOT EXISTS "+table), table)
	}

	_, err = embeddedSource(migrations.FS)
	assert.NoError(t, err)
}
