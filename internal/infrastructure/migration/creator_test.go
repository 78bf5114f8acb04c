package migration

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/mvstudio/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"add refund index": "add_refund_index",
		"Add-Team--Seats":  "add_team_seats",
		"  spaced  ":       "spaced",
		"beta_quota v2!":   "beta_quota_v2",
		"":                 "",
	}
	for input, want := range tests {
		assert.Equal(t, want, slugify(input), input)
	}
}

func TestCreateMigration_NumbersSequentially(t *testing.T) {
	dir := t.TempDir()

	first, err := CreateMigration(dir, "create ledger")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_create_ledger.up.sql"), first.UpPath)
	assert.FileExists(t, first.DownPath)

	second, err := CreateMigration(dir, "Add Teams")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	list, err := ListMigrations(dir)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "create_ledger", list[0].Name)
	assert.Equal(t, "add_teams", list[1].Name)

	_, err = CreateMigration(dir, "!!!")
	assert.Error(t, err)
}

func TestListMigrations_IgnoresStrayFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000007_x.down.sql"), nil, 0o644))

	list, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Empty(t, list)

	missing, err := ListMigrations(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrations.FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		match := migrationFileRe.FindStringSubmatch(up)
		require.NotNil(t, match, up)
		down := match[1] + "_" + match[2] + ".down.sql"
		_, err := fs.Stat(migrations.FS, down)
		assert.NoError(t, err, "missing %s", down)
	}
}
