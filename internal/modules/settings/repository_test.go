package settings

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", "file:settings_test?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
		CREATE TABLE settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	require.NoError(t, err)

	return NewRepository(db, zerolog.Nop())
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo := newTestRepo(t)

	value, err := repo.Get("absent")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestSetThenGet(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Set("default_unit_price", "12.50"))

	value, err := repo.Get("default_unit_price")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "12.50", *value)
}

func TestSetOverwrites(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Set("analysis_cron", "0 0 3 * * *"))
	require.NoError(t, repo.Set("analysis_cron", "0 30 2 * * *"))

	value, err := repo.Get("analysis_cron")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "0 30 2 * * *", *value)
}

func TestGetIntFallsBackOnGarbage(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Set("sync_interval_minutes", "not-a-number"))

	got, err := repo.GetInt("sync_interval_minutes", 60)
	require.NoError(t, err)
	assert.Equal(t, 60, got)

	require.NoError(t, repo.Set("sync_interval_minutes", "30"))
	got, err = repo.GetInt("sync_interval_minutes", 60)
	require.NoError(t, err)
	assert.Equal(t, 30, got)
}

func TestGetBool(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.GetBool("backups_enabled", true)
	require.NoError(t, err)
	assert.True(t, got)

	require.NoError(t, repo.Set("backups_enabled", "false"))
	got, err = repo.GetBool("backups_enabled", true)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestDeleteAndGetAll(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Set("a", "1"))
	require.NoError(t, repo.Set("b", "2"))
	require.NoError(t, repo.Delete("a"))
	require.NoError(t, repo.Delete("never-existed"))

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "2"}, all)
}
