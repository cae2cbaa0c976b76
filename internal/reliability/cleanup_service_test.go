package reliability

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatwise/seatwise/internal/clientdata"
	"github.com/seatwise/seatwise/internal/database"
	"github.com/seatwise/seatwise/internal/scheduler"
	seatwisetesting "github.com/seatwise/seatwise/internal/testing"
)

func newCleanupFixture(t *testing.T) (*CleanupService, *clientdata.Repository, *scheduler.Recorder, *database.DB) {
	t.Helper()
	db, cleanup := seatwisetesting.NewTestDB(t, "cache")
	t.Cleanup(cleanup)

	repo := clientdata.NewRepository(db.Conn())
	recorder := scheduler.NewRecorder(db, zerolog.Nop())
	service := NewCleanupService(repo, recorder, zerolog.Nop())
	return service, repo, recorder, db
}

func TestCleanupClientData(t *testing.T) {
	service, repo, _, _ := newCleanupFixture(t)

	require.NoError(t, repo.Store(clientdata.TablePartnerProducts, "US", map[string]string{"sku": "E3"}, -time.Minute))
	require.NoError(t, repo.Store(clientdata.TablePartnerPrices, "US", map[string]string{"sku": "E3"}, time.Hour))

	require.NoError(t, service.CleanupClientData())

	var stale map[string]string
	found, err := repo.Get(clientdata.TablePartnerProducts, "US", &stale)
	require.NoError(t, err)
	assert.False(t, found)

	var fresh map[string]string
	found, err = repo.Get(clientdata.TablePartnerPrices, "US", &fresh)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCleanupJobHistory(t *testing.T) {
	service, _, recorder, db := newCleanupFixture(t)

	recorder.Record("sync:users", "t1", "completed", time.Second, "")

	// A row from a long-dead run, past the retention window.
	old := time.Now().Add(-60 * 24 * time.Hour).Unix()
	_, err := db.Conn().Exec(`
		INSERT INTO job_history (id, job_name, subject, started_at, finished_at, status, error, duration_ms)
		VALUES ('old-run', 'sync:users', 't1', ?, ?, 'completed', '', 1000)`,
		old, old+1,
	)
	require.NoError(t, err)

	require.NoError(t, service.CleanupJobHistory())

	runs, err := recorder.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotEqual(t, "old-run", runs[0].ID)
}
