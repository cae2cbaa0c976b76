package reliability

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/database"
)

// MaintenanceService keeps the SQLite stores compact: WAL checkpoints stop
// the sidecar files from growing unbounded, VACUUM reclaims space freed by
// sync churn.
type MaintenanceService struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewMaintenanceService creates a maintenance service over the given
// databases, keyed by store name.
func NewMaintenanceService(databases map[string]*database.DB, log zerolog.Logger) *MaintenanceService {
	return &MaintenanceService{
		databases: databases,
		log:       log.With().Str("service", "maintenance").Logger(),
	}
}

// CheckpointWAL truncates every store's WAL back into the main file. Per-
// database failures are logged and skipped; a checkpoint that misses one
// hour catches up the next.
func (s *MaintenanceService) CheckpointWAL() error {
	for _, name := range s.sortedNames() {
		db := s.databases[name]

		var busy, walFrames, checkpointed int
		err := db.Conn().QueryRow("PRAGMA wal_checkpoint(TRUNCATE)").Scan(&busy, &walFrames, &checkpointed)
		if err != nil {
			s.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
			continue
		}

		s.log.Debug().
			Str("database", name).
			Int("wal_frames", walFrames).
			Int("checkpointed", checkpointed).
			Msg("WAL checkpoint completed")
	}
	return nil
}

// VacuumDatabases rebuilds every store except the analysis ledger, which is
// append-mostly and not worth the copy.
func (s *MaintenanceService) VacuumDatabases() error {
	for _, name := range s.sortedNames() {
		if name == "analysis" {
			continue
		}
		db := s.databases[name]

		sizeBefore := pageBytes(db)
		if _, err := db.Conn().Exec("VACUUM"); err != nil {
			s.log.Error().Err(err).Str("database", name).Msg("VACUUM failed")
			continue
		}
		sizeAfter := pageBytes(db)

		s.log.Info().
			Str("database", name).
			Int64("size_before_bytes", sizeBefore).
			Int64("size_after_bytes", sizeAfter).
			Int64("reclaimed_bytes", sizeBefore-sizeAfter).
			Msg("VACUUM completed")
	}
	return nil
}

func (s *MaintenanceService) sortedNames() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func pageBytes(db *database.DB) int64 {
	var pageCount, pageSize int64
	_ = db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	_ = db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize)
	return pageCount * pageSize
}
