package reliability

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/clientdata"
	"github.com/seatwise/seatwise/internal/scheduler"
)

// jobHistoryRetention bounds cache.db growth; the status endpoint only ever
// shows the recent tail anyway.
const jobHistoryRetention = 30 * 24 * time.Hour

// CleanupService prunes expired upstream payloads and old job history from
// the cache store.
type CleanupService struct {
	clientData *clientdata.Repository
	history    *scheduler.Recorder
	log        zerolog.Logger
}

// NewCleanupService creates the cleanup service.
func NewCleanupService(clientData *clientdata.Repository, history *scheduler.Recorder, log zerolog.Logger) *CleanupService {
	return &CleanupService{
		clientData: clientData,
		history:    history,
		log:        log.With().Str("service", "cleanup").Logger(),
	}
}

// CleanupClientData removes expired entries from every cached payload table.
func (s *CleanupService) CleanupClientData() error {
	results, err := s.clientData.DeleteAllExpired()
	if err != nil {
		return err
	}

	var total int64
	for table, count := range results {
		if count > 0 {
			s.log.Debug().
				Str("table", table).
				Int64("deleted", count).
				Msg("Expired cache entries removed")
			total += count
		}
	}
	if total > 0 {
		s.log.Info().Int64("deleted", total).Msg("Client data cleanup completed")
	}
	return nil
}

// CleanupJobHistory trims job history rows past the retention window.
func (s *CleanupService) CleanupJobHistory() error {
	deleted, err := s.history.Prune(jobHistoryRetention)
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Msg("Job history pruned")
	}
	return nil
}
