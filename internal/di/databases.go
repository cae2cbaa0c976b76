package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/config"
	"github.com/seatwise/seatwise/internal/database"
)

// InitializeDatabases opens all five databases and applies their schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	stores := []struct {
		name    string
		profile database.DatabaseProfile
		assign  func(*database.DB)
	}{
		// tenants.db carries the tenant registry, encrypted credentials,
		// and settings.
		{"tenants", database.ProfileStandard, func(db *database.DB) { container.TenantsDB = db }},
		// directory.db carries synced users, assignments, and usage rows.
		{"directory", database.ProfileStandard, func(db *database.DB) { container.DirectoryDB = db }},
		// commerce.db carries the product catalog, price sheets, and the
		// SKU registry tables.
		{"commerce", database.ProfileStandard, func(db *database.DB) { container.CommerceDB = db }},
		// analysis.db is the recommendation ledger; synchronous FULL so a
		// crash never loses an applied recommendation.
		{"analysis", database.ProfileLedger, func(db *database.DB) { container.AnalysisDB = db }},
		// cache.db holds upstream response caches and job history, all
		// rebuildable.
		{"cache", database.ProfileCache, func(db *database.DB) { container.CacheDB = db }},
	}

	container.Databases = make(map[string]*database.DB, len(stores))
	for _, store := range stores {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, store.name+".db"),
			Profile: store.profile,
			Name:    store.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", store.name, err)
		}
		store.assign(db)
		container.Databases[store.name] = db
	}

	for name, db := range container.Databases {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", name, err)
		}
	}

	log.Info().Int("databases", len(container.Databases)).Msg("All databases initialized and schemas applied")

	return container, nil
}
