package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/seatwise/seatwise/internal/config"
)

// Wire initializes all dependencies and returns a fully configured
// container. Order of operations:
//  1. Open databases and apply schemas.
//  2. Build clients, repositories, and services (seeds the SKU registry).
//  3. Register work types and schedule the cron entries.
//  4. Build the HTTP handlers.
//
// On any failure the databases opened so far are closed before returning.
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeServices(ctx, container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := RegisterWork(ctx, container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register work: %w", err)
	}

	InitializeHandlers(container, log)

	log.Info().Msg("Dependency injection wiring completed")

	return container, nil
}
