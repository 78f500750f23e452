package notetree

import (
	"context"
	"fmt"
)

// Migrate initializes or updates the backing schema. Safe to run multiple
// times; it only creates missing schema elements.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	a.log.Info().Msg("running database migrations")
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.log.Info().Msg("migrations completed")
	return nil
}
