package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ibrahimkhan7059/Edubazaar/internal/config"
)

// Migrate applies all pending schema migrations. A no-change run is not an
// error.
func Migrate(cfg config.DatabaseConfig) error {
	sourceURL := "file://" + cfg.MigrationsPath

	// migrate's pgx/v5 driver registers under the pgx5 scheme.
	databaseURL := cfg.URL
	if strings.HasPrefix(databaseURL, "postgres://") {
		databaseURL = "pgx5://" + strings.TrimPrefix(databaseURL, "postgres://")
	}

	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}
