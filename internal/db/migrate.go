package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// RunMigrations applies every pending migration embedded in the binary.
func RunMigrations(config Config, log *logrus.Logger) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, config.URL("pgx5"))
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if log != nil && (srcErr != nil || dbErr != nil) {
			log.WithFields(logrus.Fields{"source": srcErr, "database": dbErr}).Warn("failed to close migrator")
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			if log != nil {
				log.Info("database schema is up to date")
			}
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if log != nil {
		version, dirty, _ := m.Version()
		log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("database migrations applied")
	}
	return nil
}
