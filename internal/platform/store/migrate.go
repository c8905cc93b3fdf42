package store

import (
	"errors"
	"fmt"
	"strings"

	"sftpetl/internal/platform/logger"
	"sftpetl/internal/platform/store/migrations"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx5:// driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

// Migrator opens a golang-migrate instance over the embedded schema
// dsn is a regular postgres:// URL; the caller must Close the result
func Migrator(dsn string, log logger.Logger) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, MigrateURL(dsn))
	if err != nil {
		return nil, fmt.Errorf("migrate init: %w", err)
	}
	m.Log = migrateLog{log: log}
	return m, nil
}

// MigrateUp applies all pending migrations, no change is not an error
func MigrateUp(dsn string, log logger.Logger) error {
	m, err := Migrator(dsn, log)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("migrate version: %w", err)
	}
	log.Info().Uint("version", v).Bool("dirty", dirty).Msg("schema up to date")
	return nil
}

// MigrateURL rewrites a postgres URL to the pgx5 scheme the driver registers
func MigrateURL(dsn string) string {
	for _, p := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, p) {
			return "pgx5://" + strings.TrimPrefix(dsn, p)
		}
	}
	return dsn
}

type migrateLog struct{ log logger.Logger }

func (l migrateLog) Printf(format string, v ...any) {
	l.log.Debug().Str("component", "migrate").Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLog) Verbose() bool { return l.log.GetLevel() <= zerolog.DebugLevel }
