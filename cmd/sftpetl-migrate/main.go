package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"sftpetl/internal/platform/config"
	"sftpetl/internal/platform/logger"
	"sftpetl/internal/platform/store"

	"github.com/golang-migrate/migrate/v4"
)

const usage = "usage: sftpetl-migrate [up|down|steps N|version]"

func main() {
	l := logger.Get()
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	dsn := config.New().Prefix("SERVICE_PGSQL_").MustString("DBURL")
	m, err := store.Migrator(dsn, *l)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to create migrate instance")
	}
	defer func() { _, _ = m.Close() }()

	switch cmd := os.Args[1]; cmd {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			l.Fatal().Err(err).Msg("migration up failed")
		}
		l.Info().Msg("migrations applied")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			l.Fatal().Err(err).Msg("migration down failed")
		}
		l.Info().Msg("migrations reverted")

	case "steps":
		if len(os.Args) < 3 {
			l.Fatal().Msg("steps requires a number argument")
		}
		n, err := strconv.Atoi(os.Args[2])
		if err != nil {
			l.Fatal().Err(err).Msg("invalid steps argument")
		}
		if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			l.Fatal().Err(err).Msg("migration steps failed")
		}
		l.Info().Int("steps", n).Msg("migration steps applied")

	case "version":
		v, dirty, err := m.Version()
		if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
			l.Fatal().Err(err).Msg("failed to get version")
		}
		fmt.Printf("version: %d, dirty: %v\n", v, dirty)

	default:
		fmt.Printf("unknown command: %s\n%s\n", cmd, usage)
		os.Exit(1)
	}
}
