package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sftpetl/internal/core/version"
	"sftpetl/internal/modkit"
	"sftpetl/internal/modkit/module"
	"sftpetl/internal/platform/config"
	perr "sftpetl/internal/platform/errors"
	"sftpetl/internal/platform/logger"
	"sftpetl/internal/platform/store"

	ingestdom "sftpetl/internal/services/ingest/domain"
	ingestmod "sftpetl/internal/services/ingest/module"
)

// fileList collects repeated -file flags
type fileList []string

func (f *fileList) String() string { return strings.Join(*f, ",") }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		fSource     = flag.String("source", "", "capture source: local | s3 (default SFTPETL_SOURCE or local)")
		fDir        = flag.String("dir", "", "local drop directory")
		fGlob       = flag.String("glob", "", "file name glob, e.g. *.gpg")
		fBucket     = flag.String("bucket", "", "s3 bucket")
		fPrefix     = flag.String("prefix", "", "s3 key prefix")
		fLineage    = flag.Bool("lineage", false, "stamp source_path on gold rows")
		fClickhouse = flag.Bool("clickhouse", false, "mirror gold rows to clickhouse (SERVICE_CLICKHOUSE_DBURL)")
		fDuckDB     = flag.String("duckdb", "", "mirror all three layers to a duckdb file")
		fWorkers    = flag.Int("workers", 4, "files processed in parallel")
		fMigrate    = flag.Bool("migrate", false, "apply schema migrations before the run")
		fVersion    = flag.Bool("version", false, "print build info and exit")
		fFiles      fileList
	)
	flag.Var(&fFiles, "file", "process only this source path (repeatable); forces reprocessing")
	flag.Parse()

	info := version.Info("sftpetl-ingest")
	if *fVersion {
		fmt.Println(info.String())
		return 0
	}

	// flags win over env; only flags given on the command line override
	var ov ingestmod.Overrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			ov.Source = fSource
		case "dir":
			ov.Dir = fDir
		case "glob":
			ov.Glob = fGlob
		case "bucket":
			ov.Bucket = fBucket
		case "prefix":
			ov.Prefix = fPrefix
		case "lineage":
			ov.Lineage = fLineage
		case "clickhouse":
			ov.ClickHouse = fClickhouse
		case "duckdb":
			ov.DuckDBPath = fDuckDB
		case "workers":
			ov.Workers = fWorkers
		}
	})

	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")
	l := logger.Get()
	l.Info().Str("build", info.String()).Msg("starting")

	opts, err := ingestmod.FromConfig(root)
	if err != nil {
		l.Error().Err(err).Msg("ingest options")
		return 2
	}
	opts = opts.With(ov)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := pgCfg.MustString("DBURL")
	if *fMigrate {
		if err := store.MigrateUp(dsn, *l); err != nil {
			l.Error().Err(err).Msg("migrate failed")
			return 1
		}
	}

	st, err := store.Open(ctx, store.Config{
		AppName: "sftpetl-ingest",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         dsn,
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", max(opts.Workers+2, 4))),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
		CH: store.CHConfig{
			Enabled: opts.ClickHouse,
			DSN:     chCfg.MayString("DBURL", ""),
			Role:    "sftpetl",
			Tag:     "ingest",
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Error().Err(err).Msg("store.Open failed")
		return 1
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	deps := modkit.Deps{Cfg: root, PG: st.PG, CH: st.CH, Log: *l}
	ing, err := ingestmod.New(ctx, deps, opts)
	if err != nil {
		l.Error().Err(err).Msg("ingest module")
		return 2
	}
	defer func() {
		if err := ing.Close(); err != nil {
			l.Error().Err(err).Msg("failed to close ingest module")
		}
	}()
	module.RegisterModule(ing)

	runner := module.MustPortsOf[ingestmod.Ports](ing).Runner
	var rep ingestdom.RunReport
	if len(fFiles) > 0 {
		rep, err = runner.RunFiles(ctx, fFiles)
	} else {
		rep, err = runner.RunOnce(ctx)
	}

	_ = json.NewEncoder(os.Stdout).Encode(rep)
	switch {
	case err == nil:
		return 0
	case perr.IsCode(err, perr.ErrorCodeConfiguration):
		// bad key material or a misconfigured source
		l.Error().Err(err).Msg("ingest aborted")
		return 2
	default:
		l.Error().Err(err).Msg("ingest finished with failed files")
		return 1
	}
}
