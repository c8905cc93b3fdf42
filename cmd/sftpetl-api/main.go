package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"sftpetl/internal/core/version"
	"sftpetl/internal/modkit"
	"sftpetl/internal/modkit/repokit"
	"sftpetl/internal/platform/config"
	"sftpetl/internal/platform/logger"
	phttp "sftpetl/internal/platform/net/http"
	"sftpetl/internal/platform/store"

	"sftpetl/internal/services/api"
	ingestmod "sftpetl/internal/services/ingest/module"
)

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")
	chCfg := root.Prefix("SERVICE_CLICKHOUSE_")

	l := logger.Get()
	l.Info().Str("build", version.Info("sftpetl-api").String()).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chDSN := chCfg.MayString("DBURL", "")
	st, err := store.Open(ctx, store.Config{
		AppName: "sftpetl-api",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
		CH: store.CHConfig{
			Enabled: chDSN != "",
			DSN:     chDSN,
			Role:    "sftpetl",
			Tag:     "api",
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	repokit.MustGuard(ctx, st)

	// POST /ledger/runs needs the decrypt key, so it is opt-in
	var ing *ingestmod.Module
	if root.MayBool("API_RUNS", false) {
		opts, err := ingestmod.FromConfig(root)
		if err != nil {
			l.Panic().Err(err).Msg("ingest options")
		}
		ing, err = ingestmod.New(ctx, modkit.Deps{Cfg: root, PG: st.PG, CH: st.CH, Log: *l}, opts)
		if err != nil {
			l.Panic().Err(err).Msg("ingest module")
		}
		defer func() { _ = ing.Close() }()
	}

	srv := phttp.NewServer(root)
	a := api.Mount(srv.Router(), api.Options{
		Config:         root,
		Store:          st,
		Logger:         *l,
		ServiceName:    "sftpetl-api",
		EnableProfiler: root.MayBool("API_PROFILER", false),
		Ingest:         ing,
	})
	defer func() { _ = a.Close() }()

	l.Info().Str("addr", srv.Addr()).Msg("api listening")
	if err := srv.Run(ctx); err != nil {
		l.Error().Err(err).Msg("http server stopped")
	}
}
