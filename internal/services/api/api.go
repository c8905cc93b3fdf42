// Package api provides the HTTP API for the application
package api

import (
	"sftpetl/internal/platform/config"
	"sftpetl/internal/platform/logger"
	phttp "sftpetl/internal/platform/net/http"
	"sftpetl/internal/platform/store"

	"sftpetl/internal/modkit"
	"sftpetl/internal/modkit/httpkit"
	"sftpetl/internal/modkit/module"

	ledgerdomain "sftpetl/internal/services/api/ledger/domain"
	ledgermod "sftpetl/internal/services/api/ledger/module"
	metamod "sftpetl/internal/services/api/meta/module"
	ingestmod "sftpetl/internal/services/ingest/module"
)

// Options are the API options
type Options struct {
	Config         config.Conf
	Store          *store.Store
	Logger         logger.Logger
	ServiceName    string
	EnableProfiler bool

	// Ingest, when set, backs the ledger reads and enables POST /ledger/runs
	Ingest *ingestmod.Module
}

// API is the mounted set of modules; Close stops background runs
type API struct {
	ledger *ledgermod.Module
}

// Mount mounts the API service onto the given router
func Mount(r phttp.Router, opt Options) *API {
	deps := modkit.Deps{
		Log: opt.Logger,
		Cfg: opt.Config,
		PG:  opt.Store.PG,
		CH:  opt.Store.CH,
	}

	var ledgerOpts []modkit.Option
	if opt.Ingest != nil {
		module.RegisterModule(opt.Ingest)
		ing := module.MustPortsOf[ingestmod.Ports](opt.Ingest)
		ledgerOpts = append(ledgerOpts, modkit.WithPorts(ledgerdomain.Ports{
			Ledger: ing.Ledger,
			Runner: ing.Runner,
		}))
	}
	ledger := ledgermod.New(deps, ledgerOpts...)

	mods := []modkit.Module{
		metamod.New(deps, opt.ServiceName),
		ledger,
	}

	// versioned API with a common middleware stack
	httpkit.MountAPIV1(r, httpkit.CommonStack(httpkit.StackOptionsFromConfig(opt.Config)), func(api httpkit.Router) {
		for _, m := range mods {
			// register each module's ports under its own name (for cross-module lookups)
			module.RegisterModule(m)
			m.MountRoutes(api)
		}
	})
	phttp.MountProfiler(r, "/debug", opt.EnableProfiler)

	deps.Log.Info().Strs("modules", module.Names()).Msg("api: modules mounted")
	return &API{ledger: ledger}
}

// Close cancels an active background run and waits for it to finish
func (a *API) Close() error {
	if a == nil {
		return nil
	}
	return a.ledger.Close()
}
