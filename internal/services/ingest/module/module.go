// Package module provides the ingest module implementation
package module

import (
	"context"
	"fmt"

	"sftpetl/internal/adapters/capture/localfs"
	s3cap "sftpetl/internal/adapters/capture/s3"
	"sftpetl/internal/adapters/sinks"
	chsink "sftpetl/internal/adapters/sinks/clickhouse"
	ducksink "sftpetl/internal/adapters/sinks/duckdb"
	"sftpetl/internal/core/admissions"
	"sftpetl/internal/core/pgpdecrypt"
	"sftpetl/internal/modkit"
	"sftpetl/internal/modkit/repokit"
	perr "sftpetl/internal/platform/errors"
	phttp "sftpetl/internal/platform/net/http"
	"sftpetl/internal/services/ingest/domain"
	"sftpetl/internal/services/ingest/guardrails"
	"sftpetl/internal/services/ingest/repo"
	"sftpetl/internal/services/ingest/service"

	"github.com/hashicorp/go-multierror"
)

// Name is the registry name of the ingest module
const Name = "ingest"

// Ports defines the ingest module ports
type Ports struct {
	Runner domain.RunnerPort
	Ledger domain.LedgerPort
}

// Module implements the ingest module
type Module struct {
	deps  modkit.Deps
	ports Ports
	svc   *service.Service
	stage *pgpdecrypt.Stage
	sinks sinks.Fanout
}

// New constructs the ingest module. It wires the capture source, both stages, the
// postgres repo and any configured mirrors. It does not mount any routes
func New(ctx context.Context, deps modkit.Deps, opts Options) (*Module, error) {
	if deps.PG == nil {
		return nil, perr.Configf("ingest: postgres is not configured")
	}
	if err := opts.Validate(); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeConfiguration, "ingest: options")
	}

	src, err := newSource(ctx, opts)
	if err != nil {
		return nil, err
	}

	log := deps.Named("pgpdecrypt")
	stage := pgpdecrypt.New(opts.KeyMaterial, opts.Passphrase,
		pgpdecrypt.WithWorkspaceRoot(opts.WorkspaceRoot),
		pgpdecrypt.WithLogger(&log),
	)
	parser := admissions.NewStage(admissions.WithLineage(opts.Lineage))

	fan, err := newSinks(ctx, deps, opts)
	if err != nil {
		return nil, err
	}
	var sink domain.Sink
	if len(fan) > 0 {
		sink = fan
	}

	db := deps.PG
	if opts.StatementTimeout > 0 {
		db = repokit.WithBeginHooks(db, repokit.SetLocal("statement_timeout", fmt.Sprintf("%d", opts.StatementTimeout.Milliseconds())))
	}

	svc := service.New(
		db, repo.NewPG(),
		src, stage, parser, sink,
		service.Config{
			Workers:      opts.Workers,
			DelayPerFile: opts.DelayPerFile,
			MaxRetries:   opts.MaxRetries,
			RetryBase:    opts.RetryBase,
			Timeouts: guardrails.Timeouts{
				File:    opts.FileTimeout,
				Capture: opts.CaptureTimeout,
				DB:      opts.DBTimeout,
				Sink:    opts.SinkTimeout,
			},
			StaleAfter:   opts.StaleAfter,
			EnableLeases: opts.EnableLeases,
			InsertChunk:  opts.InsertChunk,
		},
		guardrails.MakeFileLease(db, opts.LeaseTTL),
	)

	m := &Module{deps: deps, svc: svc, stage: stage, sinks: fan}
	m.ports = Ports{Runner: svc, Ledger: svc}
	return m, nil
}

func newSource(ctx context.Context, o Options) (domain.Source, error) {
	switch o.Source {
	case "s3":
		cfg := o.S3
		cfg.Glob = o.Glob
		return s3cap.New(ctx, cfg)
	default:
		return localfs.New(o.Dir, o.Glob)
	}
}

func newSinks(ctx context.Context, deps modkit.Deps, o Options) (sinks.Fanout, error) {
	var fan sinks.Fanout
	if o.ClickHouse {
		s, err := chsink.New(ctx, deps.CH, chsink.Options{Table: o.ClickHouseTable})
		if err != nil {
			return nil, err
		}
		fan = append(fan, s)
	}
	if o.DuckDBPath != "" {
		s, err := ducksink.Open(ctx, ducksink.Options{Path: o.DuckDBPath})
		if err != nil {
			_ = fan.Close()
			return nil, err
		}
		fan = append(fan, s)
	}
	if len(fan) > 0 {
		deps.Log.Info().Strs("sinks", fan.Names()).Msg("ingest: mirrors enabled")
	}
	return fan, nil
}

// Name returns the module name
func (m *Module) Name() string { return Name }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// MountRoutes is a no-op as ingest has no routes
func (m *Module) MountRoutes(_ phttp.Router) {}

// Service exposes the runner for the CLI
func (m *Module) Service() *service.Service { return m.svc }

// Close removes the decryption workspace and closes owned mirrors
func (m *Module) Close() error {
	var errs *multierror.Error
	if err := m.stage.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := m.sinks.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}
