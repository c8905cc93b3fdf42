// Package module wires the ingest ledger into the API using modkit
package module

import (
	"context"

	modkit "sftpetl/internal/modkit"
	"sftpetl/internal/modkit/httpkit"
	str "sftpetl/internal/platform/strings"
	"sftpetl/internal/services/api/ledger/domain"
	ledgerhttp "sftpetl/internal/services/api/ledger/http"
	"sftpetl/internal/services/api/ledger/service"
)

// Module implements the ledger module
type Module struct {
	b      modkit.Built
	deps   modkit.Deps
	ports  domain.Ports
	runs   *service.Runs
	cancel context.CancelFunc
}

// New constructs the ledger module. Ports injected with modkit.WithPorts(domain.Ports{...})
// take precedence; without a Ledger port the module reads the ingest tables through deps.PG
func New(deps modkit.Deps, opts ...modkit.Option) *Module {
	b := modkit.Build(append([]modkit.Option{modkit.WithName("ledger"), modkit.WithPrefix("/ledger")}, opts...)...)

	var ports domain.Ports
	switch p := b.Ports.(type) {
	case domain.Ports:
		ports = p
	case *domain.Ports:
		if p != nil {
			ports = *p
		}
	}
	if ports.Ledger == nil {
		ports.Ledger = service.NewReader(deps.PG)
	}

	m := &Module{b: b, deps: deps, ports: ports}
	if ports.Runner != nil {
		ctx, cancel := context.WithCancel(context.Background())
		m.runs, m.cancel = service.NewRuns(ctx, ports.Runner), cancel
	}
	return m
}

// MountRoutes mounts the module routes on the given router
func (m *Module) MountRoutes(r httpkit.Router) {
	m.b.Mount(r, func(rr httpkit.Router) {
		ledgerhttp.Register(rr, m.ports.Ledger, m.runs)
	})
}

// Name returns the module name
func (m *Module) Name() string { return str.MustString(m.b.Name, "module name") }

// Prefix returns the module route prefix
func (m *Module) Prefix() string { return str.MustPrefix(m.b.Prefix) }

// Ports returns the ports the module was built with
func (m *Module) Ports() any { return m.ports }

// Runs exposes the run trigger; nil when runs are off
func (m *Module) Runs() *service.Runs { return m.runs }

// Close cancels an active run and waits for it to record its outcome
func (m *Module) Close() error {
	if m.cancel != nil {
		m.cancel()
		m.runs.Wait()
	}
	return nil
}
