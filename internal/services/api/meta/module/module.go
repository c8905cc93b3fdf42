// Package module wires meta endpoints into the API using a tiny module
package module

import (
	"time"

	modkit "sftpetl/internal/modkit"
	"sftpetl/internal/modkit/httpkit"
	"sftpetl/internal/modkit/repokit"
	str "sftpetl/internal/platform/strings"

	metahttp "sftpetl/internal/services/api/meta/http"
)

// Module implements the modkit.Module interface
type Module struct {
	b         modkit.Built
	deps      modkit.Deps
	service   string
	startedAt time.Time
}

// New constructs a meta module. service names the binary in /health and /version
func New(deps modkit.Deps, service string, opts ...modkit.Option) modkit.Module {
	b := modkit.Build(append([]modkit.Option{
		modkit.WithName("meta"),
		modkit.WithPrefix("/meta"),
	}, opts...)...)

	return &Module{
		b:         b,
		deps:      deps,
		service:   str.MustString(service, "meta service name"),
		startedAt: time.Now(),
	}
}

// MountRoutes implements the modkit.Module interface
func (m *Module) MountRoutes(r httpkit.Router) {
	m.b.Mount(r, func(rr httpkit.Router) {
		metahttp.Register(rr, metahttp.Deps{
			ServiceName: m.service,
			StartedAt:   m.startedAt,
			Checks:      checks(m.deps),
		})
	})
}

// checks keeps only the backends that are configured and can answer a ping
func checks(d modkit.Deps) map[string]repokit.Pinger {
	out := map[string]repokit.Pinger{}
	if p, ok := d.PG.(repokit.Pinger); ok {
		out["pg"] = p
	}
	if d.CH != nil {
		out["ch"] = d.CH
	}
	return out
}

// Name implements the modkit.Module interface
func (m *Module) Name() string { return str.MustString(m.b.Name, "meta") }

// Prefix implements the modkit.Module interface
func (m *Module) Prefix() string { return str.MustPrefix(m.b.Prefix) }

// Ports implements the modkit.Module interface
func (m *Module) Ports() any { return nil }
