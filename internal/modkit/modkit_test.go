package modkit

import (
	"testing"

	phttp "sftpetl/internal/platform/net/http"
)

type stub struct {
	mounted bool
	ports   any
}

func (s *stub) MountRoutes(phttp.Router) { s.mounted = true }
func (s *stub) Ports() any               { return s.ports }
func (s *stub) Name() string             { return "stub" }

var _ Module = (*stub)(nil)

func TestBuilder_ReturnsModule(t *testing.T) {
	t.Parallel()

	var b Builder = func(_ Deps, opts ...Option) Module {
		return &stub{ports: Build(opts...).Ports}
	}

	m := b(Deps{}, WithPorts("ok"))
	if m.Ports() != "ok" {
		t.Fatalf("unexpected Ports value: %v", m.Ports())
	}
	m.MountRoutes(nil)
	if !m.(*stub).mounted {
		t.Fatalf("MountRoutes not called")
	}
}
