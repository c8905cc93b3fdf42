// Package module defines the minimal contract for a modkit module
package module

import (
	phttp "sftpetl/internal/platform/net/http"
)

// Module defines the minimal contract used by modkit and the cmds.
// It lives apart from modkit so a module's own ports package can import it without a cycle
type Module interface {
	MountRoutes(r phttp.Router)
	Ports() any
	Name() string
}

// HasPorts reports whether m exposes a non-nil port set
func HasPorts(m Module) bool {
	return m != nil && m.Ports() != nil
}
