// Package http provides meta endpoints
package http

import (
	"net/http"
	"time"

	"sftpetl/internal/core/version"
	"sftpetl/internal/modkit/httpkit"
	"sftpetl/internal/modkit/repokit"
)

// Deps are the handler dependencies
type Deps struct {
	ServiceName string
	StartedAt   time.Time

	// Checks are pinged by /ready; nil entries are left out
	Checks map[string]repokit.Pinger
}

type handlers struct {
	deps Deps
	now  func() time.Time
}

// Register mounts the meta routes
func Register(r httpkit.Router, d Deps) {
	h := &handlers{deps: d, now: time.Now}

	httpkit.Get(r, "/health", h.health)
	httpkit.Get(r, "/ready", h.ready)
	httpkit.Get(r, "/version", h.version)
	httpkit.Get(r, "/service", h.service)
}

// HealthResponse is the health payload
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Service string `json:"service"`
	Started string `json:"started"`
	Now     string `json:"now"`
}

// ReadyResponse summarizes readiness; Status is ok or fail
type ReadyResponse struct {
	Status string          `json:"status"`
	Checks []repokit.Check `json:"checks"`
	Now    string          `json:"now"`
}

// ServiceResponse describes service info
type ServiceResponse struct {
	Name    string `json:"name"`
	Started string `json:"started"`
	Uptime  int64  `json:"uptime"`
}

func (h *handlers) health(_ *http.Request) (any, error) {
	return HealthResponse{
		OK:      true,
		Service: h.deps.ServiceName,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Now:     h.now().UTC().Format(time.RFC3339),
	}, nil
}

// ready answers 503 when any configured dependency fails its ping, so load balancers
// stop routing to an instance that lost postgres
func (h *handlers) ready(r *http.Request) (any, error) {
	checks, ok := repokit.Probe(r.Context(), h.deps.Checks)
	resp := ReadyResponse{Status: "ok", Checks: checks, Now: h.now().UTC().Format(time.RFC3339)}
	if !ok {
		resp.Status = "fail"
		return httpkit.Response{Status: http.StatusServiceUnavailable, Body: resp}, nil
	}
	return resp, nil
}

func (h *handlers) version(_ *http.Request) (any, error) {
	return version.Info(h.deps.ServiceName), nil
}

func (h *handlers) service(_ *http.Request) (any, error) {
	return ServiceResponse{
		Name:    h.deps.ServiceName,
		Started: h.deps.StartedAt.UTC().Format(time.RFC3339),
		Uptime:  int64(h.now().Sub(h.deps.StartedAt) / time.Second),
	}, nil
}
