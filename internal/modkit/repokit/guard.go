package repokit

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Pinger is anything that answers a liveness ping (pg pool, clickhouse conn)
type Pinger interface {
	Ping(context.Context) error
}

type guarder interface {
	Guard(context.Context) error
}

const defaultPingTimeout = 5 * time.Second

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultPingTimeout)
}

// MustPing panics if a dependency doesn't answer a Ping within timeout
func MustPing(ctx context.Context, name string, p Pinger) {
	if p == nil {
		panic(fmt.Sprintf("%s: nil dependency", name))
	}
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		panic(fmt.Sprintf("%s ping failed: %v", name, err))
	}
}

// MustGuard runs store.Guard and panics on any error (used at cmd startup)
func MustGuard(ctx context.Context, st guarder) {
	if err := st.Guard(ctx); err != nil {
		panic(fmt.Errorf("dependency guard failed: %w", err))
	}
}

// Check is one named probe result
type Check struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	Err  string `json:"error,omitempty"`
}

// Probe pings every non-nil dependency and reports each by name, sorted.
// Unlike MustPing it never panics; the readiness endpoint renders the result
func Probe(ctx context.Context, deps map[string]Pinger) ([]Check, bool) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	names := make([]string, 0, len(deps))
	for n, p := range deps {
		if p != nil {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	out := make([]Check, 0, len(names))
	all := true
	for _, n := range names {
		c := Check{Name: n, OK: true}
		if err := deps[n].Ping(ctx); err != nil {
			c.OK, c.Err = false, err.Error()
			all = false
		}
		out = append(out, c)
	}
	return out, all
}
