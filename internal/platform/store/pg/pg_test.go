package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"sftpetl/internal/platform/testkit"

	"github.com/jackc/pgx/v5/pgxpool"
)

const testDSN = "postgres://etl:etl@db:5432/sftpetl?sslmode=disable"

func TestOpen_ParseError(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Config{URL: "://bad"}, nil, nil); err == nil {
		t.Fatalf("expected parse error, got nil")
	}
}

func TestOpen_NewPoolError(t *testing.T) {
	testkit.Serial(t)
	testkit.Swap(t, &newPool, func(context.Context, *pgxpool.Config) (*pgxpool.Pool, error) {
		return nil, errors.New("boom")
	})

	if _, err := Open(context.Background(), Config{URL: testDSN}, nil, nil); err == nil {
		t.Fatalf("expected newPool error, got nil")
	}
}

func TestOpen_AppliesConfigThenMutator(t *testing.T) {
	testkit.Serial(t)

	var seen *pgxpool.Config
	testkit.Swap(t, &newPool, func(_ context.Context, pc *pgxpool.Config) (*pgxpool.Pool, error) {
		seen = pc
		return &pgxpool.Pool{}, nil // zero pool, never closed
	})

	cfg := Config{URL: testDSN, MaxConns: 4, SlowMs: 250}
	p, err := Open(context.Background(), cfg, nil, func(pc *pgxpool.Config) {
		if pc.MaxConns != cfg.MaxConns {
			t.Fatalf("MaxConns applied after mutator: got %d want %d", pc.MaxConns, cfg.MaxConns)
		}
		pc.MaxConnIdleTime = 30 * time.Second
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if seen == nil || seen.MaxConnIdleTime != 30*time.Second {
		t.Fatalf("mutator result not passed to pool: %+v", seen)
	}
	if p.SlowMs != cfg.SlowMs || p.Pool == nil || p.Tracer != nil {
		t.Fatalf("unexpected client: %+v", p)
	}
}

func TestClose_NilSafe(t *testing.T) {
	t.Parallel()

	var p *PG
	p.Close()

	p = &PG{}
	p.Close()
	p.Close()
}
