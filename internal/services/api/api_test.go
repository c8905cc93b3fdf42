package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sftpetl/internal/modkit/module"
	"sftpetl/internal/modkit/repokit"
	"sftpetl/internal/platform/config"
	phttp "sftpetl/internal/platform/net/http"
	"sftpetl/internal/platform/store"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingDB struct {
	repokit.TxRunner
	err error
}

func (p pingDB) Ping(context.Context) error { return p.err }

func TestMount_ReadOnlyAPI(t *testing.T) {
	module.Reset()
	t.Cleanup(module.Reset)

	mux := chi.NewRouter()
	a := Mount(phttp.AdaptChi(mux), Options{
		Config:      config.New(),
		Store:       &store.Store{PG: pingDB{}},
		Logger:      zerolog.Nop(),
		ServiceName: "sftpetl-api",
	})
	t.Cleanup(func() { _ = a.Close() })

	get := func(target string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		return rr
	}

	assert.Equal(t, http.StatusOK, get("/api/v1/meta/health").Code)
	assert.Equal(t, http.StatusOK, get("/api/v1/meta/ready").Code)
	assert.Equal(t, http.StatusOK, get("/api/v1/ledger/runs").Code)
	assert.NotEmpty(t, get("/api/v1/meta/version").Header().Get("X-Request-Id"))

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/ledger/runs", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code, "runs need the ingest module")

	assert.Equal(t, []string{"ledger", "meta"}, module.Names())
	_, ok := module.PortsAs[any]("ledger")
	require.True(t, ok)
}
