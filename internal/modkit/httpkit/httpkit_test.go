package httpkit

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sftpetl/internal/platform/config"
	phttp "sftpetl/internal/platform/net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type filesQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=pending ok error"`
}

type runBody struct {
	Paths []string `json:"paths"`
}

func newAPI(t *testing.T) http.Handler {
	t.Helper()
	mux := chi.NewRouter()
	r := phttp.AdaptChi(mux)
	mux.Use(CommonStack(StackOptions{})...)

	MountAPIV1(r, nil, func(api Router) {
		Get(api, "/version", func(*http.Request) (any, error) { return "dev", nil })
		GetQuery(api, "/files", func(_ *http.Request, q filesQuery) (any, error) {
			return List([]string{q.Status}, 1, 1, ""), nil
		})
		PostJSON(api, "/runs", func(_ *http.Request, b runBody) (any, error) {
			return Accepted(len(b.Paths)), nil
		})
		api.Get("/boom", Handle(func(*http.Request) Response { return Error(errors.New("x")) }))
		api.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("bad") })
		api.Get("/ok", Handle(func(*http.Request) Response { return OK(1) }))
	})
	return mux
}

func do(h http.Handler, method, target, body string) (*httptest.ResponseRecorder, phttp.Envelope) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var env phttp.Envelope
	_ = json.Unmarshal(rr.Body.Bytes(), &env)
	return rr, env
}

func TestMountAPIV1_Routes(t *testing.T) {
	h := newAPI(t)

	rr, env := do(h, "GET", "/api/v1/version", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "dev", env.Data)
	assert.NotEmpty(t, env.RequestID, "request id flows into the envelope")
	assert.Equal(t, env.RequestID, rr.Header().Get("X-Request-Id"))

	rr, _ = do(h, "GET", "/api/v1/version/", "")
	assert.Equal(t, http.StatusOK, rr.Code, "trailing slash stripped")

	rr, env = do(h, "GET", "/api/v1/files?status=ok", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []any{"ok"}, env.Data.(map[string]any)["items"])

	rr, env = do(h, "GET", "/api/v1/files?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "status", env.Field)

	rr, env = do(h, "POST", "/api/v1/runs", `{"paths":["a","b"]}`)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, float64(2), env.Data)

	rr, _ = do(h, "GET", "/api/v1/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr, env = do(h, "GET", "/api/v1/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal error", env.Error)

	rr, _ = do(h, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, _ = do(h, "GET", "/api/v2/version", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMountAPI_ScopedMiddleware(t *testing.T) {
	mux := chi.NewRouter()
	var hits int
	count := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			next.ServeHTTP(w, r)
		})
	}
	MountAPI(phttp.AdaptChi(mux), "/v2/", []func(http.Handler) http.Handler{count}, func(api Router) {
		api.Get("/x", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	})
	mux.Get("/outside", func(w http.ResponseWriter, _ *http.Request) {})

	rr, _ := do(mux, "GET", "/api/v2/x", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	do(mux, "GET", "/outside", "")
	assert.Equal(t, 1, hits)
}

func TestCommonStack_CORSOnlyWhenConfigured(t *testing.T) {
	assert.Len(t, CommonStack(StackOptions{}), 9)
	assert.Len(t, CommonStack(StackOptions{CORSOrigins: []string{"*"}}), 10)
}

func TestStackOptionsFromConfig(t *testing.T) {
	t.Setenv("SFTPETL_API_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SFTPETL_API_REQUEST_TIMEOUT", "5s")

	o := StackOptionsFromConfig(config.New().Prefix("SFTPETL_"))
	require.Equal(t, []string{"https://a.example", "https://b.example"}, o.CORSOrigins)
	assert.Equal(t, 5*time.Second, o.Timeout)
	assert.Equal(t, 500*time.Millisecond, o.SlowRequest)
}
