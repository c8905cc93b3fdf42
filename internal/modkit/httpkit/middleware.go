package httpkit

import (
	"compress/flate"
	"net/http"
	"time"

	"sftpetl/internal/platform/config"
	"sftpetl/internal/platform/net/middleware"
)

// StackOptions tunes CommonStack; zero values take the defaults below
type StackOptions struct {
	CORSOrigins []string
	Timeout     time.Duration
	SlowRequest time.Duration
}

// StackOptionsFromConfig reads API_CORS_ORIGINS, API_REQUEST_TIMEOUT and API_SLOW_REQUEST
func StackOptionsFromConfig(cfg config.Conf) StackOptions {
	return StackOptions{
		CORSOrigins: cfg.MayCSV("API_CORS_ORIGINS", nil),
		Timeout:     cfg.MayDuration("API_REQUEST_TIMEOUT", 30*time.Second),
		SlowRequest: cfg.MayDuration("API_SLOW_REQUEST", 500*time.Millisecond),
	}
}

// CommonStack returns the baseline middleware for the ops API, outermost first
func CommonStack(o StackOptions) []func(http.Handler) http.Handler {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	stack := []func(http.Handler) http.Handler{
		middleware.RequestID(),
		middleware.RealIP(),
		middleware.AccessLog(middleware.AccessLogOptions{Slow: o.SlowRequest}),
		middleware.RecoverJSON,
		middleware.NoCache(),
	}
	if len(o.CORSOrigins) > 0 {
		stack = append(stack, middleware.CORS(middleware.CORSOptions{AllowedOrigins: o.CORSOrigins}))
	}
	return append(stack,
		middleware.Compress(flate.BestSpeed),
		middleware.Heartbeat("/healthz"),
		middleware.StripSlashes(),
		middleware.Timeout(o.Timeout),
	)
}
