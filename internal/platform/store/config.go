package store

import "time"

// Config aggregates per backend configuration
type Config struct {
	// AppName is reported to both backends (application_name, client info)
	AppName string

	PG PGConfig
	CH CHConfig
}

// PGConfig configures postgres connectivity and tracing
type PGConfig struct {
	Enabled     bool
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	// boot knobs, zero means the opener defaults (20 attempts, 3s per ping)
	ConnectRetries int
	PingTimeout    time.Duration
}

// CHConfig configures clickhouse connectivity
type CHConfig struct {
	Enabled bool
	DSN     string

	// Role and Tag end up in the server's system.query_log client info
	Role string
	Tag  string
}
