package module

import (
	"strings"
	"time"

	s3cap "sftpetl/internal/adapters/capture/s3"
	"sftpetl/internal/platform/config"
	"sftpetl/internal/platform/net/http/bind"
)

// Options holds configuration options for the ingest module
type Options struct {
	// Capture
	Source string `validate:"oneof=local s3"`
	Dir    string `validate:"required_if=Source local"`
	Glob   string
	S3     s3cap.Config `validate:"-"`

	// Decrypt stage; secrets are never logged
	KeyMaterial   string `validate:"required"`
	Passphrase    string
	WorkspaceRoot string

	// Parse stage
	Lineage bool

	// Runner
	Workers          int `validate:"min=1,max=64"`
	MaxRetries       int `validate:"min=1,max=10"`
	RetryBase        time.Duration
	DelayPerFile     time.Duration
	FileTimeout      time.Duration
	CaptureTimeout   time.Duration
	DBTimeout        time.Duration
	SinkTimeout      time.Duration
	StatementTimeout time.Duration
	StaleAfter       time.Duration
	EnableLeases     bool
	LeaseTTL         time.Duration
	InsertChunk      int `validate:"min=1,max=10000"`

	// Mirrors
	ClickHouse      bool
	ClickHouseTable string
	DuckDBPath      string
}

// FromConfig reads the ingest options from config with SFTPETL_ prefix.
// Key material comes from SFTPETL_PGP_PRIVATE_KEY or the file named by SFTPETL_PGP_PRIVATE_KEY_FILE,
// likewise SFTPETL_PGP_PASSPHRASE
func FromConfig(cfg config.Conf) (Options, error) {
	c := cfg.Prefix("SFTPETL_")
	key, err := c.Secret("PGP_PRIVATE_KEY")
	if err != nil {
		return Options{}, err
	}
	// an unprotected key has no passphrase
	pass, _ := c.Secret("PGP_PASSPHRASE")
	pass = strings.TrimRight(pass, "\r\n")

	return Options{
		Source: c.MayEnum("SOURCE", "local", "local", "s3"),
		Dir:    c.MayString("DIR", ""),
		Glob:   c.MayString("GLOB", "*.gpg"),
		S3: s3cap.Config{
			Bucket:    c.MayString("S3_BUCKET", ""),
			Prefix:    c.MayString("S3_PREFIX", ""),
			Region:    c.MayString("S3_REGION", "us-east-1"),
			Endpoint:  c.MayString("S3_ENDPOINT", ""),
			AccessKey: c.MayString("S3_ACCESS_KEY", ""),
			SecretKey: c.MayString("S3_SECRET_KEY", ""),
		},
		KeyMaterial:   key,
		Passphrase:    pass,
		WorkspaceRoot: c.MayString("PGP_WORKSPACE", ""),

		Lineage: c.MayBool("LINEAGE", false),

		Workers:          c.MayInt("WORKERS", 4),
		MaxRetries:       c.MayInt("RETRIES", 3),
		RetryBase:        c.MayDuration("RETRY_BASE", 500*time.Millisecond),
		DelayPerFile:     c.MayDuration("DELAY", 0),
		FileTimeout:      c.MayDuration("FILE_TIMEOUT", 10*time.Minute),
		CaptureTimeout:   c.MayDuration("CAPTURE_TIMEOUT", 2*time.Minute),
		DBTimeout:        c.MayDuration("DB_TIMEOUT", 2*time.Minute),
		SinkTimeout:      c.MayDuration("SINK_TIMEOUT", time.Minute),
		StatementTimeout: c.MayDuration("STATEMENT_TIMEOUT", 0),
		StaleAfter:       c.MayDuration("STALE_AFTER", time.Hour),
		EnableLeases:     c.MayBool("LEASES", false),
		LeaseTTL:         c.MayDuration("LEASE_TTL", 30*time.Minute),
		InsertChunk:      c.MayInt("INSERT_CHUNK", 1000),

		ClickHouse:      c.MayBool("SINK_CLICKHOUSE", false),
		ClickHouseTable: c.MayString("SINK_CLICKHOUSE_TABLE", ""),
		DuckDBPath:      c.MayString("SINK_DUCKDB", ""),
	}, nil
}

// Validate checks the options; the s3 block only when the s3 source is selected
func (o Options) Validate() error {
	if err := bind.Struct(o); err != nil {
		return err
	}
	if o.Source == "s3" {
		return bind.Struct(o.S3)
	}
	return nil
}

// Overrides carries command line values; nil fields leave the configured option alone
type Overrides struct {
	Source     *string
	Dir        *string
	Glob       *string
	Bucket     *string
	Prefix     *string
	Lineage    *bool
	ClickHouse *bool
	DuckDBPath *string
	Workers    *int
}

// With returns a copy of o with every set override applied
func (o Options) With(ov Overrides) Options {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&o.Source, ov.Source)
	set(&o.Dir, ov.Dir)
	set(&o.Glob, ov.Glob)
	set(&o.S3.Bucket, ov.Bucket)
	set(&o.S3.Prefix, ov.Prefix)
	set(&o.DuckDBPath, ov.DuckDBPath)
	if ov.Lineage != nil {
		o.Lineage = *ov.Lineage
	}
	if ov.ClickHouse != nil {
		o.ClickHouse = *ov.ClickHouse
	}
	if ov.Workers != nil {
		o.Workers = *ov.Workers
	}
	return o
}
