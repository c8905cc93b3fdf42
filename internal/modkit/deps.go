// Package modkit provides module wiring and core deps
package modkit

import (
	"sftpetl/internal/modkit/repokit"
	"sftpetl/internal/platform/config"
	"sftpetl/internal/platform/logger"
	"sftpetl/internal/platform/store"
)

// Deps holds core dependencies passed to modules
// this is wiring only and does not introduce new abstractions
// PG and CH are nil when the backend is disabled
type Deps struct {
	Log logger.Logger
	Cfg config.Conf
	PG  repokit.TxRunner
	CH  store.Clickhouse
}

// Named returns a child of Log tagged with a component field
func (d Deps) Named(component string) logger.Logger {
	return d.Log.With().Str("component", component).Logger()
}
