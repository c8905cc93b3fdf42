// Package sinks defines the optional secondary destinations a processed file is
// copied to after the postgres layers commit
package sinks

import (
	"context"

	"sftpetl/internal/core/admissions"
	"sftpetl/internal/core/layers"

	"github.com/hashicorp/go-multierror"
)

// FileBatch is everything one file produced, keyed by its ledger id
type FileBatch struct {
	FileID    int64
	Raw       layers.RawFileRecord
	Decrypted layers.DecryptedRecord
	Rows      []admissions.Row
}

// Sink receives whole files. Write must be idempotent per FileID: a rerun replaces
// what an earlier attempt wrote
type Sink interface {
	Name() string
	Write(ctx context.Context, b FileBatch) error
	Close() error
}

// Fanout writes to every sink in order and reports all failures together
type Fanout []Sink

// Name implements Sink
func (f Fanout) Name() string { return "fanout" }

// Write implements Sink. A failing sink does not stop the ones after it
func (f Fanout) Write(ctx context.Context, b FileBatch) error {
	var errs *multierror.Error
	for _, s := range f {
		if err := ctx.Err(); err != nil {
			return multierror.Append(errs, err).ErrorOrNil()
		}
		if err := s.Write(ctx, b); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Close implements Sink
func (f Fanout) Close() error {
	var errs *multierror.Error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// Names lists the sinks for logging
func (f Fanout) Names() []string {
	out := make([]string, len(f))
	for i, s := range f {
		out[i] = s.Name()
	}
	return out
}

var _ Sink = Fanout(nil)
