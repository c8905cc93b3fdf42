package guardrails

import (
	"context"
	"errors"
	"time"

	"sftpetl/internal/modkit/repokit"
	"sftpetl/internal/platform/logger"
)

// ErrLeaseHeld signals another runner owns the file already
var ErrLeaseHeld = errors.New("ingest: file lease already held")

// MakeFileLease returns a lease function backed by ingest_file_leases.
// A lease older than ttl is taken over, so a crashed runner does not pin a file forever.
// The lease is released after do returns, whatever its outcome
func MakeFileLease(db repokit.TxRunner, ttl time.Duration) func(ctx context.Context, path, runID string, do func(context.Context) error) error {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return func(ctx context.Context, path, runID string, do func(context.Context) error) error {
		var claimed bool
		err := db.Tx(ctx, func(q repokit.Queryer) error {
			rows, err := q.Query(ctx, `
				INSERT INTO ingest_file_leases (path, run_id)
				VALUES ($1, $2::uuid)
				ON CONFLICT (path) DO UPDATE
				SET run_id = EXCLUDED.run_id, leased_at = now()
				WHERE ingest_file_leases.leased_at < now() - make_interval(secs => $3)
				RETURNING true
			`, path, runID, ttl.Seconds())
			if err != nil {
				return err
			}
			defer rows.Close()
			claimed = rows.Next()
			return rows.Err()
		})
		if err != nil {
			return err
		}
		if !claimed {
			return ErrLeaseHeld
		}

		defer func() {
			// release on a fresh context so a canceled run still frees the file
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if _, err := db.Exec(rctx, `DELETE FROM ingest_file_leases WHERE path = $1 AND run_id = $2::uuid`, path, runID); err != nil {
				logger.C(ctx).Warn().Err(err).Msg("ingest: lease release failed")
			}
		}()
		return do(ctx)
	}
}
