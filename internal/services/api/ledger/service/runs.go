package service

import (
	"context"
	"sync"
	"time"

	perr "sftpetl/internal/platform/errors"
	"sftpetl/internal/platform/logger"
	ptime "sftpetl/internal/platform/time"
	"sftpetl/internal/services/api/ledger/domain"
	ingest "sftpetl/internal/services/ingest/domain"

	"github.com/google/uuid"
)

// Runs starts ingest runs in the background, at most one at a time per process.
// Cross process exclusion is the ledger's job (SKIP LOCKED claims, optional leases)
type Runs struct {
	runner ingest.RunnerPort
	base   context.Context

	mu      sync.Mutex
	active  string
	started time.Time
	last    *ingest.RunReport
	lastErr string
	wg      sync.WaitGroup

	now func() time.Time
}

// NewRuns returns a trigger for runner. Runs inherit base's values but not its request scope;
// canceling base stops an active run
func NewRuns(base context.Context, runner ingest.RunnerPort) *Runs {
	return &Runs{runner: runner, base: base, now: time.Now}
}

// Start kicks off a run and returns its id. No paths means a full pass
func (r *Runs) Start(paths []string) (domain.RunStarted, error) {
	if r == nil || r.runner == nil {
		return domain.RunStarted{}, perr.Unavailablef("runs are not enabled on this instance")
	}

	r.mu.Lock()
	if r.active != "" {
		id := r.active
		r.mu.Unlock()
		return domain.RunStarted{}, perr.Newf(perr.ErrorCodeConflict, "run %s is still active", id)
	}
	id := uuid.NewString()
	r.active, r.started = id, r.now()
	r.wg.Add(1)
	r.mu.Unlock()

	ctx := logger.WithRun(r.base, id, "")
	go func() {
		defer r.wg.Done()
		var (
			rep ingest.RunReport
			err error
		)
		if len(paths) == 0 {
			rep, err = r.runner.RunOnce(ctx)
		} else {
			rep, err = r.runner.RunFiles(ctx, paths)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		r.active = ""
		r.last = &rep
		r.lastErr = ""
		if err != nil {
			r.lastErr = err.Error()
		}
	}()

	return domain.RunStarted{RunID: id, Paths: paths}, nil
}

// Status reports the active run and the last finished one
func (r *Runs) Status() domain.RunStatus {
	if r == nil {
		return domain.RunStatus{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := domain.RunStatus{Last: r.last, LastError: r.lastErr}
	if r.active != "" {
		st.Active, st.RunID = true, r.active
		st.StartedAt = ptime.Ptr(r.started.UTC())
	}
	return st
}

// Wait blocks until the active run, if any, has returned
func (r *Runs) Wait() {
	if r != nil {
		r.wg.Wait()
	}
}
