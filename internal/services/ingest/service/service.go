// Package service provides the ingest pipeline: capture, decrypt, parse and the three layer writes
package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"sftpetl/internal/adapters/sinks"
	"sftpetl/internal/core/admissions"
	"sftpetl/internal/modkit/repokit"
	perr "sftpetl/internal/platform/errors"
	"sftpetl/internal/platform/logger"
	"sftpetl/internal/services/ingest/domain"
	"sftpetl/internal/services/ingest/guardrails"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration options for the ingest service
type Config struct {
	// Concurrency & pacing
	Workers      int           // files in flight; <=0 -> 1
	DelayPerFile time.Duration // optional sleep after each processed file (per worker)

	// File-level retry, only for retryable errors
	MaxRetries int           // attempts per file; <=0 -> 1
	RetryBase  time.Duration // base backoff; <=0 -> 500ms

	// Timeouts applied via guardrails
	Timeouts guardrails.Timeouts

	// StaleAfter makes a running file claimable again, for runners that died mid file
	StaleAfter time.Duration

	// Per-file lease (optional)
	EnableLeases bool

	// Gold insert chunk size; <=0 -> 1000
	InsertChunk int
}

// Service implements domain.RunnerPort and domain.LedgerPort
type Service struct {
	DB      repokit.TxRunner
	Binder  repokit.Binder[domain.StorageRepo]
	Source  domain.Source
	Decrypt domain.Decrypter
	Parse   domain.Parser
	Sink    domain.Sink // nil when no mirror is configured
	Cfg     Config

	// Lease(ctx, path, runID, do) runs do while holding the file's lease
	Lease domain.LeaseFunc

	// seams
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New constructs the ingest service
func New(
	db repokit.TxRunner,
	binder repokit.Binder[domain.StorageRepo],
	src domain.Source,
	dec domain.Decrypter,
	parse domain.Parser,
	sink domain.Sink,
	cfg Config,
	lease domain.LeaseFunc,
) *Service {
	if db == nil {
		panic("ingest.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("ingest.Service requires a non nil Repo binder")
	}
	if src == nil || dec == nil || parse == nil {
		panic("ingest.Service requires a source, a decrypter and a parser")
	}
	return &Service{
		DB: db, Binder: binder,
		Source: src, Decrypt: dec, Parse: parse, Sink: sink,
		Cfg:   cfg,
		Lease: lease,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

// RunOnce implements domain.RunnerPort
func (s *Service) RunOnce(ctx context.Context) (domain.RunReport, error) {
	ctx, rep := s.begin(ctx)
	if err := s.Decrypt.Build(); err != nil {
		return rep, err
	}

	refs, err := s.Source.List(ctx)
	if err != nil {
		return rep, err
	}
	if rep.Seeded, err = s.preseed(ctx, refs, false); err != nil {
		return rep, err
	}
	logger.C(ctx).Info().Str("source", s.Source.Name()).Int("listed", len(refs)).Int64("seeded", rep.Seeded).Msg("ingest: run started")

	err = s.drain(ctx, nil, &rep)
	return s.end(ctx, rep, err)
}

// RunFiles implements domain.RunnerPort
func (s *Service) RunFiles(ctx context.Context, paths []string) (domain.RunReport, error) {
	ctx, rep := s.begin(ctx)
	if len(paths) == 0 {
		return rep, perr.InvalidArgf("no paths given")
	}
	if err := s.Decrypt.Build(); err != nil {
		return rep, err
	}

	refs := make([]domain.FileRef, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		ref, err := s.Source.Stat(ctx, p)
		if err != nil {
			return rep, err
		}
		refs = append(refs, ref)
	}

	var err error
	if rep.Seeded, err = s.preseed(ctx, refs, true); err != nil {
		return rep, err
	}
	logger.C(ctx).Info().Str("source", s.Source.Name()).Int("files", len(refs)).Msg("ingest: explicit run started")

	claimPaths := make([]string, len(refs))
	for i, r := range refs {
		claimPaths[i] = r.Path
	}
	err = s.drain(ctx, claimPaths, &rep)
	return s.end(ctx, rep, err)
}

func (s *Service) begin(ctx context.Context) (context.Context, domain.RunReport) {
	runID := logger.RunID(ctx)
	if _, err := uuid.Parse(runID); err != nil {
		runID = uuid.NewString()
	}
	return logger.WithRun(ctx, runID, ""), domain.RunReport{RunID: runID}
}

func (s *Service) end(ctx context.Context, rep domain.RunReport, err error) (domain.RunReport, error) {
	ev := logger.C(ctx).Info()
	if err != nil {
		ev = logger.C(ctx).Error().Err(err)
	}
	ev.Int("files", rep.Files).Int("ok", rep.OK).Int("failed", rep.Failed).Int("skipped", rep.Skipped).
		Int64("rows", rep.Rows).Dur("elapsed", rep.Elapsed).Msg("ingest: run finished")
	return rep, err
}

func (s *Service) preseed(ctx context.Context, refs []domain.FileRef, force bool) (int64, error) {
	var n int64
	err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
		var err error
		n, err = s.Binder.Bind(q).PreseedFiles(ctx, refs, force)
		return err
	})
	return n, err
}

// drain runs the worker pool until no claimable file is left. A fatal error (bad key
// material, a misconfigured source) cancels the pool; per-file failures are collected
// and returned together once every worker has stopped
func (s *Service) drain(ctx context.Context, paths []string, rep *domain.RunReport) error {
	start := s.now()
	var (
		mu     sync.Mutex
		failed *multierror.Error
	)
	record := func(res fileResult) {
		mu.Lock()
		defer mu.Unlock()
		rep.Files++
		switch {
		case res.skipped:
			rep.Skipped++
		case res.err != nil:
			rep.Failed++
			failed = multierror.Append(failed, res.err)
		default:
			rep.OK++
			rep.Rows += int64(res.rows)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for range max(s.Cfg.Workers, 1) {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				c, ok, err := s.claim(gctx, logger.RunID(ctx), paths)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				res := s.processFile(gctx, c)
				record(res)
				if res.err != nil && perr.IsCode(res.err, perr.ErrorCodeConfiguration) {
					return res.err
				}
				if s.Cfg.DelayPerFile > 0 {
					_ = s.sleep(gctx, s.Cfg.DelayPerFile)
				}
			}
		})
	}
	err := g.Wait()
	rep.Elapsed = s.now().Sub(start)

	if err != nil {
		// a run aborted by a fatal error keeps its cause first
		return multierror.Append(err, excluding(failed, err)...).ErrorOrNil()
	}
	return failed.ErrorOrNil()
}

func excluding(m *multierror.Error, err error) []error {
	if m == nil {
		return nil
	}
	out := make([]error, 0, len(m.Errors))
	for _, e := range m.Errors {
		if e != err {
			out = append(out, e)
		}
	}
	return out
}

func (s *Service) claim(ctx context.Context, runID string, paths []string) (domain.Claim, bool, error) {
	var c domain.Claim
	var ok bool
	err := s.withRetry(ctx, func() error {
		return s.DB.Tx(ctx, func(q repokit.Queryer) error {
			var err error
			c, ok, err = s.Binder.Bind(q).ClaimNext(ctx, runID, paths, s.Cfg.StaleAfter)
			return err
		})
	})
	return c, ok, err
}

type fileResult struct {
	rows    int
	skipped bool
	err     error
}

// processFile runs one claimed file through the pipeline, retrying transient failures,
// and always records the outcome in the ledger
func (s *Service) processFile(ctx context.Context, c domain.Claim) fileResult {
	ctx = logger.WithRun(ctx, "", c.Ref.Path)
	run := func(ctx context.Context) fileResult { return s.processUnlocked(ctx, c) }

	if s.Lease == nil || !s.Cfg.EnableLeases {
		return run(ctx)
	}
	var res fileResult
	ran := false
	err := s.Lease(ctx, c.Ref.Path, logger.RunID(ctx), func(ctx context.Context) error {
		ran = true
		res = run(ctx)
		return nil
	})
	switch {
	case ran:
		// the outcome is already in the ledger; a failed release only expires with its ttl
		if err != nil {
			logger.C(ctx).Warn().Err(err).Msg("ingest: lease release failed")
		}
		return res
	case errors.Is(err, guardrails.ErrLeaseHeld):
		logger.C(ctx).Info().Msg("ingest: file leased by another runner, skipping")
		return fileResult{skipped: true}
	case err != nil:
		logger.C(ctx).Error().Err(err).Msg("ingest: lease failed")
		fin := domain.FileFinish{
			Status:  domain.StatusError,
			ErrCode: perr.CodeOf(err).String(),
			ErrText: err.Error(),
		}
		if ferr := s.finish(ctx, c.ID, fin); ferr != nil {
			logger.C(ctx).Error().Err(ferr).Msg("ingest: finish file failed")
		}
		return fileResult{err: err}
	}
	return res
}

// finish records fin for the claim even when the run is being canceled
func (s *Service) finish(ctx context.Context, id int64, fin domain.FileFinish) error {
	finCtx, cancel := guardrails.ForDB(context.WithoutCancel(ctx), guardrails.Timeouts{DB: 10 * time.Second})
	defer cancel()
	return s.DB.Tx(finCtx, func(q repokit.Queryer) error {
		return s.Binder.Bind(q).FinishFile(finCtx, id, fin)
	})
}

func (s *Service) processUnlocked(ctx context.Context, c domain.Claim) fileResult {
	fileCtx, cancel := guardrails.WithFile(ctx, s.Cfg.Timeouts)
	defer cancel()

	startWall := s.now()
	var st stats
	err := s.withRetry(fileCtx, func() error {
		st = stats{}
		return s.pipeline(fileCtx, c, &st)
	})

	fin := domain.FileFinish{
		Status:    domain.StatusOK,
		Bytes:     st.bytes,
		Rows:      st.rows,
		NullRows:  st.nullRows,
		CaptureMS: ms(st.capture),
		DecryptMS: ms(st.decrypt),
		DBMS:      ms(st.db),
		ElapsedMS: ms(s.now().Sub(startWall)),
	}
	log := logger.C(ctx)
	if err != nil {
		fin.Status = domain.StatusError
		fin.ErrCode = perr.CodeOf(err).String()
		fin.ErrText = err.Error()
		log.Error().Err(err).Str("code", fin.ErrCode).Int("attempt", c.Attempts).Msg("ingest: file failed")
	} else {
		log.Info().Int64("bytes", st.bytes).Int("rows", st.rows).Int("null_rows", st.nullRows).
			Int("elapsed_ms", fin.ElapsedMS).Msg("ingest: file done")
	}

	if ferr := s.finish(ctx, c.ID, fin); ferr != nil {
		log.Error().Err(ferr).Msg("ingest: finish file failed")
		if err == nil {
			err = ferr
		}
	}
	return fileResult{rows: st.rows, err: err}
}

type stats struct {
	bytes    int64
	rows     int
	nullRows int
	capture  time.Duration
	decrypt  time.Duration
	db       time.Duration
}

// pipeline is one attempt: capture, bronze, decrypt, parse, silver + gold, mirrors.
// Bronze commits on its own so undecryptable input is still kept as captured
func (s *Service) pipeline(ctx context.Context, c domain.Claim, st *stats) error {
	tos := s.Cfg.Timeouts

	t0 := s.now()
	capCtx, capCancel := guardrails.ForCapture(ctx, tos)
	raw, err := s.Source.Read(capCtx, c.Ref)
	capCancel()
	st.capture = s.now().Sub(t0)
	if err != nil {
		return err
	}
	st.bytes = int64(len(raw.Content))

	if err := s.tx(ctx, st, func(ctx context.Context, r domain.StorageRepo) error {
		return r.InsertRaw(ctx, raw)
	}); err != nil {
		return err
	}

	t1 := s.now()
	dec, err := s.Decrypt.FromRecord(raw)
	st.decrypt = s.now().Sub(t1)
	if err != nil {
		return err
	}

	rows := s.Parse.FromRecord(dec)
	for _, r := range rows {
		if r.IsNull() {
			st.nullRows++
		}
	}

	if err := s.tx(ctx, st, func(ctx context.Context, r domain.StorageRepo) error {
		if err := r.InsertDecrypted(ctx, dec); err != nil {
			return err
		}
		if _, err := r.DeleteRows(ctx, c.ID); err != nil {
			return err
		}
		return s.insertChunked(ctx, r, c.ID, rows)
	}); err != nil {
		return err
	}
	st.rows = len(rows)

	if s.Sink == nil {
		return nil
	}
	sinkCtx, sinkCancel := guardrails.ForSink(ctx, tos)
	defer sinkCancel()
	return s.Sink.Write(sinkCtx, sinks.FileBatch{FileID: c.ID, Raw: raw, Decrypted: dec, Rows: rows})
}

func (s *Service) tx(ctx context.Context, st *stats, fn func(context.Context, domain.StorageRepo) error) error {
	t := s.now()
	dbCtx, cancel := guardrails.ForDB(ctx, s.Cfg.Timeouts)
	defer cancel()
	err := s.DB.Tx(dbCtx, func(q repokit.Queryer) error {
		return fn(dbCtx, s.Binder.Bind(q))
	})
	st.db += s.now().Sub(t)
	return err
}

func (s *Service) insertChunked(ctx context.Context, r domain.StorageRepo, fileID int64, rows []admissions.Row) error {
	chunk := s.Cfg.InsertChunk
	if chunk <= 0 {
		chunk = 1000
	}
	for i := 0; i < len(rows); i += chunk {
		end := min(i+chunk, len(rows))
		if _, err := r.InsertRows(ctx, fileID, i, rows[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// withRetry retries fn on retryable errors with jittered exponential backoff capped at 30s
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	attempts := max(s.Cfg.MaxRetries, 1)
	base := s.Cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	var last error
	for i := range attempts {
		last = fn()
		if last == nil || !perr.Retryable(last) || i == attempts-1 {
			return last
		}
		d := min(base<<i, 30*time.Second)
		j := d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
		logger.C(ctx).Warn().Err(last).Int("attempt", i+1).Dur("backoff", j).Msg("ingest: retrying")
		if se := s.sleep(ctx, j); se != nil {
			return last
		}
	}
	return last
}

// Ledger reads for the ops API

// ListFiles implements domain.LedgerPort
func (s *Service) ListFiles(ctx context.Context, f domain.FileFilter) ([]domain.File, error) {
	return s.Binder.Bind(s.DB).ListFiles(ctx, f)
}

// CountByStatus implements domain.LedgerPort
func (s *Service) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	return s.Binder.Bind(s.DB).CountByStatus(ctx)
}

// ListAdmissions implements domain.LedgerPort
func (s *Service) ListAdmissions(ctx context.Context, f domain.AdmissionFilter) ([]domain.Admission, error) {
	return s.Binder.Bind(s.DB).ListAdmissions(ctx, f)
}

func ms(d time.Duration) int { return int(d.Milliseconds()) }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ domain.RunnerPort = (*Service)(nil)
	_ domain.LedgerPort = (*Service)(nil)
)
