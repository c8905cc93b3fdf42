// Package http provides http transport for the ingest ledger
package http

import (
	stdhttp "net/http"
	"strconv"

	"sftpetl/internal/modkit/httpkit"
	"sftpetl/internal/services/api/ledger/domain"
	"sftpetl/internal/services/api/ledger/service"
	ingest "sftpetl/internal/services/ingest/domain"
)

const defaultLimit = 100

// Register mounts ledger endpoints on the given router. runs may be nil
func Register(r httpkit.Router, ledger ingest.LedgerPort, runs *service.Runs) {
	h := &handlers{ledger: ledger, runs: runs}

	httpkit.GetQuery[domain.FilesQuery](r, "/files", h.files)
	httpkit.Get(r, "/files/stats", h.stats)
	httpkit.GetQuery[domain.AdmissionsQuery](r, "/admissions", h.admissions)

	httpkit.Get(r, "/runs", h.runStatus)
	httpkit.PostJSON[domain.RunInput](r, "/runs", h.startRun)
}

type handlers struct {
	ledger ingest.LedgerPort
	runs   *service.Runs
}

func (h *handlers) files(r *stdhttp.Request, q domain.FilesQuery) (any, error) {
	limit := orDefault(q.Limit)
	items, err := h.ledger.ListFiles(r.Context(), ingest.FileFilter{
		Status: ingest.Status(q.Status),
		After:  q.After,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}
	next := ""
	if len(items) == limit {
		next = strconv.FormatInt(items[len(items)-1].ID, 10)
	}
	return httpkit.List(items, limit, len(items), next), nil
}

func (h *handlers) stats(r *stdhttp.Request) (any, error) {
	counts, err := h.ledger.CountByStatus(r.Context())
	if err != nil {
		return nil, err
	}
	out := domain.FileStats{ByStatus: make(map[ingest.Status]int64, len(ingest.Statuses))}
	for _, s := range ingest.Statuses {
		out.ByStatus[s] = counts[s]
		out.Total += counts[s]
	}
	return out, nil
}

func (h *handlers) admissions(r *stdhttp.Request, q domain.AdmissionsQuery) (any, error) {
	limit := orDefault(q.Limit)
	items, err := h.ledger.ListAdmissions(r.Context(), ingest.AdmissionFilter{
		PatientID: q.PatientID,
		FileID:    q.FileID,
		After:     q.After,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}
	next := ""
	if len(items) == limit {
		next = strconv.FormatInt(items[len(items)-1].ID, 10)
	}
	return httpkit.List(items, limit, len(items), next), nil
}

func (h *handlers) runStatus(_ *stdhttp.Request) (any, error) {
	return h.runs.Status(), nil
}

// startRun answers 202 with the run id; the run continues after the request ends
func (h *handlers) startRun(_ *stdhttp.Request, in domain.RunInput) (any, error) {
	started, err := h.runs.Start(in.Paths)
	if err != nil {
		return nil, err
	}
	return httpkit.Accepted(started), nil
}

func orDefault(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}
