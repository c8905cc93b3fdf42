// Package domain holds the ledger API inputs, outputs and ports
package domain

import (
	"time"

	ingest "sftpetl/internal/services/ingest/domain"
)

// FilesQuery pages the file ledger by id
type FilesQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=pending running ok error"`
	After  int64  `query:"after"  validate:"min=0"`
	Limit  int    `query:"limit"  validate:"omitempty,min=1,max=1000"`
}

// AdmissionsQuery pages gold rows by id
type AdmissionsQuery struct {
	PatientID string `query:"patient_id" validate:"omitempty,max=128"`
	FileID    int64  `query:"file_id"    validate:"min=0"`
	After     int64  `query:"after"      validate:"min=0"`
	Limit     int    `query:"limit"      validate:"omitempty,min=1,max=1000"`
}

// RunInput starts a run; no paths means a full pass over the source
type RunInput struct {
	Paths []string `json:"paths" validate:"max=1000,dive,relpath"`
}

// RunStarted is returned with 202 when a run was accepted
type RunStarted struct {
	RunID string   `json:"run_id"`
	Paths []string `json:"paths,omitempty"`
}

// RunStatus reports the active run, if any, and the outcome of the last one
type RunStatus struct {
	Active    bool              `json:"active"`
	RunID     string            `json:"run_id,omitempty"`
	StartedAt *time.Time        `json:"started_at,omitempty"`
	Last      *ingest.RunReport `json:"last,omitempty"`
	LastError string            `json:"last_error,omitempty"`
}

// FileStats is the ledger count per status, every status present
type FileStats struct {
	Total    int64                   `json:"total"`
	ByStatus map[ingest.Status]int64 `json:"by_status"`
}

// Ports are what the ledger module consumes from the ingest module.
// Runner may be nil, which turns POST /runs off
type Ports struct {
	Ledger ingest.LedgerPort
	Runner ingest.RunnerPort
}
