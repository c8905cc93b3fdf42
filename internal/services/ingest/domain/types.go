// Package domain holds the ledger types and ports of the ingest pipeline
package domain

import (
	"time"

	"sftpetl/internal/adapters/capture"
)

// FileRef re-exports the capture reference so callers need not import the adapter
type FileRef = capture.FileRef

// Status is a file's ledger state
type Status string

// Ledger states. A file moves pending -> running -> ok|error; error files are picked up
// again by the next run, ok files only when their size or mtime change
const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusOK      Status = "ok"
	StatusError   Status = "error"
)

// Statuses lists every state in lifecycle order
var Statuses = []Status{StatusPending, StatusRunning, StatusOK, StatusError}

// Claim is a file handed to exactly one worker
type Claim struct {
	ID       int64
	Attempts int
	Ref      FileRef
}

// FileFinish is the bookkeeping written when a file's processing ends
type FileFinish struct {
	Status    Status
	Bytes     int64
	Rows      int
	NullRows  int
	CaptureMS int
	DecryptMS int
	DBMS      int
	ElapsedMS int
	ErrCode   string
	ErrText   string
}

// File is one ledger row as read back by the ops API
type File struct {
	ID               int64      `json:"id"`
	Path             string     `json:"path"`
	Status           Status     `json:"status"`
	ModificationTime *time.Time `json:"modification_time,omitempty"`
	Length           int64      `json:"length"`
	RunID            *string    `json:"run_id,omitempty"`
	Attempts         int        `json:"attempts"`
	Bytes            int64      `json:"bytes"`
	Rows             int64      `json:"rows"`
	NullRows         int64      `json:"null_rows"`
	CaptureMS        int        `json:"capture_ms"`
	DecryptMS        int        `json:"decrypt_ms"`
	DBMS             int        `json:"db_ms"`
	ElapsedMS        int        `json:"elapsed_ms"`
	ErrorCode        string     `json:"error_code,omitempty"`
	Error            string     `json:"error,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"`
}

// FileFilter pages the ledger by id
type FileFilter struct {
	Status Status
	After  int64
	Limit  int
}

// Admission is one gold row as read back by the ops API. Dates are YYYY-MM-DD
type Admission struct {
	ID                 int64    `json:"id"`
	FileID             int64    `json:"file_id"`
	Ordinal            int      `json:"ordinal"`
	SourcePath         *string  `json:"source_path,omitempty"`
	PatientID          *string  `json:"patient_id"`
	FirstName          *string  `json:"first_name"`
	LastName           *string  `json:"last_name"`
	DateOfBirth        *string  `json:"date_of_birth"`
	Gender             *string  `json:"gender"`
	BloodType          *string  `json:"blood_type"`
	AdmissionDate      *string  `json:"admission_date"`
	DischargeDate      *string  `json:"discharge_date"`
	Diagnosis          *string  `json:"diagnosis"`
	Treatment          *string  `json:"treatment"`
	AttendingPhysician *string  `json:"attending_physician"`
	RoomNumber         *int32   `json:"room_number"`
	InsuranceProvider  *string  `json:"insurance_provider"`
	TotalCharges       *float64 `json:"total_charges"`
}

// AdmissionFilter pages gold rows by id; zero values do not filter
type AdmissionFilter struct {
	PatientID string
	FileID    int64
	After     int64
	Limit     int
}

// RunReport summarizes one pass over the source
type RunReport struct {
	RunID   string        `json:"run_id"`
	Seeded  int64         `json:"seeded"`
	Files   int           `json:"files"`
	OK      int           `json:"ok"`
	Failed  int           `json:"failed"`
	Skipped int           `json:"skipped"`
	Rows    int64         `json:"rows"`
	Elapsed time.Duration `json:"elapsed_ns"`
}
