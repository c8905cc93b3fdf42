package admissions

import (
	"encoding/csv"
	"strings"

	"sftpetl/internal/core/layers"
)

// Parse splits text into lines, trims them, drops blank lines, parses each remaining line
// against the schema and drops header lines. Output keeps input order
func Parse(text string) []Row {
	var out []Row
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		row, header := parseLine(line)
		if header {
			continue
		}
		out = append(out, row)
	}
	return out
}

// ParseLine parses a single trimmed line; any problem yields the all-null row.
// A header line is not a record either and also comes back all null
func ParseLine(line string) Row {
	row, _ := parseLine(line)
	return row
}

// parseLine reports header lines on the raw first field; the rest of a header never
// coerces to the schema types, so the check cannot wait for the row
func parseLine(line string) (Row, bool) {
	rd := csv.NewReader(strings.NewReader(line))
	rd.FieldsPerRecord = -1
	fields, err := rd.Read()
	if err != nil || len(fields) == 0 {
		return Row{}, false
	}
	if fields[0] == HeaderToken {
		return Row{}, true
	}
	if len(fields) != len(columns) {
		return Row{}, false
	}

	var r Row
	for i, c := range columns {
		if err := c.assign(&r, fields[i]); err != nil {
			return Row{}, false
		}
	}
	return r, false
}

// Stage is the parse stage
type Stage struct {
	lineage bool
}

// StageOption configures a Stage
type StageOption func(*Stage)

// WithLineage keeps the source path on every emitted row
func WithLineage(on bool) StageOption { return func(s *Stage) { s.lineage = on } }

// NewStage returns a parse stage; lineage is off unless requested
func NewStage(opts ...StageOption) *Stage {
	s := &Stage{}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Lineage reports whether rows carry their source path
func (s *Stage) Lineage() bool { return s.lineage }

// FromRecord parses one silver record. A record without text yields no rows
func (s *Stage) FromRecord(rec layers.DecryptedRecord) []Row {
	if rec.Text == nil {
		return nil
	}
	rows := Parse(*rec.Text)
	if s.lineage {
		for i := range rows {
			p := rec.Path
			rows[i].SourcePath = &p
		}
	}
	return rows
}
