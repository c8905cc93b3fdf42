// Package admissions is the parse stage: it turns decrypted CSV text into patient admission
// rows with a fixed fourteen column schema.
//
// Malformed lines never fail the stage. A line with the wrong number of fields, broken
// quoting, or any value that does not coerce to its column type becomes a row with every
// column null, so the row count always matches the data line count.
package admissions

import (
	"strconv"
	"strings"
	"time"
)

// HeaderToken is the first column's name; rows whose patient_id equals it are header lines.
// A real patient whose id is literally this token is dropped too
const HeaderToken = "patient_id"

// DateLayout is the layout of the three date columns
const DateLayout = "2006-01-02"

// Kind is a column's semantic type
type Kind uint8

// Column kinds
const (
	KindString Kind = iota
	KindDate
	KindInt32
	KindFloat64
)

func (k Kind) String() string {
	switch k {
	case KindDate:
		return "date"
	case KindInt32:
		return "int"
	case KindFloat64:
		return "double"
	}
	return "string"
}

// Row is one parsed admission. Every column is nullable
type Row struct {
	PatientID          *string
	FirstName          *string
	LastName           *string
	DateOfBirth        *time.Time
	Gender             *string
	BloodType          *string
	AdmissionDate      *time.Time
	DischargeDate      *time.Time
	Diagnosis          *string
	Treatment          *string
	AttendingPhysician *string
	RoomNumber         *int32
	InsuranceProvider  *string
	TotalCharges       *float64

	// SourcePath is lineage, set only by a Stage built with lineage on
	SourcePath *string
}

// Column describes one schema column
type Column struct {
	Name string
	Kind Kind

	assign func(r *Row, field string) error
	value  func(r *Row) any
}

var columns = []Column{
	str("patient_id", func(r *Row) **string { return &r.PatientID }),
	str("first_name", func(r *Row) **string { return &r.FirstName }),
	str("last_name", func(r *Row) **string { return &r.LastName }),
	date("date_of_birth", func(r *Row) **time.Time { return &r.DateOfBirth }),
	str("gender", func(r *Row) **string { return &r.Gender }),
	str("blood_type", func(r *Row) **string { return &r.BloodType }),
	date("admission_date", func(r *Row) **time.Time { return &r.AdmissionDate }),
	date("discharge_date", func(r *Row) **time.Time { return &r.DischargeDate }),
	str("diagnosis", func(r *Row) **string { return &r.Diagnosis }),
	str("treatment", func(r *Row) **string { return &r.Treatment }),
	str("attending_physician", func(r *Row) **string { return &r.AttendingPhysician }),
	bind("room_number", KindInt32, parseInt32, func(r *Row) **int32 { return &r.RoomNumber }),
	str("insurance_provider", func(r *Row) **string { return &r.InsuranceProvider }),
	bind("total_charges", KindFloat64, parseFloat64, func(r *Row) **float64 { return &r.TotalCharges }),
}

// Columns returns the schema in file order
func Columns() []Column { return append([]Column(nil), columns...) }

// Header returns the column names in file order
func Header() []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.Name
	}
	return out
}

// Values returns the row's columns in schema order; null columns are untyped nil
func (r Row) Values() []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = c.value(&r)
	}
	return out
}

// IsNull reports whether every schema column is null (the degraded form of a bad line)
func (r Row) IsNull() bool {
	for _, v := range r.Values() {
		if v != nil {
			return false
		}
	}
	return true
}


func bind[T any](name string, kind Kind, parse func(string) (*T, error), field func(*Row) **T) Column {
	return Column{
		Name: name,
		Kind: kind,
		assign: func(r *Row, s string) error {
			v, err := parse(s)
			if err != nil {
				return err
			}
			*field(r) = v
			return nil
		},
		value: func(r *Row) any {
			if p := *field(r); p != nil {
				return *p
			}
			return nil
		},
	}
}

func str(name string, field func(*Row) **string) Column {
	return bind(name, KindString, parseString, field)
}

func date(name string, field func(*Row) **time.Time) Column {
	return bind(name, KindDate, parseDate, field)
}

// Coercers. An empty field is null, not an error; typed fields ignore surrounding blanks

func parseString(s string) (*string, error) {
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseInt32(s string) (*int32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nil, err
	}
	v := int32(n)
	return &v, nil
}

func parseFloat64(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
