package admissions

import (
	"strings"
	"testing"
	"time"

	"sftpetl/internal/core/layers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "patient_id,first_name,last_name,date_of_birth,gender,blood_type,admission_date,discharge_date,diagnosis,treatment,attending_physician,room_number,insurance_provider,total_charges"

const johnDoe = "1,John,Doe,1990-01-01,M,O+,2024-01-10,2024-01-15,Flu,Rest,Dr. Smith,101,Acme Health,1250.50"

func day(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParse_HeaderAndBlankLinesExcluded(t *testing.T) {
	t.Parallel()

	rows := Parse(header + "\n" + johnDoe + "\n\n  \n")
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, "1", *r.PatientID)
	assert.Equal(t, "John", *r.FirstName)
	assert.Equal(t, "Doe", *r.LastName)
	assert.Equal(t, day("1990-01-01"), *r.DateOfBirth)
	assert.Equal(t, "M", *r.Gender)
	assert.Equal(t, "O+", *r.BloodType)
	assert.Equal(t, day("2024-01-10"), *r.AdmissionDate)
	assert.Equal(t, day("2024-01-15"), *r.DischargeDate)
	assert.Equal(t, "Flu", *r.Diagnosis)
	assert.Equal(t, "Rest", *r.Treatment)
	assert.Equal(t, "Dr. Smith", *r.AttendingPhysician)
	assert.Equal(t, int32(101), *r.RoomNumber)
	assert.Equal(t, "Acme Health", *r.InsuranceProvider)
	assert.InDelta(t, 1250.50, *r.TotalCharges, 1e-9)
	assert.Nil(t, r.SourcePath)
}

func TestParse_MalformedLinesBecomeNullRows(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"13 fields":      "1,John,Doe,1990-01-01,M,O+,2024-01-10,2024-01-15,Flu,Rest,Dr. Smith,101,Acme Health",
		"15 fields":      johnDoe + ",extra",
		"bad date":       "1,John,Doe,1990-13-01,M,O+,2024-01-10,2024-01-15,Flu,Rest,Dr. Smith,101,Acme Health,1250.50",
		"bad int":        "1,John,Doe,1990-01-01,M,O+,2024-01-10,2024-01-15,Flu,Rest,Dr. Smith,1O1,Acme Health,1250.50",
		"int overflow":   "1,John,Doe,1990-01-01,M,O+,2024-01-10,2024-01-15,Flu,Rest,Dr. Smith,3000000000,Acme Health,1250.50",
		"bad float":      "1,John,Doe,1990-01-01,M,O+,2024-01-10,2024-01-15,Flu,Rest,Dr. Smith,101,Acme Health,$1250",
		"broken quoting": `1,"John,Doe,1990-01-01,M,O+,2024-01-10,2024-01-15,Flu,Rest,Dr. Smith,101,Acme Health,1250.50`,
		"single field":   "garbage",
	}
	for name, line := range cases {
		rows := Parse(line)
		require.Len(t, rows, 1, name)
		assert.True(t, rows[0].IsNull(), "%s: %+v", name, rows[0])
		assert.Equal(t, Row{}, rows[0], name)
	}
}

func TestParse_QuotedCommaAndEmptyFields(t *testing.T) {
	t.Parallel()

	rows := Parse(`P2,Jane,Roe,,F,,2024-02-01,,"Fracture, left arm",Cast,Dr. Who, 205 ,,`)
	require.Len(t, rows, 1)
	r := rows[0]

	assert.Equal(t, "Fracture, left arm", *r.Diagnosis)
	assert.Equal(t, int32(205), *r.RoomNumber, "typed fields are trimmed")
	assert.Nil(t, r.DateOfBirth)
	assert.Nil(t, r.BloodType)
	assert.Nil(t, r.DischargeDate)
	assert.Nil(t, r.InsuranceProvider)
	assert.Nil(t, r.TotalCharges)
	assert.False(t, r.IsNull())
}

func TestParse_StringFieldsKeptVerbatim(t *testing.T) {
	t.Parallel()

	rows := Parse("P3, Ann ,Lee,1990-01-01,F,A-,2024-01-10,2024-01-15,Cold,Tea,Dr. X,1,Acme,1")
	require.Len(t, rows, 1)
	assert.Equal(t, " Ann ", *rows[0].FirstName)
}

func TestParse_RowCountProperty(t *testing.T) {
	t.Parallel()

	lines := []string{
		header,
		johnDoe,
		"",
		"   ",
		"not,enough,fields",
		"\t" + johnDoe + "\r",
		header,
		"x",
	}
	text := strings.Join(lines, "\n")

	nonEmpty, headers := 0, 0
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		nonEmpty++
		if strings.HasPrefix(l, HeaderToken+",") {
			headers++
		}
	}

	rows := Parse(text)
	assert.Len(t, rows, nonEmpty-headers)
	assert.Equal(t, "1", *rows[0].PatientID)
	assert.True(t, rows[1].IsNull())
	assert.Equal(t, "1", *rows[2].PatientID, "CRLF input is trimmed")
	assert.True(t, rows[3].IsNull())
}

func TestParse_Idempotent(t *testing.T) {
	t.Parallel()

	text := header + "\n" + johnDoe + "\nbad\n"
	assert.Equal(t, Parse(text), Parse(text))
}

func TestParse_EmptyText(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("\n\n \n"))
	assert.Empty(t, Parse(header))
}

func TestParse_HeaderTokenAsPatientIDIsDropped(t *testing.T) {
	t.Parallel()

	// a real record whose id equals the header token is indistinguishable from a header
	line := "patient_id,John,Doe,1990-01-01,M,O+,2024-01-10,2024-01-15,Flu,Rest,Dr. Smith,101,Acme Health,1250.50"
	assert.Empty(t, Parse(line))
}

func TestParse_HeaderDroppedBeforeCoercion(t *testing.T) {
	t.Parallel()

	// header columns like date_of_birth never coerce, the filter must not depend on them
	rows := Parse("patient_id,first_name,...\n" + johnDoe + "\n\n  \n")
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].PatientID)
	assert.Equal(t, "1", *rows[0].PatientID)

	rows = Parse("  " + header + "  \r\n" + header + "\n")
	assert.Empty(t, rows, "repeated and padded headers are all dropped")

	row, isHeader := parseLine(header)
	assert.True(t, isHeader)
	assert.True(t, row.IsNull())
	assert.True(t, ParseLine(header).IsNull())

	_, isHeader = parseLine(`"patient_id",first_name`)
	assert.True(t, isHeader, "a quoted token is the same field")
	_, isHeader = parseLine("Patient_ID," + strings.Repeat("x,", 12) + "x")
	assert.False(t, isHeader, "the match is exact")
}

func TestStage_FromRecord(t *testing.T) {
	t.Parallel()

	text := header + "\n" + johnDoe + "\n"
	rec := layers.DecryptedRecord{Path: "drop/a.csv.gpg", Text: &text}

	rows := NewStage().FromRecord(rec)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].SourcePath)

	rows = NewStage(WithLineage(true)).FromRecord(rec)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].SourcePath)
	assert.Equal(t, "drop/a.csv.gpg", *rows[0].SourcePath)

	assert.Nil(t, NewStage().FromRecord(layers.DecryptedRecord{Path: "drop/none"}))
}

func TestSchema(t *testing.T) {
	t.Parallel()

	assert.Equal(t, strings.Split(header, ","), Header())
	cols := Columns()
	require.Len(t, cols, 14)
	assert.Equal(t, KindDate, cols[3].Kind)
	assert.Equal(t, KindInt32, cols[11].Kind)
	assert.Equal(t, KindFloat64, cols[13].Kind)

	rows := Parse(johnDoe)
	vals := rows[0].Values()
	require.Len(t, vals, 14)
	assert.Equal(t, "1", vals[0])
	assert.Equal(t, int32(101), vals[11])
	assert.Nil(t, Row{}.Values()[0])
}
