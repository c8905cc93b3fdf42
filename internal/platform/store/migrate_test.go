package store

import (
	"io/fs"
	"strings"
	"testing"

	"sftpetl/internal/platform/store/migrations"
)

func TestMigrateURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"postgres://u:p@db:5432/etl":   "pgx5://u:p@db:5432/etl",
		"postgresql://u:p@db:5432/etl": "pgx5://u:p@db:5432/etl",
		"pgx5://u:p@db:5432/etl":       "pgx5://u:p@db:5432/etl",
	}
	for in, want := range cases {
		if got := MigrateURL(in); got != want {
			t.Fatalf("MigrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMigrations_PairedAndCoverLayers(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(migrations.FS, "*.up.sql")
	if err != nil || len(ups) == 0 {
		t.Fatalf("no up migrations: %v", err)
	}
	var all strings.Builder
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(migrations.FS, down); err != nil {
			t.Fatalf("%s has no down pair", up)
		}
		b, _ := fs.ReadFile(migrations.FS, up)
		all.Write(b)
	}
	for _, table := range []string{"ingest_files", "raw_files", "decrypted_files", "patient_admissions", "ingest_file_leases"} {
		if !strings.Contains(all.String(), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("table %s missing from migrations", table)
		}
	}
}
