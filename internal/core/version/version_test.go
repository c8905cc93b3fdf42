package version

import "testing"

func TestInfo(t *testing.T) {
	b := Info("sftpetl-ingest")
	if b.Service != "sftpetl-ingest" || b.Version != "dev" {
		t.Fatalf("Info = %+v", b)
	}
	if got := b.String(); got != "sftpetl-ingest dev (none, unknown)" {
		t.Fatalf("String = %q", got)
	}
}
