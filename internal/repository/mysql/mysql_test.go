package mysql

import (
	"strings"
	"testing"
)

func TestNormalizeDSN(t *testing.T) {
	dsn, err := NormalizeDSN("docbatch:secret@tcp(127.0.0.1:3306)/docs")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"parseTime=true", "charset=utf8mb4", "/docs"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}

	kept, err := NormalizeDSN("u:p@tcp(db:3306)/docs?charset=latin1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(kept, "charset=latin1") {
		t.Fatalf("charset overridden: %q", kept)
	}

	if _, err := NormalizeDSN("u:p@tcp(db:3306)"); err == nil {
		t.Fatalf("dsn without database name accepted")
	}
}
