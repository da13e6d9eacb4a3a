package sqlutil

import (
	"testing"

	"github.com/hyperclast/pagesync/setup/config"
)

func TestParseFileURI(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"relative", "file:pagesync.db", "pagesync.db", false},
		{"absolute", "file:///tmp/pagesync.db", "/tmp/pagesync.db", false},
		{"with options", "file:pagesync.db?_busy_timeout=5000", "pagesync.db?_busy_timeout=5000", false},
		{"not a file uri", "postgres://user@localhost/db", "", true},
		{"empty path", "file:", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFileURI(config.DataSource(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFileURI(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseFileURI(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestQueryVariadic(t *testing.T) {
	if got := QueryVariadic(3); got != "($1,$2,$3)" {
		t.Fatalf("QueryVariadic(3) = %q", got)
	}
	if got := QueryVariadicOffset(2, 1); got != "($2,$3)" {
		t.Fatalf("QueryVariadicOffset(2, 1) = %q", got)
	}
	if got := QueryVariadic(1); got != "($1)" {
		t.Fatalf("QueryVariadic(1) = %q", got)
	}
}
