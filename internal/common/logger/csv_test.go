package logger

import (
	"encoding/csv"
	"os"
	"strings"
	"testing"
)

func TestCSVLogger_HeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	l, err := NewCSVLogger(dir, "reactivatetool", "reactivate")
	if err != nil {
		t.Fatalf("NewCSVLogger() error = %v", err)
	}
	if !strings.Contains(l.Path(), "_reactivatetool_reactivate_") || !strings.HasSuffix(l.Path(), ".csv") {
		t.Errorf("unexpected file name %s", l.Path())
	}

	need, err := l.ShouldWriteHeader()
	if err != nil || !need {
		t.Fatalf("ShouldWriteHeader() = %v, %v; want true, nil", need, err)
	}
	if err := l.WriteHeader(AuditColumns); err != nil {
		t.Fatalf("WriteHeader() error = %v", err)
	}
	if err := l.WriteRow([]string{"reactivate", "error", "a@example.com", "groups", "group \"Sales, EU\" not found"}); err != nil {
		t.Fatalf("WriteRow() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading back CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0][0] != "Timestamp" || records[0][1] != "Action" {
		t.Errorf("header = %v", records[0])
	}
	if got := records[1][5]; got != "group \"Sales, EU\" not found" {
		t.Errorf("detail column = %q", got)
	}
}

func TestCSVLogger_CloseTwice(t *testing.T) {
	l, err := NewCSVLogger(t.TempDir(), "reactivatetool", "enable")
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := l.WriteRow([]string{"x"}); err == nil {
		t.Error("WriteRow() after Close should fail")
	}
}

func TestOpenAudit(t *testing.T) {
	tests := []struct {
		format  string
		ext     string
		wantErr bool
	}{
		{"csv", ".csv", false},
		{"", ".csv", false},
		{"JSON", ".jsonl", false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run("format_"+tt.format, func(t *testing.T) {
			dir := t.TempDir()
			l, err := OpenAudit(tt.format, dir, "reactivatetool", "reactivate")
			if (err != nil) != tt.wantErr {
				t.Fatalf("OpenAudit() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !strings.HasSuffix(l.Path(), tt.ext) {
				t.Errorf("path %s should end with %s", l.Path(), tt.ext)
			}
			if err := l.WriteRow([]string{"reactivate", "success", "a@example.com", "enable", ""}); err != nil {
				t.Errorf("WriteRow() error = %v", err)
			}
			l.Close()

			// Reopening an existing JSON file must still accept rows.
			l2, err := OpenAudit(tt.format, dir, "reactivatetool", "reactivate")
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer l2.Close()
			if err := l2.WriteRow([]string{"reactivate", "success", "b@example.com", "enable", ""}); err != nil {
				t.Errorf("WriteRow() after reopen error = %v", err)
			}
		})
	}
}
