package roster

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantEmails  []string
		wantTypes   []string
		wantRowErrs int
		wantErr     bool
	}{
		{
			name:       "standard header",
			input:      "email,employee type\njane@example.com,Employee\njohn@example.com,Contractor\n",
			wantEmails: []string{"jane@example.com", "john@example.com"},
			wantTypes:  []string{"Employee", "Contractor"},
		},
		{
			name:       "upn alias and reordered columns",
			input:      "EmployeeType,UserPrincipalName\nIntern,Ann@Example.com\n",
			wantEmails: []string{"ann@example.com"},
			wantTypes:  []string{"Intern"},
		},
		{
			name:       "byte order mark and blank lines",
			input:      "\ufeffEmail,Type\n\njane@example.com,Employee\n, \n",
			wantEmails: []string{"jane@example.com"},
			wantTypes:  []string{"Employee"},
		},
		{
			name:       "no employee type column",
			input:      "mail\njane@example.com\n",
			wantEmails: []string{"jane@example.com"},
			wantTypes:  []string{""},
		},
		{
			name:        "invalid and duplicate rows",
			input:       "email,type\njane@example.com,A\nnot-an-email,B\n,C\nJANE@example.com,D\n",
			wantEmails:  []string{"jane@example.com"},
			wantTypes:   []string{"A"},
			wantRowErrs: 3,
		},
		{
			name:        "short row",
			input:       "type,email\nEmployee\n",
			wantRowErrs: 1,
		},
		{
			name:    "missing email column",
			input:   "name,type\nJane,Employee\n",
			wantErr: true,
		},
		{
			name:    "empty file",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, rowErrs, err := Parse(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(rowErrs) != tt.wantRowErrs {
				t.Errorf("row errors = %v, want %d", rowErrs, tt.wantRowErrs)
			}
			if len(records) != len(tt.wantEmails) {
				t.Fatalf("got %d records, want %d", len(records), len(tt.wantEmails))
			}
			for i, r := range records {
				if r.Email != tt.wantEmails[i] {
					t.Errorf("record %d email = %q, want %q", i, r.Email, tt.wantEmails[i])
				}
				if r.EmployeeType != tt.wantTypes[i] {
					t.Errorf("record %d type = %q, want %q", i, r.EmployeeType, tt.wantTypes[i])
				}
			}
		})
	}
}

func TestParse_LineNumbers(t *testing.T) {
	input := "email,type\njane@example.com,A\n\nbad,B\njane@example.com,C\n"
	records, rowErrs, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if records[0].Line != 2 {
		t.Errorf("first record line = %d, want 2", records[0].Line)
	}
	if len(rowErrs) != 2 {
		t.Fatalf("row errors = %v", rowErrs)
	}
	if rowErrs[0].Line != 4 || !strings.Contains(rowErrs[0].Error(), "missing @") {
		t.Errorf("first row error = %v", rowErrs[0])
	}
	if rowErrs[1].Line != 5 || !strings.Contains(rowErrs[1].Reason, "duplicate of line 2") {
		t.Errorf("second row error = %v", rowErrs[1])
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.csv")
	if err := os.WriteFile(path, []byte("email\njane@example.com\n"), 0600); err != nil {
		t.Fatal(err)
	}

	records, _, err := Read(path)
	if err != nil || len(records) != 1 {
		t.Fatalf("Read() = %v, %v", records, err)
	}

	if _, _, err := Read(filepath.Join(dir, "missing.csv")); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing file error = %v", err)
	}
	if _, _, err := Read(""); err == nil {
		t.Error("empty path should fail")
	}

	noEmail := filepath.Join(dir, "bad.csv")
	os.WriteFile(noEmail, []byte("name\nJane\n"), 0600)
	if _, _, err := Read(noEmail); !errors.Is(err, ErrNoEmailColumn) {
		t.Errorf("error = %v, want ErrNoEmailColumn", err)
	}
}

func TestFilter(t *testing.T) {
	records := []Record{{Email: "a@example.com"}, {Email: "b@example.com"}}
	got := Filter(records, " B@Example.com")
	if len(got) != 1 || got[0].Email != "b@example.com" {
		t.Errorf("Filter() = %v", got)
	}
	if len(Filter(records, "c@example.com")) != 0 {
		t.Error("Filter() should return nothing for unknown address")
	}
}
