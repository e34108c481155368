package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateFilePath(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "validation_test_*.csv")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.Close()

	tmpDir := t.TempDir()

	tests := []struct {
		name      string
		path      string
		fieldName string
		wantErr   bool
		errMsg    string
	}{
		{"Valid: Empty path (optional field)", "", "CSV file", false, ""},
		{"Valid: Absolute path to temp file", tmpFile.Name(), "CSV file", false, ""},
		{"Valid: Relative path to current file", "validation_test.go", "CSV file", false, ""},

		{"Security: Unix path traversal", "../../etc/passwd", "CSV file", true, "traversal"},
		{"Security: Windows path traversal", "..\\..\\Windows\\System32\\config", "CSV file", true, "traversal"},
		{"Security: Hidden traversal in path", "safe/../../etc/passwd", "CSV file", true, "traversal"},

		{"Error: File does not exist", "/nonexistent/file/path.csv", "CSV file", true, "not found"},
		{"Error: Nonexistent file in temp", filepath.Join(os.TempDir(), "nonexistent_roster_test.csv"), "CSV file", true, "not found"},
		{"Error: Path is directory not file", tmpDir, "Config file", true, "not a regular file"},
		{"Error: NUL byte", "file\x00name.csv", "CSV file", true, "NUL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.path, tt.fieldName)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilePath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errMsg != "" && !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(tt.errMsg)) {
				t.Errorf("ValidateFilePath() error message = %v, should contain %v", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
		errMsg  string
	}{
		{"Valid: Simple email", "user@example.com", false, ""},
		{"Valid: Email with plus", "test.name+tag@example.co.uk", false, ""},
		{"Valid: Trimmed whitespace", "  user@example.com  ", false, ""},

		{"Error: Empty email", "", true, "empty"},
		{"Error: Missing @", "userexample.com", true, "missing @"},
		{"Error: Multiple @ symbols", "user@@example.com", true, "invalid"},
		{"Error: Empty local part", "@example.com", true, "invalid"},
		{"Error: Empty domain", "user@", true, "invalid"},
		{"Error: Domain without dot", "user@localhost", true, "dot"},
		{"Error: Embedded space", "first last@example.com", true, "whitespace"},
		{"Security: CRLF injection attempt", "user@example.com\r\nBcc: attacker@evil.com", true, "invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errMsg != "" && !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(tt.errMsg)) {
				t.Errorf("ValidateEmail() error message = %v, should contain %v", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Jane.Doe@Example.COM "); got != "jane.doe@example.com" {
		t.Errorf("NormalizeEmail() = %q", got)
	}
}

func TestValidateGUID(t *testing.T) {
	tests := []struct {
		name    string
		guid    string
		wantErr bool
		errMsg  string
	}{
		{"Valid: Standard GUID", "12345678-1234-1234-1234-123456789012", false, ""},
		{"Valid: Mixed case GUID", "AaBbCcDd-1234-5678-90Ab-CdEf12345678", false, ""},
		{"Valid: Trimmed whitespace", "  12345678-1234-1234-1234-123456789012  ", false, ""},

		{"Error: Empty GUID", "", true, "empty"},
		{"Error: Too short", "12345678-1234-1234-1234-12345678901", true, "36 characters"},
		{"Error: Missing dashes", "12345678123412341234123456789012", true, "36 characters"},
		{"Error: Wrong dash position", "1234567-81234-1234-1234-123456789012", true, "dashes at wrong positions"},
		{"Error: Non-hex character", "1234567g-1234-1234-1234-123456789012", true, "non-hex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGUID(tt.guid, "TenantID")
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGUID() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errMsg != "" && !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(tt.errMsg)) {
				t.Errorf("ValidateGUID() error message = %v, should contain %v", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestIsGUID(t *testing.T) {
	if !IsGUID("6fd2c87f-b296-42f0-b197-1e91e994b900") {
		t.Error("IsGUID() = false for a valid object id")
	}
	if IsGUID("All Staff") {
		t.Error("IsGUID() = true for a display name")
	}
}

func TestValidateHostname(t *testing.T) {
	tests := []struct {
		name     string
		hostname string
		wantErr  bool
	}{
		{"Valid: DNS name", "sftp.example.com", false},
		{"Valid: IPv4", "192.168.1.10", false},
		{"Valid: IPv6", "2001:db8::1", false},
		{"Error: Empty", "", true},
		{"Error: Invalid character", "sftp host.example.com", true},
		{"Error: Ends with dot", "example.com.", true},
		{"Error: Too long", strings.Repeat("a", 254), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHostname(tt.hostname)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHostname() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePort(t *testing.T) {
	for _, port := range []int{1, 22, 2222, 65535} {
		if err := ValidatePort(port); err != nil {
			t.Errorf("ValidatePort(%d) error = %v", port, err)
		}
	}
	for _, port := range []int{-1, 0, 65536} {
		if err := ValidatePort(port); err == nil {
			t.Errorf("ValidatePort(%d) should fail", port)
		}
	}
}
