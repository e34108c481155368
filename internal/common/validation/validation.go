// Package validation contains the input checks shared by the settings loader,
// the CSV roster reader and the command-line front end.
package validation

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// NormalizeEmail trims whitespace and lower-cases an address so roster rows
// can be compared and de-duplicated. It does not validate.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail performs basic email format validation.
// Checks for exactly one @, non-empty local and domain parts, a dot in the
// domain and the absence of whitespace or control characters.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email format: %q (missing @)", email)
	}
	for _, ch := range email {
		if ch <= ' ' || ch == 0x7f {
			return fmt.Errorf("invalid email format: %q (contains whitespace or control characters)", email)
		}
	}
	local, domain, _ := strings.Cut(email, "@")
	if local == "" || domain == "" || strings.Contains(domain, "@") {
		return fmt.Errorf("invalid email format: %q", email)
	}
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return fmt.Errorf("invalid email format: %q (domain must contain a dot)", email)
	}
	return nil
}

// ValidateGUID validates that a string matches the 8-4-4-4-12 hex GUID format
// used for tenant, application and license SKU identifiers.
// Example: 12345678-1234-1234-1234-123456789012
func ValidateGUID(guid, fieldName string) error {
	guid = strings.TrimSpace(guid)
	if guid == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if len(guid) != 36 {
		return fmt.Errorf("%s should be a GUID (36 characters, format: 12345678-1234-1234-1234-123456789012)", fieldName)
	}
	if guid[8] != '-' || guid[13] != '-' || guid[18] != '-' || guid[23] != '-' {
		return fmt.Errorf("%s has invalid GUID format (dashes at wrong positions)", fieldName)
	}
	for i, ch := range guid {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			continue
		}
		if !isHex(ch) {
			return fmt.Errorf("%s has invalid GUID format (non-hex character %q)", fieldName, ch)
		}
	}
	return nil
}

// IsGUID reports whether s is a well-formed GUID. Group references in the
// settings file may be either object ids or display names.
func IsGUID(s string) bool {
	return ValidateGUID(s, "value") == nil
}

func isHex(ch rune) bool {
	return (ch >= '0' && ch <= '9') || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// ValidateFilePath checks that path names an existing regular file.
// Relative paths that climb out of the working directory with ".." are rejected.
// An empty path is allowed for optional fields.
func ValidateFilePath(path, fieldName string) error {
	if path == "" {
		return nil
	}
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%s: invalid path (contains NUL byte)", fieldName)
	}

	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(path) && strings.Contains(cleanPath, "..") {
		return fmt.Errorf("%s: path contains directory traversal (..) which is not allowed", fieldName)
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return fmt.Errorf("%s: invalid path: %w", fieldName, err)
	}

	fileInfo, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: file not found: %s", fieldName, path)
		}
		if os.IsPermission(err) {
			return fmt.Errorf("%s: permission denied: %s", fieldName, path)
		}
		return fmt.Errorf("%s: cannot access file: %w", fieldName, err)
	}

	if !fileInfo.Mode().IsRegular() {
		return fmt.Errorf("%s: not a regular file (is it a directory?): %s", fieldName, path)
	}

	return nil
}

// ValidateHostname validates a DNS name or IP address, as used for the SFTP
// report destination.
func ValidateHostname(hostname string) error {
	hostname = strings.TrimSpace(hostname)
	if hostname == "" {
		return fmt.Errorf("hostname cannot be empty")
	}
	if net.ParseIP(hostname) != nil {
		return nil
	}
	if len(hostname) > 253 {
		return fmt.Errorf("hostname too long (max 253 characters)")
	}
	for _, ch := range hostname {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') || ch == '.' || ch == '-') {
			return fmt.Errorf("hostname contains invalid character: %c", ch)
		}
	}
	if strings.HasPrefix(hostname, "-") || strings.HasSuffix(hostname, "-") ||
		strings.HasPrefix(hostname, ".") || strings.HasSuffix(hostname, ".") {
		return fmt.Errorf("hostname cannot start or end with hyphen or dot")
	}
	return nil
}

// ValidatePort validates that a port number is in the valid range (1-65535).
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535 (got %d)", port)
	}
	return nil
}
