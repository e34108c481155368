package security

import (
	"strings"
	"testing"
)

func TestMaskPassword(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"a", "********(1)"},
		{"Summer2026!", "********(11)"},
		{strings.Repeat("x", 128), "********(128)"},
	}

	for _, tt := range tests {
		result := MaskPassword(tt.input)
		if result != tt.expected {
			t.Errorf("MaskPassword(%q) = %q, want %q", tt.input, result, tt.expected)
		}
		if tt.input != "" && strings.Contains(result, tt.input) {
			t.Errorf("MaskPassword(%q) leaks the password", tt.input)
		}
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"short", "********"},
		{"12345678", "********"},
		{"abcd~efghijklmnop", "abcd********"},
	}

	for _, tt := range tests {
		result := MaskSecret(tt.input)
		if result != tt.expected {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestMaskGUID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "****"},
		{"12345678", "****"},
		{"12345678-1234-1234-1234-123456789abc", "1234****-****-****-****9abc"},
	}

	for _, tt := range tests {
		result := MaskGUID(tt.input)
		if result != tt.expected {
			t.Errorf("MaskGUID(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestMaskAccessToken(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"abcdef", "abc..."},
		{"eyJ0eXAiOiJKV1QiLCJhbGciOiJSUzI1NiJ9.payload.sig", "eyJ0eXAi....sig"},
	}

	for _, tt := range tests {
		result := MaskAccessToken(tt.input)
		if result != tt.expected {
			t.Errorf("MaskAccessToken(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"jane.doe@example.com", "ja****@ex****"},
		{"jd@ex.io", "****@ex****"},
		{"a@b", "****@****"},
		{"nodomain", "no****"},
		{"abc", "****"},
	}

	for _, tt := range tests {
		result := MaskEmail(tt.input)
		if result != tt.expected {
			t.Errorf("MaskEmail(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
