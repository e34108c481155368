// Package security holds the masking helpers used whenever reactivatetool
// prints or logs credentials, tenant identifiers or personal data.
package security

import (
	"strconv"
	"strings"
)

// MaskPassword masks a password before it reaches a log line or audit row.
// Only the length survives, so two generated passwords cannot be told apart.
// Empty passwords return an empty string.
func MaskPassword(password string) string {
	if password == "" {
		return ""
	}
	return "********(" + strconv.Itoa(len(password)) + ")"
}

// MaskSecret masks a client secret or similar credential.
// Shows the first 4 characters followed by asterisks.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "********"
}

// MaskGUID masks a tenant or client GUID, keeping the first and last 4 characters.
func MaskGUID(guid string) string {
	if len(guid) <= 8 {
		return "****"
	}
	return guid[:4] + "****-****-****-****" + guid[len(guid)-4:]
}

// MaskAccessToken masks a bearer token for display.
// Shows the first 8 and last 4 characters of long tokens.
func MaskAccessToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 16 {
		return token[:len(token)/2] + "..."
	}
	return token[:8] + "..." + token[len(token)-4:]
}

// MaskEmail masks an email address for messages that leave the tenant,
// such as chat notifications.
// Example: "jane.doe@example.com" becomes "ja****@ex****"
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	local, domain, found := strings.Cut(email, "@")
	if !found {
		if len(email) <= 4 {
			return "****"
		}
		return email[:2] + "****"
	}

	maskedLocal := "****"
	if len(local) > 2 {
		maskedLocal = local[:2] + "****"
	}

	maskedDomain := "****"
	if len(domain) > 2 {
		maskedDomain = domain[:2] + "****"
	}

	return maskedLocal + "@" + maskedDomain
}
