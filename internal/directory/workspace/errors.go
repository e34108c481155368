package workspace

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"

	"reactivatetool/internal/common/retry"
	"reactivatetool/internal/directory"
)

func isStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}

func reasons(gerr *googleapi.Error) []string {
	var out []string
	for _, item := range gerr.Errors {
		if item.Reason != "" {
			out = append(out, item.Reason)
		}
	}
	return out
}

// IsRetryable reports whether err is a Google API quota or transient server
// error, or a network error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		case http.StatusForbidden:
			for _, r := range reasons(gerr) {
				if r == "rateLimitExceeded" || r == "userRateLimitExceeded" || r == "quotaExceeded" {
					return true
				}
			}
			return false
		}
		return false
	}
	return retry.IsRetryableError(err)
}

// describe wraps a Google API error with the operation and its status.
func describe(err error, operation string) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if r := reasons(gerr); len(r) > 0 {
		return fmt.Errorf("%s: %d %s: %w", operation, gerr.Code, strings.Join(r, ","), err)
	}
	return fmt.Errorf("%s: %d: %w", operation, gerr.Code, err)
}

// mailboxError maps Gmail's "service not enabled" precondition to ErrNoMailbox.
func mailboxError(err error, operation, email string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(gerr.Message), "mail service not enabled") {
		return fmt.Errorf("%s: %w: %s", operation, directory.ErrNoMailbox, email)
	}
	return describe(err, operation)
}
