package entra

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"

	"reactivatetool/internal/common/retry"
)

// graphErrorDetails returns the OData code, message and HTTP status of err,
// if it is a Graph error.
func graphErrorDetails(err error) (code, message string, status int, ok bool) {
	var odataErr *odataerrors.ODataError
	if !errors.As(err, &odataErr) {
		return "", "", 0, false
	}
	status = odataErr.ResponseStatusCode
	if main := odataErr.GetErrorEscaped(); main != nil {
		if main.GetCode() != nil {
			code = *main.GetCode()
		}
		if main.GetMessage() != nil {
			message = *main.GetMessage()
		}
	}
	return code, message, status, true
}

func statusOf(err error) int {
	if _, _, status, ok := graphErrorDetails(err); ok {
		return status
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

func isNotFound(err error) bool {
	code, _, status, ok := graphErrorDetails(err)
	if ok {
		return status == http.StatusNotFound || code == "Request_ResourceNotFound" || code == "ResourceNotFound"
	}
	return statusOf(err) == http.StatusNotFound
}

func isAlreadyMember(err error) bool {
	_, msg, _, ok := graphErrorDetails(err)
	if !ok {
		msg = err.Error()
	}
	return strings.Contains(strings.ToLower(msg), "already exist")
}

// IsRetryable reports whether err is a throttling or transient service error
// (429, 503, 504) from Graph or the Exchange admin API, or a network error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch statusOf(err) {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	if code, _, _, ok := graphErrorDetails(err); ok {
		switch code {
		case "TooManyRequests", "activityLimitReached", "ServiceUnavailable", "GatewayTimeout":
			return true
		}
	}
	return retry.IsRetryableError(err)
}

// enrichGraphAPIError adds the OData code and message to err and, for
// throttling, the Retry-After hint. The original error stays wrapped.
func enrichGraphAPIError(err error, log *slog.Logger, operation string) error {
	if err == nil {
		return nil
	}
	var odataErr *odataerrors.ODataError
	if !errors.As(err, &odataErr) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	code, message, status, _ := graphErrorDetails(err)

	switch {
	case status == http.StatusTooManyRequests || code == "TooManyRequests" || code == "activityLimitReached":
		retryAfter := ""
		if h := odataErr.GetResponseHeaders(); h != nil {
			if v := h.Get("Retry-After"); len(v) > 0 {
				retryAfter = v[0]
			}
		}
		log.Warn("Graph API rate limit exceeded", "operation", operation, "code", code, "retryAfter", retryAfter)
		if retryAfter != "" {
			return fmt.Errorf("%s: rate limit exceeded (retry after %s seconds): %w", operation, retryAfter, err)
		}
		return fmt.Errorf("%s: rate limit exceeded: %w", operation, err)

	case status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout ||
		code == "ServiceUnavailable" || code == "GatewayTimeout":
		log.Warn("Graph API service error", "operation", operation, "code", code, "message", message)
		return fmt.Errorf("%s: service temporarily unavailable (code: %s): %w", operation, code, err)
	}

	if code != "" {
		log.Debug("Graph API error", "operation", operation, "code", code, "message", message)
		return fmt.Errorf("%s: %s: %s: %w", operation, code, message, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}
