package reddit

import (
	"net/http"

	"github.com/onnwee/reddit-fleet/internal/redditapi"
)

// ClassifyResponse wraps redditapi.ClassifyError for non-2xx Reddit
// responses, giving worker retry logic (spec §4.F, §7) an *APIError it can
// switch on for the transient/non-retriable/auth-failure taxonomy.
func ClassifyResponse(resp *http.Response) *redditapi.APIError {
	return redditapi.ClassifyError(resp)
}

// IsRetryable reports whether an error from this package should be retried
// under the comments worker's backoff policy (spec §4.F, §7).
func IsRetryable(err error) bool {
	apiErr, ok := err.(*redditapi.APIError)
	if !ok {
		// Non-APIError failures (network errors, context deadlines) are
		// transient transport errors per the spec §7 taxonomy.
		return true
	}
	return redditapi.IsRetryable(apiErr)
}

// IsNotFound reports a 404 (resource missing, spec §7: "treat as
// non-retriable... vacuously scraped").
func IsNotFound(err error) bool {
	apiErr, ok := err.(*redditapi.APIError)
	return ok && apiErr.Type == redditapi.ErrorNotFound
}

// IsAuthFailure reports a 401/403 (spec §7 auth failure taxonomy).
func IsAuthFailure(err error) bool {
	apiErr, ok := err.(*redditapi.APIError)
	if !ok {
		return false
	}
	return apiErr.Type == redditapi.ErrorUnauthorized || apiErr.Type == redditapi.ErrorForbidden
}
