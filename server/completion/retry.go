package completion

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryAfter is used when a rate-limit response carries no parseable
// Retry-After header.
const DefaultRetryAfter = time.Second

// RetryPolicy bounds the rate-limit retry loop. The zero value reproduces
// the gateway's default behavior: retry forever, honoring the backend's
// Retry-After verbatim. A bounded variant can be substituted without
// touching the client's call sites.
type RetryPolicy struct {
	// MaxAttempts caps the number of retries per request; 0 means unlimited.
	MaxAttempts int

	// MaxDelay caps a single backoff sleep; 0 means honor the server's
	// suggestion as-is.
	MaxDelay time.Duration
}

// Delay clamps the server-suggested backoff to the policy ceiling.
func (p RetryPolicy) Delay(suggested time.Duration) time.Duration {
	if p.MaxDelay > 0 && suggested > p.MaxDelay {
		return p.MaxDelay
	}
	return suggested
}

// Exhausted reports whether the given number of performed retries has hit
// the policy's cap.
func (p RetryPolicy) Exhausted(retries int) bool {
	return p.MaxAttempts > 0 && retries >= p.MaxAttempts
}

// rateLimitError marks an HTTP 429 from the backend. It never escapes the
// client's retry loop.
type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.retryAfter)
}

// parseRetryAfter reads the Retry-After duration from a 429 response,
// falling back to DefaultRetryAfter when the header is absent or not a
// whole number of seconds.
func parseRetryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(h.Get("Retry-After")))
	if err != nil || secs < 0 {
		return DefaultRetryAfter
	}
	return time.Duration(secs) * time.Second
}
