package providers

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StatusError captures an HTTP status code from a provider response.
// Used by adapters to return structured errors that ClassifyError can inspect.
type StatusError struct {
	StatusCode     int
	Body           string
	RetryAfterSecs int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// ParseRetryAfter records the Retry-After header value, accepting either a
// seconds count or an HTTP date.
func (e *StatusError) ParseRetryAfter(header string) {
	header = strings.TrimSpace(header)
	if header == "" {
		return
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		e.RetryAfterSecs = secs
		return
	}
	if t, err := time.Parse(time.RFC1123, header); err == nil {
		if d := time.Until(t); d > 0 {
			e.RetryAfterSecs = int(d.Seconds())
		}
	}
}
