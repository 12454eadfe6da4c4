package bus

import (
	"context"
	"strings"
	"time"
)

const (
	maxRetries = 3
	baseDelay  = 100 * time.Millisecond
)

// transientMarkers are substrings of an error's message that classify it as
// retryable connection/io/timeout failures.
var transientMarkers = []string{
	"connection",
	"timeout",
	"i/o timeout",
	"broken pipe",
	"connection reset",
	"eof",
	"refused",
}

// redirectPrefixes are Redis Cluster redirection replies, which always lead
// the error message. Matched as prefixes so ordinary words containing "ask"
// are not misclassified.
var redirectPrefixes = []string{"moved ", "ask ", "clusterdown"}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, prefix := range redirectPrefixes {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetry runs fn up to maxRetries times with exponential backoff
// (100·2^k ms) when fn's error is transient. A non-transient error fails
// immediately without retrying.
func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !isTransient(err) {
			return zero, err
		}

		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<uint(attempt))
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}
