package transport

import (
	"math/rand"
	"time"
)

// Retry delays for exponential backoff. Attempt 1: 250ms, 2: 1s, 3: 3s, 4+: 8s.
var retryDelays = []time.Duration{
	250 * time.Millisecond,
	1 * time.Second,
	3 * time.Second,
	8 * time.Second,
}

const (
	// DefaultMaxAttempts is the default number of tries per request.
	DefaultMaxAttempts = 3

	// JitterFactor is the ±percentage of jitter applied to delays.
	JitterFactor = 0.2
)

// NextRetryDelay calculates the delay before the next try with exponential
// backoff and jitter. attemptCount is 0-indexed.
func NextRetryDelay(attemptCount int) time.Duration {
	if attemptCount < 0 {
		attemptCount = 0
	}
	if attemptCount >= len(retryDelays) {
		attemptCount = len(retryDelays) - 1
	}

	base := retryDelays[attemptCount]

	jitterRange := float64(base) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(float64(base) + jitter)
}

// IsExhausted returns true if max attempts have been reached.
func IsExhausted(attemptCount, maxAttempts int) bool {
	return attemptCount >= maxAttempts
}

// retryable reports whether a response status is worth another try.
func retryable(status int) bool {
	return status == 429 || status >= 500
}
