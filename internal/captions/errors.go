package captions

import (
	"errors"
	"time"
)

var (
	// ErrUpstreamRateLimited means retries were exhausted while the upstream
	// answered 429.
	ErrUpstreamRateLimited = errors.New("upstream rate limited")
	// ErrUpstreamServerError means retries were exhausted on 5xx answers.
	ErrUpstreamServerError = errors.New("upstream server error")
	// ErrUpstreamMalformed means the upstream persistently returned something
	// that is not a transcription result, e.g. an HTML challenge page.
	ErrUpstreamMalformed = errors.New("upstream returned malformed response")
	// ErrUpstreamTimeout means the upstream call exceeded the request timeout.
	ErrUpstreamTimeout = errors.New("upstream timed out")
	// ErrNormalizationFailed means no viable audio container could be produced.
	ErrNormalizationFailed = errors.New("audio normalization failed")
)

// errorType labels failures for telemetry.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrUpstreamRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUpstreamServerError):
		return "server_error"
	case errors.Is(err, ErrUpstreamMalformed):
		return "malformed"
	case errors.Is(err, ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, ErrNormalizationFailed):
		return "normalization"
	default:
		return "other"
	}
}

type upstreamError struct {
	kind       error
	retryable  bool
	retryAfter time.Duration
	cause      error
}

func (e *upstreamError) Error() string {
	if e.cause != nil {
		return e.kind.Error() + ": " + e.cause.Error()
	}
	return e.kind.Error()
}

func (e *upstreamError) Unwrap() error {
	return e.kind
}
