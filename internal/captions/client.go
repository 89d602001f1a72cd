package captions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/config"
)

const (
	defaultMaxRetries = 5
	maxBackoff        = 30 * time.Second
	maxJitter         = 500 * time.Millisecond
)

// UpstreamResult is the transcriber's answer, one caption per speech segment.
type UpstreamResult struct {
	Success  bool              `json:"success"`
	Language string            `json:"language"`
	Captions []UpstreamSegment `json:"captions"`
}

type UpstreamSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Client talks to the speech-to-text worker over HTTP multipart. Transient
// failures (429, 5xx, HTML poison pages) are retried with exponential
// backoff; everything else fails fast.
type Client struct {
	url        string
	maxRetries int
	httpClient *http.Client

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

func NewClient(cfg config.WhisperConfig) *Client {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = defaultMaxRetries
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}

	return &Client{
		url:        cfg.URL,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: timeout},
		sleep:      sleepContext,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(maxJitter)))
		},
	}
}

// Transcribe sends normalized wav audio upstream. The total number of
// attempts never exceeds the configured retry budget.
func (c *Client) Transcribe(ctx context.Context, wav []byte, language string, translate bool) (*UpstreamResult, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		result, err := c.send(ctx, wav, language, translate)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var ue *upstreamError
		if !errors.As(err, &ue) || !ue.retryable || attempt == c.maxRetries {
			break
		}

		delay := ue.retryAfter
		if delay <= 0 {
			delay = backoffDelay(attempt)
		}
		delay += c.jitter()

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("transcription attempt failed, backing off")

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

func (c *Client) send(ctx context.Context, wav []byte, language string, translate bool) (*UpstreamResult, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	part, err := form.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(wav); err != nil {
		return nil, err
	}
	if language != "" {
		if err := form.WriteField("language", language); err != nil {
			return nil, err
		}
	}
	if err := form.WriteField("translate", strconv.FormatBool(translate)); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &upstreamError{kind: ErrUpstreamTimeout, cause: err}
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &upstreamError{
			kind:       ErrUpstreamRateLimited,
			retryable:  true,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &upstreamError{
			kind:      ErrUpstreamServerError,
			retryable: true,
			cause:     fmt.Errorf("status %d", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("upstream rejected request: status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Poison pill: an HTML error or proxy challenge page behind a 200 is a
	// transport failure, not a result.
	if trimmed := bytes.TrimSpace(payload); len(trimmed) > 0 && trimmed[0] == '<' {
		return nil, &upstreamError{kind: ErrUpstreamMalformed, retryable: true}
	}

	result := &UpstreamResult{}
	if err := json.Unmarshal(payload, result); err != nil {
		return nil, &upstreamError{kind: ErrUpstreamMalformed, cause: err}
	}
	if !result.Success {
		return nil, fmt.Errorf("upstream reported failure")
	}

	return result, nil
}

// backoffDelay is the schedule for the nth failed attempt (1-based):
// 1s, 2s, 4s, ... capped at 30s.
func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Second << uint(attempt-1)
	if delay > maxBackoff || delay <= 0 {
		return maxBackoff
	}
	return delay
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
