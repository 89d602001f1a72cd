// Package translate is a thin client for the machine-translation worker.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	maxAttempts = 3
	retryDelay  = 500 * time.Millisecond
)

type Client struct {
	url        string
	httpClient *http.Client

	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(url string) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sleep:      sleepContext,
	}
}

type request struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"targetLanguage"`
}

type response struct {
	TranslatedText string `json:"translatedText"`
}

// Translate returns text in the target language. Failures are retried a few
// times with a short fixed delay; callers are expected to degrade to the
// original text when an error comes back.
func (c *Client) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		translated, err := c.send(ctx, text, targetLanguage)
		if err == nil {
			return translated, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		log.Debug().Err(err).Int("attempt", attempt).Msg("translation attempt failed")

		if err := c.sleep(ctx, retryDelay); err != nil {
			return "", err
		}
	}

	return "", lastErr
}

func (c *Client) send(ctx context.Context, text, targetLanguage string) (string, error) {
	body, err := json.Marshal(request{Text: text, TargetLanguage: targetLanguage})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translation service: status %d", resp.StatusCode)
	}

	payload := response{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}

	if strings.TrimSpace(payload.TranslatedText) == "" {
		return "", fmt.Errorf("translation service returned empty text")
	}

	return payload.TranslatedText, nil
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
