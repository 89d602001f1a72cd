package captions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/huddlehq/huddle/internal/config"
)

func newTestClient(t *testing.T, url string) (*Client, *[]time.Duration) {
	t.Helper()

	delays := &[]time.Duration{}
	client := NewClient(config.WhisperConfig{
		URL:        url,
		MaxRetries: 5,
		Timeout:    5 * time.Second,
	})
	client.sleep = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	client.jitter = func() time.Duration { return 0 }

	return client, delays
}

func TestTranscribeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Nil(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "en", r.FormValue("language"))
		assert.Equal(t, "false", r.FormValue("translate"))

		_, header, err := r.FormFile("audio")
		assert.Nil(t, err)
		assert.Equal(t, "audio.wav", header.Filename)

		w.Write([]byte(`{"success":true,"language":"en","captions":[{"start":0.5,"end":2.0,"text":"hello there"}]}`))
	}))
	defer server.Close()

	client, delays := newTestClient(t, server.URL)

	result, err := client.Transcribe(context.Background(), []byte("wav"), "en", false)
	assert.Nil(t, err)
	assert.Equal(t, "en", result.Language)
	assert.Len(t, result.Captions, 1)
	assert.Equal(t, "hello there", result.Captions[0].Text)
	assert.Empty(t, *delays)
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, delays := newTestClient(t, server.URL)

	_, err := client.Transcribe(context.Background(), []byte("wav"), "", false)
	assert.ErrorIs(t, err, ErrUpstreamServerError)
	assert.Equal(t, int32(5), atomic.LoadInt32(&attempts))

	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}, *delays)
}

func TestTranscribeSucceedsOnLastAttempt(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 5 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"success":true,"language":"de","captions":[]}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)

	result, err := client.Transcribe(context.Background(), []byte("wav"), "", false)
	assert.Nil(t, err)
	assert.Equal(t, "de", result.Language)
	assert.Equal(t, int32(5), atomic.LoadInt32(&attempts))
}

func TestTranscribeHonorsRetryAfter(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"success":true,"language":"en","captions":[]}`))
	}))
	defer server.Close()

	client, delays := newTestClient(t, server.URL)

	_, err := client.Transcribe(context.Background(), []byte("wav"), "", false)
	assert.Nil(t, err)
	assert.Equal(t, []time.Duration{7 * time.Second}, *delays)
}

func TestTranscribeRetriesPoisonPill(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Write([]byte("<html><body>502 Bad Gateway</body></html>"))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)

	_, err := client.Transcribe(context.Background(), []byte("wav"), "", false)
	assert.ErrorIs(t, err, ErrUpstreamMalformed)
	assert.Equal(t, int32(5), atomic.LoadInt32(&attempts))
}

func TestTranscribeClientErrorFailsFast(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client, delays := newTestClient(t, server.URL)

	_, err := client.Transcribe(context.Background(), []byte("wav"), "", false)
	assert.NotNil(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
	assert.Empty(t, *delays)
}

func TestTranscribeMalformedJSONFailsFast(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.Write([]byte(`{"success":`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL)

	_, err := client.Transcribe(context.Background(), []byte("wav"), "", false)
	assert.ErrorIs(t, err, ErrUpstreamMalformed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestBackoffDelayCaps(t *testing.T) {
	assert.Equal(t, 1*time.Second, backoffDelay(1))
	assert.Equal(t, 2*time.Second, backoffDelay(2))
	assert.Equal(t, 16*time.Second, backoffDelay(5))
	assert.Equal(t, 30*time.Second, backoffDelay(6))
	assert.Equal(t, 30*time.Second, backoffDelay(20))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("not-a-number"))
}
