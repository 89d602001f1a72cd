package captions

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidateExtensionsSniffsMagicBytes(t *testing.T) {
	webm := []byte{0x1a, 0x45, 0xdf, 0xa3, 0x00, 0x00}
	assert.Equal(t, "webm", candidateExtensions(webm, "")[0])

	ogg := []byte("OggS\x00\x02")
	assert.Equal(t, "ogg", candidateExtensions(ogg, "")[0])

	wav := []byte("RIFF\x00\x00\x00\x00WAVEfmt ")
	assert.Equal(t, "wav", candidateExtensions(wav, "")[0])

	mp4 := []byte("\x00\x00\x00\x18ftypmp42")
	assert.Equal(t, "mp4", candidateExtensions(mp4, "")[0])
}

func TestCandidateExtensionsUsesMimeHint(t *testing.T) {
	candidates := candidateExtensions([]byte("no magic here"), "audio/ogg; codecs=opus")
	assert.Equal(t, "ogg", candidates[0])
}

func TestCandidateExtensionsDedupesAndCaps(t *testing.T) {
	webm := []byte{0x1a, 0x45, 0xdf, 0xa3}
	candidates := candidateExtensions(webm, "audio/webm")

	seen := map[string]int{}
	for _, ext := range candidates {
		seen[ext]++
	}
	assert.Equal(t, 1, seen["webm"])
	assert.LessOrEqual(t, len(candidates), 5)
}

func TestNormalizeFallsBackAcrossContainers(t *testing.T) {
	attempts := []string{}

	normalizer := NewNormalizer("ffmpeg")
	normalizer.run = func(_ context.Context, _ string, args ...string) error {
		input := args[2]
		ext := input[strings.LastIndex(input, ".")+1:]
		attempts = append(attempts, ext)

		if ext != "ogg" {
			return errors.New("invalid data found when processing input")
		}

		output := args[len(args)-1]
		return os.WriteFile(output, []byte("RIFFfakeWAVE"), 0o644)
	}

	wav, err := normalizer.Normalize(context.Background(), []byte("opaque audio"), "")
	assert.Nil(t, err)
	assert.Equal(t, []byte("RIFFfakeWAVE"), wav)
	assert.Equal(t, []string{"webm", "ogg"}, attempts)
}

func TestNormalizeExhaustsCandidates(t *testing.T) {
	attempts := 0

	normalizer := NewNormalizer("ffmpeg")
	normalizer.run = func(_ context.Context, _ string, _ ...string) error {
		attempts++
		return errors.New("invalid data found when processing input")
	}

	_, err := normalizer.Normalize(context.Background(), []byte("opaque audio"), "")
	assert.ErrorIs(t, err, ErrNormalizationFailed)
	assert.Equal(t, len(fallbackExtensions), attempts)
}
