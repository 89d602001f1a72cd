package captions

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// fallbackExtensions are tried in order when the first container guess fails.
// Heuristic: no sniffing covers every codec browsers produce.
var fallbackExtensions = []string{"webm", "ogg", "mp4", "m4a"}

type runFunc func(ctx context.Context, name string, args ...string) error

// Normalizer converts captured audio of arbitrary container into the mono
// 16 kHz PCM wav the upstream transcriber expects, by shelling out to ffmpeg.
type Normalizer struct {
	ffmpegPath string
	run        runFunc
}

func NewNormalizer(ffmpegPath string) *Normalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Normalizer{
		ffmpegPath: ffmpegPath,
		run:        runCommand,
	}
}

// Normalize writes the audio under each candidate extension in turn and asks
// ffmpeg to transcode it. The first success wins; when every candidate fails
// the error wraps ErrNormalizationFailed.
func (n *Normalizer) Normalize(ctx context.Context, audio []byte, mimeHint string) ([]byte, error) {
	var lastErr error

	for _, ext := range candidateExtensions(audio, mimeHint) {
		wav, err := n.convert(ctx, audio, ext)
		if err == nil {
			return wav, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Debug().Err(err).Str("extension", ext).Msg("ffmpeg conversion attempt failed")
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %v", ErrNormalizationFailed, lastErr)
}

func (n *Normalizer) convert(ctx context.Context, audio []byte, ext string) ([]byte, error) {
	in, err := os.CreateTemp("", "huddle-audio-*."+ext)
	if err != nil {
		return nil, err
	}
	defer os.Remove(in.Name())

	if _, err := in.Write(audio); err != nil {
		in.Close()
		return nil, err
	}
	if err := in.Close(); err != nil {
		return nil, err
	}

	out := in.Name() + ".wav"
	defer os.Remove(out)

	err = n.run(ctx, n.ffmpegPath,
		"-y",
		"-i", in.Name(),
		"-ac", "1",
		"-ar", "16000",
		"-acodec", "pcm_s16le",
		"-f", "wav",
		out,
	)
	if err != nil {
		return nil, err
	}

	return os.ReadFile(out)
}

// candidateExtensions orders container guesses: magic bytes first, then the
// caller's mime hint, then the fallback list. At most the first guess plus
// four alternatives.
func candidateExtensions(audio []byte, mimeHint string) []string {
	candidates := make([]string, 0, len(fallbackExtensions)+2)

	if ext := sniffExtension(audio); ext != "" {
		candidates = append(candidates, ext)
	}
	if ext := extensionForMime(mimeHint); ext != "" {
		candidates = append(candidates, ext)
	}
	candidates = append(candidates, fallbackExtensions...)

	seen := make(map[string]struct{}, len(candidates))
	unique := make([]string, 0, len(candidates))
	for _, ext := range candidates {
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		unique = append(unique, ext)
	}

	if len(unique) > 5 {
		unique = unique[:5]
	}
	return unique
}

func sniffExtension(audio []byte) string {
	switch {
	case len(audio) >= 12 && bytes.Equal(audio[:4], []byte("RIFF")) && bytes.Equal(audio[8:12], []byte("WAVE")):
		return "wav"
	case len(audio) >= 4 && bytes.Equal(audio[:4], []byte{0x1a, 0x45, 0xdf, 0xa3}):
		return "webm"
	case len(audio) >= 4 && bytes.Equal(audio[:4], []byte("OggS")):
		return "ogg"
	case len(audio) >= 8 && bytes.Equal(audio[4:8], []byte("ftyp")):
		return "mp4"
	default:
		return ""
	}
}

func extensionForMime(mimeHint string) string {
	mime := mimeHint
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	switch strings.TrimSpace(mime) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/webm", "video/webm":
		return "webm"
	case "audio/ogg", "application/ogg":
		return "ogg"
	case "audio/mp4", "video/mp4":
		return "mp4"
	case "audio/x-m4a", "audio/m4a":
		return "m4a"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	default:
		return ""
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w", bytes.TrimSpace(output), err)
	}
	return nil
}
