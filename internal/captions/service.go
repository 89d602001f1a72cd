package captions

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/gate"
	"github.com/huddlehq/huddle/internal/telemetry"
)

// Transcriber turns normalized wav audio into raw caption segments.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, language string, translate bool) (*UpstreamResult, error)
}

// AudioNormalizer converts browser-captured audio into upstream-ready wav.
type AudioNormalizer interface {
	Normalize(ctx context.Context, audio []byte, mimeHint string) ([]byte, error)
}

// Translator translates a single caption into the target language.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// Service is the transcription pipeline: it throttles concurrent upstream
// work, normalizes audio, transcribes it and optionally attaches
// translations.
type Service struct {
	gate       *gate.Gate
	normalizer AudioNormalizer
	client     Transcriber
	translator Translator
}

type ServiceOptions struct {
	Gate       *gate.Gate
	Normalizer AudioNormalizer
	Client     Transcriber
	Translator Translator
}

func NewService(opts ServiceOptions) *Service {
	return &Service{
		gate:       opts.Gate,
		normalizer: opts.Normalizer,
		client:     opts.Client,
		translator: opts.Translator,
	}
}

// Options select per-request transcription behavior.
type Options struct {
	Language       string
	Translate      bool
	TargetLanguage string
	MimeType       string
}

// Result is the pipeline's answer for one audio chunk.
type Result struct {
	Captions []Segment `json:"captions"`
	Language string    `json:"language"`
}

// Transcribe runs one audio chunk through the full pipeline. Callers block
// until a concurrency slot frees up or ctx is done.
func (s *Service) Transcribe(ctx context.Context, audio []byte, opts Options) (*Result, error) {
	// Only callers that actually queue count as waiters.
	if !s.gate.TryAcquire() {
		telemetry.GateWaiterAdded()
		err := s.gate.Acquire(ctx)
		telemetry.GateWaiterRemoved()
		if err != nil {
			return nil, err
		}
	}
	defer s.gate.Release()

	result, err := s.transcribe(ctx, audio, opts)
	if err != nil {
		telemetry.TranscriptionCounter.WithLabelValues("failure", errorType(err)).Inc()
		return nil, err
	}

	telemetry.TranscriptionCounter.WithLabelValues("success", "").Inc()
	return result, nil
}

func (s *Service) transcribe(ctx context.Context, audio []byte, opts Options) (*Result, error) {
	wav, err := s.normalizer.Normalize(ctx, audio, opts.MimeType)
	if err != nil {
		return nil, err
	}

	upstream, err := s.client.Transcribe(ctx, wav, opts.Language, opts.Translate)
	if err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, len(upstream.Captions))
	for _, c := range upstream.Captions {
		segments = append(segments, Segment{
			Text:        strings.TrimSpace(c.Text),
			Confidence:  0.8,
			TimestampMs: int64(c.Start * 1000),
			DurationMs:  int64((c.End - c.Start) * 1000),
			IsFinal:     true,
		})
	}
	segments = filterSegments(segments)

	if opts.Translate && opts.TargetLanguage != "" && s.translator != nil {
		s.translate(ctx, segments, opts.TargetLanguage)
	}

	return &Result{Captions: segments, Language: upstream.Language}, nil
}

// translate attaches translations best-effort: a failed or empty translation
// leaves the segment with its original text only.
func (s *Service) translate(ctx context.Context, segments []Segment, targetLanguage string) {
	for i := range segments {
		translated, err := s.translator.Translate(ctx, segments[i].Text, targetLanguage)
		if err != nil {
			log.Warn().Err(err).Msg("caption translation failed, keeping original text")
			continue
		}
		if strings.TrimSpace(translated) == "" {
			continue
		}
		segments[i].Translation = translated
	}
}
