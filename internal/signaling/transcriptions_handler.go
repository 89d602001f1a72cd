package signaling

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/captions"
)

const maxAudioUploadBytes = 25 << 20 // 25M

// TranscriptionsHandler is the synchronous transcription endpoint: audio in,
// captions out.
func TranscriptionsHandler(service *captions.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxAudioUploadBytes); err != nil {
			httpError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}

		file, header, err := r.FormFile("audio")
		if err != nil {
			httpError(w, http.StatusBadRequest, "missing audio file")
			return
		}
		defer file.Close()

		audio, err := io.ReadAll(io.LimitReader(file, maxAudioUploadBytes))
		if err != nil {
			httpError(w, http.StatusBadRequest, "can't read audio file")
			return
		}

		opts := captions.Options{
			Language:       r.FormValue("language"),
			Translate:      r.FormValue("translate") == "true",
			TargetLanguage: r.FormValue("targetLanguage"),
			MimeType:       header.Header.Get("Content-Type"),
		}

		result, err := service.Transcribe(r.Context(), audio, opts)
		if err != nil {
			log.Error().Err(err).Msg("transcription request failed")
			httpError(w, statusForError(err), "transcription failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"captions": result.Captions,
			"language": result.Language,
		})
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, captions.ErrNormalizationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, captions.ErrUpstreamRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, captions.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, captions.ErrUpstreamServerError), errors.Is(err, captions.ErrUpstreamMalformed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func httpError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
