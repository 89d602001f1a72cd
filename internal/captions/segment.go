package captions

import (
	"strings"
	"unicode/utf8"
)

// Segment is one caption produced by the pipeline.
type Segment struct {
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	TimestampMs int64   `json:"timestampMs"`
	DurationMs  int64   `json:"durationMs"`
	IsFinal     bool    `json:"isFinal"`
	Translation string  `json:"translation,omitempty"`
}

// Segments shorter than this after trimming carry no usable speech. Counted
// in runes so short CJK or Cyrillic captions are dropped like ASCII ones.
const minCaptionLength = 2

func filterSegments(segments []Segment) []Segment {
	kept := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if utf8.RuneCountInString(strings.TrimSpace(s.Text)) <= minCaptionLength {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}
