package captions

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// StoredCaption is a persisted caption row.
type StoredCaption struct {
	ID          uint64    `db:"id" json:"id"`
	MeetingID   string    `db:"meeting_id" json:"meetingId"`
	SpeakerID   string    `db:"speaker_id" json:"speakerId"`
	SpeakerName string    `db:"speaker_name" json:"speakerName"`
	Text        string    `db:"text" json:"text"`
	Translation string    `db:"translation" json:"translation,omitempty"`
	Language    string    `db:"language" json:"language"`
	TimestampMs int64     `db:"timestamp_ms" json:"timestampMs"`
	DurationMs  int64     `db:"duration_ms" json:"durationMs"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Store persists finished captions for meeting playback and export.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Append writes all segments of one transcription result in a single
// transaction.
func (s *Store) Append(ctx context.Context, meetingID, speakerID, speakerName, language string, segments []Segment) error {
	if len(segments) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	for _, segment := range segments {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO captions
				(meeting_id, speaker_id, speaker_name, text, translation, language, timestamp_ms, duration_ms, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
			meetingID,
			speakerID,
			speakerName,
			segment.Text,
			segment.Translation,
			language,
			segment.TimestampMs,
			segment.DurationMs,
		)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Recent returns up to limit captions of a meeting, oldest first.
func (s *Store) Recent(ctx context.Context, meetingID string, limit int) ([]StoredCaption, error) {
	captions := []StoredCaption{}
	err := s.db.SelectContext(ctx, &captions,
		`SELECT id, meeting_id, speaker_id, speaker_name, text, translation, language, timestamp_ms, duration_ms, created_at
		FROM captions
		WHERE meeting_id = $1
		ORDER BY id DESC
		LIMIT $2`,
		meetingID,
		limit,
	)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(captions)-1; i < j; i, j = i+1, j-1 {
		captions[i], captions[j] = captions[j], captions[i]
	}
	return captions, nil
}
