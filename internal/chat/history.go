// Package chat keeps a bounded per-meeting message history in redis so that
// late joiners can catch up. Delivery of live messages goes through the
// signaling relay; this is only the backlog.
package chat

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
)

const historyLimit = 100

type Message struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// Log is the interface the relay uses; backed by redis in production.
type Log interface {
	Append(ctx context.Context, meetingID string, msg Message) error
	Recent(ctx context.Context, meetingID string) ([]Message, error)
}

type History struct {
	rdb *redis.Client
}

func NewHistory(rdb *redis.Client) *History {
	return &History{rdb: rdb}
}

func (h *History) Append(ctx context.Context, meetingID string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := historyKey(meetingID)
	if err := h.rdb.LPush(ctx, key, payload).Err(); err != nil {
		return err
	}
	return h.rdb.LTrim(ctx, key, 0, historyLimit-1).Err()
}

// Recent returns up to the last 100 messages, oldest first.
func (h *History) Recent(ctx context.Context, meetingID string) ([]Message, error) {
	raw, err := h.rdb.LRange(ctx, historyKey(meetingID), 0, historyLimit-1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(raw))
	// LPush stores newest first; walk backwards to restore send order.
	for i := len(raw) - 1; i >= 0; i-- {
		var msg Message
		if err := json.Unmarshal([]byte(raw[i]), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func historyKey(meetingID string) string {
	return "chat:" + meetingID
}
