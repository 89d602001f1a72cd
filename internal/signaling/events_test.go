package signaling

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventFromReaderJoin(t *testing.T) {
	payload := `{"event":"join-meeting","data":{"meetingId":"m1","userId":"u1","userName":"Alice"}}`

	event, err := EventFromReader(bytes.NewReader([]byte(payload)))
	assert.Nil(t, err)

	join, ok := event.(*JoinMeeting)
	assert.True(t, ok)
	assert.Equal(t, "m1", join.MeetingID)
	assert.Equal(t, "u1", join.UserID)
	assert.Equal(t, "Alice", join.UserName)
}

func TestEventFromReaderOfferKeepsRawSDP(t *testing.T) {
	payload := `{"event":"offer","data":{"sdp":{"type":"offer","sdp":"v=0"},"targetConnectionId":"c2"}}`

	event, err := EventFromReader(bytes.NewReader([]byte(payload)))
	assert.Nil(t, err)

	offer, ok := event.(*Offer)
	assert.True(t, ok)
	assert.Equal(t, "c2", offer.TargetConnectionID)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(offer.SDP))
}

func TestEventFromReaderEmptyData(t *testing.T) {
	event, err := EventFromReader(bytes.NewReader([]byte(`{"event":"leave-meeting"}`)))
	assert.Nil(t, err)
	assert.IsType(t, &LeaveMeeting{}, event)
}

func TestEventFromReaderUnknownEvent(t *testing.T) {
	_, err := EventFromReader(bytes.NewReader([]byte(`{"event":"self-destruct","data":{}}`)))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestEventFromReaderMalformed(t *testing.T) {
	_, err := EventFromReader(bytes.NewReader([]byte(`{"event":`)))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestMarshalRoundTrip(t *testing.T) {
	payload, err := Marshal(UserJoinedEvent, map[string]string{"connectionId": "c1"})
	assert.Nil(t, err)

	env := envelope{}
	assert.Nil(t, json.Unmarshal(payload, &env))
	assert.Equal(t, UserJoinedEvent, env.Event)
	assert.JSONEq(t, `{"connectionId":"c1"}`, string(env.Data))
}
