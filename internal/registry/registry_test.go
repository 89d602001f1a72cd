package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinAndListOthers(t *testing.T) {
	r := New()

	r.Join("c1", "m1", "u1", "Alice")
	r.Join("c2", "m1", "u2", "Bob")

	others := r.ListOthers("c2", "m1")
	assert.Len(t, others, 1)
	assert.Equal(t, "c1", others[0].ConnectionID)
	assert.Equal(t, "u1", others[0].UserID)
	assert.Equal(t, "Alice", others[0].UserName)

	assert.Len(t, r.ListOthers("c1", "m1"), 1)
	assert.Len(t, r.Members("m1"), 2)
}

func TestJoinIsIdempotent(t *testing.T) {
	r := New()

	r.Join("c1", "m1", "u1", "Alice")
	r.Join("c1", "m1", "u1", "Alice")

	assert.Len(t, r.Members("m1"), 1)
}

func TestConnectionBelongsToOneMeeting(t *testing.T) {
	r := New()

	r.Join("c1", "m1", "u1", "Alice")
	r.Join("c1", "m2", "u1", "Alice")

	assert.False(t, r.HasMeeting("m1"))
	assert.Len(t, r.Members("m2"), 1)

	_, meetingID, ok := r.Lookup("c1")
	assert.True(t, ok)
	assert.Equal(t, "m2", meetingID)
}

func TestJoinReportsOpened(t *testing.T) {
	r := New()

	assert.True(t, r.Join("c1", "m1", "u1", "Alice").Opened)
	assert.False(t, r.Join("c2", "m1", "u2", "Bob").Opened)
	assert.False(t, r.Join("c1", "m1", "u1", "Alice").Opened)
}

func TestJoinReportsMove(t *testing.T) {
	r := New()

	r.Join("c1", "m1", "u1", "Alice")
	r.Join("c2", "m1", "u2", "Bob")

	result := r.Join("c1", "m2", "u1", "Alice")
	assert.True(t, result.Moved)
	assert.True(t, result.Opened)
	assert.False(t, result.Departure.Emptied)
	assert.Equal(t, "m1", result.Departure.MeetingID)
	assert.Equal(t, "u1", result.Departure.Participant.UserID)
	assert.Equal(t, "Alice", result.Departure.Participant.UserName)

	// Moving the last member deletes the old meeting.
	result = r.Join("c2", "m2", "u2", "Bob")
	assert.True(t, result.Moved)
	assert.False(t, result.Opened)
	assert.True(t, result.Departure.Emptied)
	assert.False(t, r.HasMeeting("m1"))
}

func TestRejoinSameMeetingIsNotAMove(t *testing.T) {
	r := New()

	r.Join("c1", "m1", "u1", "Alice")

	result := r.Join("c1", "m1", "u1", "Alice")
	assert.False(t, result.Moved)
	assert.Len(t, r.Members("m1"), 1)
}

func TestLeaveRemovesEverything(t *testing.T) {
	r := New()

	r.Join("c1", "m1", "u1", "Alice")
	r.Join("c2", "m1", "u2", "Bob")

	dep, ok := r.Leave("c2")
	assert.True(t, ok)
	assert.Equal(t, "m1", dep.MeetingID)
	assert.Equal(t, "u2", dep.Participant.UserID)
	assert.Equal(t, "Bob", dep.Participant.UserName)

	_, _, found := r.Lookup("c2")
	assert.False(t, found)
	assert.Len(t, r.Members("m1"), 1)
}

func TestLeaveLastMemberDeletesMeeting(t *testing.T) {
	r := New()

	r.Join("c1", "m1", "u1", "Alice")

	dep, ok := r.Leave("c1")
	assert.True(t, ok)
	assert.True(t, dep.Emptied)
	assert.False(t, r.HasMeeting("m1"))
}

func TestLeaveTwiceIsNoop(t *testing.T) {
	r := New()

	r.Join("c1", "m1", "u1", "Alice")

	_, ok := r.Leave("c1")
	assert.True(t, ok)

	_, ok = r.Leave("c1")
	assert.False(t, ok)
}

func TestLeaveUnknownConnection(t *testing.T) {
	r := New()

	_, ok := r.Leave("nope")
	assert.False(t, ok)
}
