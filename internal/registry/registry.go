package registry

import "sync"

// Participant is one live connection inside a meeting.
type Participant struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
}

// Departure is what a removal took out, so the relay can notify the rest of
// the meeting. Emptied reports that the removal deleted the meeting entry.
type Departure struct {
	MeetingID   string
	Participant Participant
	Emptied     bool
}

// JoinResult reports what a Join changed, computed atomically under the
// registry lock.
type JoinResult struct {
	// Opened is set when this join created the meeting entry.
	Opened bool
	// Moved is set when the connection was evicted from another meeting;
	// Departure then describes the eviction.
	Moved     bool
	Departure Departure
}

type identity struct {
	meetingID string
	userID    string
	userName  string
}

// Registry keeps the meeting membership and per-connection identity in lockstep.
// It owns both maps exclusively; all mutations go through its methods.
type Registry struct {
	mu         sync.RWMutex
	meetings   map[string]map[string]struct{}
	identities map[string]identity
}

func New() *Registry {
	return &Registry{
		meetings:   make(map[string]map[string]struct{}),
		identities: make(map[string]identity),
	}
}

// Join inserts the connection into the meeting's member set, creating the set
// lazily, and records the identity. Joining twice is a no-op. A connection
// belongs to at most one meeting: a join while registered elsewhere moves it,
// and the result carries the eviction so the caller can notify the old
// meeting.
func (r *Registry) Join(connID, meetingID, userID, userName string) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := JoinResult{}

	if prev, ok := r.identities[connID]; ok && prev.meetingID != meetingID {
		emptied := r.removeLocked(connID, prev.meetingID)
		result.Moved = true
		result.Departure = Departure{
			MeetingID: prev.meetingID,
			Participant: Participant{
				ConnectionID: connID,
				UserID:       prev.userID,
				UserName:     prev.userName,
			},
			Emptied: emptied,
		}
	}

	members, ok := r.meetings[meetingID]
	if !ok {
		members = make(map[string]struct{})
		r.meetings[meetingID] = members
		result.Opened = true
	}
	members[connID] = struct{}{}
	r.identities[connID] = identity{meetingID: meetingID, userID: userID, userName: userName}

	return result
}

// ListOthers returns every other member of the meeting, excluding the caller.
func (r *Registry) ListOthers(connID, meetingID string) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	others := make([]Participant, 0)
	for member := range r.meetings[meetingID] {
		if member == connID {
			continue
		}
		if id, ok := r.identities[member]; ok {
			others = append(others, Participant{
				ConnectionID: member,
				UserID:       id.userID,
				UserName:     id.userName,
			})
		}
	}
	return others
}

// Members returns every member of the meeting, including the caller if joined.
func (r *Registry) Members(meetingID string) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Participant, 0)
	for member := range r.meetings[meetingID] {
		if id, ok := r.identities[member]; ok {
			members = append(members, Participant{
				ConnectionID: member,
				UserID:       id.userID,
				UserName:     id.userName,
			})
		}
	}
	return members
}

// Lookup returns the identity and the meeting of a connection.
func (r *Registry) Lookup(connID string) (Participant, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.identities[connID]
	if !ok {
		return Participant{}, "", false
	}
	p := Participant{ConnectionID: connID, UserID: id.userID, UserName: id.userName}
	return p, id.meetingID, true
}

// Leave removes the connection from its meeting set and the identity map,
// deleting the meeting entry when its set becomes empty. Safe to call twice:
// the second call reports nothing removed.
func (r *Registry) Leave(connID string) (Departure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.identities[connID]
	if !ok {
		return Departure{}, false
	}
	emptied := r.removeLocked(connID, id.meetingID)

	return Departure{
		MeetingID: id.meetingID,
		Participant: Participant{
			ConnectionID: connID,
			UserID:       id.userID,
			UserName:     id.userName,
		},
		Emptied: emptied,
	}, true
}

// HasMeeting reports whether the meeting still has an entry.
func (r *Registry) HasMeeting(meetingID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.meetings[meetingID]
	return ok
}

// removeLocked reports whether the removal deleted the meeting entry.
func (r *Registry) removeLocked(connID, meetingID string) bool {
	emptied := false
	if members, ok := r.meetings[meetingID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.meetings, meetingID)
			emptied = true
		}
	}
	delete(r.identities, connID)
	return emptied
}
