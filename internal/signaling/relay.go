package signaling

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/chat"
	"github.com/huddlehq/huddle/internal/registry"
	"github.com/huddlehq/huddle/internal/telemetry"
)

// Sender delivers an already-encoded event to one local connection.
type Sender interface {
	Send(connID string, payload []byte) error
}

type connState int

const (
	stateJoined connState = iota
	stateLeft
)

type RelayOptions struct {
	Registry   *registry.Registry
	Sender     Sender
	ICEServers []webrtc.ICEServer
	Chat       chat.Log

	// OnMeetingOpened fires when a join creates the first local membership of
	// a meeting, OnMeetingClosed when the last local member is gone.
	OnMeetingOpened func(meetingID string)
	OnMeetingClosed func(meetingID string)
}

// Relay applies inbound events to meeting state and fans resulting events out
// to the affected connections.
type Relay struct {
	RelayOptions

	mu     sync.Mutex
	states map[string]connState
}

func NewRelay(options RelayOptions) *Relay {
	return &Relay{
		RelayOptions: options,
		states:       make(map[string]connState),
	}
}

// Handle processes one event from a connection. Events that make no sense in
// the connection's current state are dropped.
func (r *Relay) Handle(ctx context.Context, connID string, event Event) {
	telemetry.SignalEventCounter.WithLabelValues(event.Name()).Inc()

	switch e := event.(type) {
	case *JoinMeeting:
		r.handleJoin(ctx, connID, e)
	case *Offer:
		r.relayToTarget(connID, OfferEvent, e.TargetConnectionID, map[string]interface{}{"sdp": e.SDP})
	case *Answer:
		r.relayToTarget(connID, AnswerEvent, e.TargetConnectionID, map[string]interface{}{"sdp": e.SDP})
	case *ICECandidate:
		r.relayToTarget(connID, ICECandidateEvent, e.TargetConnectionID, map[string]interface{}{"candidate": e.Candidate})
	case *ToggleAudio:
		r.broadcastFrom(connID, UserAudioToggleEvent, map[string]interface{}{"enabled": e.Enabled})
	case *ToggleVideo:
		r.broadcastFrom(connID, UserVideoToggleEvent, map[string]interface{}{"enabled": e.Enabled})
	case *StartScreenShare:
		r.broadcastFrom(connID, UserStartedScreenShare, map[string]interface{}{})
	case *StopScreenShare:
		r.broadcastFrom(connID, UserStoppedScreenShare, map[string]interface{}{})
	case *SendChatMessage:
		r.handleChatMessage(ctx, connID, e)
	case *GetChatHistory:
		r.sendChatHistory(ctx, connID)
	case *StartCaptions:
		r.broadcastFrom(connID, CaptionsStartedEvent, map[string]interface{}{"language": e.Language})
	case *StopCaptions:
		r.broadcastFrom(connID, CaptionsStoppedEvent, map[string]interface{}{})
	case *LeaveMeeting:
		r.handleLeave(connID, false)
	case *Disconnect:
		r.handleLeave(connID, true)
	default:
		log.Warn().Str("event", event.Name()).Msg("unhandled signaling event")
	}
}

func (r *Relay) handleJoin(ctx context.Context, connID string, e *JoinMeeting) {
	if e.MeetingID == "" || e.UserID == "" {
		log.Warn().Str("connectionId", connID).Msg("join without meeting or user id")
		return
	}

	r.mu.Lock()
	if state, ok := r.states[connID]; ok && state == stateLeft {
		r.mu.Unlock()
		log.Warn().Str("connectionId", connID).Msg("join after leave rejected")
		return
	}
	r.states[connID] = stateJoined
	r.mu.Unlock()

	result := r.Registry.Join(connID, e.MeetingID, e.UserID, e.UserName)

	// A join while registered elsewhere moves the connection: the old meeting
	// must see the departure like any other leave.
	if result.Moved {
		for _, other := range r.Registry.Members(result.Departure.MeetingID) {
			r.send(other.ConnectionID, UserLeftEvent, result.Departure.Participant)
		}
		if result.Departure.Emptied && r.OnMeetingClosed != nil {
			r.OnMeetingClosed(result.Departure.MeetingID)
		}
	}

	joiner := registry.Participant{ConnectionID: connID, UserID: e.UserID, UserName: e.UserName}
	others := r.Registry.ListOthers(connID, e.MeetingID)

	for _, other := range others {
		r.send(other.ConnectionID, UserJoinedEvent, joiner)
	}

	r.send(connID, ICEServersEvent, map[string]interface{}{"iceServers": r.ICEServers})
	r.send(connID, ExistingParticipantsEvent, others)
	r.sendChatHistory(ctx, connID)

	if result.Opened && r.OnMeetingOpened != nil {
		r.OnMeetingOpened(e.MeetingID)
	}

	log.Info().
		Str("connectionId", connID).
		Str("meetingId", e.MeetingID).
		Str("userId", e.UserID).
		Msg("participant joined meeting")
}

// relayToTarget forwards a negotiation payload point-to-point, stamping the
// sender so the receiver knows which peer connection it belongs to.
func (r *Relay) relayToTarget(connID, eventName, targetID string, payload map[string]interface{}) {
	sender, meetingID, ok := r.lookupJoined(connID)
	if !ok {
		return
	}

	_, targetMeetingID, ok := r.Registry.Lookup(targetID)
	if !ok || targetMeetingID != meetingID {
		log.Debug().
			Str("connectionId", connID).
			Str("targetConnectionId", targetID).
			Str("event", eventName).
			Msg("dropped relay to unknown target")
		return
	}

	payload["fromConnectionId"] = sender.ConnectionID
	r.send(targetID, eventName, payload)
}

// broadcastFrom sends an event to every other member of the sender's meeting,
// stamped with the sender's connection id.
func (r *Relay) broadcastFrom(connID, eventName string, payload map[string]interface{}) {
	sender, meetingID, ok := r.lookupJoined(connID)
	if !ok {
		return
	}

	payload["connectionId"] = sender.ConnectionID
	for _, other := range r.Registry.ListOthers(connID, meetingID) {
		r.send(other.ConnectionID, eventName, payload)
	}
}

func (r *Relay) handleChatMessage(ctx context.Context, connID string, e *SendChatMessage) {
	sender, meetingID, ok := r.lookupJoined(connID)
	if !ok || e.Text == "" {
		return
	}

	msg := chat.Message{
		SenderID:   sender.ConnectionID,
		SenderName: sender.UserName,
		Text:       e.Text,
		Timestamp:  time.Now().UnixMilli(),
	}

	if r.Chat != nil {
		if err := r.Chat.Append(ctx, meetingID, msg); err != nil {
			log.Error().Err(err).Str("meetingId", meetingID).Msg("append chat message")
		}
	}

	for _, member := range r.Registry.Members(meetingID) {
		r.send(member.ConnectionID, ChatMessageEvent, msg)
	}
}

func (r *Relay) sendChatHistory(ctx context.Context, connID string) {
	if r.Chat == nil {
		return
	}

	_, meetingID, ok := r.lookupJoined(connID)
	if !ok {
		return
	}

	messages, err := r.Chat.Recent(ctx, meetingID)
	if err != nil {
		log.Error().Err(err).Str("meetingId", meetingID).Msg("load chat history")
		return
	}

	r.send(connID, ChatHistoryEvent, map[string]interface{}{"messages": messages})
}

// handleLeave funnels explicit leaves and socket drops into one path so the
// meeting sees exactly one departure per connection.
func (r *Relay) handleLeave(connID string, disconnected bool) {
	r.mu.Lock()
	if disconnected {
		delete(r.states, connID)
	} else {
		r.states[connID] = stateLeft
	}
	r.mu.Unlock()

	departure, ok := r.Registry.Leave(connID)
	if !ok {
		return
	}

	for _, other := range r.Registry.Members(departure.MeetingID) {
		r.send(other.ConnectionID, UserLeftEvent, departure.Participant)
	}

	if departure.Emptied && r.OnMeetingClosed != nil {
		r.OnMeetingClosed(departure.MeetingID)
	}

	log.Info().
		Str("connectionId", connID).
		Str("meetingId", departure.MeetingID).
		Bool("disconnected", disconnected).
		Msg("participant left meeting")
}

func (r *Relay) lookupJoined(connID string) (registry.Participant, string, bool) {
	r.mu.Lock()
	state, known := r.states[connID]
	r.mu.Unlock()

	if !known || state != stateJoined {
		return registry.Participant{}, "", false
	}
	return r.Registry.Lookup(connID)
}

func (r *Relay) send(connID, eventName string, data interface{}) {
	payload, err := Marshal(eventName, data)
	if err != nil {
		log.Error().Err(err).Str("event", eventName).Msg("encode outbound event")
		return
	}
	if err := r.Sender.Send(connID, payload); err != nil {
		log.Debug().Err(err).Str("connectionId", connID).Str("event", eventName).Msg("deliver outbound event")
	}
}
