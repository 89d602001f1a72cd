// Package signaling relays WebRTC session negotiation and meeting state
// between participants of a meeting.
package signaling

import (
	"encoding/json"
	"errors"
	"io"
)

// Inbound event names, sent by browser clients.
const (
	JoinMeetingEvent      = "join-meeting"
	OfferEvent            = "offer"
	AnswerEvent           = "answer"
	ICECandidateEvent     = "ice-candidate"
	ToggleAudioEvent      = "toggle-audio"
	ToggleVideoEvent      = "toggle-video"
	StartScreenShareEvent = "start-screen-share"
	StopScreenShareEvent  = "stop-screen-share"
	SendChatMessageEvent  = "send-chat-message"
	GetChatHistoryEvent   = "get-chat-history"
	StartCaptionsEvent    = "start-captions"
	StopCaptionsEvent     = "stop-captions"
	LeaveMeetingEvent     = "leave-meeting"
	DisconnectEvent       = "disconnect"
)

// Outbound event names, sent to browser clients.
const (
	UserJoinedEvent           = "user-joined"
	UserLeftEvent             = "user-left"
	ExistingParticipantsEvent = "existing-participants"
	ICEServersEvent           = "ice-servers"
	ChatMessageEvent          = "chat-message"
	ChatHistoryEvent          = "chat-history"
	CaptionsStartedEvent      = "captions-started"
	CaptionsStoppedEvent      = "captions-stopped"
	NewCaptionEvent           = "new-caption"
	UserStartedScreenShare    = "user-started-screen-share"
	UserStoppedScreenShare    = "user-stopped-screen-share"
	UserAudioToggleEvent      = "user-audio-toggle"
	UserVideoToggleEvent      = "user-video-toggle"
)

var (
	ErrUnknownEvent   = errors.New("unknown signaling event")
	ErrMalformedEvent = errors.New("malformed signaling event")
)

type Event interface {
	Name() string
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type JoinMeeting struct {
	MeetingID string `json:"meetingId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

func (JoinMeeting) Name() string { return JoinMeetingEvent }

type Offer struct {
	SDP                json.RawMessage `json:"sdp"`
	TargetConnectionID string          `json:"targetConnectionId"`
}

func (Offer) Name() string { return OfferEvent }

type Answer struct {
	SDP                json.RawMessage `json:"sdp"`
	TargetConnectionID string          `json:"targetConnectionId"`
}

func (Answer) Name() string { return AnswerEvent }

type ICECandidate struct {
	Candidate          json.RawMessage `json:"candidate"`
	TargetConnectionID string          `json:"targetConnectionId"`
}

func (ICECandidate) Name() string { return ICECandidateEvent }

type ToggleAudio struct {
	Enabled bool `json:"enabled"`
}

func (ToggleAudio) Name() string { return ToggleAudioEvent }

type ToggleVideo struct {
	Enabled bool `json:"enabled"`
}

func (ToggleVideo) Name() string { return ToggleVideoEvent }

type StartScreenShare struct{}

func (StartScreenShare) Name() string { return StartScreenShareEvent }

type StopScreenShare struct{}

func (StopScreenShare) Name() string { return StopScreenShareEvent }

type SendChatMessage struct {
	Text string `json:"text"`
}

func (SendChatMessage) Name() string { return SendChatMessageEvent }

type GetChatHistory struct{}

func (GetChatHistory) Name() string { return GetChatHistoryEvent }

type StartCaptions struct {
	Language string `json:"language"`
}

func (StartCaptions) Name() string { return StartCaptionsEvent }

type StopCaptions struct{}

func (StopCaptions) Name() string { return StopCaptionsEvent }

type LeaveMeeting struct{}

func (LeaveMeeting) Name() string { return LeaveMeetingEvent }

// Disconnect is synthesized by the transport when the socket drops without an
// explicit leave.
type Disconnect struct{}

func (Disconnect) Name() string { return DisconnectEvent }

func EventFromReader(reader io.Reader) (Event, error) {
	env := &envelope{}

	if err := json.NewDecoder(reader).Decode(env); err != nil {
		return nil, ErrMalformedEvent
	}

	event, err := eventForName(env.Event)
	if err != nil {
		return nil, err
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, event); err != nil {
			return nil, ErrMalformedEvent
		}
	}

	return event, nil
}

func eventForName(name string) (Event, error) {
	switch name {
	case JoinMeetingEvent:
		return &JoinMeeting{}, nil
	case OfferEvent:
		return &Offer{}, nil
	case AnswerEvent:
		return &Answer{}, nil
	case ICECandidateEvent:
		return &ICECandidate{}, nil
	case ToggleAudioEvent:
		return &ToggleAudio{}, nil
	case ToggleVideoEvent:
		return &ToggleVideo{}, nil
	case StartScreenShareEvent:
		return &StartScreenShare{}, nil
	case StopScreenShareEvent:
		return &StopScreenShare{}, nil
	case SendChatMessageEvent:
		return &SendChatMessage{}, nil
	case GetChatHistoryEvent:
		return &GetChatHistory{}, nil
	case StartCaptionsEvent:
		return &StartCaptions{}, nil
	case StopCaptionsEvent:
		return &StopCaptions{}, nil
	case LeaveMeetingEvent:
		return &LeaveMeeting{}, nil
	case DisconnectEvent:
		return &Disconnect{}, nil
	default:
		return nil, ErrUnknownEvent
	}
}

// Marshal wraps an outbound payload into the wire envelope.
func Marshal(name string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: name, Data: raw})
}
