package signaling

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/isqad/melody"
	"github.com/rs/zerolog/log"

	"github.com/huddlehq/huddle/internal/eventbus"
	"github.com/huddlehq/huddle/internal/registry"
	"github.com/huddlehq/huddle/internal/telemetry"
)

const connectionIDSessionKey = "connectionId"

var errUnknownConnection = errors.New("unknown connection")

// sessionSender maps connection ids to live websocket sessions and is the
// Sender the relay writes through.
type sessionSender struct {
	mu       sync.RWMutex
	sessions map[string]*melody.Session
}

func newSessionSender() *sessionSender {
	return &sessionSender{sessions: make(map[string]*melody.Session)}
}

func (s *sessionSender) Send(connID string, payload []byte) error {
	s.mu.RLock()
	session, ok := s.sessions[connID]
	s.mu.RUnlock()

	if !ok {
		return errUnknownConnection
	}
	return session.Write(payload)
}

func (s *sessionSender) add(connID string, session *melody.Session) {
	s.mu.Lock()
	s.sessions[connID] = session
	s.mu.Unlock()
}

func (s *sessionSender) remove(connID string) {
	s.mu.Lock()
	delete(s.sessions, connID)
	s.mu.Unlock()
}

func connectionID(session *melody.Session) (string, bool) {
	value, ok := session.Keys[connectionIDSessionKey]
	if !ok {
		return "", false
	}
	connID, ok := value.(string)
	return connID, ok
}

// WsHandler upgrades the request, minting a fresh connection id for the
// session.
func WsHandler(websocket *melody.Melody) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessKeys := make(map[string]interface{})
		sessKeys[connectionIDSessionKey] = uuid.NewString()

		if err := websocket.HandleRequestWithKeys(w, r, sessKeys); err != nil {
			log.Error().Err(err).Str("service", "signaling").Msg("can't handle request")
		}
	}
}

func ConnectHandler(sender *sessionSender) func(session *melody.Session) {
	return func(session *melody.Session) {
		connID, ok := connectionID(session)
		if !ok {
			log.Error().Str("service", "signaling").Msg("session without connection id")
			session.Close()
			return
		}

		sender.add(connID, session)
		telemetry.ConnectionOpened()

		log.Debug().Str("connectionId", connID).Msg("connection opened")
	}
}

func DisconnectHandler(sender *sessionSender, relay *Relay) func(session *melody.Session) {
	return func(session *melody.Session) {
		connID, ok := connectionID(session)
		if !ok {
			return
		}

		relay.Handle(context.Background(), connID, &Disconnect{})
		sender.remove(connID)
		telemetry.ConnectionClosed()

		log.Debug().Str("connectionId", connID).Msg("connection closed")
	}
}

func MessageHandler(relay *Relay) func(session *melody.Session, msg []byte) {
	return func(session *melody.Session, msg []byte) {
		connID, ok := connectionID(session)
		if !ok {
			return
		}

		event, err := EventFromReader(bytes.NewReader(msg))
		if err != nil {
			log.Warn().Err(err).Str("connectionId", connID).Msg("reject inbound message")
			return
		}

		relay.Handle(context.Background(), connID, event)
	}
}

// forwarder pumps meeting-channel messages from the eventbus to every local
// member, so captions and other server-originated events reach connections on
// this node regardless of which node produced them.
type forwarder struct {
	registry   *registry.Registry
	subscriber eventbus.Subscriber
	sender     Sender

	mu   sync.Mutex
	subs map[string]eventbus.Bus
}

func newForwarder(reg *registry.Registry, subscriber eventbus.Subscriber, sender Sender) *forwarder {
	return &forwarder{
		registry:   reg,
		subscriber: subscriber,
		sender:     sender,
		subs:       make(map[string]eventbus.Bus),
	}
}

func (f *forwarder) meetingOpened(meetingID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.subs[meetingID]; ok {
		return
	}

	bus, err := f.subscriber.Subscribe(meetingID)
	if err != nil {
		log.Error().Err(err).Str("meetingId", meetingID).Msg("subscribe to meeting channel")
		return
	}
	f.subs[meetingID] = bus

	go f.pump(meetingID, bus)
}

func (f *forwarder) meetingClosed(meetingID string) {
	f.mu.Lock()
	bus, ok := f.subs[meetingID]
	delete(f.subs, meetingID)
	f.mu.Unlock()

	if !ok {
		return
	}
	if err := bus.Close(); err != nil {
		log.Error().Err(err).Str("meetingId", meetingID).Msg("close meeting channel")
	}
}

func (f *forwarder) pump(meetingID string, bus eventbus.Bus) {
	for msg := range bus.Channel() {
		payload := []byte(msg.Payload)
		for _, member := range f.registry.Members(meetingID) {
			if err := f.sender.Send(member.ConnectionID, payload); err != nil {
				log.Debug().Err(err).Str("connectionId", member.ConnectionID).Msg("forward meeting event")
			}
		}
	}
}
