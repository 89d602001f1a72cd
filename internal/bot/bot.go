// Package bot is a headless meeting participant for exercising the signaling
// server: it joins a meeting, answers incoming offers and trades ICE
// candidates like a browser client would.
package bot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"

	"github.com/huddlehq/huddle/internal/signaling"
)

type Bot struct {
	serverHost string
	meetingID  string
	userName   string

	cookieJar     *cookiejar.Jar
	websocketConn *websocket.Conn

	lock              sync.Mutex
	peers             map[string]*webrtc.PeerConnection
	pendingCandidates map[string][]webrtc.ICECandidateInit

	iceServers []webrtc.ICEServer
}

func New(host, meetingID, userName string) (*Bot, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		serverHost:        host,
		meetingID:         meetingID,
		userName:          userName,
		cookieJar:         jar,
		peers:             make(map[string]*webrtc.PeerConnection),
		pendingCandidates: make(map[string][]webrtc.ICECandidateInit),
	}

	return bot, nil
}

func (bot *Bot) Close() {
	bot.lock.Lock()
	defer bot.lock.Unlock()

	for _, peer := range bot.peers {
		peer.Close()
	}

	if bot.websocketConn != nil {
		bot.websocketConn.Close()
	}
}

func (bot *Bot) Start() error {
	defer bot.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	dialer := &websocket.Dialer{
		Jar:              bot.cookieJar,
		HandshakeTimeout: 45 * time.Second,
	}

	c, resp, err := dialer.Dial(fmt.Sprintf("ws://%s/ws", bot.serverHost), nil)
	if err != nil {
		return err
	}
	resp.Body.Close()

	bot.websocketConn = c

	if err := bot.sendEvent(signaling.JoinMeetingEvent, map[string]interface{}{
		"meetingId": bot.meetingID,
		"userId":    uuid.NewString(),
		"userName":  bot.userName,
	}); err != nil {
		return err
	}

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			if err := bot.readEvent(c); err != nil {
				log.Error().Err(err).Msg("read error")
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return nil
		case <-interrupt:
			log.Info().Msg("interrupt")

			// Cleanly close the connection by sending a close message and then
			// waiting (with timeout) for the server to close the connection.
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				return err
			}

			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return nil
		}
	}
}

type inboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (bot *Bot) readEvent(conn *websocket.Conn) error {
	_, message, err := conn.ReadMessage()
	if err != nil {
		return err
	}

	event := &inboundEvent{}
	if err := json.NewDecoder(bytes.NewReader(message)).Decode(event); err != nil {
		return err
	}

	log.Debug().Str("event", event.Event).Msg("received event")

	switch event.Event {
	case signaling.ICEServersEvent:
		payload := struct {
			ICEServers []webrtc.ICEServer `json:"iceServers"`
		}{}
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return err
		}
		bot.lock.Lock()
		bot.iceServers = payload.ICEServers
		bot.lock.Unlock()
	case signaling.OfferEvent:
		payload := struct {
			SDP              webrtc.SessionDescription `json:"sdp"`
			FromConnectionID string                    `json:"fromConnectionId"`
		}{}
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return err
		}
		go func() {
			if err := bot.answerOffer(payload.FromConnectionID, payload.SDP); err != nil {
				log.Error().Err(err).Str("fromConnectionId", payload.FromConnectionID).Msg("answer offer")
			}
		}()
	case signaling.ICECandidateEvent:
		payload := struct {
			Candidate        webrtc.ICECandidateInit `json:"candidate"`
			FromConnectionID string                  `json:"fromConnectionId"`
		}{}
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return err
		}
		if err := bot.addICECandidate(payload.FromConnectionID, payload.Candidate); err != nil {
			return err
		}
	case signaling.UserLeftEvent:
		payload := struct {
			ConnectionID string `json:"connectionId"`
		}{}
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return err
		}
		bot.closePeer(payload.ConnectionID)
	case signaling.NewCaptionEvent:
		log.Info().RawJSON("caption", event.Data).Msg("caption received")
	default:
		log.Debug().Str("event", event.Event).Msg("ignored event")
	}

	return nil
}

func (bot *Bot) answerOffer(fromConnectionID string, sdp webrtc.SessionDescription) error {
	bot.lock.Lock()
	iceServers := bot.iceServers
	bot.lock.Unlock()

	peer, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return err
	}

	peer.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			// All candidates are gathered
			return
		}

		err := bot.sendEvent(signaling.ICECandidateEvent, map[string]interface{}{
			"candidate":          candidate.ToJSON(),
			"targetConnectionId": fromConnectionID,
		})
		if err != nil {
			log.Error().Err(err).Msg("send ICE candidate")
		}
	})

	peer.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("peer", fromConnectionID).Str("state", s.String()).Msg("peer connection state changed")

		if s == webrtc.PeerConnectionStateFailed {
			bot.closePeer(fromConnectionID)
		}
	})

	if err := peer.SetRemoteDescription(sdp); err != nil {
		peer.Close()
		return err
	}

	answer, err := peer.CreateAnswer(nil)
	if err != nil {
		peer.Close()
		return err
	}
	if err := peer.SetLocalDescription(answer); err != nil {
		peer.Close()
		return err
	}

	bot.lock.Lock()
	bot.peers[fromConnectionID] = peer
	pending := bot.pendingCandidates[fromConnectionID]
	delete(bot.pendingCandidates, fromConnectionID)
	bot.lock.Unlock()

	for _, candidate := range pending {
		if err := peer.AddICECandidate(candidate); err != nil {
			return err
		}
	}

	return bot.sendEvent(signaling.AnswerEvent, map[string]interface{}{
		"sdp":                answer,
		"targetConnectionId": fromConnectionID,
	})
}

func (bot *Bot) addICECandidate(fromConnectionID string, candidate webrtc.ICECandidateInit) error {
	bot.lock.Lock()
	defer bot.lock.Unlock()

	peer, ok := bot.peers[fromConnectionID]
	if !ok || peer.RemoteDescription() == nil {
		bot.pendingCandidates[fromConnectionID] = append(bot.pendingCandidates[fromConnectionID], candidate)
		return nil
	}

	return peer.AddICECandidate(candidate)
}

func (bot *Bot) closePeer(connectionID string) {
	bot.lock.Lock()
	peer, ok := bot.peers[connectionID]
	delete(bot.peers, connectionID)
	delete(bot.pendingCandidates, connectionID)
	bot.lock.Unlock()

	if ok {
		peer.Close()
	}
}

func (bot *Bot) sendEvent(name string, data interface{}) error {
	payload, err := signaling.Marshal(name, data)
	if err != nil {
		return err
	}
	return bot.websocketConn.WriteMessage(websocket.TextMessage, payload)
}

var errNotConnected = errors.New("bot is not connected")

// SendChatMessage posts a chat line into the meeting.
func (bot *Bot) SendChatMessage(text string) error {
	if bot.websocketConn == nil {
		return errNotConnected
	}
	return bot.sendEvent(signaling.SendChatMessageEvent, map[string]interface{}{"text": text})
}
