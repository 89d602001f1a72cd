package config

import "github.com/pion/webrtc/v3"

var DefaultStunServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// ICEServers builds the relay configuration delivered to every joining peer.
// The relay never uses these itself; peers need them to punch their own
// media paths.
func (c *Config) ICEServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, 2)

	stun := c.StunServers
	if len(stun) == 0 {
		stun = DefaultStunServers
	}
	servers = append(servers, webrtc.ICEServer{URLs: stun})

	if c.TurnServer.URL != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{c.TurnServer.URL},
			Username:   c.TurnServer.Username,
			Credential: c.TurnServer.Credential,
		})
	}

	return servers
}
