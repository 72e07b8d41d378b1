package session

import (
	"fmt"
	"time"

	"github.com/justapithecus/chunkprobe/proto"
)

// State is a client protocol state.
type State int

const (
	// StateHandshake is the implicit state before the handshake is sent.
	StateHandshake State = iota
	// StateLogin waits for set-compression and login-success.
	StateLogin
	// StateConfiguration answers known-packs and waits for finish-configuration.
	StateConfiguration
	// StatePlay is the terminal active-session state where chunks are captured.
	StatePlay
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateLogin:
		return "login"
	case StateConfiguration:
		return "configuration"
	case StatePlay:
		return "play"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// minChunkBody is the type tag plus two int32 coordinates.
const minChunkBody = 9

// Transition is the result of handling one inbound message.
type Transition struct {
	// Next is the state after the message.
	Next State
	// Replies are sent in order, after any compression change is applied.
	Replies []proto.Packet
	// EnableCompression is set by set-compression.
	EnableCompression bool
	// Threshold is the announced compression threshold.
	Threshold int32
	// Capture marks a chunk message for the capture engine.
	Capture bool
	// Handled is false when the message was ignored.
	Handled bool
}

type handler func(p *Profile, msg proto.Message) Transition

// transitions is the per-state handler table. Play has a handler but no exits.
var transitions = map[State]handler{
	StateLogin:         handleLogin,
	StateConfiguration: handleConfiguration,
	StatePlay:          handlePlay,
}

// Step maps an inbound message in the given state to a transition.
// Unknown message types are inert: the state is unchanged and nothing is sent.
func (p *Profile) Step(state State, msg proto.Message) Transition {
	h, ok := transitions[state]
	if !ok {
		return Transition{Next: state}
	}
	return h(p, msg)
}

func handleLogin(p *Profile, msg proto.Message) Transition {
	switch msg.ID {
	case p.IDs.SetCompression:
		threshold := int32(proto.NewReader(msg.Payload).VarInt())
		return Transition{Next: StateLogin, EnableCompression: true, Threshold: threshold, Handled: true}
	case p.IDs.LoginSuccess:
		return Transition{
			Next:    StateConfiguration,
			Replies: []proto.Packet{{ID: p.IDs.LoginAcknowledged}},
			Handled: true,
		}
	default:
		return Transition{Next: StateLogin}
	}
}

func handleConfiguration(p *Profile, msg proto.Message) Transition {
	switch msg.ID {
	case p.IDs.KnownPacksRequest:
		return Transition{
			Next:    StateConfiguration,
			Replies: []proto.Packet{p.ClientSettingsPacket(), p.KnownPacksPacket()},
			Handled: true,
		}
	case p.IDs.FinishConfiguration:
		return Transition{
			Next:    StatePlay,
			Replies: []proto.Packet{{ID: p.IDs.AcknowledgeFinishConfiguration}},
			Handled: true,
		}
	default:
		return Transition{Next: StateConfiguration}
	}
}

func handlePlay(p *Profile, msg proto.Message) Transition {
	if msg.ID == p.IDs.ChunkDataWithLight && len(msg.Body) >= minChunkBody {
		return Transition{Next: StatePlay, Capture: true, Handled: true}
	}
	return Transition{Next: StatePlay}
}

// Session is the mutable state bundle of one capture session.
type Session struct {
	State       State
	Compression bool
	Threshold   int32
	Deadline    time.Time
	Target      int
}

// New creates a session in the handshake state.
func New(deadline time.Time, target int) *Session {
	return &Session{State: StateHandshake, Deadline: deadline, Target: target}
}

// Begin returns the opening messages and moves the session to login.
func (s *Session) Begin(p *Profile, port uint16) []proto.Packet {
	s.State = StateLogin
	return p.HandshakePackets(port)
}

// Apply handles msg and records the resulting state change on the session.
func (s *Session) Apply(p *Profile, msg proto.Message) Transition {
	t := p.Step(s.State, msg)
	if t.EnableCompression {
		s.Compression = true
		s.Threshold = t.Threshold
	}
	s.State = t.Next
	return t
}

// Expired reports whether the deadline has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.Deadline.IsZero() && !now.Before(s.Deadline)
}
