// Package session drives the client through the server connection lifecycle.
//
// The lifecycle is modeled as a small state enum with one pure handler per
// state: a handler maps an inbound message to the next state plus the
// messages to send back. No handler performs I/O, so the whole transition
// table is testable without a socket.
package session

import (
	"github.com/google/uuid"

	"github.com/justapithecus/chunkprobe/proto"
)

// PacketIDs holds the message-type identifiers the client sends or reacts to.
type PacketIDs struct {
	// Outbound, handshake phase.
	Handshake  int32
	LoginStart int32

	// Inbound, login phase.
	SetCompression int32
	LoginSuccess   int32
	// Outbound, login phase.
	LoginAcknowledged int32

	// Inbound, configuration phase.
	KnownPacksRequest   int32
	FinishConfiguration int32
	// Outbound, configuration phase.
	ClientSettings                 int32
	KnownPacksResponse             int32
	AcknowledgeFinishConfiguration int32

	// Inbound, play phase.
	ChunkDataWithLight int32
}

// ClientSettings is the fixed client information sent during configuration.
type ClientSettings struct {
	Locale         string
	RenderDistance byte
	ChatMode       int32
	ChatColors     bool
	SkinParts      byte
	MainHand       int32
	TextFiltering  bool
	ServerListing  bool
	ParticleStatus int32
}

// KnownPack identifies a content pack by namespace, id and version.
type KnownPack struct {
	Namespace string
	ID        string
	Version   string
}

// Profile is the immutable set of protocol constants for one server revision.
// A protocol version bump only touches DefaultProfile.
type Profile struct {
	ProtocolVersion int32
	// ServerAddress is the host string sent in the handshake.
	ServerAddress string
	// Intent selects the next state after the handshake (2 = login).
	Intent     int32
	PlayerName string
	PlayerUUID uuid.UUID
	IDs        PacketIDs
	Settings   ClientSettings
	KnownPack  KnownPack
}

// DefaultProfile returns the profile for protocol 774 (1.21.11).
func DefaultProfile() Profile {
	return Profile{
		ProtocolVersion: 774,
		ServerAddress:   "localhost",
		Intent:          2,
		PlayerName:      "TemplateProbe",
		PlayerUUID:      uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff"),
		IDs: PacketIDs{
			Handshake:                      0x00,
			LoginStart:                     0x00,
			SetCompression:                 0x03,
			LoginSuccess:                   0x02,
			LoginAcknowledged:              0x03,
			KnownPacksRequest:              0x0E,
			FinishConfiguration:            0x03,
			ClientSettings:                 0x00,
			KnownPacksResponse:             0x07,
			AcknowledgeFinishConfiguration: 0x03,
			ChunkDataWithLight:             0x2C,
		},
		Settings: ClientSettings{
			Locale:         "en_us",
			RenderDistance: 16,
			ChatMode:       0,
			ChatColors:     true,
			SkinParts:      0x7F,
			MainHand:       1,
			TextFiltering:  true,
			ServerListing:  true,
			ParticleStatus: 0,
		},
		KnownPack: KnownPack{
			Namespace: "minecraft",
			ID:        "core",
			Version:   "1.21.11",
		},
	}
}

// HandshakePackets returns the handshake and login-start messages sent
// immediately after connecting.
func (p *Profile) HandshakePackets(port uint16) []proto.Packet {
	var hs []byte
	hs = proto.AppendVarInt(hs, uint32(p.ProtocolVersion))
	hs = proto.AppendString(hs, p.ServerAddress)
	hs = proto.AppendUint16(hs, port)
	hs = proto.AppendVarInt(hs, uint32(p.Intent))

	var login []byte
	login = proto.AppendString(login, p.PlayerName)
	login = proto.AppendUUID(login, p.PlayerUUID)

	return []proto.Packet{
		{ID: p.IDs.Handshake, Payload: hs},
		{ID: p.IDs.LoginStart, Payload: login},
	}
}

// ClientSettingsPacket encodes the client settings message.
func (p *Profile) ClientSettingsPacket() proto.Packet {
	s := p.Settings
	var b []byte
	b = proto.AppendString(b, s.Locale)
	b = append(b, s.RenderDistance)
	b = proto.AppendVarInt(b, uint32(s.ChatMode))
	b = proto.AppendBool(b, s.ChatColors)
	b = append(b, s.SkinParts)
	b = proto.AppendVarInt(b, uint32(s.MainHand))
	b = proto.AppendBool(b, s.TextFiltering)
	b = proto.AppendBool(b, s.ServerListing)
	b = proto.AppendVarInt(b, uint32(s.ParticleStatus))
	return proto.Packet{ID: p.IDs.ClientSettings, Payload: b}
}

// KnownPacksPacket encodes a known-packs response declaring exactly one pack.
func (p *Profile) KnownPacksPacket() proto.Packet {
	var b []byte
	b = proto.AppendVarInt(b, 1)
	b = proto.AppendString(b, p.KnownPack.Namespace)
	b = proto.AppendString(b, p.KnownPack.ID)
	b = proto.AppendString(b, p.KnownPack.Version)
	return proto.Packet{ID: p.IDs.KnownPacksResponse, Payload: b}
}
