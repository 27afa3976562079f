// Package wire implements the RakNet offline-message primitives the relay
// needs before a connection is established: the discovery ping/pong layout
// and the Bedrock MOTD string format.
package wire

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// OfflineMessageID is the 16-byte magic every offline RakNet packet carries
// verbatim.
var OfflineMessageID = [16]byte{
	0x00, 0xff, 0xff, 0x00, 0xfe, 0xfe, 0xfe, 0xfe,
	0xfd, 0xfd, 0xfd, 0xfd, 0x12, 0x34, 0x56, 0x78,
}

// RakNet control packet IDs the discovery responder and LAN advertiser care
// about. Everything else is delegated to the underlying transport.
const (
	IDUnconnectedPing    byte = 0x01
	IDOpenConnectionPing byte = 0x02
	IDUnconnectedPong    byte = 0x1c
)

// PingLen is the total length of an UNCONNECTED_PING datagram: 1 id + 8
// timestamp + 16 magic + 8 client GUID.
const PingLen = 33

// Advertisement is the data shown to clients in server discovery, matching
// spec.md's ServerAdvertisement data model.
type Advertisement struct {
	MOTD       string
	SubMOTD    string
	Protocol   int32
	Version    string
	Players    int32
	MaxPlayers int32
	ServerID   int64
	GameType   string
	IPv4Port   uint16
	IPv6Port   uint16
}

// Encode renders the advertisement into the semicolon-delimited MOTD string
// the Bedrock client expects, bit-exact with spec.md §6:
//
//	MCPE;<motd>;<protocol>;<version>;<online>;<max>;<serverId>;<subMotd>;<gameType>;1;<port4>;<port6>
func (a Advertisement) Encode() string {
	fields := []string{
		"MCPE",
		a.MOTD,
		strconv.FormatInt(int64(a.Protocol), 10),
		a.Version,
		strconv.FormatInt(int64(a.Players), 10),
		strconv.FormatInt(int64(a.MaxPlayers), 10),
		strconv.FormatInt(a.ServerID, 10),
		a.SubMOTD,
		a.GameType,
		"1",
		strconv.FormatUint(uint64(a.IPv4Port), 10),
		strconv.FormatUint(uint64(a.IPv6Port), 10),
	}
	return strings.Join(fields, ";")
}

// ParseAdvertisement parses a MOTD string produced by Encode (or by any
// Bedrock server). Excess trailing fields and a trailing semicolon are
// tolerated; fewer than the twelve required fields is an error.
func ParseAdvertisement(motd string) (Advertisement, error) {
	fields := strings.Split(strings.TrimSuffix(motd, ";"), ";")
	if len(fields) < 12 {
		return Advertisement{}, fmt.Errorf("parse advertisement: expected at least 12 fields, got %d", len(fields))
	}
	protocol, err := strconv.ParseInt(fields[2], 10, 32)
	if err != nil {
		return Advertisement{}, fmt.Errorf("parse advertisement: protocol: %w", err)
	}
	players, err := strconv.ParseInt(fields[4], 10, 32)
	if err != nil {
		return Advertisement{}, fmt.Errorf("parse advertisement: online players: %w", err)
	}
	maxPlayers, err := strconv.ParseInt(fields[5], 10, 32)
	if err != nil {
		return Advertisement{}, fmt.Errorf("parse advertisement: max players: %w", err)
	}
	serverID, err := strconv.ParseInt(fields[6], 10, 64)
	if err != nil {
		return Advertisement{}, fmt.Errorf("parse advertisement: server id: %w", err)
	}
	ipv4, err := strconv.ParseUint(fields[10], 10, 16)
	if err != nil {
		return Advertisement{}, fmt.Errorf("parse advertisement: ipv4 port: %w", err)
	}
	ipv6, err := strconv.ParseUint(fields[11], 10, 16)
	if err != nil {
		return Advertisement{}, fmt.Errorf("parse advertisement: ipv6 port: %w", err)
	}
	return Advertisement{
		MOTD:       fields[1],
		Protocol:   int32(protocol),
		Version:    fields[3],
		Players:    int32(players),
		MaxPlayers: int32(maxPlayers),
		ServerID:   serverID,
		SubMOTD:    fields[7],
		GameType:   fields[8],
		IPv4Port:   uint16(ipv4),
		IPv6Port:   uint16(ipv6),
	}, nil
}

// BuildPong encodes an UNCONNECTED_PONG datagram, matching spec.md §4.1's
// layout: [1]id [8]echoed ping time [8]server GUID [16]magic [2]motd-len [N]motd.
func BuildPong(pingTime, serverGUID int64, motd string) []byte {
	motdBytes := []byte(motd)
	b := make([]byte, 35+len(motdBytes))
	b[0] = IDUnconnectedPong
	binary.BigEndian.PutUint64(b[1:], uint64(pingTime))
	binary.BigEndian.PutUint64(b[9:], uint64(serverGUID))
	copy(b[17:33], OfflineMessageID[:])
	binary.BigEndian.PutUint16(b[33:], uint16(len(motdBytes)))
	copy(b[35:], motdBytes)
	return b
}

// ParsePong parses a datagram previously produced by BuildPong, returning
// the echoed ping timestamp, the server GUID, and the MOTD string.
func ParsePong(b []byte) (pingTime, serverGUID int64, motd string, err error) {
	if len(b) < 35 {
		return 0, 0, "", fmt.Errorf("parse pong: datagram too short (%d bytes)", len(b))
	}
	if b[0] != IDUnconnectedPong {
		return 0, 0, "", fmt.Errorf("parse pong: unexpected packet id 0x%02x", b[0])
	}
	pingTime = int64(binary.BigEndian.Uint64(b[1:9]))
	serverGUID = int64(binary.BigEndian.Uint64(b[9:17]))
	motdLen := int(binary.BigEndian.Uint16(b[33:35]))
	if len(b) < 35+motdLen {
		return 0, 0, "", fmt.Errorf("parse pong: motd length %d exceeds datagram", motdLen)
	}
	motd = string(b[35 : 35+motdLen])
	return pingTime, serverGUID, motd, nil
}

// ParsePing parses an UNCONNECTED_PING or OPEN_CONNECTION_PING datagram,
// returning the timestamp and client GUID. It does not validate the magic
// bytes embedded at offset 9 — callers that need strict validation should
// compare b[9:25] against OfflineMessageID themselves.
func ParsePing(b []byte) (pingTime, clientGUID int64, err error) {
	if len(b) < PingLen {
		return 0, 0, fmt.Errorf("parse ping: datagram too short (%d bytes)", len(b))
	}
	if b[0] != IDUnconnectedPing && b[0] != IDOpenConnectionPing {
		return 0, 0, fmt.Errorf("parse ping: unexpected packet id 0x%02x", b[0])
	}
	pingTime = int64(binary.BigEndian.Uint64(b[1:9]))
	clientGUID = int64(binary.BigEndian.Uint64(b[25:33]))
	return pingTime, clientGUID, nil
}
