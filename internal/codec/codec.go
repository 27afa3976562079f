// Package codec wraps gophertunnel's Bedrock packet codec for the relay:
// decoding a RakNet payload into decoded packet.Packet objects and encoding
// a packet.Packet back into a RakNet payload, with or without compression.
// The forwarding plane (spec §4.7) always moves packet.Packet values, never
// raw bytes, so re-encoding on the far side is cheap and the underlying
// transport's reliability/ordering metadata is untouched.
package codec

import (
	"bytes"
	"fmt"

	"github.com/sandertv/gophertunnel/minecraft/protocol"
	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"
)

// Pool is the set of packet constructors the relay understands, shared by
// every session.
var Pool = packet.NewPool()

// RawConn is the subset of *raknet.Conn the codec needs: one whole RakNet
// message in, one whole RakNet message out.
type RawConn interface {
	ReadPacket() ([]byte, error)
	Write(b []byte) (int, error)
}

// Decode parses a single already-read RakNet payload into its constituent
// decoded packets. A payload batches one or more game packets behind a
// shared compression/header byte.
func Decode(raw []byte) ([]packet.Packet, error) {
	decoder := packet.NewDecoder(bytes.NewReader(raw))
	payloads, err := decoder.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode packet batch: %w", err)
	}

	pkts := make([]packet.Packet, 0, len(payloads))
	for _, payload := range payloads {
		pk, err := unmarshalPayload(payload)
		if err != nil {
			return nil, err
		}
		pkts = append(pkts, pk)
	}
	return pkts, nil
}

// unmarshalPayload decodes one game packet's header and body. protocol.Reader
// panics rather than returning an error on a truncated or malformed body, so
// the Marshal call is guarded the same way the teacher guards its own
// risky decode paths (raknet_proxy.go, passthrough_proxy.go) — a bad packet
// from one session must drop that packet, not take down the process.
func unmarshalPayload(payload []byte) (pk packet.Packet, err error) {
	buf := bytes.NewReader(payload)
	var header packet.Header
	if err := header.Read(buf); err != nil {
		return nil, fmt.Errorf("read packet header: %w", err)
	}
	factory, ok := Pool[header.PacketID]
	if !ok {
		return nil, fmt.Errorf("unknown packet id 0x%x", header.PacketID)
	}
	pk = factory()

	defer func() {
		if r := recover(); r != nil {
			pk = nil
			err = fmt.Errorf("marshal packet id 0x%x: %v", header.PacketID, r)
		}
	}()
	pk.Marshal(protocol.NewReader(buf, 0, false))
	return pk, nil
}

// Encode serializes pk into a RakNet payload and writes it to w, with
// Flate compression enabled when compress is true. Compression only turns
// on once the NetworkSettings exchange has completed (spec §4.6); before
// that, every packet goes out uncompressed.
func Encode(w *bytes.Buffer, compress bool, pk packet.Packet) error {
	var payload bytes.Buffer
	header := packet.Header{PacketID: pk.ID()}
	if err := header.Write(&payload); err != nil {
		return fmt.Errorf("write packet header: %w", err)
	}
	pk.Marshal(protocol.NewWriter(&payload, 0))

	encoder := packet.NewEncoder(w)
	if compress {
		encoder.EnableCompression(packet.FlateCompression)
	}
	if err := encoder.Encode([][]byte{payload.Bytes()}); err != nil {
		return fmt.Errorf("encode packet batch: %w", err)
	}
	return nil
}

// ReadFrom reads one RakNet message from conn and decodes it into its
// constituent packets.
func ReadFrom(conn RawConn) ([]packet.Packet, error) {
	raw, err := conn.ReadPacket()
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// WriteTo encodes pk and writes it to conn as one RakNet message.
func WriteTo(conn RawConn, compress bool, pk packet.Packet) error {
	var buf bytes.Buffer
	if err := Encode(&buf, compress, pk); err != nil {
		return err
	}
	_, err := conn.Write(buf.Bytes())
	return err
}
