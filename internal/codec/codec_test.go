package codec

import (
	"bytes"
	"testing"

	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := &packet.PlayStatus{Status: packet.PlayStatusLoginSuccess}

	var buf bytes.Buffer
	if err := Encode(&buf, false, original); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	pkts, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pkts) != 1 {
		t.Fatalf("expected 1 decoded packet, got %d", len(pkts))
	}

	got, ok := pkts[0].(*packet.PlayStatus)
	if !ok {
		t.Fatalf("expected *packet.PlayStatus, got %T", pkts[0])
	}
	if got.Status != original.Status {
		t.Errorf("Status = %d, want %d", got.Status, original.Status)
	}
}

func TestEncodeDecodeRoundTripCompressed(t *testing.T) {
	original := &packet.Disconnect{
		Reason:  packet.DisconnectReasonKicked,
		Message: "kicked",
	}

	var buf bytes.Buffer
	if err := Encode(&buf, true, original); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	pkts, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := pkts[0].(*packet.Disconnect)
	if !ok {
		t.Fatalf("expected *packet.Disconnect, got %T", pkts[0])
	}
	if got.Message != original.Message {
		t.Errorf("Message = %q, want %q", got.Message, original.Message)
	}
}

// TestDecodeTruncatedPacketReturnsErrorNotPanic feeds Decode a batch whose
// header names a real packet but carries no body: protocol.Reader panics
// reading the missing fields rather than returning an error, and
// unmarshalPayload must convert that panic into a plain error.
func TestDecodeTruncatedPacketReturnsErrorNotPanic(t *testing.T) {
	var header bytes.Buffer
	h := packet.Header{PacketID: (&packet.PlayStatus{}).ID()}
	if err := h.Write(&header); err != nil {
		t.Fatalf("header.Write: %v", err)
	}

	var buf bytes.Buffer
	encoder := packet.NewEncoder(&buf)
	if err := encoder.Encode([][]byte{header.Bytes()}); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := Decode(buf.Bytes()); err == nil {
		t.Fatal("expected an error decoding a truncated packet body, got nil")
	}
}
