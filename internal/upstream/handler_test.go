package upstream

import (
	"testing"

	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"

	"github.com/Sgsysysgsgsg/bedrockrelay/internal/codec"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/session"
)

type fakeConn struct {
	sent [][]byte
}

func (f *fakeConn) ReadPacket() ([]byte, error) { return nil, nil }
func (f *fakeConn) Write(b []byte) (int, error) {
	f.sent = append(f.sent, append([]byte(nil), b...))
	return len(b), nil
}

func newTestSession() (*session.Session, *fakeConn) {
	m := session.NewManager()
	up := &fakeConn{}
	return m.New(up), up
}

func TestRequestNetworkSettingsRepliesAndEnablesCompression(t *testing.T) {
	s, up := newTestSession()
	h := New(s)

	h.Handle(&packet.RequestNetworkSettings{ClientProtocol: 729})

	if len(up.sent) != 1 {
		t.Fatalf("expected 1 packet sent upstream, got %d", len(up.sent))
	}
	pkts, err := codec.Decode(up.sent[0])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	settings, ok := pkts[0].(*packet.NetworkSettings)
	if !ok {
		t.Fatalf("expected *packet.NetworkSettings, got %T", pkts[0])
	}
	if settings.CompressionThreshold != 0 {
		t.Errorf("CompressionThreshold = %d, want 0", settings.CompressionThreshold)
	}
	if !s.UpstreamCompressed() {
		t.Error("expected upstream compression to be enabled after NetworkSettings reply")
	}
	if s.ClientProtocol != 729 {
		t.Errorf("ClientProtocol = %d, want 729", s.ClientProtocol)
	}
}

func TestLoginCapturesPendingAndTransitionsPhase(t *testing.T) {
	s, _ := newTestSession()
	h := New(s)
	var connectCalled bool
	h.ConnectDownstream = func(protocol int32) { connectCalled = true }

	h.Handle(&packet.Login{ConnectionRequest: []byte("stub")})

	if s.Phase() != session.AwaitingDownstream {
		t.Errorf("phase = %s, want AwaitingDownstream", s.Phase())
	}
	if !connectCalled {
		t.Error("expected ConnectDownstream to be called")
	}
	pk, ok := s.TakePendingLogin()
	if !ok {
		t.Fatal("expected pending login to be captured")
	}
	if string(pk.ConnectionRequest) != "stub" {
		t.Errorf("ConnectionRequest = %q, want %q", pk.ConnectionRequest, "stub")
	}
}

func TestDefaultHandlerDropsBeforePlaying(t *testing.T) {
	s, _ := newTestSession()
	down := &fakeConn{}
	s.SetDownstream(down)
	h := New(s)

	h.Handle(&packet.Text{Message: "hi"})

	if len(down.sent) != 0 {
		t.Fatalf("expected no packets forwarded before Playing, got %d", len(down.sent))
	}
}

func TestDefaultHandlerForwardsWhilePlaying(t *testing.T) {
	s, _ := newTestSession()
	down := &fakeConn{}
	s.SetDownstream(down)
	s.MarkConnected()
	s.SetPhase(session.AwaitingDownstream)
	s.SetPhase(session.Playing)
	h := New(s)

	h.Handle(&packet.Text{Message: "hi"})

	if len(down.sent) != 1 {
		t.Fatalf("expected 1 packet forwarded downstream, got %d", len(down.sent))
	}
	pkts, err := codec.Decode(down.sent[0])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	text, ok := pkts[0].(*packet.Text)
	if !ok {
		t.Fatalf("expected *packet.Text, got %T", pkts[0])
	}
	if text.Message != "hi" {
		t.Errorf("Message = %q, want %q", text.Message, "hi")
	}
}
