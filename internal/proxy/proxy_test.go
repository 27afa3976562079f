package proxy

import (
	"encoding/binary"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sandertv/go-raknet"
	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"

	"github.com/Sgsysysgsgsg/bedrockrelay/internal/codec"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/config"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/wire"
)

type fakeConn struct {
	sent [][]byte
}

func (f *fakeConn) ReadPacket() ([]byte, error) { return nil, nil }
func (f *fakeConn) Write(b []byte) (int, error) {
	f.sent = append(f.sent, append([]byte(nil), b...))
	return len(b), nil
}

func newTestProxy() *Proxy {
	cfg := config.Default()
	cfg.LAN.MOTD = "Test Relay"
	cfg.LAN.SubMOTD = "sub"
	cfg.MaxPlayers = 10
	cfg.Proxy.Port = 19150
	p := New(cfg)
	p.serverGUID = 42
	return p
}

func TestMOTDReflectsSessionCount(t *testing.T) {
	p := newTestProxy()

	adv, err := wire.ParseAdvertisement(p.motd())
	if err != nil {
		t.Fatalf("ParseAdvertisement: %v", err)
	}
	if adv.Players != 0 {
		t.Errorf("Players = %d, want 0 with no sessions", adv.Players)
	}
	if adv.MOTD != "Test Relay" || adv.SubMOTD != "sub" {
		t.Errorf("unexpected MOTD fields: %+v", adv)
	}
	if adv.MaxPlayers != 10 {
		t.Errorf("MaxPlayers = %d, want 10", adv.MaxPlayers)
	}
	if adv.ServerID != 42 {
		t.Errorf("ServerID = %d, want 42", adv.ServerID)
	}

	p.manager.New(&fakeConn{})
	adv, err = wire.ParseAdvertisement(p.motd())
	if err != nil {
		t.Fatalf("ParseAdvertisement: %v", err)
	}
	if adv.Players != 1 {
		t.Errorf("Players = %d, want 1 after a session is created", adv.Players)
	}
}

func TestDisconnectUpstreamSendsReason(t *testing.T) {
	p := newTestProxy()
	up := &fakeConn{}
	sess := p.manager.New(up)

	p.disconnectUpstream(sess, "Could not connect to the remote server.")

	if len(up.sent) != 1 {
		t.Fatalf("expected 1 packet sent, got %d", len(up.sent))
	}
	pkts, err := codec.Decode(up.sent[0])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	disc, ok := pkts[0].(*packet.Disconnect)
	if !ok {
		t.Fatalf("expected *packet.Disconnect, got %T", pkts[0])
	}
	if !strings.Contains(disc.Message, "Could not connect") {
		t.Errorf("Message = %q, missing diagnostic reason", disc.Message)
	}
}

func TestOnUpstreamDisconnectRemovesSession(t *testing.T) {
	p := newTestProxy()
	up := &fakeConn{}
	sess := p.manager.New(up)

	p.onUpstreamDisconnect(sess)

	if _, ok := p.manager.Get(sess.ID); ok {
		t.Error("expected session to be removed from the manager")
	}
}

// TestUpdateSessionCountRefreshesAdvertisement drives a real go-raknet
// listener end to end: it pings the listener before and after a session is
// added, and checks the echoed pong's player count moved, proving
// refreshAdvertisement actually runs on every session-count change instead
// of only once at Start.
func TestUpdateSessionCountRefreshesAdvertisement(t *testing.T) {
	listener, err := raknet.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("raknet.Listen: %v", err)
	}
	defer listener.Close()

	p := newTestProxy()
	p.listener = listener
	p.serverGUID = listener.ID()
	p.updateSessionCount()

	before, err := pingListener(t, listener.Addr().String())
	if err != nil {
		t.Fatalf("ping before session: %v", err)
	}
	if before.Players != 0 {
		t.Fatalf("Players = %d, want 0 before any session exists", before.Players)
	}

	sess := p.manager.New(&fakeConn{})
	p.updateSessionCount()

	after, err := pingListener(t, listener.Addr().String())
	if err != nil {
		t.Fatalf("ping after session: %v", err)
	}
	if after.Players != 1 {
		t.Fatalf("Players = %d, want 1 after updateSessionCount following a new session", after.Players)
	}

	p.manager.Remove(sess.ID)
	p.updateSessionCount()

	final, err := pingListener(t, listener.Addr().String())
	if err != nil {
		t.Fatalf("ping after removal: %v", err)
	}
	if final.Players != 0 {
		t.Fatalf("Players = %d, want 0 after the session is removed", final.Players)
	}
}

// pingListener sends a raw UNCONNECTED_PING datagram to addr and parses the
// UNCONNECTED_PONG reply's advertisement string.
func pingListener(t *testing.T, addr string) (wire.Advertisement, error) {
	t.Helper()

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return wire.Advertisement{}, err
	}
	defer conn.Close()

	ping := make([]byte, wire.PingLen)
	ping[0] = wire.IDUnconnectedPing
	binary.BigEndian.PutUint64(ping[1:9], uint64(time.Now().UnixMilli()))
	copy(ping[9:25], wire.OfflineMessageID[:])
	binary.BigEndian.PutUint64(ping[25:33], 0)

	if _, err := conn.Write(ping); err != nil {
		return wire.Advertisement{}, err
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		return wire.Advertisement{}, err
	}

	_, _, motd, err := wire.ParsePong(buf[:n])
	if err != nil {
		return wire.Advertisement{}, err
	}
	return wire.ParseAdvertisement(motd)
}

func TestOnDownstreamDisconnectNotifiesUpstreamAndRemovesSession(t *testing.T) {
	p := newTestProxy()
	up := &fakeConn{}
	sess := p.manager.New(up)
	sess.SetDownstream(&fakeConn{})

	p.onDownstreamDisconnect(sess)

	if len(up.sent) != 1 {
		t.Fatalf("expected disconnect reason sent upstream, got %d packets", len(up.sent))
	}
	pkts, err := codec.Decode(up.sent[0])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	disc := pkts[0].(*packet.Disconnect)
	if disc.Message != "Proxy session ended" {
		t.Errorf("Message = %q, want %q", disc.Message, "Proxy session ended")
	}
	if _, ok := p.manager.Get(sess.ID); ok {
		t.Error("expected session to be removed from the manager")
	}
}
