package lan

import (
	"net"
	"strconv"
	"testing"
	"time"
)

func TestBroadcastAddress(t *testing.T) {
	cases := []struct {
		ip   string
		mask string
		want string
	}{
		{"192.168.1.42", "255.255.255.0", "192.168.1.255"},
		{"10.0.5.3", "255.255.0.0", "10.0.255.255"},
		{"172.16.0.1", "255.255.255.252", "172.16.0.3"},
	}
	for _, c := range cases {
		ip := net.ParseIP(c.ip).To4()
		_, ipNet, err := net.ParseCIDR(c.ip + "/" + maskBits(c.mask))
		if err != nil {
			t.Fatalf("ParseCIDR: %v", err)
		}
		got := broadcastAddress(ip, ipNet.Mask)
		if got.String() != c.want {
			t.Errorf("broadcastAddress(%s, %s) = %s, want %s", c.ip, c.mask, got, c.want)
		}
	}
}

func maskBits(dotted string) string {
	mask := net.IPMask(net.ParseIP(dotted).To4())
	ones, _ := mask.Size()
	return strconv.Itoa(ones)
}

// TestListenBroadcastUDPSendsToBroadcastAddress exercises the socket
// listenBroadcastUDP opens: a plain net.ListenUDP socket rejects a write to
// a broadcast address with EACCES on Linux, so this send only succeeds if
// SO_BROADCAST was actually set on the fd.
func TestListenBroadcastUDPSendsToBroadcastAddress(t *testing.T) {
	conn, err := listenBroadcastUDP()
	if err != nil {
		t.Fatalf("listenBroadcastUDP: %v", err)
	}
	defer conn.Close()

	_, err = conn.WriteToUDP([]byte("probe"), &net.UDPAddr{IP: net.IPv4bcast, Port: BroadcastPort})
	if err != nil {
		t.Fatalf("write to broadcast address failed, SO_BROADCAST likely not set: %v", err)
	}
}

// TestAdvertiserBroadcastDoesNotError drives Advertiser.broadcast over a
// real socket end to end, the path the SO_BROADCAST fix lives on.
func TestAdvertiserBroadcastDoesNotError(t *testing.T) {
	a := New(7, time.Second, func() string { return "MCPE;Test;0;1.21.90;0;20;7;sub;Survival;1;19150;19150" })

	conn, err := listenBroadcastUDP()
	if err != nil {
		t.Fatalf("listenBroadcastUDP: %v", err)
	}
	defer conn.Close()

	if err := a.broadcast(conn); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
}
