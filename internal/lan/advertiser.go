// Package lan implements the periodic LAN broadcast advertiser: unsolicited
// UNCONNECTED_PONG datagrams sent to every local broadcast address so
// nearby Bedrock clients populate their "Friends"/LAN server list without
// sending a discovery ping first.
package lan

import (
	"context"
	"errors"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/Sgsysysgsgsg/bedrockrelay/internal/logger"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/wire"
)

// BroadcastPort is fixed by the Bedrock client and is not configurable.
const BroadcastPort = 19132

// Advertiser periodically emits a valid RakNet UNCONNECTED_PONG to the
// global broadcast address and to every local interface's directed subnet
// broadcast address.
type Advertiser struct {
	serverGUID int64
	interval   time.Duration
	motd       func() string

	mu   sync.Mutex
	conn *net.UDPConn
}

// New creates an advertiser that emits under the given server GUID (stable
// for the process lifetime) at the given interval, using motd to fetch the
// current advertisement string on each tick.
func New(serverGUID int64, interval time.Duration, motd func() string) *Advertiser {
	return &Advertiser{serverGUID: serverGUID, interval: interval, motd: motd}
}

// Run starts the advertiser and blocks until ctx is cancelled or the socket
// is lost. Loss of the socket is fatal to the advertiser but not to the
// proxy: Run returns and the caller logs that the advertiser stopped.
func (a *Advertiser) Run(ctx context.Context) error {
	conn, err := listenBroadcastUDP()
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	defer conn.Close()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.broadcast(conn); err != nil {
				logger.Warn("lan advertiser: socket lost, stopping: %v", err)
				return err
			}
		}
	}
}

// broadcast sends one UNCONNECTED_PONG to 255.255.255.255 and to every
// local interface's directed subnet broadcast address. It returns an error
// only when the socket has been closed.
func (a *Advertiser) broadcast(conn *net.UDPConn) error {
	pong := wire.BuildPong(time.Now().UnixMilli(), a.serverGUID, a.motd())

	destinations := append([]net.IP{net.IPv4bcast}, subnetBroadcastAddresses()...)
	for _, ip := range destinations {
		if err := a.sendTo(conn, ip, pong); err != nil {
			return err
		}
	}
	return nil
}

// sendTo sends pong to one destination. Failures here are per-destination
// and non-fatal, matching spec §4.3's failure semantics; only a closed
// socket is returned as an error.
func (a *Advertiser) sendTo(conn *net.UDPConn, ip net.IP, pong []byte) error {
	addr := &net.UDPAddr{IP: ip, Port: BroadcastPort}
	if _, err := conn.WriteToUDP(pong, addr); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return err
		}
		logger.Debug("lan advertiser: send to %s failed: %v", addr, err)
	}
	return nil
}

// listenBroadcastUDP opens the advertiser's outbound socket with
// SO_BROADCAST set, mirroring LanBroadcaster.java's
// `socket.setBroadcast(true)` — without it, writes to a broadcast address
// fail with EACCES on Linux.
func listenBroadcastUDP() (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}
	pc, err := lc.ListenPacket(context.Background(), "udp4", ":0")
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}

// Stop requests a clean stop: closing the socket unblocks Run within one
// interval.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		a.conn.Close()
	}
}

// subnetBroadcastAddresses enumerates the machine's network interfaces,
// skipping loopback and down interfaces, and collects each interface's
// directed broadcast address (e.g. 192.168.1.255).
func subnetBroadcastAddresses() []net.IP {
	var broadcasts []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return broadcasts
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			broadcast := broadcastAddress(ip4, ipNet.Mask)
			broadcasts = append(broadcasts, broadcast)
		}
	}
	return broadcasts
}

// broadcastAddress computes the directed broadcast address for an IPv4
// address and subnet mask: every host bit set to 1.
func broadcastAddress(ip net.IP, mask net.IPMask) net.IP {
	broadcast := make(net.IP, len(ip))
	for i := range ip {
		broadcast[i] = ip[i] | ^mask[i]
	}
	return broadcast
}
