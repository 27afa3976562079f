// Package proxy wires the wire/lan/codec/session/upstream/downstream
// packages into the single-purpose relay spec.md §3 calls the Proxy
// singleton, grounded on the teacher's RakNetProxy accept/dial/forward
// control flow (internal/proxy/raknet_proxy.go).
package proxy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sandertv/go-raknet"
	"github.com/sandertv/gophertunnel/minecraft/protocol"
	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"

	"github.com/Sgsysysgsgsg/bedrockrelay/internal/codec"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/config"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/downstream"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/lan"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/logger"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/metrics"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/session"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/upstream"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/wire"
)

// Proxy is the process-wide relay singleton: one upstream RakNet listener,
// one configured remote, one session map, one LAN advertiser.
type Proxy struct {
	cfg        *config.Config
	manager    *session.Manager
	serverGUID int64

	listener      *raknet.Listener
	lanAdvertiser *lan.Advertiser

	closed atomic.Bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Proxy bound to cfg. Call Start, then Listen.
func New(cfg *config.Config) *Proxy {
	return &Proxy{
		cfg:     cfg,
		manager: session.NewManager(),
	}
}

// Start binds the upstream RakNet listener and, if configured, starts the
// LAN advertiser. The metrics endpoint is started separately by
// ServeMetrics.
func (p *Proxy) Start() error {
	logger.SetDebug(p.cfg.DebugLogging)

	listener, err := raknet.Listen(p.cfg.ProxyAddr())
	if err != nil {
		return fmt.Errorf("failed to start upstream listener: %w", err)
	}
	p.listener = listener
	p.serverGUID = listener.ID()
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.updateSessionCount()

	if p.cfg.LAN.Enabled {
		p.lanAdvertiser = lan.New(p.serverGUID, p.cfg.BroadcastInterval(), p.motd)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := p.lanAdvertiser.Run(p.ctx); err != nil {
				logger.Error("LAN advertiser stopped: %v", err)
			}
		}()
	}

	logger.Info("relay listening on %s, forwarding to %s", p.cfg.ProxyAddr(), p.cfg.RemoteAddr())
	return nil
}

// Listen accepts inbound RakNet connections until ctx is cancelled, per
// spec §4.4. Grounded on RakNetProxy.Listen's channel-based accept loop.
func (p *Proxy) Listen(ctx context.Context) error {
	connCh := make(chan *raknet.Conn)
	errCh := make(chan error, 1)

	go func() {
		for {
			conn, err := p.listener.Accept()
			if err != nil {
				if p.closed.Load() {
					return
				}
				select {
				case errCh <- err:
				default:
				}
				continue
			}
			select {
			case connCh <- conn.(*raknet.Conn):
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case conn := <-connCh:
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.handleConnection(ctx, conn)
			}()
		case err := <-errCh:
			if !strings.Contains(err.Error(), "use of closed") {
				logger.Debug("accept error: %v", err)
			}
		}
	}
}

// handleConnection owns one upstream peer for its whole lifetime: it
// allocates a Session, wires the upstream handler, and pumps decoded
// packets into it until the peer disconnects (spec §4.4, §4.8).
func (p *Proxy) handleConnection(ctx context.Context, conn *raknet.Conn) {
	defer conn.Close()

	sess := p.manager.New(conn)
	p.updateSessionCount()
	logger.Info("session %s: accepted from %s", sess.ID, conn.RemoteAddr())

	up := upstream.New(sess)
	up.ConnectDownstream = func(clientProtocol int32) {
		p.connectDownstream(sess, clientProtocol)
	}

	for {
		raw, err := conn.ReadPacket()
		if err != nil {
			p.onUpstreamDisconnect(sess)
			return
		}
		pkts, err := codec.Decode(raw)
		if err != nil {
			logger.Debug("session %s: upstream decode error: %v", sess.ID, err)
			continue
		}
		for _, pk := range pkts {
			up.Handle(pk)
		}
	}
}

// connectDownstream implements spec §4.5: dial the configured remote, wire
// the downstream handler on success, or disconnect the upstream with a
// diagnostic reason on failure. The RakNet dial carries no Bedrock protocol
// version and clientProtocol is not used here; the client's declared
// protocol reaches the remote server only inside the forwarded Login packet.
func (p *Proxy) connectDownstream(sess *session.Session, clientProtocol int32) {
	conn, err := raknet.Dial(p.cfg.RemoteAddr())
	if err != nil {
		logger.Warn("session %s: failed to connect to remote %s: %v", sess.ID, p.cfg.RemoteAddr(), err)
		p.disconnectUpstream(sess, "Could not connect to the remote server.")
		sess.Close()
		p.updateSessionCount()
		return
	}

	sess.SetDownstream(conn)
	sess.MarkConnected()

	down := downstream.New(sess)
	down.OnDownstreamConnected()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer conn.Close()
		for {
			raw, err := conn.ReadPacket()
			if err != nil {
				p.onDownstreamDisconnect(sess)
				return
			}
			pkts, err := codec.Decode(raw)
			if err != nil {
				logger.Debug("session %s: downstream decode error: %v", sess.ID, err)
				continue
			}
			for _, pk := range pkts {
				down.Handle(pk)
			}
		}
	}()
}

// onUpstreamDisconnect implements the "Upstream peer disconnects" row of
// spec §4.8: close the downstream, destroy the session.
func (p *Proxy) onUpstreamDisconnect(sess *session.Session) {
	logger.Info("session %s: upstream disconnected", sess.ID)
	sess.Close()
	p.updateSessionCount()
}

// onDownstreamDisconnect implements the "Downstream peer disconnects" row
// of spec §4.8: tell the upstream why, then destroy the session.
func (p *Proxy) onDownstreamDisconnect(sess *session.Session) {
	logger.Info("session %s: downstream disconnected", sess.ID)
	p.disconnectUpstream(sess, "Proxy session ended")
	sess.Close()
	p.updateSessionCount()
}

func (p *Proxy) disconnectUpstream(sess *session.Session, reason string) {
	pk := &packet.Disconnect{
		Reason:  packet.DisconnectReasonKicked,
		Message: reason,
	}
	if err := codec.WriteTo(sess.Upstream, sess.UpstreamCompressed(), pk); err != nil {
		logger.Debug("session %s: failed to send disconnect reason upstream: %v", sess.ID, err)
	}
}

// motd returns the current serialized advertisement string, recomputed
// with the live session count — the "player count changes" trigger named
// in spec §4.4.
func (p *Proxy) motd() string {
	adv := wire.Advertisement{
		MOTD:       p.cfg.LAN.MOTD,
		SubMOTD:    p.cfg.LAN.SubMOTD,
		Protocol:   int32(protocol.CurrentProtocol),
		Players:    int32(p.manager.Count()),
		MaxPlayers: int32(p.cfg.MaxPlayers),
		Version:    protocol.CurrentVersion,
		ServerID:   p.serverGUID,
		GameType:   "Survival",
		IPv4Port:   uint16(p.cfg.Proxy.Port),
		IPv6Port:   uint16(p.cfg.Proxy.Port),
	}
	return adv.Encode()
}

// refreshAdvertisement recomputes the MOTD string the listener carries in
// its replies to unconnected pings — the "writeable slot on the listener"
// design note from spec §9. go-raknet builds the pong frame itself around
// this data, so only the MOTD bytes are stored.
func (p *Proxy) refreshAdvertisement() {
	if p.listener == nil {
		return
	}
	p.listener.PongData([]byte(p.motd()))
}

// updateSessionCount publishes the live session count to both places that
// must track it: the Prometheus gauge and the listener's pong buffer.
// spec.md §3/§4.4/§5 all require the advertisement to be re-published
// atomically every time the player count changes, so every call site that
// creates or destroys a session goes through here instead of touching
// metrics.SessionsActive directly.
func (p *Proxy) updateSessionCount() {
	metrics.SessionsActive.Set(float64(p.manager.Count()))
	p.refreshAdvertisement()
}

// ServeMetrics starts the Prometheus /metrics endpoint on addr until ctx
// is cancelled. Separated from Start so the caller can decide whether to
// expose it at all.
func (p *Proxy) ServeMetrics(ctx context.Context, addr string) error {
	return metrics.Serve(ctx, addr)
}

// Stop implements spec §5's shutdown sequence: disconnect every live
// session, then close the listener and LAN advertiser, and wait for all
// goroutines to finish. Idempotent.
func (p *Proxy) Stop() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.manager.CloseAll()
	if p.lanAdvertiser != nil {
		p.lanAdvertiser.Stop()
	}
	var err error
	if p.listener != nil {
		err = p.listener.Close()
	}
	p.wg.Wait()
	return err
}

// SessionCount returns the number of live sessions, the same count the
// metrics gauge and the advertisement's player count report.
func (p *Proxy) SessionCount() int {
	return p.manager.Count()
}
