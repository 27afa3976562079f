// Package upstream implements the packet handler for the direction coming
// FROM the connecting Bedrock client, grounded directly on
// UpstreamPacketHandler.java's handshake/passthrough split.
package upstream

import (
	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"

	"github.com/Sgsysysgsgsg/bedrockrelay/internal/codec"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/logger"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/session"
)

// Handler dispatches packets received from the upstream (client) peer. Its
// default passthrough is gated on the session being in the Playing phase —
// unlike the downstream handler's unconditional default, this asymmetry is
// intentional: packets a client sends before Playing are protocol
// violations that must be dropped silently, not deferred forwards.
type Handler struct {
	session *session.Session
	// ConnectDownstream is invoked exactly once, when the client's Login
	// packet is captured, to start the remote connection attempt.
	ConnectDownstream func(clientProtocol int32)
}

// New creates an upstream handler bound to s.
func New(s *session.Session) *Handler {
	return &Handler{session: s}
}

// Handle dispatches a single decoded packet received from the upstream
// peer.
func (h *Handler) Handle(pk packet.Packet) {
	switch p := pk.(type) {
	case *packet.RequestNetworkSettings:
		h.handleRequestNetworkSettings(p)
	case *packet.Login:
		h.handleLogin(p)
	default:
		h.handleDefault(pk)
	}
}

// handleRequestNetworkSettings implements spec §4.6's only specially
// handled packet in AwaitingNetworkSettings: synthesize a NetworkSettings
// reply instead of forwarding, and never forward this packet itself.
func (h *Handler) handleRequestNetworkSettings(pk *packet.RequestNetworkSettings) {
	if h.session.Phase() != session.AwaitingNetworkSettings {
		logger.Warn("session %s: RequestNetworkSettings outside AwaitingNetworkSettings, ignoring", h.session.ID)
		return
	}
	h.session.ClientProtocol = pk.ClientProtocol

	settings := &packet.NetworkSettings{
		CompressionThreshold:    0,
		CompressionAlgorithm:    packet.CompressionAlgorithmFlate,
		ClientThrottle:          false,
		ClientThrottleThreshold: 0,
		ClientThrottleScalar:    0,
	}
	if err := codec.WriteTo(h.session.Upstream, false, settings); err != nil {
		logger.Error("session %s: failed to send NetworkSettings: %v", h.session.ID, err)
		return
	}
	h.session.EnableUpstreamCompression()
}

// handleLogin captures the client's Login packet and kicks off the
// downstream connection attempt, per spec §4.6: the login is not forwarded
// yet, because forwarding before the downstream transport exists would
// drop the envelope.
func (h *Handler) handleLogin(pk *packet.Login) {
	if h.session.Phase() != session.AwaitingNetworkSettings {
		logger.Warn("session %s: Login received while not in AwaitingNetworkSettings, ignoring", h.session.ID)
		return
	}
	h.session.SetPendingLogin(pk)
	h.session.SetPhase(session.AwaitingDownstream)

	if h.ConnectDownstream != nil {
		h.ConnectDownstream(h.session.ClientProtocol)
	}
}

// handleDefault implements the Playing-phase bulk forwarding plane and the
// protocol-violation drop for every earlier phase.
func (h *Handler) handleDefault(pk packet.Packet) {
	if h.session.Phase() != session.Playing || !h.session.Connected() {
		return
	}
	down := h.session.Downstream()
	if down == nil {
		return
	}
	if err := codec.WriteTo(down, h.session.DownstreamCompressed(), pk); err != nil {
		logger.Debug("session %s: failed to forward packet downstream: %v", h.session.ID, err)
	}
}
