// Package downstream implements the packet handler for the direction
// coming FROM the remote Bedrock server, grounded directly on
// DownstreamPacketHandler.java's unconditional default passthrough.
package downstream

import (
	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"

	"github.com/Sgsysysgsgsg/bedrockrelay/internal/codec"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/logger"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/metrics"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/session"
)

// Handler dispatches packets received from the downstream (remote server)
// peer. Unlike the upstream handler, its default passthrough is
// unconditional: every packet the server sends after the session exists
// is meant for the client, regardless of phase.
type Handler struct {
	session *session.Session
}

// New creates a downstream handler bound to s.
func New(s *session.Session) *Handler {
	return &Handler{session: s}
}

// OnDownstreamConnected forwards any deferred login now that the downstream
// transport is live. It is idempotent via Session.TakePendingLogin's
// one-shot latch, matching spec §4.6/§9.
func (h *Handler) OnDownstreamConnected() {
	login, ok := h.session.TakePendingLogin()
	if !ok {
		return
	}
	logger.Info("session %s: forwarding Login to remote server", h.session.ID)
	if err := codec.WriteTo(h.session.Downstream(), h.session.DownstreamCompressed(), login); err != nil {
		logger.Error("session %s: failed to forward Login downstream: %v", h.session.ID, err)
	}
}

// Handle dispatches a single decoded packet received from the downstream
// peer.
func (h *Handler) Handle(pk packet.Packet) {
	switch p := pk.(type) {
	case *packet.NetworkSettings:
		h.handleNetworkSettings(p)
	case *packet.ServerToClientHandshake:
		h.handleServerToClientHandshake(p)
	case *packet.PlayStatus:
		h.handlePlayStatus(p)
	case *packet.Disconnect:
		h.handleDisconnect(p)
	default:
		h.forwardUpstream(pk)
	}
}

func (h *Handler) handleNetworkSettings(pk *packet.NetworkSettings) {
	h.forwardUpstream(pk)
	h.session.EnableDownstreamCompression()
}

// handleServerToClientHandshake forwards the handshake to the client
// unchanged and completes the encryption handshake from the server's
// perspective with a synthetic, empty ClientToServerHandshake — the proxy
// itself stays in the clear because the client negotiates directly with
// the server's handshake (spec §4.6).
func (h *Handler) handleServerToClientHandshake(pk *packet.ServerToClientHandshake) {
	h.forwardUpstream(pk)
	if err := codec.WriteTo(h.session.Downstream(), h.session.DownstreamCompressed(), &packet.ClientToServerHandshake{}); err != nil {
		logger.Error("session %s: failed to send ClientToServerHandshake: %v", h.session.ID, err)
	}
}

func (h *Handler) handlePlayStatus(pk *packet.PlayStatus) {
	h.forwardUpstream(pk)
	if pk.Status == packet.PlayStatusLoginSuccess || pk.Status == packet.PlayStatusPlayerSpawn {
		h.session.SetPhase(session.Playing)
		metrics.LoginsTotal.Inc()
		logger.Info("session %s: player fully connected, passthrough active", h.session.ID)
	}
}

func (h *Handler) handleDisconnect(pk *packet.Disconnect) {
	h.forwardUpstream(pk)
	h.session.Close()
}

func (h *Handler) forwardUpstream(pk packet.Packet) {
	if err := codec.WriteTo(h.session.Upstream, h.session.UpstreamCompressed(), pk); err != nil {
		logger.Debug("session %s: failed to forward packet upstream: %v", h.session.ID, err)
	}
}
