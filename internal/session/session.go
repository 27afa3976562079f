// Package session implements the Session data model and the Manager that
// owns the live-session map, per spec.md §3 and §9.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/sandertv/gophertunnel/minecraft/protocol/packet"

	"github.com/Sgsysysgsgsg/bedrockrelay/internal/codec"
	"github.com/Sgsysysgsgsg/bedrockrelay/internal/logger"
)

// HandshakePhase is the tagged variant over a session's handshake
// progress. The zero value is the initial phase.
type HandshakePhase int32

const (
	AwaitingNetworkSettings HandshakePhase = iota
	AwaitingDownstream
	Playing
)

func (p HandshakePhase) String() string {
	switch p {
	case AwaitingNetworkSettings:
		return "AwaitingNetworkSettings"
	case AwaitingDownstream:
		return "AwaitingDownstream"
	case Playing:
		return "Playing"
	default:
		return "Unknown"
	}
}

// Session is the unit of ownership for one connected client: it owns both
// peer handles (upstream inbound, downstream outbound) and mediates the
// handshake between them. Session state is mutated only from the session's
// own worker; the atomics exist solely so an external shutdown can read
// them race-free (spec §9's "session-level concurrency" note).
type Session struct {
	ID string

	// Upstream is the inbound reliable channel to the connecting client.
	// It is set at construction and never nil.
	Upstream codec.RawConn
	// ClientProtocol is the protocol version the client declared in its
	// RequestNetworkSettings packet. The upstream handler passes it to
	// ConnectDownstream; the proxy's downstream dial does not use it.
	ClientProtocol int32

	mu sync.Mutex
	// downstream is the outbound reliable channel to the remote server,
	// present only after the downstream connect completes.
	downstream codec.RawConn
	phase      HandshakePhase
	// pendingLogin holds the client's Login packet between its receipt and
	// the downstream becoming ready to receive it.
	pendingLogin   *packet.Login
	loginForwarded bool

	connected     atomic.Bool
	disconnecting atomic.Bool

	// upstreamCompressed/downstreamCompressed track, per direction, whether
	// that peer's NetworkSettings exchange has completed and packets sent
	// to it should now be compressed.
	upstreamCompressed   atomic.Bool
	downstreamCompressed atomic.Bool

	manager *Manager
}

func newSession(id string, upstream codec.RawConn, manager *Manager) *Session {
	return &Session{ID: id, Upstream: upstream, manager: manager}
}

// Phase returns the session's current handshake phase.
func (s *Session) Phase() HandshakePhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SetPhase advances the session to phase. Backward or same-phase
// transitions are ignored and logged at warn — spec invariant 6 requires
// phase to be monotonic.
func (s *Session) SetPhase(phase HandshakePhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if phase <= s.phase {
		logger.Warn("session %s: ignoring non-forward phase transition %s -> %s", s.ID, s.phase, phase)
		return
	}
	s.phase = phase
}

// Downstream returns the downstream peer handle, or nil if the downstream
// connect has not completed yet.
func (s *Session) Downstream() codec.RawConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downstream
}

// SetDownstream stores the downstream peer handle once the connect to the
// remote server completes.
func (s *Session) SetDownstream(conn codec.RawConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downstream = conn
}

// SetPendingLogin captures the client's Login packet. A second Login from
// the same upstream is ignored — the first is kept (spec §4.6 tie-break).
func (s *Session) SetPendingLogin(pk *packet.Login) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingLogin != nil {
		logger.Warn("session %s: ignoring duplicate Login packet", s.ID)
		return
	}
	s.pendingLogin = pk
}

// TakePendingLogin consumes the deferred login exactly once. The second and
// later calls return ok=false even if a login was captured, enforcing the
// loginForwarded one-shot latch from spec §9.
func (s *Session) TakePendingLogin() (pk *packet.Login, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loginForwarded || s.pendingLogin == nil {
		return nil, false
	}
	s.loginForwarded = true
	return s.pendingLogin, true
}

// EnableUpstreamCompression marks that packets sent to the upstream peer
// should now be compressed — set once the proxy's own NetworkSettings reply
// has gone out.
func (s *Session) EnableUpstreamCompression() {
	s.upstreamCompressed.Store(true)
}

// UpstreamCompressed reports whether packets sent upstream should be
// compressed.
func (s *Session) UpstreamCompressed() bool {
	return s.upstreamCompressed.Load()
}

// EnableDownstreamCompression marks that packets sent to the downstream
// peer should now be compressed — set once the remote server's own
// NetworkSettings has been received.
func (s *Session) EnableDownstreamCompression() {
	s.downstreamCompressed.Store(true)
}

// DownstreamCompressed reports whether packets sent downstream should be
// compressed.
func (s *Session) DownstreamCompressed() bool {
	return s.downstreamCompressed.Load()
}

// MarkConnected records that the downstream connect succeeded.
func (s *Session) MarkConnected() {
	s.connected.Store(true)
}

// Connected reports whether the downstream connect has completed.
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// BeginDisconnect marks the session as tearing down and reports whether
// this call is the one that made the transition, so shutdown from two
// directions at once (e.g. both peers closing) only tears down once.
func (s *Session) BeginDisconnect() bool {
	return s.disconnecting.CompareAndSwap(false, true)
}

// Close tears the session down: closes both peer handles (idempotently —
// closing a nil or already-closed conn is a no-op from the caller's view)
// and removes it from the owning manager.
func (s *Session) Close() {
	if !s.BeginDisconnect() {
		return
	}
	if closer, ok := s.Upstream.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if down := s.Downstream(); down != nil {
		if closer, ok := down.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	if s.manager != nil {
		s.manager.Remove(s.ID)
	}
}
