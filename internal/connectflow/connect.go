// Package connectflow implements the Connect machine: the per-attempt
// state machine that drives a client towards a server through an ordered
// cascade of connection strategies (direct, STUN, TURN), reacting to
// asynchronous evidence arriving over the coordinator plane.
package connectflow

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/TrueBrain/game-coordinator/internal/ids"
	"github.com/TrueBrain/game-coordinator/internal/registry"
	"github.com/TrueBrain/game-coordinator/internal/wire"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const strategyFetchTimeout = 1 * time.Second
const stepWaitTimeout = 4 * time.Second
const stunRetryDelay = 100 * time.Millisecond

// stunsFastTurnThreshold is the stuns count ("two times two results") that
// short-circuits straight to connect_turn once the strategy queue is also
// empty. It assumes exactly two interfaces (IPv4/IPv6) times two peers
// (client/server), which the protocol does not strictly guarantee but
// which makes the common case converge much faster.
const stunsFastTurnThreshold = 4

// TurnEndpoint is the host:port a connect_turn strategy may hand out. It is
// supplied by the caller (the configured TURN pool) rather than hardcoded.
// ID identifies which pool entry was picked, independent of host:port, so
// log lines survive the endpoint's host or port being rotated later.
type TurnEndpoint struct {
	ID   uuid.UUID
	Host string
	Port uint16
}

// TurnPool picks a TURN endpoint for one attempt. Implementations may
// rotate or randomize across a configured pool.
type TurnPool interface {
	Pick() TurnEndpoint
}

type stunEntry struct {
	Interface uint8
	IP        net.IP
	Port      uint16
}

type connectState struct {
	Method       wire.ConnectionType
	ServerFamily wire.Family
	ClientFamily wire.Family
}

type strategy func(s *Session)

// Session is one client's in-flight attempt to reach a Server.
type Session struct {
	token string

	server       *registry.Server
	clientSource registry.Conn
	clientIP     net.IP
	tokens       *registry.Tokens
	turnPool     TurnPool

	ctx    context.Context
	cancel context.CancelFunc

	// log carries this attempt's conn_id (attached by the coordinator-plane
	// listener that accepted the connecting client), so concurrent attempts
	// don't interleave into unreadable plain-text logs.
	log zerolog.Logger

	mu             sync.Mutex
	queue          []strategy
	notify         chan struct{}
	stuns          int
	trackingNumber uint8
	state          connectState
	isConnected    bool
	serverStun     map[wire.Family]stunEntry
	clientStun     map[wire.Family]stunEntry
	stunTried      map[wire.Family]bool

	step chan struct{}
}

// Start allocates a ConnectToken for a client attempting to reach server,
// seeds its strategy queue, and begins driving it in a new goroutine. The
// driver's own cancellation context is derived from parentCtx, so a
// listener shutdown cancels in-flight attempts the same way an explicit
// Disconnect does.
func Start(parentCtx context.Context, server *registry.Server, clientSource registry.Conn, tokens *registry.Tokens, turnPool TurnPool) (string, error) {
	clientIP := addrIP(clientSource.RemoteAddr())
	ctx, cancel := context.WithCancel(parentCtx)

	sess := &Session{
		server:       server,
		clientSource: clientSource,
		clientIP:     clientIP,
		tokens:       tokens,
		turnPool:     turnPool,
		ctx:          ctx,
		cancel:       cancel,
		log:          *zerolog.Ctx(parentCtx),
		notify:       make(chan struct{}, 1),
		serverStun:   make(map[wire.Family]stunEntry),
		clientStun:   make(map[wire.Family]stunEntry),
		stunTried:    map[wire.Family]bool{wire.FamilyIPv4: false, wire.FamilyIPv6: false},
		step:         make(chan struct{}, 1),
	}

	token, err := tokens.Create(func(token string) registry.TokenOwner {
		sess.token = token
		return sess
	})
	if err != nil {
		cancel()
		return "", err
	}

	clientFamily := wire.FamilyOf(clientIP)
	_, cts := server.Snapshot()
	if cts[clientFamily] == wire.ConnectionTypeDirect {
		sess.push(func(s *Session) { s.connectDirect(clientFamily) })
	}
	sess.push(func(s *Session) { s.connectStartStun() })

	go sess.run()

	return token, nil
}

func (s *Session) push(fn strategy) {
	s.mu.Lock()
	s.queue = append(s.queue, fn)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Session) pop() (strategy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	fn := s.queue[0]
	s.queue = s.queue[1:]
	return fn, true
}

func (s *Session) queueEmptyAndStunsAtThreshold() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stuns == stunsFastTurnThreshold && len(s.queue) == 0
}

func (s *Session) getWithTimeout(timeout time.Duration) (strategy, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if fn, ok := s.pop(); ok {
			return fn, true
		}
		select {
		case <-s.notify:
			continue
		case <-deadline.C:
			return nil, false
		case <-s.ctx.Done():
			return nil, false
		}
	}
}

func (s *Session) clearStep() {
	select {
	case <-s.step:
	default:
	}
}

func (s *Session) signalStep() {
	select {
	case s.step <- struct{}{}:
	default:
	}
}

func (s *Session) waitStep(timeout time.Duration) {
	select {
	case <-s.step:
	case <-time.After(timeout):
	case <-s.ctx.Done():
	}
}

func (s *Session) getIsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isConnected
}

func (s *Session) run() {
	for {
		if s.ctx.Err() != nil {
			return
		}

		var final bool
		var fn strategy

		if s.queueEmptyAndStunsAtThreshold() {
			final = true
			fn = func(s *Session) { s.connectTurn() }
		} else {
			got, ok := s.getWithTimeout(strategyFetchTimeout)
			if !ok {
				if s.ctx.Err() != nil {
					return
				}
				final = true
				fn = func(s *Session) { s.connectTurn() }
			} else {
				fn = got
			}
		}

		s.clearStep()
		fn(s)
		s.waitStep(stepWaitTimeout)

		if s.ctx.Err() != nil {
			return
		}
		if s.getIsConnected() || final {
			break
		}
	}

	s.finish()
}

func (s *Session) finish() {
	if s.getIsConnected() {
		s.log.Info().
			Str("client", s.clientIP.String()).
			Str("method", s.state.Method.String()).
			Msg("client connected")
		return
	}

	if err := s.server.Source.Send(byte(wire.PacketCoordinatorServerConnectFailed), wire.EncodeServerConnectFailed(ids.WithRole(ids.RoleConnectServer, s.token))); err != nil {
		s.log.Debug().Err(err).Msg("error notifying server of connect failure")
	}
	if err := s.clientSource.Send(byte(wire.PacketCoordinatorServerConnectFailed), wire.EncodeServerConnectFailed(ids.WithRole(ids.RoleConnectClient, s.token))); err != nil {
		s.log.Debug().Err(err).Msg("error notifying client of connect failure")
	}
	s.log.Info().Str("client", s.clientIP.String()).Str("join_key", s.server.JoinKey).Msg("unable to connect client to server")
}

// --- strategies ----------------------------------------------------------

func (s *Session) connectDirect(family wire.Family) {
	s.mu.Lock()
	s.trackingNumber++
	tracking := s.trackingNumber
	s.state = connectState{Method: wire.ConnectionTypeDirect, ServerFamily: family, ClientFamily: family}
	s.mu.Unlock()

	ips, _ := s.server.Snapshot()
	host := wire.RenderHost(ips[family])

	if err := s.clientSource.Send(byte(wire.PacketCoordinatorServerDirectConnect),
		wire.EncodeServerDirectConnect(ids.WithRole(ids.RoleConnectClient, s.token), tracking, host, s.server.ServerPort)); err != nil {
		s.log.Debug().Err(err).Msg("error sending direct connect to client")
	}
}

func (s *Session) connectStartStun() {
	if err := s.server.Source.Send(byte(wire.PacketCoordinatorServerStunRequest), wire.EncodeServerStunRequest(ids.WithRole(ids.RoleConnectServer, s.token))); err != nil {
		s.log.Debug().Err(err).Msg("error requesting STUN from server")
	}
	if err := s.clientSource.Send(byte(wire.PacketCoordinatorServerStunRequest), wire.EncodeServerStunRequest(ids.WithRole(ids.RoleConnectClient, s.token))); err != nil {
		s.log.Debug().Err(err).Msg("error requesting STUN from client")
	}
	s.signalStep()
}

func (s *Session) connectStun(family wire.Family) {
	s.mu.Lock()
	s.trackingNumber++
	tracking := s.trackingNumber
	s.state = connectState{Method: wire.ConnectionTypeStun, ServerFamily: family, ClientFamily: family}
	clientEntry := s.clientStun[family]
	serverEntry := s.serverStun[family]
	s.mu.Unlock()

	if err := s.clientSource.Send(byte(wire.PacketCoordinatorServerStunConnect),
		wire.EncodeServerStunConnect(ids.WithRole(ids.RoleConnectClient, s.token), tracking, clientEntry.Interface, wire.RenderHost(serverEntry.IP), serverEntry.Port)); err != nil {
		s.log.Debug().Err(err).Msg("error sending STUN connect to client")
	}
	if err := s.server.Source.Send(byte(wire.PacketCoordinatorServerStunConnect),
		wire.EncodeServerStunConnect(ids.WithRole(ids.RoleConnectServer, s.token), tracking, serverEntry.Interface, wire.RenderHost(clientEntry.IP), clientEntry.Port)); err != nil {
		s.log.Debug().Err(err).Msg("error sending STUN connect to server")
	}
}

func (s *Session) connectTurn() {
	s.mu.Lock()
	s.trackingNumber++
	tracking := s.trackingNumber
	s.state = connectState{Method: wire.ConnectionTypeTurn, ServerFamily: wire.FamilyUnknown, ClientFamily: wire.FamilyUnknown}
	s.mu.Unlock()

	endpoint := s.turnPool.Pick()
	s.log.Debug().Str("turn_endpoint_id", endpoint.ID.String()).Str("turn_host", endpoint.Host).Msg("picked TURN endpoint for attempt")

	if err := s.server.Source.Send(byte(wire.PacketCoordinatorServerTurnConnect),
		wire.EncodeServerTurnConnect(ids.WithRole(ids.RoleConnectServer, s.token), tracking, endpoint.Host, endpoint.Port)); err != nil {
		s.log.Debug().Err(err).Msg("error sending TURN connect to server")
	}
	if err := s.clientSource.Send(byte(wire.PacketCoordinatorServerTurnConnect),
		wire.EncodeServerTurnConnect(ids.WithRole(ids.RoleConnectClient, s.token), tracking, endpoint.Host, endpoint.Port)); err != nil {
		s.log.Debug().Err(err).Msg("error sending TURN connect to client")
	}
}

// --- inbound coordinator-plane events -------------------------------------

// ConnectFailed handles a CONNECT_FAILED for this session: only the
// current attempt's tracking number unblocks the driver, so a delayed
// failure for an already-abandoned strategy is dropped.
func (s *Session) ConnectFailed(trackingNumber uint8) {
	s.mu.Lock()
	current := s.trackingNumber
	s.mu.Unlock()

	if current == trackingNumber {
		s.signalStep()
	}
}

// Connected marks the session successful and unblocks the driver
// unconditionally.
func (s *Session) Connected() {
	s.mu.Lock()
	s.isConnected = true
	s.mu.Unlock()
	s.signalStep()
}

// StunResult handles a STUN_RESULT routed to this session under prefix C
// or S.
func (s *Session) StunResult(prefix ids.Role, interfaceNumber uint8, success bool) {
	s.mu.Lock()
	s.stuns++
	s.mu.Unlock()

	if !success {
		return
	}

	key := ids.WithRole(prefix, s.token)
	obs, ok := s.tokens.Stun.Get(key, interfaceNumber)
	if !ok {
		time.Sleep(stunRetryDelay)
		// Retry under the Verify-role prefix regardless of which role this
		// result came from; a Connect-phase STUN observation is sometimes
		// still filed under the Verify token right after a reused handshake.
		obs, ok = s.tokens.Stun.Get(ids.WithRole(ids.RoleVerify, s.token), interfaceNumber)
	}
	if !ok {
		s.log.Error().Str("token", s.token).Msg("got STUN result but no STUN observation on file")
		return
	}

	family := wire.FamilyOf(obs.IP)
	entry := stunEntry{Interface: interfaceNumber, IP: obs.IP, Port: obs.Port}

	if prefix == ids.RoleConnectClient {
		_, cts := s.server.Snapshot()
		if family != wire.FamilyOf(s.clientIP) && cts[family] == wire.ConnectionTypeDirect {
			s.push(func(s *Session) { s.connectDirect(family) })
		}
	}

	s.mu.Lock()
	if prefix == ids.RoleConnectServer {
		s.serverStun[family] = entry
	} else {
		s.clientStun[family] = entry
	}

	var matched wire.Family
	found := false
	for sf := range s.serverStun {
		if _, ok := s.clientStun[sf]; ok && !s.stunTried[sf] {
			matched = sf
			found = true
			break
		}
	}
	if found {
		s.stunTried[matched] = true
	}
	s.mu.Unlock()

	if found {
		s.push(func(s *Session) { s.connectStun(matched) })
	}
}

// BoundJoinKey reports the Server this Connect attempt targets, so a
// server disconnect can sweep up every in-flight Connect token aimed at
// it.
func (s *Session) BoundJoinKey() string {
	return s.server.JoinKey
}

// Disconnect implements registry.TokenOwner; it cancels the driver
// goroutine without running the failure-notification path, matching the
// original's silent handling of a cancelled task.
func (s *Session) Disconnect() {
	s.cancel()
}

func addrIP(addr net.Addr) net.IP {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return net.ParseIP(addr.String())
	}
	return net.ParseIP(host)
}
