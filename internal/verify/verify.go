// Package verify implements the reachability prober: the state machine
// that, once a server registers, classifies its per-family connectivity as
// DIRECT, STUN, or ISOLATED and reports the verdict back to the server.
package verify

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/TrueBrain/game-coordinator/internal/ids"
	"github.com/TrueBrain/game-coordinator/internal/registry"
	"github.com/TrueBrain/game-coordinator/internal/wire"
	"github.com/rs/zerolog"
)

const detectionTimeout = 4 * time.Second
const stunRetryDelay = 100 * time.Millisecond
const directDialTimeout = 1 * time.Second

// Dialer abstracts the direct-reachability probe so tests can avoid real
// sockets.
type Dialer func(network, address string, timeout time.Duration) (net.Conn, error)

func defaultDialer(network, address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network, address, timeout)
}

// Session is one server's in-flight Verify cycle.
type Session struct {
	token  string
	server *registry.Server
	tokens *registry.Tokens
	dialer Dialer
	stuns  int
	done   chan struct{}

	// log carries this cycle's conn_id (attached by the coordinator-plane
	// listener that accepted the registering connection), so concurrent
	// verify cycles don't interleave into unreadable plain-text logs.
	log zerolog.Logger
}

// Start allocates a VerifyToken for server, sends STUN_REQUEST, and drives
// the cycle to completion in a new goroutine. dialer may be nil to use a
// real net.DialTimeout.
func Start(ctx context.Context, server *registry.Server, tokens *registry.Tokens, dialer Dialer) error {
	if dialer == nil {
		dialer = defaultDialer
	}

	// A re-REGISTER on the same source restarts the cycle: end the one
	// still in flight before starting its replacement.
	if previous := server.VerifyToken; previous != "" {
		if owner, ok := tokens.Get(previous); ok {
			owner.Disconnect()
		}
	}

	sess := &Session{server: server, tokens: tokens, dialer: dialer, done: make(chan struct{}, 1), log: *zerolog.Ctx(ctx)}

	token, err := tokens.Create(func(token string) registry.TokenOwner {
		sess.token = token
		return sess
	})
	if err != nil {
		return err
	}
	server.VerifyToken = token

	if err := server.Source.Send(byte(wire.PacketCoordinatorServerStunRequest), wire.EncodeServerStunRequest(ids.WithRole(ids.RoleVerify, token))); err != nil {
		return err
	}

	go sess.run()
	return nil
}

func (s *Session) run() {
	select {
	case <-s.done:
	case <-time.After(detectionTimeout):
	}
	s.finish()
}

// finish sends SERVER_CONNECT_FAILED to free the server's own Verify
// resources, deletes the VerifyToken, and reports the overall classified
// ConnectionType.
func (s *Session) finish() {
	wireToken := ids.WithRole(ids.RoleVerify, s.token)
	if err := s.server.Source.Send(byte(wire.PacketCoordinatorServerConnectFailed), wire.EncodeServerConnectFailed(wireToken)); err != nil {
		s.log.Debug().Err(err).Str("join_key", s.server.JoinKey).Msg("error notifying server of verify completion")
	}
	s.tokens.Delete(s.token)

	best := s.server.BestConnectionType()
	ips, cts := s.server.Snapshot()
	s.log.Info().
		Str("join_key", s.server.JoinKey).
		Interface("server_ip", ips).
		Interface("connection_type", cts).
		Str("best", best.String()).
		Msg("verify cycle complete")

	if err := s.server.Source.Send(byte(wire.PacketCoordinatorServerRegisterAck), wire.EncodeServerRegisterAck(s.server.JoinKey, best)); err != nil {
		s.log.Debug().Err(err).Str("join_key", s.server.JoinKey).Msg("error sending register ack")
	}
}

// StunResult handles a STUN_RESULT routed to this session under prefix V.
func (s *Session) StunResult(interfaceNumber uint8, success bool) {
	s.stuns++

	if !success {
		if s.stuns == 2 {
			s.signalDone()
		}
		return
	}

	key := ids.WithRole(ids.RoleVerify, s.token)
	obs, ok := s.tokens.Stun.Get(key, interfaceNumber)
	if !ok {
		time.Sleep(stunRetryDelay)
		obs, ok = s.tokens.Stun.Get(key, interfaceNumber)
	}
	if !ok {
		s.log.Error().Str("token", s.token).Msg("got STUN result but no STUN observation on file")
		return
	}

	family := wire.FamilyOf(obs.IP)
	s.server.SetServerIP(family, obs.IP)

	if s.canDialDirect(obs.IP) {
		s.server.SetConnectionType(family, wire.ConnectionTypeDirect)
	} else {
		s.server.SetConnectionType(family, wire.ConnectionTypeStun)
	}

	if s.stuns == 2 {
		s.signalDone()
	}
}

func (s *Session) canDialDirect(ip net.IP) bool {
	address := net.JoinHostPort(ip.String(), strconv.Itoa(int(s.server.ServerPort)))
	conn, err := s.dialer("tcp", address, directDialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (s *Session) signalDone() {
	select {
	case s.done <- struct{}{}:
	default:
	}
}

// BoundJoinKey reports the Server this Verify cycle belongs to, so a
// server disconnect can sweep up its in-flight Verify token too.
func (s *Session) BoundJoinKey() string {
	return s.server.JoinKey
}

// Disconnect implements registry.TokenOwner. It ends the cycle early: the
// driver wakes and runs finish() at once, which sends its completion frames
// to the server's source, deletes the token and its STUN storage, and logs
// the classification gathered so far.
func (s *Session) Disconnect() {
	s.signalDone()
}
