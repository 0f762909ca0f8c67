// Package relaypairer implements the TURN plane: pairing two inbound
// connections by token and splicing their bytes full-duplex once both
// sides of a relay have arrived.
package relaypairer

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/TrueBrain/game-coordinator/internal/ids"
	"github.com/TrueBrain/game-coordinator/internal/registry"
	"github.com/TrueBrain/game-coordinator/internal/wire"
	"github.com/rs/zerolog"
)

// ErrUnexpectedRole is returned when a TURN_CLIENT_CONNECT token carries a
// role other than C or S.
var ErrUnexpectedRole = errors.New("turn connect token must be prefixed C or S")

// pairWaitTimeout bounds how long the first-arriving side of a relay waits
// for its counterpart before the connection is dropped. The registry's own
// Unpaired sweep (driven by internal/coordinator) is the authoritative
// cleanup for abandoned relays; this is just this connection's local wait.
const pairWaitTimeout = 30 * time.Second

// Pairer owns the relay store and performs the handshake + splice for each
// accepted TURN-plane connection.
type Pairer struct {
	relays *registry.RelayStore

	mu      sync.Mutex
	waiters map[string]chan struct{}
}

func New(relays *registry.RelayStore) *Pairer {
	return &Pairer{relays: relays, waiters: make(map[string]chan struct{})}
}

// HandleConn reads the single TURN_CLIENT_CONNECT frame a TURN-plane
// connection opens with, registers its side of the relay, and either waits
// for its counterpart (first arrival) or immediately splices both
// connections together (second arrival). It owns conn's lifecycle for as
// long as the relay is active, so callers run it in its own goroutine per
// accepted connection. ctx carries this connection's conn_id, attached by
// the listener that accepted it.
func (p *Pairer) HandleConn(ctx context.Context, conn net.Conn) {
	connLog := zerolog.Ctx(ctx)

	reader := bufio.NewReader(conn)
	frame, err := wire.ReadFrame(reader)
	if err != nil {
		connLog.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("error reading TURN connect frame")
		conn.Close()
		return
	}
	if wire.PacketTurnType(frame.Type) != wire.PacketTurnClientConnect {
		connLog.Debug().Uint8("type", frame.Type).Msg("unexpected TURN-plane frame type")
		conn.Close()
		return
	}

	packet, err := wire.DecodeTurnClientConnect(frame.Payload)
	if err != nil {
		connLog.Debug().Err(err).Msg("error decoding TURN_CLIENT_CONNECT")
		conn.Close()
		return
	}

	role, bareToken, err := ids.SplitPrefixed(packet.Token)
	if err != nil {
		connLog.Debug().Err(err).Msg("malformed TURN connect token")
		conn.Close()
		return
	}
	if role != ids.RoleConnectClient && role != ids.RoleConnectServer {
		connLog.Debug().Err(ErrUnexpectedRole).Msg("rejecting TURN connect")
		conn.Close()
		return
	}
	isClient := role == ids.RoleConnectClient

	p.relays.AddSide(bareToken, isClient, conn)
	paired, ok := p.relays.Paired(bareToken)

	if !ok {
		p.waitForPeer(ctx, bareToken, conn)
		return
	}

	p.relays.Delete(bareToken)
	p.wakePeer(bareToken)
	runRelay(*connLog, bareToken, paired.Client, paired.Server)
}

// waitForPeer blocks the first-arriving side's goroutine until either its
// counterpart pairs (the pairing goroutine takes over conn's lifecycle and
// this one returns without touching it) or pairWaitTimeout elapses (this
// goroutine closes conn itself and removes its lone side).
func (p *Pairer) waitForPeer(ctx context.Context, token string, conn net.Conn) {
	ch := p.registerWaiter(token)

	select {
	case <-ch:
		return
	case <-time.After(pairWaitTimeout):
		p.mu.Lock()
		current, stillOurs := p.waiters[token]
		if stillOurs && current == ch {
			delete(p.waiters, token)
		}
		p.mu.Unlock()

		if !stillOurs || current != ch {
			// The peer arrived and claimed this waiter between the timer
			// firing and us acquiring the lock; it now owns conn.
			return
		}
		p.relays.Delete(token)
		conn.Close()
		zerolog.Ctx(ctx).Debug().Str("token", token).Msg("TURN relay peer never arrived")
	}
}

func (p *Pairer) registerWaiter(token string) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan struct{})
	p.waiters[token] = ch
	return ch
}

func (p *Pairer) wakePeer(token string) {
	p.mu.Lock()
	ch, ok := p.waiters[token]
	delete(p.waiters, token)
	p.mu.Unlock()
	if ok {
		close(ch)
	}
}

// runRelay splices client and server full-duplex until one side closes,
// then logs the session's duration and per-side throughput. relayLog is
// the conn_id-scoped logger of whichever side completed the pairing.
func runRelay(relayLog zerolog.Logger, token string, client, server *registry.RelaySide) {
	relayLog.Info().Str("token", token).Msg("started TURN relay")

	if err := wire.WriteFrame(client.Conn, byte(wire.PacketTurnServerConnected), wire.EncodeTurnServerConnected(hostOf(server.Conn), portOf(server.Conn))); err != nil {
		relayLog.Debug().Err(err).Msg("error notifying client of relay peer")
	}
	if err := wire.WriteFrame(server.Conn, byte(wire.PacketTurnServerConnected), wire.EncodeTurnServerConnected(hostOf(client.Conn), portOf(client.Conn))); err != nil {
		relayLog.Debug().Err(err).Msg("error notifying server of relay peer")
	}

	started := time.Now()
	clientBytes := make(chan int64, 1)
	serverBytes := make(chan int64, 1)

	go func() {
		n, _ := io.Copy(server.Conn, client.Conn)
		clientBytes <- n
		server.Conn.Close()
	}()
	go func() {
		n, _ := io.Copy(client.Conn, server.Conn)
		serverBytes <- n
		client.Conn.Close()
	}()

	fromClient := <-clientBytes
	fromServer := <-serverBytes
	delta := time.Since(started)

	relayLog.Info().
		Str("token", token).
		Dur("duration", delta).
		Int64("bytes_from_client", fromClient).
		Int64("bytes_from_server", fromServer).
		Msg("stopped TURN relay")
}

func hostOf(conn net.Conn) string {
	addr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return ""
	}
	return wire.RenderHost(addr.IP)
}

func portOf(conn net.Conn) uint16 {
	addr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return 0
	}
	return uint16(addr.Port)
}
