// Package coordinator wires the domain machines (registry, verify,
// connectflow, relaypairer) into the three network planes and drives them
// from accepted connections.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/TrueBrain/game-coordinator/internal/connectflow"
	"github.com/TrueBrain/game-coordinator/internal/ids"
	"github.com/TrueBrain/game-coordinator/internal/registry"
	"github.com/TrueBrain/game-coordinator/internal/relaypairer"
	"github.com/TrueBrain/game-coordinator/internal/verify"
	"github.com/TrueBrain/game-coordinator/internal/wire"
	"github.com/rs/zerolog"
)

var ErrUnknownJoinKey = errors.New("unknown join-key")
var ErrUnknownToken = errors.New("unknown token")
var ErrJoinKeyMismatch = errors.New("claimed join-key does not match the source's registered join-key")

// Application is the coordinator-plane's domain root: the server/token
// registries, plus the machines operating on them. It has no knowledge of
// net.Conn directly; listeners.go adapts real sockets down to the
// registry.Conn interface these handlers expect.
type Application struct {
	Servers  *registry.Servers
	Tokens   *registry.Tokens
	Relays   *relaypairer.Pairer
	TurnPool connectflow.TurnPool

	// Dialer overrides the Verify machine's direct-reachability probe;
	// nil uses a real net.DialTimeout. Exists for tests.
	Dialer verify.Dialer
}

func NewApplication(turnPool connectflow.TurnPool) *Application {
	tokens := registry.NewTokens()
	return &Application{
		Servers:  registry.NewServers(),
		Tokens:   tokens,
		Relays:   relaypairer.New(tokens.Turn),
		TurnPool: turnPool,
	}
}

// HandleRegister implements REGISTER: create-or-reuse the Server for
// source, kick off its Verify cycle, and report the join-key the caller
// should remember for subsequent frames on this connection. ctx carries
// this connection's conn_id, so the verify cycle's own logging stays
// correlated to the connection that started it.
func (a *Application) HandleRegister(ctx context.Context, source registry.Conn, existingJoinKey string, pkt wire.RegisterPacket) (string, error) {
	server, err := a.Servers.GetOrCreate(existingJoinKey, source, pkt.GameType, pkt.ServerPort)
	if err != nil {
		return "", fmt.Errorf("error registering server: %w", err)
	}

	if err := verify.Start(ctx, server, a.Tokens, a.Dialer); err != nil {
		return "", fmt.Errorf("error starting verify cycle: %w", err)
	}

	return server.JoinKey, nil
}

// HandleUpdate implements CLIENT_UPDATE. sourceJoinKey is the join-key this
// connection registered under; info.JoinKey is whatever the frame itself
// claims. The two must match, or any source could overwrite another
// server's info blob by naming its join-key.
func (a *Application) HandleUpdate(source registry.Conn, sourceJoinKey string, info wire.GameInfo) error {
	if info.JoinKey != sourceJoinKey {
		source.Close()
		return fmt.Errorf("%w: claimed %q, registered %q", ErrJoinKeyMismatch, info.JoinKey, sourceJoinKey)
	}

	server, ok := a.Servers.Get(sourceJoinKey)
	if !ok {
		source.Close()
		return fmt.Errorf("%w: %q", ErrUnknownJoinKey, sourceJoinKey)
	}
	server.Update(info)
	return nil
}

// HandleListing implements CLIENT_LISTING: send one SERVER_LISTING entry
// per currently registered public server with a complete info blob, then
// the count=0 terminator. Invite-only and local servers never appear here,
// regardless of how complete their info blob is.
func (a *Application) HandleListing(source registry.Conn) error {
	for _, server := range a.Servers.List() {
		if server.GameType != wire.ServerGameTypePublic {
			continue
		}
		if !server.HasInfo {
			continue
		}
		entry := wire.ListingEntry{JoinKey: server.JoinKey, Info: server.Info}
		if err := source.Send(byte(wire.PacketCoordinatorServerListing), wire.EncodeServerListingEntry(entry)); err != nil {
			return err
		}
	}
	return source.Send(byte(wire.PacketCoordinatorServerListing), wire.EncodeServerListingTerminator())
}

// HandleConnect implements CLIENT_CONNECT: allocate a ConnectToken binding
// source (the client) to joinKey's server, and begin driving it. The bare
// token is returned so the caller can remember it for this connection's
// teardown. ctx carries this connection's conn_id; a listener shutdown
// cancelling ctx also cancels the attempt this starts.
func (a *Application) HandleConnect(ctx context.Context, source registry.Conn, pkt wire.ConnectPacket) (string, error) {
	server, ok := a.Servers.Get(pkt.JoinKey)
	if !ok {
		if err := source.Send(byte(wire.PacketCoordinatorServerError), wire.EncodeServerError(wire.ErrorInvalidJoinKey, pkt.JoinKey)); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Msg("error sending invalid join-key error")
		}
		source.Close()
		return "", fmt.Errorf("%w: %q", ErrUnknownJoinKey, pkt.JoinKey)
	}

	token, err := connectflow.Start(ctx, server, source, a.Tokens, a.TurnPool)
	if err != nil {
		return "", fmt.Errorf("error starting connect attempt: %w", err)
	}

	if err := source.Send(byte(wire.PacketCoordinatorServerConnecting), wire.EncodeServerConnecting(ids.WithRole(ids.RoleConnectClient, token), server.JoinKey)); err != nil {
		return token, err
	}
	return token, nil
}

// HandleConnectFailed implements CLIENT_CONNECT_FAILED. An unknown token
// is not an error worth closing the connection over: it may simply be a
// delayed failure for an attempt that already finished.
func (a *Application) HandleConnectFailed(pkt wire.ConnectFailedPacket) error {
	_, bareToken, err := ids.SplitPrefixed(pkt.Token)
	if err != nil {
		return err
	}

	owner, ok := a.Tokens.Get(bareToken)
	if !ok {
		return nil
	}

	if sess, ok := owner.(*connectflow.Session); ok {
		sess.ConnectFailed(pkt.TrackingNumber)
	}
	return nil
}

// HandleConnected implements CLIENT_CONNECTED: mark the attempt
// successful and retire its token.
func (a *Application) HandleConnected(source registry.Conn, pkt wire.ConnectedPacket) error {
	_, bareToken, err := ids.SplitPrefixed(pkt.Token)
	if err != nil {
		return err
	}

	owner, ok := a.Tokens.Get(bareToken)
	if !ok {
		source.Close()
		return fmt.Errorf("%w: %q", ErrUnknownToken, bareToken)
	}

	if sess, ok := owner.(*connectflow.Session); ok {
		sess.Connected()
	}
	a.Tokens.Delete(bareToken)
	return nil
}

// HandleStunResult implements CLIENT_STUN_RESULT, routing to whichever
// machine (Verify or Connect) owns the token under its role prefix.
func (a *Application) HandleStunResult(source registry.Conn, pkt wire.StunResultPacket) error {
	role, bareToken, err := ids.SplitPrefixed(pkt.Token)
	if err != nil {
		return err
	}

	owner, ok := a.Tokens.Get(bareToken)
	if !ok {
		source.Close()
		return fmt.Errorf("%w: %q", ErrUnknownToken, bareToken)
	}

	switch sess := owner.(type) {
	case *verify.Session:
		sess.StunResult(pkt.Interface, pkt.Success)
	case *connectflow.Session:
		sess.StunResult(role, pkt.Interface, pkt.Success)
	}
	return nil
}

// HandleStunObservation implements the STUN plane's CLIENT_STUN: record
// the reflexive (ip, port) the rendezvous observed for this connection
// under the token's own role prefix.
func (a *Application) HandleStunObservation(remote net.Addr, token string, interfaceNumber uint8) {
	ip, port := splitHostPort(remote)
	a.Tokens.Stun.Put(token, interfaceNumber, ip, port)
}

// Disconnect tears down everything bound to a coordinator-plane source
// going away: if it was a registered server, every token targeting that
// server is cancelled and the server itself is removed; connectTokens are
// this source's own in-flight Connect attempts (it was acting as a
// client), cancelled regardless of which server they targeted.
func (a *Application) Disconnect(joinKey string, connectTokens []string) {
	for _, token := range connectTokens {
		if owner, ok := a.Tokens.Get(token); ok {
			owner.Disconnect()
			a.Tokens.Delete(token)
		}
	}

	if joinKey == "" {
		return
	}

	for token, owner := range a.Tokens.All() {
		bound, ok := owner.(interface{ BoundJoinKey() string })
		if ok && bound.BoundJoinKey() == joinKey {
			owner.Disconnect()
			a.Tokens.Delete(token)
		}
	}

	a.Servers.Delete(joinKey)
}

func splitHostPort(addr net.Addr) (net.IP, uint16) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, 0
	}
	return tcp.IP, uint16(tcp.Port)
}
