package coordinator_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/TrueBrain/game-coordinator/internal/connectflow"
	"github.com/TrueBrain/game-coordinator/internal/coordinator"
	"github.com/TrueBrain/game-coordinator/internal/ids"
	"github.com/TrueBrain/game-coordinator/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	addr   net.Addr
	sent   []byte
	closed bool
}

func (c *recordingConn) Send(msgType byte, payload []byte) error {
	c.sent = append(c.sent, msgType)
	return nil
}
func (c *recordingConn) Close() error         { c.closed = true; return nil }
func (c *recordingConn) RemoteAddr() net.Addr { return c.addr }

type fixedTurnPool struct{}

func (fixedTurnPool) Pick() connectflow.TurnEndpoint {
	return connectflow.TurnEndpoint{Host: "turn.example.com", Port: 3974}
}

func neverReachable(network, address string, timeout time.Duration) (net.Conn, error) {
	return nil, assert.AnError
}

func newApp() *coordinator.Application {
	app := coordinator.NewApplication(fixedTurnPool{})
	app.Dialer = neverReachable
	return app
}

func TestHandleRegisterStartsVerifyCycle(t *testing.T) {
	app := newApp()
	conn := &recordingConn{addr: &net.TCPAddr{IP: net.ParseIP("203.0.113.1"), Port: 1234}}

	joinKey, err := app.HandleRegister(context.Background(), conn, "", wire.RegisterPacket{GameType: wire.ServerGameTypePublic, ServerPort: 3979})
	require.NoError(t, err)
	require.NotEmpty(t, joinKey)

	require.Eventually(t, func() bool {
		return len(conn.sent) >= 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, byte(wire.PacketCoordinatorServerStunRequest), conn.sent[0])

	server, ok := app.Servers.Get(joinKey)
	require.True(t, ok)
	assert.NotEmpty(t, server.VerifyToken)
}

func TestHandleRegisterReusesExistingJoinKey(t *testing.T) {
	app := newApp()
	conn := &recordingConn{addr: &net.TCPAddr{}}

	first, err := app.HandleRegister(context.Background(), conn, "", wire.RegisterPacket{GameType: wire.ServerGameTypePublic, ServerPort: 3979})
	require.NoError(t, err)

	second, err := app.HandleRegister(context.Background(), conn, first, wire.RegisterPacket{GameType: wire.ServerGameTypePublic, ServerPort: 3979})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestHandleUpdateUnknownJoinKeyClosesSource(t *testing.T) {
	app := newApp()
	conn := &recordingConn{}

	err := app.HandleUpdate(conn, "does-not-exist", wire.GameInfo{JoinKey: "does-not-exist"})
	require.Error(t, err)
	assert.True(t, conn.closed)
}

func TestHandleUpdateMismatchedJoinKeyClosesSourceWithoutTouchingOtherServer(t *testing.T) {
	app := newApp()
	victimConn := &recordingConn{addr: &net.TCPAddr{}}
	victimJoinKey, err := app.HandleRegister(context.Background(), victimConn, "", wire.RegisterPacket{GameType: wire.ServerGameTypePublic, ServerPort: 3979})
	require.NoError(t, err)

	attackerConn := &recordingConn{}
	err = app.HandleUpdate(attackerConn, "attacker-join-key", wire.GameInfo{JoinKey: victimJoinKey, Name: "spoofed"})
	require.ErrorIs(t, err, coordinator.ErrJoinKeyMismatch)
	assert.True(t, attackerConn.closed)

	victim, ok := app.Servers.Get(victimJoinKey)
	require.True(t, ok)
	assert.Empty(t, victim.Info.Name)
}

func TestHandleListingSendsTerminatorWithNoServers(t *testing.T) {
	app := newApp()
	conn := &recordingConn{}

	require.NoError(t, app.HandleListing(conn))
	require.Len(t, conn.sent, 1)
	assert.Equal(t, byte(wire.PacketCoordinatorServerListing), conn.sent[0])
}

func TestHandleListingFiltersInviteOnlyServers(t *testing.T) {
	app := newApp()

	publicConn := &recordingConn{addr: &net.TCPAddr{}}
	publicJoinKey, err := app.HandleRegister(context.Background(), publicConn, "", wire.RegisterPacket{GameType: wire.ServerGameTypePublic, ServerPort: 3979})
	require.NoError(t, err)
	require.NoError(t, app.HandleUpdate(publicConn, publicJoinKey, wire.GameInfo{JoinKey: publicJoinKey, Name: "public server"}))

	inviteConn := &recordingConn{addr: &net.TCPAddr{}}
	inviteJoinKey, err := app.HandleRegister(context.Background(), inviteConn, "", wire.RegisterPacket{GameType: wire.ServerGameTypeInviteOnly, ServerPort: 3979})
	require.NoError(t, err)
	require.NoError(t, app.HandleUpdate(inviteConn, inviteJoinKey, wire.GameInfo{JoinKey: inviteJoinKey, Name: "invite-only server"}))

	emptyConn := &recordingConn{addr: &net.TCPAddr{}}
	_, err = app.HandleRegister(context.Background(), emptyConn, "", wire.RegisterPacket{GameType: wire.ServerGameTypePublic, ServerPort: 3979})
	require.NoError(t, err)

	listingConn := &recordingConn{}
	require.NoError(t, app.HandleListing(listingConn))

	require.Len(t, listingConn.sent, 2)
	assert.Equal(t, byte(wire.PacketCoordinatorServerListing), listingConn.sent[0])
	assert.Equal(t, byte(wire.PacketCoordinatorServerListing), listingConn.sent[1])
}

func TestHandleConnectUnknownJoinKeySendsErrorAndCloses(t *testing.T) {
	app := newApp()
	conn := &recordingConn{}

	token, err := app.HandleConnect(context.Background(), conn, wire.ConnectPacket{JoinKey: "bogus"})
	require.Error(t, err)
	assert.Empty(t, token)
	assert.True(t, conn.closed)
	require.Len(t, conn.sent, 1)
	assert.Equal(t, byte(wire.PacketCoordinatorServerError), conn.sent[0])
}

func TestHandleConnectValidJoinKeyStartsAttempt(t *testing.T) {
	app := newApp()
	serverConn := &recordingConn{addr: &net.TCPAddr{}}
	joinKey, err := app.HandleRegister(context.Background(), serverConn, "", wire.RegisterPacket{GameType: wire.ServerGameTypePublic, ServerPort: 3979})
	require.NoError(t, err)

	clientConn := &recordingConn{addr: &net.TCPAddr{IP: net.ParseIP("198.51.100.1"), Port: 4000}}
	token, err := app.HandleConnect(context.Background(), clientConn, wire.ConnectPacket{JoinKey: joinKey})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.Len(t, clientConn.sent, 1)
	assert.Equal(t, byte(wire.PacketCoordinatorServerConnecting), clientConn.sent[0])

	_, ok := app.Tokens.Get(token)
	assert.True(t, ok)
}

func TestHandleConnectedDeletesToken(t *testing.T) {
	app := newApp()
	serverConn := &recordingConn{addr: &net.TCPAddr{}}
	joinKey, err := app.HandleRegister(context.Background(), serverConn, "", wire.RegisterPacket{GameType: wire.ServerGameTypePublic, ServerPort: 3979})
	require.NoError(t, err)

	clientConn := &recordingConn{addr: &net.TCPAddr{IP: net.ParseIP("198.51.100.1"), Port: 4000}}
	token, err := app.HandleConnect(context.Background(), clientConn, wire.ConnectPacket{JoinKey: joinKey})
	require.NoError(t, err)

	err = app.HandleConnected(clientConn, wire.ConnectedPacket{Token: ids.WithRole(ids.RoleConnectClient, token)})
	require.NoError(t, err)

	_, ok := app.Tokens.Get(token)
	assert.False(t, ok)
}

func TestHandleConnectedUnknownTokenCloses(t *testing.T) {
	app := newApp()
	conn := &recordingConn{}

	err := app.HandleConnected(conn, wire.ConnectedPacket{Token: ids.WithRole(ids.RoleConnectClient, "0123456789abcdef0123456789abcdef")})
	require.Error(t, err)
	assert.True(t, conn.closed)
}

func TestDisconnectSweepsServerBoundTokens(t *testing.T) {
	app := newApp()
	serverConn := &recordingConn{addr: &net.TCPAddr{}}
	joinKey, err := app.HandleRegister(context.Background(), serverConn, "", wire.RegisterPacket{GameType: wire.ServerGameTypePublic, ServerPort: 3979})
	require.NoError(t, err)

	server, ok := app.Servers.Get(joinKey)
	require.True(t, ok)
	verifyToken := server.VerifyToken

	app.Disconnect(joinKey, nil)

	_, ok = app.Tokens.Get(verifyToken)
	assert.False(t, ok)
	_, ok = app.Servers.Get(joinKey)
	assert.False(t, ok)
}
