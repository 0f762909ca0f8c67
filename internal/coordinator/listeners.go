package coordinator

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/TrueBrain/game-coordinator/internal/wire"
	"github.com/google/uuid"
	proxyproto "github.com/pires/go-proxyproto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var errUnknownPacketType = errors.New("unknown coordinator-plane packet type")

const stunGCInterval = 60 * time.Second
const stunObservationMaxAge = 30 * time.Second
const relayUnpairedSweepInterval = 30 * time.Second
const relayUnpairedMaxAge = 30 * time.Second

// ListenConfig is everything listeners.go needs to bind the three planes;
// it mirrors the listener fields of cmd.RunConfig without importing cmd
// (cmd imports this package, so that would be an import cycle).
type ListenConfig struct {
	Binds                    []string
	CoordinatorPort          int
	StunPort                 int
	TurnPort                 int
	CoordinatorProxyProtocol bool
	StunProxyProtocol        bool
}

// serverConn adapts a net.Conn to registry.Conn, serializing writes since
// a connection's Send may be called concurrently from the accept-loop
// goroutine and a Verify/Connect session's own goroutine.
type serverConn struct {
	net.Conn
	writeMu sync.Mutex
}

func (c *serverConn) Send(msgType byte, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteFrame(c.Conn, msgType, payload)
}

// Run binds and serves all three planes until ctx is cancelled, then
// closes every listener and returns once the accept loops and the
// maintenance sweep have stopped. In-flight connection handlers are not
// waited for; they notice ctx.Done on their own. The first plane to fail
// tears down the others: a single process, all or nothing.
func Run(ctx context.Context, app *Application, cfg ListenConfig) error {
	group, gctx := errgroup.WithContext(ctx)

	for _, bind := range cfg.Binds {
		bind := bind
		group.Go(func() error {
			return serveCoordinator(gctx, app, bind, cfg.CoordinatorPort, cfg.CoordinatorProxyProtocol)
		})
		group.Go(func() error {
			return serveStun(gctx, app, bind, cfg.StunPort, cfg.StunProxyProtocol)
		})
		group.Go(func() error {
			return serveTurn(gctx, app, bind, cfg.TurnPort)
		})
	}

	group.Go(func() error {
		runMaintenanceSweeps(gctx, app)
		return nil
	})

	return group.Wait()
}

func runMaintenanceSweeps(ctx context.Context, app *Application) {
	stunTicker := time.NewTicker(stunGCInterval)
	defer stunTicker.Stop()
	relayTicker := time.NewTicker(relayUnpairedSweepInterval)
	defer relayTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stunTicker.C:
			removed := app.Tokens.Stun.GCOlderThan(stunObservationMaxAge)
			if removed > 0 {
				log.Debug().Int("removed", removed).Msg("garbage-collected stale STUN observations")
			}
		case <-relayTicker.C:
			for token, relay := range app.Tokens.Turn.Unpaired(relayUnpairedMaxAge) {
				log.Debug().Str("token", token).Msg("closing relay side that never paired")
				if relay.Client != nil {
					relay.Client.Conn.Close()
				}
				if relay.Server != nil {
					relay.Server.Conn.Close()
				}
				app.Tokens.Turn.Delete(token)
			}
		}
	}
}

// connContext attaches a fresh conn_id to ctx's logger, so every log line
// produced while handling this one accepted connection can be correlated
// without passing a logger through every function signature.
func connContext(ctx context.Context, plane string) context.Context {
	sub := log.With().Str("conn_id", uuid.NewString()).Str("plane", plane).Logger()
	return sub.WithContext(ctx)
}

func listen(network string, bind string, port int, useProxyProto bool) (net.Listener, error) {
	ln, err := net.Listen(network, net.JoinHostPort(bind, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	if useProxyProto {
		return &proxyproto.Listener{Listener: ln}, nil
	}
	return ln, nil
}

func acceptLoop(ctx context.Context, ln net.Listener, handle func(net.Conn)) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go handle(conn)
	}
}

func serveCoordinator(ctx context.Context, app *Application, bind string, port int, useProxyProto bool) error {
	ln, err := listen("tcp", bind, port, useProxyProto)
	if err != nil {
		return err
	}
	log.Info().Str("bind", bind).Int("port", port).Msg("listening on coordinator plane")
	return acceptLoop(ctx, ln, func(conn net.Conn) { handleCoordinatorConn(ctx, app, conn) })
}

func serveStun(ctx context.Context, app *Application, bind string, port int, useProxyProto bool) error {
	ln, err := listen("tcp", bind, port, useProxyProto)
	if err != nil {
		return err
	}
	log.Info().Str("bind", bind).Int("port", port).Msg("listening on STUN plane")
	return acceptLoop(ctx, ln, func(conn net.Conn) { handleStunConn(ctx, app, conn) })
}

func serveTurn(ctx context.Context, app *Application, bind string, port int) error {
	ln, err := listen("tcp", bind, port, false)
	if err != nil {
		return err
	}
	log.Info().Str("bind", bind).Int("port", port).Msg("listening on TURN plane")
	return acceptLoop(ctx, ln, func(conn net.Conn) { app.Relays.HandleConn(connContext(ctx, "turn"), conn) })
}

// coordinatorState tracks the one piece of per-connection context the
// dispatch handlers need beyond the frame itself: whether this source has
// registered as a server, and which Connect tokens it opened as a client.
type coordinatorState struct {
	joinKey       string
	connectTokens []string
}

func handleCoordinatorConn(ctx context.Context, app *Application, netConn net.Conn) {
	ctx = connContext(ctx, "coordinator")
	connLog := zerolog.Ctx(ctx)

	conn := &serverConn{Conn: netConn}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	state := &coordinatorState{}
	reader := bufio.NewReader(netConn)

	for {
		frame, err := wire.ReadFrame(reader)
		if err != nil {
			break
		}
		if err := dispatchCoordinatorFrame(ctx, app, conn, state, frame); err != nil {
			connLog.Debug().Err(err).Str("remote", netConn.RemoteAddr().String()).Msg("error handling coordinator frame")
			break
		}
	}

	app.Disconnect(state.joinKey, state.connectTokens)
}

func dispatchCoordinatorFrame(ctx context.Context, app *Application, conn *serverConn, state *coordinatorState, frame wire.Frame) error {
	if !wire.PacketCoordinatorType(frame.Type).Valid() {
		return errUnknownPacketType
	}

	switch wire.PacketCoordinatorType(frame.Type) {
	case wire.PacketCoordinatorClientRegister:
		pkt, err := wire.DecodeRegister(frame.Payload)
		if err != nil {
			return err
		}
		joinKey, err := app.HandleRegister(ctx, conn, state.joinKey, pkt)
		if err != nil {
			return err
		}
		state.joinKey = joinKey

	case wire.PacketCoordinatorClientUpdate:
		info, err := wire.DecodeUpdate(frame.Payload)
		if err != nil {
			return err
		}
		return app.HandleUpdate(conn, state.joinKey, info)

	case wire.PacketCoordinatorClientListing:
		if err := wire.DecodeListing(frame.Payload); err != nil {
			return err
		}
		return app.HandleListing(conn)

	case wire.PacketCoordinatorClientConnect:
		pkt, err := wire.DecodeConnect(frame.Payload)
		if err != nil {
			return err
		}
		token, err := app.HandleConnect(ctx, conn, pkt)
		if token != "" {
			state.connectTokens = append(state.connectTokens, token)
		}
		if err != nil {
			return err
		}

	case wire.PacketCoordinatorClientConnectFailed:
		pkt, err := wire.DecodeConnectFailed(frame.Payload)
		if err != nil {
			return err
		}
		return app.HandleConnectFailed(pkt)

	case wire.PacketCoordinatorClientConnected:
		pkt, err := wire.DecodeConnected(frame.Payload)
		if err != nil {
			return err
		}
		return app.HandleConnected(conn, pkt)

	case wire.PacketCoordinatorClientStunResult:
		pkt, err := wire.DecodeStunResult(frame.Payload)
		if err != nil {
			return err
		}
		return app.HandleStunResult(conn, pkt)
	}

	return nil
}

// stunIdleTimeout bounds how long a STUN-plane connection is kept open
// waiting for its one expected frame. A client that opens the connection
// and never sends STUN_CLIENT_STUN (or never sends it at all, e.g. a
// port scanner) would otherwise hold the slot for the life of the process.
const stunIdleTimeout = 5 * time.Second

func handleStunConn(ctx context.Context, app *Application, netConn net.Conn) {
	connLog := zerolog.Ctx(connContext(ctx, "stun"))
	defer netConn.Close()

	if err := netConn.SetReadDeadline(time.Now().Add(stunIdleTimeout)); err != nil {
		connLog.Debug().Err(err).Msg("error setting STUN-plane read deadline")
	}

	reader := bufio.NewReader(netConn)
	frame, err := wire.ReadFrame(reader)
	if err != nil {
		return
	}
	if wire.PacketStunType(frame.Type) != wire.PacketStunClientStun {
		return
	}

	pkt, err := wire.DecodeStunClientStun(frame.Payload)
	if err != nil {
		connLog.Debug().Err(err).Msg("error decoding STUN_CLIENT_STUN")
		return
	}

	app.HandleStunObservation(netConn.RemoteAddr(), pkt.Token, pkt.Interface)
}
