// Package registry holds the shared, lock-protected, in-memory state every
// other domain package reads and mutates: the server table, the token
// table, the STUN observation store, and the TURN relay table. Nothing here
// drives a state machine; it only stores and guards state for the
// goroutines that do.
package registry

import "net"

// Conn abstracts a coordinator-plane source connection down to what the
// Verify and Connect machines need: send a framed reply, close the source,
// and know its address. It exists so those machines can be driven and
// tested without a real net.Conn and listener loop.
type Conn interface {
	Send(msgType byte, payload []byte) error
	Close() error
	RemoteAddr() net.Addr
}
