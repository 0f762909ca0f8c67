package wire

import "fmt"

// ConnectionType is a server's (or the overall best) classified
// reachability for one address family. The zero value is Isolated,
// matching the "initialized ISOLATED" invariant in the data model.
type ConnectionType uint8

const (
	ConnectionTypeIsolated ConnectionType = iota
	ConnectionTypeDirect
	ConnectionTypeStun
	ConnectionTypeTurn
)

func (c ConnectionType) String() string {
	switch c {
	case ConnectionTypeIsolated:
		return "isolated"
	case ConnectionTypeDirect:
		return "direct"
	case ConnectionTypeStun:
		return "stun"
	case ConnectionTypeTurn:
		return "turn"
	default:
		return fmt.Sprintf("connection-type(%d)", uint8(c))
	}
}

// Better reports whether c is a strictly better connectivity classification
// than other, using the fixed priority DIRECT > STUN > TURN > ISOLATED.
func (c ConnectionType) Better(other ConnectionType) bool {
	return rank(c) > rank(other)
}

func rank(c ConnectionType) int {
	switch c {
	case ConnectionTypeDirect:
		return 3
	case ConnectionTypeStun:
		return 2
	case ConnectionTypeTurn:
		return 1
	default:
		return 0
	}
}

// Family is an address family, IPv4 or IPv6. Unknown is never put on the
// wire; it exists only as a zero-value sentinel for lookups that found
// nothing.
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "IPv4"
	case FamilyIPv6:
		return "IPv6"
	default:
		return "unknown"
	}
}

// ServerGameType mirrors the wire protocol's SERVER_GAME_TYPE_* values;
// SERVER_GAME_TYPE_END is the exclusive upper bound the decoder checks
// incoming REGISTER packets against.
type ServerGameType uint8

const (
	ServerGameTypeLocal ServerGameType = iota
	ServerGameTypePublic
	ServerGameTypeInviteOnly
	ServerGameTypeEnd
)

func (t ServerGameType) Valid() bool {
	return t < ServerGameTypeEnd
}

// ErrorCode is the error_no field of SERVER_ERROR.
type ErrorCode uint8

const (
	ErrorUnknown ErrorCode = iota
	ErrorInvalidJoinKey
)

// PacketCoordinatorType enumerates the coordinator-plane frame types, both
// directions. PacketCoordinatorEnd is the exclusive upper bound a decoder
// checks a received type byte against before it is safe to cast.
type PacketCoordinatorType uint8

const (
	PacketCoordinatorClientRegister PacketCoordinatorType = iota
	PacketCoordinatorClientUpdate
	PacketCoordinatorClientListing
	PacketCoordinatorClientConnect
	PacketCoordinatorClientConnectFailed
	PacketCoordinatorClientConnected
	PacketCoordinatorClientStunResult
	PacketCoordinatorServerError
	PacketCoordinatorServerRegisterAck
	PacketCoordinatorServerListing
	PacketCoordinatorServerConnecting
	PacketCoordinatorServerConnectFailed
	PacketCoordinatorServerDirectConnect
	PacketCoordinatorServerStunRequest
	PacketCoordinatorServerStunConnect
	PacketCoordinatorServerTurnConnect
	PacketCoordinatorEnd
)

func (t PacketCoordinatorType) Valid() bool {
	return t < PacketCoordinatorEnd
}

// PacketStunType enumerates the STUN-plane frame types.
type PacketStunType uint8

const (
	PacketStunClientStun PacketStunType = iota
	PacketStunEnd
)

func (t PacketStunType) Valid() bool {
	return t < PacketStunEnd
}

// PacketTurnType enumerates the TURN-plane frame types.
type PacketTurnType uint8

const (
	PacketTurnClientConnect PacketTurnType = iota
	PacketTurnServerConnected
	PacketTurnEnd
)

func (t PacketTurnType) Valid() bool {
	return t < PacketTurnEnd
}
