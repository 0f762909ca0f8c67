package wire

import (
	"fmt"
)

var errUnknownProtocolVersion = fmt.Errorf("unknown protocol version")
var errUnknownGameInfoVersion = fmt.Errorf("unknown game info version")
var errUnknownGameType = fmt.Errorf("unknown server game type")

const protocolVersion = 1
const gameInfoVersion = 5

// NewGRF is one entry of a server's reported NewGRF list.
type NewGRF struct {
	GRFID  uint32
	MD5Sum [16]byte
}

// --- client/server -> coordinator -------------------------------------

type RegisterPacket struct {
	GameType   ServerGameType
	ServerPort uint16
}

func DecodeRegister(payload []byte) (RegisterPacket, error) {
	d := newDecoder(payload)
	var p RegisterPacket

	v, err := d.uint8()
	if err != nil {
		return p, err
	}
	if v != protocolVersion {
		return p, fmt.Errorf("%w: %d", errUnknownProtocolVersion, v)
	}

	gameType, err := d.uint8()
	if err != nil {
		return p, err
	}
	if !ServerGameType(gameType).Valid() {
		return p, fmt.Errorf("%w: %d", errUnknownGameType, gameType)
	}
	p.GameType = ServerGameType(gameType)

	p.ServerPort, err = d.uint16()
	if err != nil {
		return p, err
	}

	return p, d.requireTrailingEmpty()
}

// GameInfo is the full UPDATE info blob. HasNewgrfs is false when the
// update omitted the NewGRF list, signalling "inherit the previous list" to
// the caller.
type GameInfo struct {
	JoinKey        string
	Newgrfs        []NewGRF
	HasNewgrfs     bool
	GameDate       uint32
	StartDate      uint32
	CompaniesMax   uint8
	CompaniesOn    uint8
	SpectatorsMax  uint8
	Name           string
	OpenTTDVersion string
	UsePassword    uint8
	ClientsMax     uint8
	ClientsOn      uint8
	SpectatorsOn   uint8
	MapWidth       uint16
	MapHeight      uint16
	MapType        uint8
	IsDedicated    uint8
}

func DecodeUpdate(payload []byte) (GameInfo, error) {
	d := newDecoder(payload)
	var p GameInfo

	v, err := d.uint8()
	if err != nil {
		return p, err
	}
	if v != protocolVersion {
		return p, fmt.Errorf("%w: %d", errUnknownProtocolVersion, v)
	}

	giv, err := d.uint8()
	if err != nil {
		return p, err
	}
	if giv != gameInfoVersion {
		return p, fmt.Errorf("%w: %d", errUnknownGameInfoVersion, giv)
	}

	p.JoinKey, err = d.string()
	if err != nil {
		return p, err
	}

	newgrfMode, err := d.uint8()
	if err != nil {
		return p, err
	}
	if newgrfMode != 0 {
		p.HasNewgrfs = true
		count, err := d.uint8()
		if err != nil {
			return p, err
		}
		for i := 0; i < int(count); i++ {
			id, err := d.uint32()
			if err != nil {
				return p, err
			}
			md5, err := d.bytes(16)
			if err != nil {
				return p, err
			}
			var entry NewGRF
			entry.GRFID = id
			copy(entry.MD5Sum[:], md5)

			// Mode 2 carries a grf name string that servers shouldn't send
			// but is accepted and discarded, matching the original decoder.
			if newgrfMode == 2 {
				if _, err := d.string(); err != nil {
					return p, err
				}
			}
			p.Newgrfs = append(p.Newgrfs, entry)
		}
	}

	if p.GameDate, err = d.uint32(); err != nil {
		return p, err
	}
	if p.StartDate, err = d.uint32(); err != nil {
		return p, err
	}
	if p.CompaniesMax, err = d.uint8(); err != nil {
		return p, err
	}
	if p.CompaniesOn, err = d.uint8(); err != nil {
		return p, err
	}
	if p.SpectatorsMax, err = d.uint8(); err != nil {
		return p, err
	}
	if p.Name, err = d.string(); err != nil {
		return p, err
	}
	if p.OpenTTDVersion, err = d.string(); err != nil {
		return p, err
	}
	if p.UsePassword, err = d.uint8(); err != nil {
		return p, err
	}
	if p.ClientsMax, err = d.uint8(); err != nil {
		return p, err
	}
	if p.ClientsOn, err = d.uint8(); err != nil {
		return p, err
	}
	if p.SpectatorsOn, err = d.uint8(); err != nil {
		return p, err
	}
	if p.MapWidth, err = d.uint16(); err != nil {
		return p, err
	}
	if p.MapHeight, err = d.uint16(); err != nil {
		return p, err
	}
	if p.MapType, err = d.uint8(); err != nil {
		return p, err
	}
	if p.IsDedicated, err = d.uint8(); err != nil {
		return p, err
	}

	return p, d.requireTrailingEmpty()
}

func DecodeListing(payload []byte) error {
	d := newDecoder(payload)
	v, err := d.uint8()
	if err != nil {
		return err
	}
	if v != protocolVersion {
		return fmt.Errorf("%w: %d", errUnknownProtocolVersion, v)
	}
	return d.requireTrailingEmpty()
}

type ConnectPacket struct {
	JoinKey string
}

func DecodeConnect(payload []byte) (ConnectPacket, error) {
	d := newDecoder(payload)
	var p ConnectPacket

	v, err := d.uint8()
	if err != nil {
		return p, err
	}
	if v != protocolVersion {
		return p, fmt.Errorf("%w: %d", errUnknownProtocolVersion, v)
	}

	p.JoinKey, err = d.string()
	if err != nil {
		return p, err
	}
	return p, d.requireTrailingEmpty()
}

type ConnectFailedPacket struct {
	Token          string
	TrackingNumber uint8
}

func DecodeConnectFailed(payload []byte) (ConnectFailedPacket, error) {
	d := newDecoder(payload)
	var p ConnectFailedPacket

	v, err := d.uint8()
	if err != nil {
		return p, err
	}
	if v != protocolVersion {
		return p, fmt.Errorf("%w: %d", errUnknownProtocolVersion, v)
	}

	if p.Token, err = d.string(); err != nil {
		return p, err
	}
	if p.TrackingNumber, err = d.uint8(); err != nil {
		return p, err
	}
	return p, d.requireTrailingEmpty()
}

type ConnectedPacket struct {
	Token string
}

func DecodeConnected(payload []byte) (ConnectedPacket, error) {
	d := newDecoder(payload)
	var p ConnectedPacket

	v, err := d.uint8()
	if err != nil {
		return p, err
	}
	if v != protocolVersion {
		return p, fmt.Errorf("%w: %d", errUnknownProtocolVersion, v)
	}

	p.Token, err = d.string()
	if err != nil {
		return p, err
	}
	return p, d.requireTrailingEmpty()
}

type StunResultPacket struct {
	Token     string
	Interface uint8
	Success   bool
}

func DecodeStunResult(payload []byte) (StunResultPacket, error) {
	d := newDecoder(payload)
	var p StunResultPacket

	v, err := d.uint8()
	if err != nil {
		return p, err
	}
	if v != protocolVersion {
		return p, fmt.Errorf("%w: %d", errUnknownProtocolVersion, v)
	}

	if p.Token, err = d.string(); err != nil {
		return p, err
	}
	if p.Interface, err = d.uint8(); err != nil {
		return p, err
	}
	result, err := d.uint8()
	if err != nil {
		return p, err
	}
	p.Success = result != 0
	return p, d.requireTrailingEmpty()
}

// --- coordinator -> client/server ---------------------------------------

func EncodeServerError(code ErrorCode, detail string) []byte {
	e := &encoder{}
	e.uint8(uint8(code))
	e.string(detail)
	return e.buf
}

func EncodeServerRegisterAck(joinKey string, connType ConnectionType) []byte {
	e := &encoder{}
	e.string(joinKey)
	e.uint8(uint8(connType))
	return e.buf
}

// ListingEntry is one server's rendered row in a SERVER_LISTING frame.
type ListingEntry struct {
	JoinKey string
	Info    GameInfo
}

func EncodeServerListingEntry(entry ListingEntry) []byte {
	e := &encoder{}
	e.uint16(1)
	e.uint8(gameInfoVersion)
	e.string(entry.JoinKey)
	e.uint8(1) // has-newgrf-data

	e.uint8(uint8(len(entry.Info.Newgrfs)))
	for _, g := range entry.Info.Newgrfs {
		e.uint32(g.GRFID)
		e.bytes(g.MD5Sum[:])
	}

	e.uint32(entry.Info.GameDate)
	e.uint32(entry.Info.StartDate)

	e.uint8(entry.Info.CompaniesMax)
	e.uint8(entry.Info.CompaniesOn)
	e.uint8(entry.Info.SpectatorsMax)

	e.string(entry.Info.Name)
	e.string(entry.Info.OpenTTDVersion)
	e.uint8(entry.Info.UsePassword)
	e.uint8(entry.Info.ClientsMax)
	e.uint8(entry.Info.ClientsOn)
	e.uint8(entry.Info.SpectatorsOn)

	e.uint16(entry.Info.MapWidth)
	e.uint16(entry.Info.MapHeight)
	e.uint8(entry.Info.MapType)

	e.uint8(entry.Info.IsDedicated)

	return e.buf
}

// EncodeServerListingTerminator is the count=0 frame marking end-of-list.
func EncodeServerListingTerminator() []byte {
	e := &encoder{}
	e.uint16(0)
	return e.buf
}

func EncodeServerConnecting(token, joinKey string) []byte {
	e := &encoder{}
	e.string(token)
	e.string(joinKey)
	return e.buf
}

func EncodeServerConnectFailed(token string) []byte {
	e := &encoder{}
	e.string(token)
	return e.buf
}

func EncodeServerDirectConnect(token string, trackingNumber uint8, host string, port uint16) []byte {
	e := &encoder{}
	e.string(token)
	e.uint8(trackingNumber)
	e.string(host)
	e.uint16(port)
	return e.buf
}

func EncodeServerStunRequest(token string) []byte {
	e := &encoder{}
	e.string(token)
	return e.buf
}

func EncodeServerStunConnect(token string, trackingNumber, interfaceNumber uint8, host string, port uint16) []byte {
	e := &encoder{}
	e.string(token)
	e.uint8(trackingNumber)
	e.uint8(interfaceNumber)
	e.string(host)
	e.uint16(port)
	return e.buf
}

func EncodeServerTurnConnect(token string, trackingNumber uint8, host string, port uint16) []byte {
	e := &encoder{}
	e.string(token)
	e.uint8(trackingNumber)
	e.string(host)
	e.uint16(port)
	return e.buf
}
