package wire

import "fmt"

type TurnClientConnectPacket struct {
	Token string
}

func DecodeTurnClientConnect(payload []byte) (TurnClientConnectPacket, error) {
	d := newDecoder(payload)
	var p TurnClientConnectPacket

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

func EncodeTurnServerConnected(host string, port uint16) []byte {
	e := &encoder{}
	e.string(host)
	e.uint16(port)
	return e.buf
}
