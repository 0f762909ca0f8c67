package wire

import "fmt"

type StunClientStunPacket struct {
	Token     string
	Interface uint8
}

func DecodeStunClientStun(payload []byte) (StunClientStunPacket, error) {
	d := newDecoder(payload)
	var p StunClientStunPacket

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
	return p, d.requireTrailingEmpty()
}
