package wire

import (
	"fmt"
	"net"
)

// RenderHost renders ip the way the protocol expects it in a string field:
// IPv6 addresses bracketed, IPv4 addresses bare.
func RenderHost(ip net.IP) string {
	if ip.To4() != nil {
		return ip.String()
	}
	return fmt.Sprintf("[%s]", ip.String())
}

// FamilyOf classifies ip as IPv4 or IPv6. It never returns FamilyUnknown for
// a non-nil, valid net.IP.
func FamilyOf(ip net.IP) Family {
	if ip.To4() != nil {
		return FamilyIPv4
	}
	return FamilyIPv6
}
