/*
File Name:  Address.go
Copyright:  2024 Lumen Network s.r.o.

Socket addresses on the wire: 1 kind byte (0 = IPv4, 1 = IPv6), then 4 or 16
address bytes, then the port as big endian 16-bit unsigned integer.
*/

package protocol

import (
	"net/netip"
)

// Address kind bytes. Any other value is rejected.
const (
	addressKindIPv4 = 0
	addressKindIPv6 = 1
)

// WriteAddress appends the encoded socket address.
func WriteAddress(writer *Writer, address netip.AddrPort) {
	ip := address.Addr()
	if ip.Is4() || ip.Is4In6() {
		data := ip.Unmap().As4()
		writer.WriteUint8(addressKindIPv4)
		writer.WriteBytes(data[:])
	} else {
		data := ip.As16()
		writer.WriteUint8(addressKindIPv6)
		writer.WriteBytes(data[:])
	}

	writer.WriteUint16(address.Port())
}

// ReadAddress decodes a socket address.
func ReadAddress(reader *Reader) (address netip.AddrPort, err error) {
	kind, err := reader.ReadUint8()
	if err != nil {
		return address, err
	}

	var ip netip.Addr

	switch kind {
	case addressKindIPv4:
		data, err := reader.ReadBytes(4)
		if err != nil {
			return address, err
		}
		ip = netip.AddrFrom4([4]byte(data))

	case addressKindIPv6:
		data, err := reader.ReadBytes(16)
		if err != nil {
			return address, err
		}
		ip = netip.AddrFrom16([16]byte(data))

	default:
		return address, ErrInvalidValue
	}

	port, err := reader.ReadUint16()
	if err != nil {
		return address, err
	}

	return netip.AddrPortFrom(ip, port), nil
}
