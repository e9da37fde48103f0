package ipaddr

import (
	"net/netip"
)

// Family describes an address family, i.e. the address width
// and the literal syntax used to write its addresses down.
type Family uint8

const (
	V4 Family = 4
	V6 Family = 6
)

// Width returns the address width in bits.
func (f Family) Width() int {
	switch f {
	case V4:
		return 32
	case V6:
		return 128
	default:
		panic("ipaddr: unknown address family")
	}
}

// Contains reports whether u fits into the family address width.
func (f Family) Contains(u Uint128) bool {
	return !f.Max().Less(u)
}

// Max returns the largest address of the family.
func (f Family) Max() Uint128 {
	return LowMask(f.Width())
}

func (f Family) String() string {
	switch f {
	case V4:
		return "IPv4"
	case V6:
		return "IPv6"
	default:
		return "unknown"
	}
}

// Netip converts u into a netip.Addr of the given family.
func (f Family) Netip(u Uint128) netip.Addr {
	if f == V4 {
		return netip.AddrFrom4([4]byte{byte(u.Lo >> 24), byte(u.Lo >> 16), byte(u.Lo >> 8), byte(u.Lo)})
	}
	return netip.AddrFrom16(u.Bytes())
}
