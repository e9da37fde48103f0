package ipaddr

import (
	"net/netip"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Prefix is a network given by its address and prefix length.
type Prefix struct {
	Family Family
	Addr   Uint128
	Len    int
}

// ParsePrefix parses "addr/len" or a bare address, the latter
// being taken as a full-length prefix.
//
// Bits set beyond the prefix length are rejected.
func ParsePrefix(s string) (Prefix, error) {
	literal, lenStr, hasLen := strings.Cut(strings.TrimSpace(s), "/")

	f, addr, err := Parse(literal)
	if err != nil {
		return Prefix{}, err
	}

	width := f.Width()
	n := width
	if hasLen {
		n, err = strconv.Atoi(lenStr)
		if err != nil || n < 0 || n > width {
			return Prefix{}, errors.Wrapf(ErrMalformedAddress, "%q: invalid prefix length", s)
		}
	}

	p := Prefix{Family: f, Addr: addr, Len: n}
	if !addr.And(LowMask(width - n)).IsZero() {
		return Prefix{}, errors.Wrapf(ErrMalformedAddress, "%q: host bits set", s)
	}
	return p, nil
}

// MustParsePrefix is like ParsePrefix but panics on error.
func MustParsePrefix(s string) Prefix {
	p, err := ParsePrefix(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Contains reports whether u lies inside the prefix.
func (p Prefix) Contains(u Uint128) bool {
	return u.Xor(p.Addr).Rsh(p.Family.Width() - p.Len).IsZero()
}

// Netip converts the prefix into a netip.Prefix.
func (p Prefix) Netip() netip.Prefix {
	return netip.PrefixFrom(p.Family.Netip(p.Addr), p.Len)
}

func (p Prefix) String() string {
	return Render(p.Family, p.Addr) + "/" + strconv.Itoa(p.Len)
}
