package ipaddr

import (
	stderrors "errors"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedAddress is returned when a literal resembles an address
// but violates the literal syntax of its family.
var ErrMalformedAddress = stderrors.New("malformed address")

// Parse parses an address literal of either family.
// Dotted literals are taken as IPv4, everything else as IPv6.
func Parse(s string) (Family, Uint128, error) {
	if strings.Contains(s, ".") {
		u, err := ParseV4(s)
		return V4, u, err
	}
	u, err := ParseV6(s)
	return V6, u, err
}

// ParseFamily parses an address literal of the given family.
func ParseFamily(f Family, s string) (Uint128, error) {
	if f == V4 {
		return ParseV4(s)
	}
	return ParseV6(s)
}

// ParseV4 parses a dotted-quad literal.
//
// Octets are always decimal. Leading zeros are permitted and ignored,
// so "010.0011.12.013" is the same address as "10.11.12.13".
func ParseV4(s string) (Uint128, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return Uint128{}, errors.Wrapf(ErrMalformedAddress, "%q: expected 4 octets, got %d", s, len(parts))
	}

	var v uint64
	for _, part := range parts {
		octet, err := parseOctet(part)
		if err != nil {
			return Uint128{}, errors.Wrapf(err, "%q", s)
		}
		v = v<<8 | octet
	}
	return From64(v), nil
}

func parseOctet(part string) (uint64, error) {
	if part == "" {
		return 0, errors.Wrap(ErrMalformedAddress, "empty octet")
	}
	for i := 0; i < len(part); i++ {
		if part[i] < '0' || part[i] > '9' {
			return 0, errors.Wrapf(ErrMalformedAddress, "octet %q is not decimal", part)
		}
	}

	digits := strings.TrimLeft(part, "0")
	if digits == "" {
		return 0, nil
	}
	if len(digits) > 3 {
		return 0, errors.Wrapf(ErrMalformedAddress, "octet %q out of range", part)
	}
	v, _ := strconv.ParseUint(digits, 10, 16)
	if v > 255 {
		return 0, errors.Wrapf(ErrMalformedAddress, "octet %q out of range", part)
	}
	return v, nil
}

// ParseV6 parses a colon-hex literal, including the "::" compression.
//
// Embedded dotted-quad suffixes and zone identifiers are not accepted.
func ParseV6(s string) (Uint128, error) {
	var (
		head, tail []string
		compressed bool
	)
	if i := strings.Index(s, "::"); i != -1 {
		if strings.Contains(s[i+2:], "::") {
			return Uint128{}, errors.Wrapf(ErrMalformedAddress, "%q: more than one '::'", s)
		}
		compressed = true
		head = splitGroups(s[:i])
		tail = splitGroups(s[i+2:])
	} else {
		head = strings.Split(s, ":")
	}

	n := len(head) + len(tail)
	switch {
	case compressed && n > 7:
		return Uint128{}, errors.Wrapf(ErrMalformedAddress, "%q: too many groups", s)
	case !compressed && n != 8:
		return Uint128{}, errors.Wrapf(ErrMalformedAddress, "%q: expected 8 groups, got %d", s, n)
	}

	var groups [8]uint64
	for i, g := range head {
		v, err := parseGroup(g)
		if err != nil {
			return Uint128{}, errors.Wrapf(err, "%q", s)
		}
		groups[i] = v
	}
	for i, g := range tail {
		v, err := parseGroup(g)
		if err != nil {
			return Uint128{}, errors.Wrapf(err, "%q", s)
		}
		groups[8-len(tail)+i] = v
	}

	var u Uint128
	for i := 0; i < 4; i++ {
		u.Hi = u.Hi<<16 | groups[i]
		u.Lo = u.Lo<<16 | groups[4+i]
	}
	return u, nil
}

func splitGroups(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ":")
}

func parseGroup(g string) (uint64, error) {
	if g == "" || len(g) > 4 {
		return 0, errors.Wrapf(ErrMalformedAddress, "invalid group %q", g)
	}
	var v uint64
	for i := 0; i < len(g); i++ {
		d, ok := hexDigit(g[i])
		if !ok {
			return 0, errors.Wrapf(ErrMalformedAddress, "group %q is not hexadecimal", g)
		}
		v = v<<4 | d
	}
	return v, nil
}

func hexDigit(c byte) (uint64, bool) {
	switch {
	case c >= '0' && c <= '9':
		return uint64(c - '0'), true
	case c >= 'a' && c <= 'f':
		return uint64(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return uint64(c-'A') + 10, true
	}
	return 0, false
}

// Render returns the canonical literal for u.
//
// IPv4 is rendered as four decimal octets without leading zeros,
// IPv6 in the lowercase RFC 5952 form.
func Render(f Family, u Uint128) string {
	if f == V4 {
		return renderV4(u)
	}
	return renderV6(u)
}

func renderV4(u Uint128) string {
	buf := make([]byte, 0, len("255.255.255.255"))
	for i := 3; i >= 0; i-- {
		buf = strconv.AppendUint(buf, (u.Lo>>(i*8))&0xff, 10)
		if i != 0 {
			buf = append(buf, '.')
		}
	}
	return string(buf)
}

func renderV6(u Uint128) string {
	var groups [8]uint64
	for i := 0; i < 4; i++ {
		groups[i] = (u.Hi >> ((3 - i) * 16)) & 0xffff
		groups[4+i] = (u.Lo >> ((3 - i) * 16)) & 0xffff
	}

	// Find the longest run of zero groups. Single groups are never compressed.
	bestStart, bestLen := -1, 1
	for i := 0; i < 8; {
		if groups[i] != 0 {
			i++
			continue
		}
		j := i
		for j < 8 && groups[j] == 0 {
			j++
		}
		if j-i > bestLen {
			bestStart, bestLen = i, j-i
		}
		i = j
	}

	buf := make([]byte, 0, len("ffff:ffff:ffff:ffff:ffff:ffff:ffff:ffff"))
	for i := 0; i < 8; i++ {
		if i == bestStart {
			buf = append(buf, ':', ':')
			i += bestLen - 1
			continue
		}
		if len(buf) != 0 && buf[len(buf)-1] != ':' {
			buf = append(buf, ':')
		}
		buf = strconv.AppendUint(buf, groups[i], 16)
	}
	return string(buf)
}
