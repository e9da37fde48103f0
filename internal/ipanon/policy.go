package ipanon

import (
	"github.com/gaissmai/bart"
	"github.com/pkg/errors"

	"github.com/tchap/cdn/ipanon/internal/ipaddr"
)

// DefaultPreservedPrefixes returns the private-use blocks preserved when
// no prefixes are configured explicitly. There are none for IPv6.
func DefaultPreservedPrefixes(f ipaddr.Family) []string {
	if f == ipaddr.V4 {
		return []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
	}
	return nil
}

// Rule names the reason a flip bit was decided.
type Rule uint8

const (
	// RuleOracle means the flip bit is left to the BitOracle.
	RuleOracle Rule = iota
	RulePreservedAddress
	RulePreservedPrefix
	RulePreservedSuffix
)

type pathKey struct {
	prefix ipaddr.Uint128
	pos    int
}

// paths is the set of trie nodes lying on the network bits of a set of prefixes.
type paths map[pathKey]struct{}

func (ps paths) add(p ipaddr.Prefix) {
	width := p.Family.Width()
	for pos := 0; pos < p.Len; pos++ {
		ps[pathKey{prefix: p.Addr.Rsh(width - pos), pos: pos}] = struct{}{}
	}
}

func (ps paths) has(prefix ipaddr.Uint128, pos int) bool {
	_, ok := ps[pathKey{prefix: prefix, pos: pos}]
	return ok
}

// Policy holds the immutable preservation rules of an Anonymizer.
type Policy struct {
	family         ipaddr.Family
	maskLiterals   bool
	preserveSuffix int

	prefixes  []ipaddr.Prefix
	addresses []ipaddr.Prefix

	addressTable *bart.Table[struct{}]
	addressPaths paths
	prefixPaths  paths
}

// NewPolicy builds the preservation policy for the given family.
//
// preservePrefixes == nil selects DefaultPreservedPrefixes,
// an empty non-nil slice disables prefix preservation.
func NewPolicy(
	f ipaddr.Family,
	preservePrefixes []string,
	preserveAddresses []string,
	preserveSuffix int,
) (*Policy, error) {
	if preservePrefixes == nil {
		preservePrefixes = DefaultPreservedPrefixes(f)
	}
	if preserveSuffix < 0 || preserveSuffix > f.Width() {
		return nil, errors.Wrapf(ErrInvalidConfiguration,
			"preserved suffix length %d out of range [0, %d]", preserveSuffix, f.Width())
	}

	p := &Policy{
		family:         f,
		maskLiterals:   f == ipaddr.V4,
		preserveSuffix: preserveSuffix,
		addressTable:   new(bart.Table[struct{}]),
		addressPaths:   make(paths),
		prefixPaths:    make(paths),
	}

	for _, s := range preservePrefixes {
		prefix, err := parsePreserved(f, s)
		if err != nil {
			return nil, errors.Wrap(err, "preserved prefix")
		}
		p.prefixes = append(p.prefixes, prefix)
		p.prefixPaths.add(prefix)
	}

	for _, s := range preserveAddresses {
		prefix, err := parsePreserved(f, s)
		if err != nil {
			return nil, errors.Wrap(err, "preserved address")
		}
		p.addresses = append(p.addresses, prefix)
		p.addressPaths.add(prefix)
		p.addressTable.Insert(prefix.Netip(), struct{}{})
	}
	return p, nil
}

func parsePreserved(f ipaddr.Family, s string) (ipaddr.Prefix, error) {
	prefix, err := ipaddr.ParsePrefix(s)
	if err != nil {
		return ipaddr.Prefix{}, errors.Wrapf(ErrInvalidConfiguration, "%q: %v", s, err)
	}
	if prefix.Family != f {
		return ipaddr.Prefix{}, errors.Wrapf(ErrInvalidConfiguration, "%q: not an %s network", s, f)
	}
	return prefix, nil
}

// Decide returns the rule deciding the flip bit at position pos
// for an address whose leading pos bits equal prefix.
//
// Rules are evaluated in a fixed order: preserved address, preserved prefix,
// preserved suffix. Any of them forces the flip bit to 0.
// RuleOracle is returned when none applies.
func (p *Policy) Decide(prefix ipaddr.Uint128, pos int) Rule {
	switch {
	case p.addressPaths.has(prefix, pos):
		return RulePreservedAddress
	case p.prefixPaths.has(prefix, pos):
		return RulePreservedPrefix
	case pos >= p.family.Width()-p.preserveSuffix:
		return RulePreservedSuffix
	default:
		return RuleOracle
	}
}

// ShouldAnonymize reports whether addr is to be anonymized at all.
//
// Members of preserved address blocks are not, nor are IPv4 mask literals.
func (p *Policy) ShouldAnonymize(addr ipaddr.Uint128) bool {
	if p.maskLiterals && IsMaskLiteral(p.family.Width(), addr) {
		return false
	}
	_, preserved := p.addressTable.Lookup(p.family.Netip(addr))
	return !preserved
}

// PreservedPrefixes returns the prefixes whose network bits are kept.
func (p *Policy) PreservedPrefixes() []ipaddr.Prefix {
	return append([]ipaddr.Prefix(nil), p.prefixes...)
}

// PreservedAddresses returns the blocks passed through unchanged.
func (p *Policy) PreservedAddresses() []ipaddr.Prefix {
	return append([]ipaddr.Prefix(nil), p.addresses...)
}

// IsMaskLiteral reports whether the width-bit value u has the shape of a subnet mask
// (a single run of ones anchored at the most significant bit) or a wildcard mask
// (a single run of ones anchored at the least significant bit). Zero is both.
func IsMaskLiteral(width int, u ipaddr.Uint128) bool {
	n := u.OnesCount()
	wildcard := ipaddr.LowMask(n)
	return u == wildcard || u == wildcard.Lsh(width-n)
}
