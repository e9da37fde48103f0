// Package ipanon implements prefix-preserving address anonymization.
//
// An Anonymizer maps addresses of one family onto synthetic addresses of the same
// family by flipping address bits. The flip bit for position i is derived from the
// original bits 0..i-1 only, so addresses sharing an n-bit prefix are mapped onto
// addresses sharing an n-bit prefix, and the mapping can be inverted bit by bit.
// Flip bits are computed lazily and cached per (prefix, position), which makes the
// result independent of the order in which addresses are processed.
package ipanon

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/tchap/cdn/ipanon/internal/ipaddr"
)

// ErrInvalidConfiguration is returned by New when the options cannot be applied.
var ErrInvalidConfiguration = stderrors.New("invalid anonymizer configuration")

// Options configure an Anonymizer.
type Options struct {
	// Salt is the secret mixed into every flip bit. Required.
	Salt []byte

	// PreservePrefixes lists networks ("addr/len") whose network bits are kept.
	// Nil selects DefaultPreservedPrefixes, an empty slice preserves nothing.
	PreservePrefixes []string

	// PreserveAddresses lists addresses or blocks that are not anonymized at all.
	PreserveAddresses []string

	// PreserveSuffix is the number of trailing bits that are never flipped.
	PreserveSuffix int

	// Oracle overrides the default SaltedOracle.
	Oracle BitOracle
}

// Mapping is a single original -> anonymized address pair.
type Mapping struct {
	Original   ipaddr.Uint128
	Anonymized ipaddr.Uint128
}

func mappingLess(a, b Mapping) bool {
	return a.Original.Less(b.Original)
}

// Anonymizer is the anonymization engine for a single address family.
//
// It is safe for concurrent use. The flip cache only ever grows
// and an entry once stored is never replaced.
type Anonymizer struct {
	family ipaddr.Family
	salt   []byte
	policy *Policy
	oracle BitOracle

	mu    sync.RWMutex
	flips map[pathKey]uint64
	seen  *btree.BTreeG[Mapping]
}

// New creates an Anonymizer for the given family.
func New(f ipaddr.Family, opts Options) (*Anonymizer, error) {
	if f != ipaddr.V4 && f != ipaddr.V6 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "unsupported address family %d", f)
	}
	if len(opts.Salt) == 0 {
		return nil, errors.Wrap(ErrInvalidConfiguration, "salt not set")
	}

	policy, err := NewPolicy(f, opts.PreservePrefixes, opts.PreserveAddresses, opts.PreserveSuffix)
	if err != nil {
		return nil, err
	}

	oracle := opts.Oracle
	if oracle == nil {
		oracle = NewSaltedOracle(opts.Salt)
	}

	return &Anonymizer{
		family: f,
		salt:   append([]byte(nil), opts.Salt...),
		policy: policy,
		oracle: oracle,
		flips:  make(map[pathKey]uint64),
		seen:   btree.NewG[Mapping](32, mappingLess),
	}, nil
}

// NewV4 is a shortcut for New(ipaddr.V4, opts).
func NewV4(opts Options) (*Anonymizer, error) {
	return New(ipaddr.V4, opts)
}

// NewV6 is a shortcut for New(ipaddr.V6, opts).
func NewV6(opts Options) (*Anonymizer, error) {
	return New(ipaddr.V6, opts)
}

func (a *Anonymizer) Family() ipaddr.Family {
	return a.family
}

func (a *Anonymizer) Policy() *Policy {
	return a.policy
}

// ShouldAnonymize reports whether an address literal found in text is to be replaced.
func (a *Anonymizer) ShouldAnonymize(addr ipaddr.Uint128) bool {
	a.mustContain(addr)
	return a.policy.ShouldAnonymize(addr)
}

// Anonymize returns the synthetic address for addr and records the pair
// for Mappings and Dump.
//
// Every address is permuted, including the ones ShouldAnonymize rejects,
// so Deanonymize(Anonymize(x)) == x for any x. Callers scanning text are
// expected to consult ShouldAnonymize first.
// Anonymize panics when addr does not fit into the family width.
func (a *Anonymizer) Anonymize(addr ipaddr.Uint128) ipaddr.Uint128 {
	a.mustContain(addr)
	out := a.permute(addr, false)

	a.mu.Lock()
	a.seen.ReplaceOrInsert(Mapping{Original: addr, Anonymized: out})
	a.mu.Unlock()
	return out
}

// Deanonymize inverts the bit permutation applied by Anonymize.
// Deanonymize panics when anon does not fit into the family width.
func (a *Anonymizer) Deanonymize(anon ipaddr.Uint128) ipaddr.Uint128 {
	a.mustContain(anon)
	return a.permute(anon, true)
}

// permute walks the address bits from the most significant one.
// The flip bit at each position is keyed by the original bits decided so far;
// when inverting, those are the bits already recovered.
func (a *Anonymizer) permute(in ipaddr.Uint128, inverse bool) ipaddr.Uint128 {
	width := a.family.Width()

	var prefix, out ipaddr.Uint128
	for pos := 0; pos < width; pos++ {
		n := width - 1 - pos
		inBit := in.Bit(n)
		outBit := inBit ^ a.flip(prefix, pos)
		out = out.SetBit(n, outBit)

		origBit := inBit
		if inverse {
			origBit = outBit
		}
		prefix = prefix.Lsh(1).SetBit(0, origBit)
	}
	return out
}

func (a *Anonymizer) flip(prefix ipaddr.Uint128, pos int) uint64 {
	if a.policy.Decide(prefix, pos) != RuleOracle {
		return 0
	}

	key := pathKey{prefix: prefix, pos: pos}
	a.mu.RLock()
	f, ok := a.flips[key]
	a.mu.RUnlock()
	if ok {
		return f
	}

	f = a.oracle.FlipBit(a.salt, prefix, pos) & 1

	// First writer wins, everybody observes the stored bit.
	a.mu.Lock()
	if stored, ok := a.flips[key]; ok {
		f = stored
	} else {
		a.flips[key] = f
	}
	a.mu.Unlock()
	return f
}

func (a *Anonymizer) mustContain(addr ipaddr.Uint128) {
	if !a.family.Contains(addr) {
		panic(fmt.Sprintf("ipanon: address %#x%016x out of range for %s", addr.Hi, addr.Lo, a.family))
	}
}
