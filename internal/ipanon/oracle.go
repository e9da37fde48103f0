package ipanon

import (
	"bytes"
	"hash"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/tchap/cdn/ipanon/internal/ipaddr"
)

// BitOracle decides the pseudorandom flip bit for a prefix.
//
// prefix holds the pos leading bits of the original address, aligned to the right.
// The result must only depend on the arguments. Only the lowest bit is used.
type BitOracle interface {
	FlipBit(salt []byte, prefix ipaddr.Uint128, pos int) uint64
}

// BitOracleFunc adapts an ordinary function to BitOracle.
type BitOracleFunc func(salt []byte, prefix ipaddr.Uint128, pos int) uint64

func (f BitOracleFunc) FlipBit(salt []byte, prefix ipaddr.Uint128, pos int) uint64 {
	return f(salt, prefix, pos)
}

// ConstantOracle returns the same bit for every prefix.
// ConstantOracle(1) flips every bit not forced by the preservation policy.
func ConstantOracle(bit uint64) BitOracle {
	return BitOracleFunc(func([]byte, ipaddr.Uint128, int) uint64 {
		return bit
	})
}

// SaltedOracle is the default oracle, a keyed BLAKE2b-256 hash
// of the bit position and the prefix reduced to a single bit.
//
// An oracle created by NewSaltedOracle derives the hash key once and reuses
// keyed hashers for its own salt. The zero value works for any salt,
// building a hasher per call.
type SaltedOracle struct {
	salt    []byte
	hashers sync.Pool
}

func NewSaltedOracle(salt []byte) *SaltedOracle {
	key := hashKey(salt)
	o := &SaltedOracle{salt: append([]byte(nil), salt...)}
	o.hashers.New = func() any {
		return newKeyedHash(key)
	}
	return o
}

func (o *SaltedOracle) FlipBit(salt []byte, prefix ipaddr.Uint128, pos int) uint64 {
	var h hash.Hash
	if o.salt != nil && bytes.Equal(salt, o.salt) {
		h = o.hashers.Get().(hash.Hash)
		defer o.hashers.Put(h)
		h.Reset()
	} else {
		h = newKeyedHash(hashKey(salt))
	}

	var msg [17]byte
	msg[0] = byte(pos)
	b := prefix.Bytes()
	copy(msg[1:], b[:])
	h.Write(msg[:])

	var sum [blake2b.Size256]byte
	return uint64(h.Sum(sum[:0])[0] & 1)
}

// hashKey fits the salt into the BLAKE2b key size limit.
func hashKey(salt []byte) []byte {
	if len(salt) > blake2b.Size {
		sum := blake2b.Sum512(salt)
		return sum[:]
	}
	return salt
}

func newKeyedHash(key []byte) hash.Hash {
	h, err := blake2b.New256(key)
	if err != nil {
		// Only happens for keys longer than blake2b.Size.
		panic(err)
	}
	return h
}
