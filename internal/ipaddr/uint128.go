package ipaddr

import "math/bits"

// Uint128 represents an address as a 128-bit unsigned integer.
//
// Hi and Lo hold the upper and lower 64 bits. Addresses narrower than
// 128 bits are aligned to the right, i.e. an IPv4 address only occupies
// the low 32 bits of Lo.
type Uint128 struct {
	Hi uint64
	Lo uint64
}

// From64 returns v as a Uint128.
func From64(v uint64) Uint128 {
	return Uint128{Lo: v}
}

// Bytes returns the big-endian representation of u.
func (u Uint128) Bytes() [16]byte {
	var out [16]byte
	for i := 0; i < 8; i++ {
		out[i] = byte(u.Hi >> ((7 - i) * 8))
		out[8+i] = byte(u.Lo >> ((7 - i) * 8))
	}
	return out
}

func (u Uint128) IsZero() bool {
	return u.Hi == 0 && u.Lo == 0
}

func (u Uint128) And(v Uint128) Uint128 {
	return Uint128{Hi: u.Hi & v.Hi, Lo: u.Lo & v.Lo}
}

func (u Uint128) Or(v Uint128) Uint128 {
	return Uint128{Hi: u.Hi | v.Hi, Lo: u.Lo | v.Lo}
}

func (u Uint128) Xor(v Uint128) Uint128 {
	return Uint128{Hi: u.Hi ^ v.Hi, Lo: u.Lo ^ v.Lo}
}

// Lsh shifts u left by n bits. Shifting by 128 or more yields zero.
func (u Uint128) Lsh(n int) Uint128 {
	switch {
	case n <= 0:
		return u
	case n >= 128:
		return Uint128{}
	case n >= 64:
		return Uint128{Hi: u.Lo << (n - 64)}
	}
	return Uint128{
		Hi: u.Hi<<n | u.Lo>>(64-n),
		Lo: u.Lo << n,
	}
}

// Rsh shifts u right by n bits. Shifting by 128 or more yields zero.
func (u Uint128) Rsh(n int) Uint128 {
	switch {
	case n <= 0:
		return u
	case n >= 128:
		return Uint128{}
	case n >= 64:
		return Uint128{Lo: u.Hi >> (n - 64)}
	}
	return Uint128{
		Hi: u.Hi >> n,
		Lo: u.Lo>>n | u.Hi<<(64-n),
	}
}

// Bit returns the n-th bit of u counting from the least significant one.
func (u Uint128) Bit(n int) uint64 {
	if n >= 64 {
		return (u.Hi >> (n - 64)) & 1
	}
	return (u.Lo >> n) & 1
}

// SetBit returns u with the n-th bit, counting from the least significant one, set to b.
func (u Uint128) SetBit(n int, b uint64) Uint128 {
	if n >= 64 {
		u.Hi = u.Hi&^(1<<(n-64)) | (b&1)<<(n-64)
	} else {
		u.Lo = u.Lo&^(1<<n) | (b&1)<<n
	}
	return u
}

func (u Uint128) OnesCount() int {
	return bits.OnesCount64(u.Hi) + bits.OnesCount64(u.Lo)
}

func (u Uint128) LeadingZeros() int {
	if u.Hi != 0 {
		return bits.LeadingZeros64(u.Hi)
	}
	return 64 + bits.LeadingZeros64(u.Lo)
}

// Cmp returns -1, 0 or 1 depending on whether u is less than, equal to or greater than v.
func (u Uint128) Cmp(v Uint128) int {
	switch {
	case u.Hi < v.Hi:
		return -1
	case u.Hi > v.Hi:
		return 1
	case u.Lo < v.Lo:
		return -1
	case u.Lo > v.Lo:
		return 1
	}
	return 0
}

func (u Uint128) Less(v Uint128) bool {
	return u.Cmp(v) < 0
}

// LowMask returns a value with the low n bits set.
func LowMask(n int) Uint128 {
	switch {
	case n <= 0:
		return Uint128{}
	case n >= 128:
		return Uint128{Hi: ^uint64(0), Lo: ^uint64(0)}
	case n >= 64:
		return Uint128{Hi: 1<<(n-64) - 1, Lo: ^uint64(0)}
	}
	return Uint128{Lo: 1<<n - 1}
}

// CommonPrefixLen returns the number of leading bits a and b share
// when both are taken as width-bit values.
func CommonPrefixLen(a, b Uint128, width int) int {
	n := a.Xor(b).LeadingZeros() - (128 - width)
	if n > width {
		n = width
	}
	return n
}
