package ipaddr_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/tchap/cdn/ipanon/internal/ipaddr"
)

type Uint128Suite struct {
	suite.Suite
}

func (s *Uint128Suite) TestBytes() {
	u := ipaddr.Uint128{
		Hi: 0b1000000001000000001000000001000000001000000001000000001000000001,
		Lo: 0b0000000100000010000001000000100000010000001000000100000010000000,
	}
	b := u.Bytes()
	s.Equal([]byte{
		0b10000000, 0b1000000, 0b100000, 0b10000, 0b1000, 0b100, 0b10, 0b1,
		0b1, 0b10, 0b100, 0b1000, 0b10000, 0b100000, 0b1000000, 0b10000000,
	}, b[:])
}

func (s *Uint128Suite) TestFamilyContains() {
	s.True(ipaddr.V4.Contains(ipaddr.V4.Max()))
	s.False(ipaddr.V4.Contains(ipaddr.From64(1 << 32)))
	s.True(ipaddr.V6.Contains(ipaddr.V6.Max()))
	s.Equal(ipaddr.Uint128{Hi: ^uint64(0), Lo: ^uint64(0)}, ipaddr.V6.Max())
}

func (s *Uint128Suite) TestShift() {
	u := ipaddr.Uint128{
		Hi: 0b1000000001000000001000000001000000001000000001000000001000000001,
		Lo: 0b0000000100000010000001000000100000010000001000000100000010000000,
	}

	s.Equal(ipaddr.Uint128{
		Hi: 0b0000000100000000100000000100000000100000000100000001000000100000,
		Lo: 0b0100000010000001000000100000010000001000000000000000000000000000,
	}, u.Lsh(20))

	s.Equal(u, u.Lsh(20).Rsh(20).Or(ipaddr.Uint128{Hi: u.Hi &^ (1<<44 - 1)}))
	s.Equal(ipaddr.Uint128{Lo: u.Hi}, u.Rsh(64))
	s.Equal(ipaddr.Uint128{Hi: u.Lo}, u.Lsh(64))
	s.True(u.Lsh(128).IsZero())
	s.True(u.Rsh(128).IsZero())
}

func (s *Uint128Suite) TestBits() {
	var u ipaddr.Uint128
	u = u.SetBit(127, 1).SetBit(64, 1).SetBit(0, 1)
	s.Equal(ipaddr.Uint128{Hi: 1<<63 | 1, Lo: 1}, u)
	s.Equal(uint64(1), u.Bit(127))
	s.Equal(uint64(0), u.Bit(126))
	s.Equal(3, u.OnesCount())
	s.Equal(0, u.LeadingZeros())

	u = u.SetBit(127, 0)
	s.Equal(63, u.LeadingZeros())
	s.Equal(128, ipaddr.Uint128{}.LeadingZeros())
}

func (s *Uint128Suite) TestLowMask() {
	s.Equal(ipaddr.Uint128{}, ipaddr.LowMask(0))
	s.Equal(ipaddr.From64(0xffffffff), ipaddr.LowMask(32))
	s.Equal(ipaddr.Uint128{Hi: 0xff, Lo: ^uint64(0)}, ipaddr.LowMask(72))
	s.Equal(ipaddr.Uint128{Hi: ^uint64(0), Lo: ^uint64(0)}, ipaddr.LowMask(128))
}

func (s *Uint128Suite) TestCmp() {
	a := ipaddr.Uint128{Hi: 1}
	b := ipaddr.Uint128{Lo: ^uint64(0)}
	s.Equal(1, a.Cmp(b))
	s.Equal(-1, b.Cmp(a))
	s.Equal(0, a.Cmp(a))
	s.True(b.Less(a))
}

func (s *Uint128Suite) TestCommonPrefixLen() {
	s.Equal(32, ipaddr.CommonPrefixLen(ipaddr.From64(0x0b0b0b0b), ipaddr.From64(0x0b0b0b0b), 32))
	s.Equal(16, ipaddr.CommonPrefixLen(ipaddr.From64(0x01000001), ipaddr.From64(0x01008001), 32))
	s.Equal(0, ipaddr.CommonPrefixLen(ipaddr.From64(0x01000001), ipaddr.From64(0x80000001), 32))
	s.Equal(64, ipaddr.CommonPrefixLen(ipaddr.Uint128{Hi: 7, Lo: 1}, ipaddr.Uint128{Hi: 7, Lo: 1 << 63}, 128))
}

func TestUint128(t *testing.T) {
	suite.Run(t, new(Uint128Suite))
}
