package ipaddr_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"

	"github.com/tchap/cdn/ipanon/internal/ipaddr"
)

type CodecSuite struct {
	suite.Suite
}

func (s *CodecSuite) TestParseV4_LeadingZerosAreDecimal() {
	cases := []struct {
		zeros   string
		noZeros string
	}{
		{"0.0.0.0", "0.0.0.0"},
		{"0.0.0.3", "0.0.0.3"},
		{"128.0.0.0", "128.0.0.0"},
		{"0.127.0.0", "0.127.0.0"},
		{"010.73.212.05", "10.73.212.5"},
		{"255.255.255.255", "255.255.255.255"},
		{"010.11.12.13", "10.11.12.13"},
		{"10.011.12.13", "10.11.12.13"},
		{"10.11.012.13", "10.11.12.13"},
		{"10.11.12.013", "10.11.12.13"},
		{"010.0011.00000012.000", "10.11.12.0"},
		{"1.2.3.0000014", "1.2.3.14"},
	}
	for _, c := range cases {
		s.Run(c.zeros, func() {
			actual, err := ipaddr.ParseV4(c.zeros)
			s.Require().NoError(err)
			expected, err := ipaddr.ParseV4(c.noZeros)
			s.Require().NoError(err)
			s.Equal(expected, actual)
			s.Equal(c.noZeros, ipaddr.Render(ipaddr.V4, actual))
		})
	}
}

func (s *CodecSuite) TestParseV4_Value() {
	u, err := ipaddr.ParseV4("10.1.1.17")
	s.Require().NoError(err)
	s.Equal(ipaddr.From64(0x0a010111), u)
}

func (s *CodecSuite) TestParseV4_Malformed() {
	for _, literal := range []string{
		"1.2.3",
		"1.2.3.4.5",
		"1.2.333.4",
		"1.2.0333.4",
		"1.256.3.4",
		"1.2..4",
		"1.2.3.",
		"1.2.3.4a",
		"a.1.2.3",
		"1.2.3.-4",
		"1.2.3.+4",
		"",
	} {
		s.Run(literal, func() {
			_, err := ipaddr.ParseV4(literal)
			s.True(errors.Is(err, ipaddr.ErrMalformedAddress), "error: %v", err)
		})
	}
}

func (s *CodecSuite) TestParseV6_Canonical() {
	cases := []struct {
		literal   string
		canonical string
	}{
		{"1234::5678", "1234::5678"},
		{"::1", "::1"},
		{"1::", "1::"},
		{"::", "::"},
		{"1::1", "1::1"},
		{"2001:db8:85a3:7:8:8a2e:370:7334", "2001:db8:85a3:7:8:8a2e:370:7334"},
		{"2001:0db8:0000:0000:0000:0000:0000:0001", "2001:db8::1"},
		{"2001:db8:a0b:12f0::1", "2001:db8:a0b:12f0::1"},
		{"ffff:ffff::ffff:ffff", "ffff:ffff::ffff:ffff"},
		{"aAaA:bBbB:cCcC:dDdD:eEeE:fFfF:1010:2929", "aaaa:bbbb:cccc:dddd:eeee:ffff:1010:2929"},
		{"2001:db8:0:1:1:1:1:1", "2001:db8:0:1:1:1:1:1"},
		{"2001:0:0:1:0:0:0:1", "2001:0:0:1::1"},
		{"2001:db8:0:0:1:0:0:1", "2001:db8::1:0:0:1"},
		{"0:0:0:0:0:0:0:0", "::"},
	}
	for _, c := range cases {
		s.Run(c.literal, func() {
			u, err := ipaddr.ParseV6(c.literal)
			s.Require().NoError(err)
			s.Equal(c.canonical, ipaddr.Render(ipaddr.V6, u))

			again, err := ipaddr.ParseV6(c.canonical)
			s.Require().NoError(err)
			s.Equal(u, again)
		})
	}
}

func (s *CodecSuite) TestParseV6_Value() {
	u, err := ipaddr.ParseV6("1234::5678")
	s.Require().NoError(err)
	s.Equal(ipaddr.Uint128{Hi: 0x1234 << 48, Lo: 0x5678}, u)
}

func (s *CodecSuite) TestParseV6_Malformed() {
	for _, literal := range []string{
		"01:23:45:67:89:ab",
		"01:02:03:04:05:06:07:08:09",
		"01:02:03:04::05:06:07:08",
		"1::2::3",
		":::",
		":1::",
		"1::2:",
		"12345::",
		"g::1",
		"1:2:3:4:5:6:7",
		"",
	} {
		s.Run(literal, func() {
			_, err := ipaddr.ParseV6(literal)
			s.True(errors.Is(err, ipaddr.ErrMalformedAddress), "error: %v", err)
		})
	}
}

func (s *CodecSuite) TestParse_DetectsFamily() {
	f, u, err := ipaddr.Parse("192.168.1.1")
	s.Require().NoError(err)
	s.Equal(ipaddr.V4, f)
	s.Equal(ipaddr.From64(0xc0a80101), u)

	f, u, err = ipaddr.Parse("fe80::1")
	s.Require().NoError(err)
	s.Equal(ipaddr.V6, f)
	s.Equal(ipaddr.Uint128{Hi: 0xfe80 << 48, Lo: 1}, u)
}

func (s *CodecSuite) TestRoundTrip() {
	for _, u := range []ipaddr.Uint128{
		{},
		{Lo: 1},
		{Hi: 1},
		{Hi: 0xffff0000ffff0000, Lo: 0x0000ffff0000ffff},
		ipaddr.LowMask(128),
	} {
		literal := ipaddr.Render(ipaddr.V6, u)
		parsed, err := ipaddr.ParseV6(literal)
		s.Require().NoError(err, literal)
		s.Equal(u, parsed, literal)
	}

	for _, v := range []uint64{0, 1, 0x0a000001, 0xc0a80001, 0xffffffff} {
		literal := ipaddr.Render(ipaddr.V4, ipaddr.From64(v))
		parsed, err := ipaddr.ParseV4(literal)
		s.Require().NoError(err, literal)
		s.Equal(ipaddr.From64(v), parsed, literal)
	}
}

func (s *CodecSuite) TestParsePrefix() {
	p, err := ipaddr.ParsePrefix("172.16.0.0/12")
	s.Require().NoError(err)
	s.Equal(ipaddr.Prefix{Family: ipaddr.V4, Addr: ipaddr.From64(0xac100000), Len: 12}, p)
	s.Equal("172.16.0.0/12", p.String())
	s.True(p.Contains(ipaddr.From64(0xac1fffff)))
	s.False(p.Contains(ipaddr.From64(0xac200000)))

	p, err = ipaddr.ParsePrefix("11.11.11.11")
	s.Require().NoError(err)
	s.Equal(32, p.Len)

	p, err = ipaddr.ParsePrefix("2001:db8::/32")
	s.Require().NoError(err)
	s.Equal(ipaddr.V6, p.Family)
	s.Equal("2001:db8::/32", p.Netip().String())

	for _, bad := range []string{"10.0.0.0/33", "10.1.0.0/8", "10.0.0.0/x", "::/129", "1.2.3/8"} {
		_, err := ipaddr.ParsePrefix(bad)
		s.True(errors.Is(err, ipaddr.ErrMalformedAddress), bad)
	}
}

func TestCodec(t *testing.T) {
	suite.Run(t, new(CodecSuite))
}
