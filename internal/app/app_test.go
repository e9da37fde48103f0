package app_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/tchap/cdn/ipanon/internal/app"
	"github.com/tchap/cdn/ipanon/internal/config"
	"github.com/tchap/cdn/ipanon/internal/ipaddr"
	"github.com/tchap/cdn/ipanon/internal/ipanon"
)

const routerConfig = `hostname r1
interface Loopback0
 ip address 10.1.1.17 255.255.255.255
 ipv6 address 2001:db8:a0b:12f0::1/64
tacacs-server host 192.168.3.4
ntp server 8.8.8.8
version 15.2(4)M3
`

type AppSuite struct {
	suite.Suite
	dir string
}

func (s *AppSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *AppSuite) config(input string) config.Config {
	inputPath := filepath.Join(s.dir, "input.cfg")
	s.Require().NoError(os.WriteFile(inputPath, []byte(input), 0o600))

	return config.Config{
		Salt:            salt,
		InputPath:       inputPath,
		OutputPath:      filepath.Join(s.dir, "output.cfg"),
		MappingPath:     filepath.Join(s.dir, "mapping.txt"),
		BatchSize:       2,
		FlushPeriod:     time.Second,
		PushTimeout:     time.Second,
		ShutdownTimeout: time.Second,
	}
}

func (s *AppSuite) run(c config.Config) string {
	a, err := app.New(c, zaptest.NewLogger(s.T()))
	s.Require().NoError(err)
	s.Require().NoError(a.Wait())

	output, err := os.ReadFile(c.OutputPath)
	s.Require().NoError(err)
	return string(output)
}

func (s *AppSuite) TestFileMode() {
	c := s.config(routerConfig)
	output := s.run(c)

	inLines := strings.SplitAfter(routerConfig, "\n")
	outLines := strings.SplitAfter(output, "\n")
	s.Require().Len(outLines, len(inLines))

	s.Equal(inLines[0], outLines[0])
	s.Equal(inLines[1], outLines[1])
	s.Equal(inLines[6], outLines[6])
	s.NotContains(outLines[2], " 10.1.1.17 ")
	s.Contains(outLines[2], " 255.255.255.255\n")
	s.NotContains(outLines[3], " 2001:db8:a0b:12f0::1/")
	s.NotContains(outLines[4], " 192.168.3.4\n")
	s.NotContains(outLines[5], " 8.8.8.8\n")

	mapping, err := os.ReadFile(c.MappingPath)
	s.Require().NoError(err)
	s.Len(strings.Split(strings.TrimSpace(string(mapping)), "\n"), 4)
}

func (s *AppSuite) TestFileMode_RoundTrip() {
	c := s.config(routerConfig)
	anonymized := s.run(c)

	c = s.config(anonymized)
	c.Deanonymize = true
	c.MappingPath = ""
	s.Equal(routerConfig, s.run(c))
}

func (s *AppSuite) TestFileMode_Empty() {
	c := s.config("")
	s.Equal("", s.run(c))
}

func (s *AppSuite) TestNew_InvalidConfiguration() {
	c := s.config(routerConfig)
	c.PreservePrefixes = []string{"10.0.0.1/8"}
	_, err := app.New(c, zaptest.NewLogger(s.T()))
	s.ErrorIs(err, ipanon.ErrInvalidConfiguration)

	c = s.config(routerConfig)
	c.PreserveSuffixV6 = 129
	_, err = app.New(c, zaptest.NewLogger(s.T()))
	s.ErrorIs(err, ipanon.ErrInvalidConfiguration)
}

func (s *AppSuite) TestNew_MissingInput() {
	c := s.config(routerConfig)
	c.InputPath = filepath.Join(s.dir, "missing.cfg")
	_, err := app.New(c, zaptest.NewLogger(s.T()))
	s.ErrorIs(err, os.ErrNotExist)
}

func (s *AppSuite) TestNewEngines_SplitsFamilies() {
	c := config.Config{
		Salt:              salt,
		PreservePrefixes:  []string{"170.0.0.0/8", "2001:db8::/32"},
		PreserveAddresses: []string{"11.11.11.11", "2001:db8::53"},
	}
	v4, v6, err := app.NewEngines(c)
	s.Require().NoError(err)

	var prefixes []string
	for _, p := range v4.Policy().PreservedPrefixes() {
		prefixes = append(prefixes, p.String())
	}
	s.Equal([]string{"170.0.0.0/8"}, prefixes)

	s.False(v4.ShouldAnonymize(ipaddr.MustParsePrefix("11.11.11.11").Addr))
	s.False(v6.ShouldAnonymize(ipaddr.MustParsePrefix("2001:db8::53").Addr))

	anon := v6.Anonymize(ipaddr.MustParsePrefix("2001:db8::1").Addr)
	s.True(ipaddr.MustParsePrefix("2001:db8::/32").Contains(anon))
}

func (s *AppSuite) TestNewEngines_Defaults() {
	v4, v6, err := app.NewEngines(config.Config{Salt: salt})
	s.Require().NoError(err)

	var prefixes []string
	for _, p := range v4.Policy().PreservedPrefixes() {
		prefixes = append(prefixes, p.String())
	}
	s.Equal(ipanon.DefaultPreservedPrefixes(ipaddr.V4), prefixes)
	s.Empty(v6.Policy().PreservedPrefixes())
}

func (s *AppSuite) TestNewEngines_SuppliedPrefixesReplaceDefaults() {
	c := config.Config{
		Salt:             salt,
		PreservePrefixes: []string{"2001:db8::/32"},
	}
	v4, v6, err := app.NewEngines(c)
	s.Require().NoError(err)
	s.Empty(v4.Policy().PreservedPrefixes())
	s.Len(v6.Policy().PreservedPrefixes(), 1)

	// The root decision is no longer forced by 10.0.0.0/8.
	s.Equal(ipanon.RuleOracle, v4.Policy().Decide(ipaddr.Uint128{}, 0))
}

func (s *AppSuite) TestNewEngines_NoDefaults() {
	c := config.Config{
		Salt:                      salt,
		NoDefaultPreservePrefixes: true,
	}
	v4, _, err := app.NewEngines(c)
	s.Require().NoError(err)
	s.Empty(v4.Policy().PreservedPrefixes())
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}
