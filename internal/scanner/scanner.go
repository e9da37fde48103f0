// Package scanner finds address literals in free-form text
// and replaces them with their anonymized counterparts.
package scanner

import (
	"strings"

	"go.uber.org/zap"

	"github.com/tchap/cdn/ipanon/internal/ipaddr"
)

// Engine anonymizes addresses of a single family.
// It is implemented by *ipanon.Anonymizer.
type Engine interface {
	Family() ipaddr.Family
	ShouldAnonymize(addr ipaddr.Uint128) bool
	Anonymize(addr ipaddr.Uint128) ipaddr.Uint128
	Deanonymize(anon ipaddr.Uint128) ipaddr.Uint128
}

// Scanner rewrites address literals within a line of text.
//
// A candidate token is a maximal run of letters, digits and the family separator
// ('.' for IPv4, ':' for IPv6). The whole run must be a valid literal,
// so "1.2.3.4.5", "a.1.2.3.4" or "1::abcdefg" are left alone while
// addresses enclosed in quotes, brackets or other punctuation are found.
type Scanner struct {
	v4     Engine
	v6     Engine
	logger *zap.Logger
}

// New returns a Scanner using the given engines. Either engine may be nil,
// which disables scanning for that family. The logger may be nil as well.
func New(v4, v6 Engine, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		v4:     v4,
		v6:     v6,
		logger: logger,
	}
}

// AnonymizeLine is a shortcut for New(v4, v6, nil).AnonymizeLine(line).
func AnonymizeLine(v4, v6 Engine, line string) string {
	return New(v4, v6, nil).AnonymizeLine(line)
}

// AnonymizeLine replaces every anonymizable address literal in line with
// the canonical literal of its anonymized address. Everything else,
// including malformed address-like tokens, is passed through as is.
func (s *Scanner) AnonymizeLine(line string) string {
	return s.rewrite(line, false)
}

// DeanonymizeLine reverses AnonymizeLine for a line produced with the same engines.
func (s *Scanner) DeanonymizeLine(line string) string {
	return s.rewrite(line, true)
}

func (s *Scanner) rewrite(line string, inverse bool) string {
	if s.v4 != nil {
		line = s.rewriteFamily(line, s.v4, isV4TokenChar, '.', inverse)
	}
	if s.v6 != nil {
		line = s.rewriteFamily(line, s.v6, isV6TokenChar, ':', inverse)
	}
	return line
}

// rewriteFamily builds the output left to right so that replacements
// never shift the offsets of the text still to be scanned.
func (s *Scanner) rewriteFamily(
	line string,
	engine Engine,
	inToken func(byte) bool,
	sep byte,
	inverse bool,
) string {
	var (
		out  strings.Builder
		last int
	)
	for i := 0; i < len(line); {
		if !inToken(line[i]) {
			i++
			continue
		}

		j := i
		for j < len(line) && inToken(line[j]) {
			j++
		}

		token := line[i:j]
		if strings.IndexByte(token, sep) != -1 && !embedsDottedQuad(line, j, sep) {
			if replacement, ok := s.replace(engine, token, inverse); ok {
				if last == 0 {
					out.Grow(len(line))
				}
				out.WriteString(line[last:i])
				out.WriteString(replacement)
				last = j
			}
		}
		i = j
	}

	if last == 0 {
		return line
	}
	out.WriteString(line[last:])
	return out.String()
}

func (s *Scanner) replace(engine Engine, token string, inverse bool) (string, bool) {
	f := engine.Family()
	addr, err := ipaddr.ParseFamily(f, token)
	if err != nil {
		s.logger.Debug(
			"Address-like token rejected.",
			zap.Stringer("family", f),
			zap.String("token", token),
			zap.Error(err),
		)
		return "", false
	}

	if !engine.ShouldAnonymize(addr) {
		return "", false
	}

	if inverse {
		return ipaddr.Render(f, engine.Deanonymize(addr)), true
	}
	return ipaddr.Render(f, engine.Anonymize(addr)), true
}

// embedsDottedQuad reports whether the IPv6 candidate ending at j is the head
// of an IPv4-embedded literal such as "::ffff:1.2.3.4". Only the dotted part,
// already handled by the IPv4 pass, is rewritten then.
func embedsDottedQuad(line string, j int, sep byte) bool {
	return sep == ':' && j < len(line) && line[j] == '.'
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isV4TokenChar(c byte) bool {
	return isAlnum(c) || c == '.'
}

func isV6TokenChar(c byte) bool {
	return isAlnum(c) || c == ':'
}
