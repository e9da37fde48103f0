package app

import (
	"github.com/tchap/cdn/ipanon/internal/scanner"
)

// LineAnonymizer rewrites address literals in every line passing through.
type LineAnonymizer struct {
	scanner     *scanner.Scanner
	deanonymize bool
}

func NewLineAnonymizer(s *scanner.Scanner, deanonymize bool) *LineAnonymizer {
	return &LineAnonymizer{
		scanner:     s,
		deanonymize: deanonymize,
	}
}

func (t *LineAnonymizer) TransformRecord(l *Line) *Line {
	if t.deanonymize {
		l.Text = t.scanner.DeanonymizeLine(l.Text)
	} else {
		l.Text = t.scanner.AnonymizeLine(l.Text)
	}
	return l
}
