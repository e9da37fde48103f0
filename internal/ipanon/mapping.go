package ipanon

import (
	"bufio"
	"io"

	"github.com/pkg/errors"

	"github.com/tchap/cdn/ipanon/internal/ipaddr"
)

// Mappings returns every pair recorded by Anonymize so far,
// sorted by the original address.
func (a *Anonymizer) Mappings() []Mapping {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Mapping, 0, a.seen.Len())
	a.seen.Ascend(func(m Mapping) bool {
		out = append(out, m)
		return true
	})
	return out
}

// MappingCount returns the number of distinct addresses seen by Anonymize.
func (a *Anonymizer) MappingCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.seen.Len()
}

// Dump writes the recorded mapping into w, one "<original> <anonymized>" pair
// per line, sorted by the original address.
func (a *Anonymizer) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, m := range a.Mappings() {
		bw.WriteString(ipaddr.Render(a.family, m.Original))
		bw.WriteByte(' ')
		bw.WriteString(ipaddr.Render(a.family, m.Anonymized))
		bw.WriteByte('\n')
	}
	return errors.Wrap(bw.Flush(), "failed to write address mapping")
}
