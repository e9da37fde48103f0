package ipanon_test

import (
	"math/rand"
	"testing"

	"github.com/tchap/cdn/ipanon/internal/ipaddr"
	"github.com/tchap/cdn/ipanon/internal/ipanon"
)

func BenchmarkAnonymizer_Anonymize(b *testing.B) {
	// The suite package does not support benchmarks,
	// we need to put this together manually.
	s := new(AnonymizerSuite)
	s.SetT(&testing.T{})
	s.SetupTest()

	addrs := make([]ipaddr.Uint128, 0, len(ipV6List))
	for _, literal := range ipV6List {
		addrs = append(addrs, s.mustParse(ipaddr.V6, literal))
	}

	n := len(addrs)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.v6.Anonymize(addrs[rand.Intn(n)])
	}
}

func BenchmarkAnonymizer_Cold(b *testing.B) {
	for i := 0; i < b.N; i++ {
		a, err := ipanon.NewV4(ipanon.Options{Salt: []byte(salt)})
		if err != nil {
			b.Fatal(err)
		}
		a.Anonymize(ipaddr.From64(rand.Uint64() & 0xffffffff))
	}
}
