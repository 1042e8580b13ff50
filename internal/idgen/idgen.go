// Package idgen abstracts ID generation so tests can substitute
// deterministic identifiers instead of random v4 UUIDs.
package idgen

import "github.com/google/uuid"

// Source is the RandomSource external interface named in §6 — injectable
// for testing.
type Source interface {
	UUID() string
}

func Real() Source { return realSource{} }

type realSource struct{}

func (realSource) UUID() string { return uuid.NewString() }

// Sequential returns deterministic, incrementing ids for tests that need
// stable, comparable output instead of random UUIDs.
func Sequential(prefix string) Source {
	return &sequential{prefix: prefix}
}

type sequential struct {
	prefix string
	n      int
}

func (s *sequential) UUID() string {
	s.n++
	return sequentialID(s.prefix, s.n)
}

func sequentialID(prefix string, n int) string {
	const hex = "0123456789abcdef"
	digits := make([]byte, 0, 8)
	if n == 0 {
		digits = append(digits, '0')
	}
	for n > 0 {
		digits = append([]byte{hex[n%16]}, digits...)
		n /= 16
	}
	return prefix + "-" + string(digits)
}
