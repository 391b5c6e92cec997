// Package codegen produces short human-typeable room codes.
package codegen

import "math/rand"

// Alphabet holds uppercase letters and digits that are hard to misread.
// 0/O, 1/I and L are excluded on purpose.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// DefaultLength is the room code length used by the server.
const DefaultLength = 8

// Registry is the read-side view codegen needs to avoid collisions.
type Registry interface {
	Contains(code string) bool
}

// Generate returns a random code of n characters drawn from Alphabet.
func Generate(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = Alphabet[rand.Intn(len(Alphabet))]
	}
	return string(buf)
}

// Unique returns a code of n characters that is absent from reg at the time
// of the check. It tries up to 16 times; if every attempt collides it falls
// back to a single Generate(n+1) without re-checking uniqueness. With the
// default keyspace the fallback is effectively unreachable, so the relaxed
// guarantee is accepted rather than looping forever.
func Unique(reg Registry, n int) string {
	for i := 0; i < 16; i++ {
		code := Generate(n)
		if !reg.Contains(code) {
			return code
		}
	}
	return Generate(n + 1)
}
