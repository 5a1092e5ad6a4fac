// Package roomcode generates the short human-typable identifiers clients use to
// find a room.
package roomcode

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync"
)

// Length is the number of letters in a room code.
const Length = 4

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Source is the randomness provider for code generation.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// Generate draws Length letters uniformly from A-Z.
//
// Precondition: src must be non-nil.
// Postcondition: Returns a string of exactly Length uppercase ASCII letters.
func Generate(src Source) string {
	var sb strings.Builder
	sb.Grow(Length)
	for i := 0; i < Length; i++ {
		sb.WriteByte(alphabet[src.Intn(len(alphabet))])
	}
	return sb.String()
}

// Normalize canonicalizes client input for lookup: surrounding whitespace is
// trimmed and letters are upper-cased.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code is exactly Length uppercase ASCII letters.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// cryptoSource implements Source using crypto/rand.
type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
//
// Postcondition: Every value returned by Intn is in [0, n).
func NewCryptoSource() Source {
	return &cryptoSource{}
}

// Intn returns a cryptographically secure random int in [0, n).
//
// Precondition: n > 0. Panics if n <= 0 or crypto/rand fails.
func (c *cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("roomcode: Intn called with n <= 0")
	}
	val, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("roomcode: crypto/rand failure: " + err.Error())
	}
	return int(val.Int64())
}

// fixedSource replays the letters of a scripted sequence of codes, cycling when
// exhausted.
type fixedSource struct {
	mu      sync.Mutex
	letters []int
	pos     int
}

// Fixed returns a Source that makes Generate yield the given codes in order,
// then start over. Intended for tests.
//
// Precondition: every code must satisfy Valid; at least one code is required.
func Fixed(codes ...string) Source {
	if len(codes) == 0 {
		panic("roomcode: Fixed requires at least one code")
	}
	letters := make([]int, 0, len(codes)*Length)
	for _, c := range codes {
		if !Valid(c) {
			panic("roomcode: Fixed given invalid code " + c)
		}
		for i := 0; i < len(c); i++ {
			letters = append(letters, int(c[i]-'A'))
		}
	}
	return &fixedSource{letters: letters}
}

// Intn returns the next scripted letter index, reduced modulo n.
func (f *fixedSource) Intn(n int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.letters[f.pos%len(f.letters)]
	f.pos++
	return v % n
}
