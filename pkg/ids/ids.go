// Package ids generates meeting identifiers. An identifier doubles as the
// meeting's share token, so it must not be guessable from another one.
package ids

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a random version-4 UUID in lowercase hyphenated form.
// It panics if the system random source fails.
func New() string {
	id, err := uuid.NewRandom()
	if err != nil {
		panic(fmt.Sprintf("ids: random source unavailable: %v", err))
	}
	return id.String()
}

// Valid reports whether s is a canonical identifier as produced by New.
func Valid(s string) bool {
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.String() == s
}
