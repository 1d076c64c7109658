// Package id generates the identifiers used for directory entities and guest viewers.
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GuestPrefix marks identifiers minted for anonymous viewers.
const GuestPrefix = "guest-"

// Generate creates a prefixed unique ID using NanoID
// Format: prefix-nanoid (e.g., "trn-V1StGXR8_Z5jdHi6B-myT")
//
// Returns an error if the system has insufficient entropy for secure random generation.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// NewGuestID returns a fresh anonymous viewer id ("guest-<uuid v4>").
func NewGuestID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate guest id: %w", err)
	}
	return GuestPrefix + u.String(), nil
}

// IsGuestID reports whether s looks like an id produced by NewGuestID.
func IsGuestID(s string) bool {
	rest, ok := strings.CutPrefix(s, GuestPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
