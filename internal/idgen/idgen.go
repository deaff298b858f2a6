// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes of the generated identifiers.
const (
	SessionPrefix = "ss-"
	// ListPrefix starts generated pagination ids. The id ends up in route
	// keys such as "<id>.page", so it never contains a dot.
	ListPrefix = "pl"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// SessionID returns a new session id.
func SessionID() (string, error) {
	return GenerateWithPrefix(SessionPrefix)
}

// PaginationID returns a new pagination id for a result list that did not
// name one.
func PaginationID() (string, error) {
	id, err := nanoid.Generate(Alphabet, 6)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return ListPrefix + id, nil
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
