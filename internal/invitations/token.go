package invitations

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

const (
	// TokenPrefix makes leaked invitation tokens identifiable in logs and
	// secret scanners.
	TokenPrefix = "rki_"

	// TokenBytes is the entropy of the secret part of the token.
	TokenBytes = 32
)

// Generate produces a fresh invitation ID and bearer token. The two values
// are drawn independently; neither narrows the search space of the other.
func Generate() (id uuid.UUID, token string, err error) {
	randomBytes := make([]byte, TokenBytes)
	if _, err = rand.Read(randomBytes); err != nil {
		return uuid.Nil, "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	token = TokenPrefix + base64.RawURLEncoding.EncodeToString(randomBytes)
	return uuid.New(), token, nil
}

// ValidateTokenFormat reports whether a string has the shape of an
// invitation token. Lookup paths must not branch on this: a malformed token
// and an unknown token are handled identically.
func ValidateTokenFormat(token string) bool {
	if len(token) < len(TokenPrefix) {
		return false
	}

	if token[:len(TokenPrefix)] != TokenPrefix {
		return false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token[len(TokenPrefix):])
	if err != nil {
		return false
	}

	return len(decoded) == TokenBytes
}
