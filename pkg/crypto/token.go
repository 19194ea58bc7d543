package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// SessionTokenBytes is the entropy of an opaque session token (256 bits).
const SessionTokenBytes = 32

// TokenPair is a freshly minted session token. Token goes to the client
// once; only Hash is stored.
type TokenPair struct {
	Token string
	Hash  string
}

// NewSessionToken mints an opaque session token and its storage hash.
func NewSessionToken() (*TokenPair, error) {
	raw := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	return &TokenPair{Token: token, Hash: HashToken(token)}, nil
}

// HashToken is the lookup key for a session token: hex SHA-256.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenMatchesHash reports whether token hashes to storedHash. The
// comparison runs in constant time. Empty inputs never match.
func TokenMatchesHash(token, storedHash string) bool {
	if token == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(storedHash)) == 1
}
