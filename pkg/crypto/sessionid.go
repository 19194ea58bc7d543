package crypto

import (
	"crypto/rand"
	"fmt"
)

// SessionIDLength is the length of a session id. Each character carries six
// bits, so an id holds 132 bits of entropy.
const SessionIDLength = 22

// 64 symbols, so a random byte masked to six bits indexes it without bias.
const sessionIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// NewSessionID returns a random URL-safe session id. Ids name a session in
// logs, stream subscriptions and sign-out fan-out; they never authenticate.
func NewSessionID() (string, error) {
	id := make([]byte, SessionIDLength)
	if _, err := rand.Read(id); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	for i, b := range id {
		id[i] = sessionIDAlphabet[b&0x3f]
	}
	return string(id), nil
}
