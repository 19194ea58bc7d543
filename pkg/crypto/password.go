package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrMalformedPasswordHash   = errors.New("malformed password hash")
	ErrUnsupportedPasswordHash = errors.New("unsupported password hash")
)

// PasswordHandler hashes credential passwords. NeedsRehash reports whether a
// stored hash was made with weaker parameters than the current ones, so the
// caller can upgrade it after a successful sign-in.
type PasswordHandler interface {
	Hash(password string) (string, error)
	Verify(password, hash string) (bool, error)
	NeedsRehash(hash string) bool
}

var _ PasswordHandler = (*Argon2)(nil)

// Argon2 hashes with argon2id into the PHC string format
// $argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>.
type Argon2 struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32 // unused by Verify
	KeyLength   uint32
}

// NewArgon2 uses the OWASP recommended argon2id parameters.
//
// @ref https://cheatsheetseries.owasp.org/cheatsheets/Password_Storage_Cheat_Sheet.html
func NewArgon2() *Argon2 {
	return &Argon2{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (a *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, a.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, a.Iterations, a.Memory, a.Parallelism, a.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, a.Memory, a.Iterations, a.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// Verify recomputes the key with the parameters recorded in encoded, not
// the receiver's, so hashes made before a parameter change keep working.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	h, err := parseArgon2(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), h.salt, h.Iterations, h.Memory, h.Parallelism, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(h.key, key) == 1, nil
}

// NeedsRehash is true when encoded is unreadable or any cost parameter is
// below the receiver's.
func (a *Argon2) NeedsRehash(encoded string) bool {
	h, err := parseArgon2(encoded)
	if err != nil {
		return true
	}
	return h.version != argon2.Version ||
		h.Memory < a.Memory ||
		h.Iterations < a.Iterations ||
		h.Parallelism < a.Parallelism ||
		uint32(len(h.key)) < a.KeyLength
}

type argon2Hash struct {
	Argon2
	version int
	salt    []byte
	key     []byte
}

func parseArgon2(encoded string) (*argon2Hash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrMalformedPasswordHash
	}
	if parts[1] != "argon2id" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPasswordHash, parts[1])
	}

	h := &argon2Hash{}
	if _, err := fmt.Sscanf(parts[2], "v=%d", &h.version); err != nil {
		return nil, fmt.Errorf("%w: version: %v", ErrMalformedPasswordHash, err)
	}
	var p uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.Memory, &h.Iterations, &p); err != nil {
		return nil, fmt.Errorf("%w: parameters: %v", ErrMalformedPasswordHash, err)
	}
	if p == 0 || p > 255 {
		return nil, fmt.Errorf("%w: parallelism %d", ErrMalformedPasswordHash, p)
	}
	h.Parallelism = uint8(p)

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrMalformedPasswordHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("%w: key: %v", ErrMalformedPasswordHash, err)
	}
	if len(h.key) == 0 {
		return nil, fmt.Errorf("%w: empty key", ErrMalformedPasswordHash)
	}
	return h, nil
}
