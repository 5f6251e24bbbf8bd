package security

import (
	"fmt"

	"github.com/alexedwards/argon2id"
)

// PasswordHasher is the opaque hash/verify capability used by the credential check.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(digest string, secret string) (bool, error)
}

type Argon2Hasher struct {
	params *argon2id.Params
}

var defaultParams = &argon2id.Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{params: defaultParams}
}

// NewArgon2HasherWithParams is mostly useful in tests where the default cost is too slow.
func NewArgon2HasherWithParams(params *argon2id.Params) *Argon2Hasher {
	return &Argon2Hasher{params: params}
}

func (h *Argon2Hasher) Hash(secret string) (string, error) {
	digest, err := argon2id.CreateHash(secret, h.params)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return digest, nil
}

func (h *Argon2Hasher) Verify(digest string, secret string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(secret, digest)
	if err != nil {
		return false, fmt.Errorf("verify password: %w", err)
	}
	return match, nil
}
