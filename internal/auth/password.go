package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor used when none is configured.
const DefaultBcryptCost = 10

// MaxSecretBytes is the longest secret bcrypt accepts.
const MaxSecretBytes = 72

// ErrHashFailed is returned when the hashing primitive itself fails. It never
// wraps anything derived from the secret.
var ErrHashFailed = errors.New("hashing failed")

// Hasher hashes and verifies secrets with bcrypt at a fixed cost.
type Hasher struct {
	cost int

	dummyOnce   sync.Once
	dummyDigest []byte
}

// NewHasher returns a hasher; non-positive costs fall back to DefaultBcryptCost.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a salted digest of secret.
func (h *Hasher) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrHashFailed, bcryptReason(err))
	}
	return string(hashed), nil
}

// Verify reports whether secret produced digest. Secrets longer than
// MaxSecretBytes never verify, since bcrypt only compares their prefix.
func (h *Hasher) Verify(secret, digest string) bool {
	if digest == "" || len(secret) > MaxSecretBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

// VerifyMissing spends the same work as Verify against a fixed digest and
// always fails. Callers use it when there is no stored digest to compare, so
// an unknown account costs as much as a wrong secret.
func (h *Hasher) VerifyMissing(secret string) bool {
	h.dummyOnce.Do(func() {
		h.dummyDigest, _ = bcrypt.GenerateFromPassword([]byte("no-such-account"), h.cost)
	})
	if len(secret) > MaxSecretBytes {
		secret = secret[:MaxSecretBytes]
	}
	_ = bcrypt.CompareHashAndPassword(h.dummyDigest, []byte(secret))
	return false
}

func bcryptReason(err error) string {
	switch {
	case errors.Is(err, bcrypt.ErrPasswordTooLong):
		return "secret too long"
	case errors.As(err, new(bcrypt.InvalidCostError)):
		return "invalid cost"
	default:
		return "primitive error"
	}
}
