package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/saber-em-movimento/backend/internal/domain"
)

// FragmentLength is the number of digest characters embedded in an identifier.
const FragmentLength = 16

// IdentifierSynthesizer builds the pseudo-email used as the identity
// provider account name: {nationalId}_{role}_{fragment}@{domain}.
//
// The fragment is an HMAC of the inputs under a server-side key, so the same
// (nationalId, role, secret) always yields the same identifier.
type IdentifierSynthesizer struct {
	key    []byte
	domain string
}

// NewIdentifierSynthesizer returns a synthesizer keyed with key.
func NewIdentifierSynthesizer(key, domain string) *IdentifierSynthesizer {
	return &IdentifierSynthesizer{key: []byte(key), domain: strings.ToLower(domain)}
}

// Synthesize derives the identifier for the given inputs.
func (s *IdentifierSynthesizer) Synthesize(nationalID string, role domain.Role, secret string) string {
	mac := hmac.New(sha256.New, s.key)
	// length prefixes keep ("1","2x") and ("12","x") apart
	for _, part := range []string{nationalID, string(role), secret} {
		fmt.Fprintf(mac, "%d:%s;", len(part), part)
	}
	fragment := Fragment(hex.EncodeToString(mac.Sum(nil)))
	return strings.ToLower(fmt.Sprintf("%s_%s_%s@%s", nationalID, role, fragment, s.domain))
}

// Fragment keeps the ASCII letters and digits of digest and returns at most
// FragmentLength of them.
func Fragment(digest string) string {
	var sb strings.Builder
	sb.Grow(FragmentLength)
	for i := 0; i < len(digest) && sb.Len() < FragmentLength; i++ {
		c := digest[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
