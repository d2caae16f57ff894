package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saber-em-movimento/backend/internal/auth"
	"github.com/saber-em-movimento/backend/internal/directory"
)

func newProvider(t *testing.T, kind TokenKind) (*LocalProvider, *directory.Memory) {
	t.Helper()
	dir := directory.NewMemory()
	require.NoError(t, dir.EnsureIndexes(context.Background(), AccountIndexes()...))
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	return NewLocalProvider(dir, auth.NewHasher(4), tokens, kind, zap.NewNop()), dir
}

func TestLocalProvider_CreateAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, dir := newProvider(t, TokenKindJWT)

	id, err := p.CreateAccount(ctx, "12345678901_student_abc@example.com", "s3cret")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := dir.GetByKey(ctx, AccountsCollection, id)
	require.NoError(t, err)
	assert.Equal(t, "12345678901_student_abc@example.com", doc.String("identifier"))
	assert.NotEqual(t, "s3cret", doc.String("secretHash"))

	_, err = p.CreateAccount(ctx, "12345678901_STUDENT_abc@example.com", "other")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestLocalProvider_CreateAccountRejectsMalformedIdentifier(t *testing.T) {
	t.Parallel()
	p, _ := newProvider(t, TokenKindJWT)

	for _, identifier := range []string{"", "not-an-email", "Ana <ana@example.com>", "a@b@c"} {
		_, err := p.CreateAccount(context.Background(), identifier, "x")
		assert.ErrorIs(t, err, ErrInvalidIdentifier, identifier)
	}
}

func TestLocalProvider_JWTRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, _ := newProvider(t, TokenKindJWT)

	id, err := p.CreateAccount(ctx, "a@example.com", "x")
	require.NoError(t, err)

	tok, err := p.IssueToken(ctx, id)
	require.NoError(t, err)
	assert.True(t, tok.ExpiresAt.After(time.Now()))

	claims, err := p.VerifyToken(ctx, tok.Value)
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)

	_, err = p.VerifyToken(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign := auth.NewTokenManager("someone-else", time.Hour)
	foreignTok, _, err := foreign.GenerateToken(id)
	require.NoError(t, err)
	_, err = p.VerifyToken(ctx, foreignTok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLocalProvider_ExpiredTokenIsDistinct(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := directory.NewMemory()
	tokens := auth.NewTokenManager("test-secret", time.Nanosecond)
	p := NewLocalProvider(dir, auth.NewHasher(4), tokens, TokenKindJWT, zap.NewNop())

	id, err := p.CreateAccount(ctx, "a@example.com", "x")
	require.NoError(t, err)
	tok, err := p.IssueToken(ctx, id)
	require.NoError(t, err)

	time.Sleep(1100 * time.Millisecond)
	_, err = p.VerifyToken(ctx, tok.Value)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestLocalProvider_OpaqueTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, _ := newProvider(t, TokenKindOpaque)

	id, err := p.CreateAccount(ctx, "a@example.com", "x")
	require.NoError(t, err)

	first, err := p.IssueToken(ctx, id)
	require.NoError(t, err)
	second, err := p.IssueToken(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, first.Value, second.Value)
	assert.Len(t, first.Value, 64)

	_, err = p.VerifyToken(ctx, first.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLocalProvider_UpdateAndDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, dir := newProvider(t, TokenKindJWT)

	id, err := p.CreateAccount(ctx, "a@example.com", "old")
	require.NoError(t, err)

	require.NoError(t, p.UpdateAccountSecret(ctx, id, "new"))
	doc, err := dir.GetByKey(ctx, AccountsCollection, id)
	require.NoError(t, err)
	assert.True(t, auth.NewHasher(4).Verify("new", doc.String("secretHash")))

	require.NoError(t, p.DeleteAccount(ctx, id))
	assert.ErrorIs(t, p.DeleteAccount(ctx, id), ErrAccountNotFound)
	assert.ErrorIs(t, p.UpdateAccountSecret(ctx, id, "x"), ErrAccountNotFound)

	_, err = p.IssueToken(ctx, id)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	// the identifier is free again
	_, err = p.CreateAccount(ctx, "a@example.com", "again")
	require.NoError(t, err)
}
