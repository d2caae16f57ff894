package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/saber-em-movimento/backend/internal/directory"
	"github.com/saber-em-movimento/backend/internal/domain"
)

// PasswordResetsCollection stores reset grants; only token digests are kept.
const PasswordResetsCollection = "password_resets"

// PasswordResetRepository manages password reset token persistence.
type PasswordResetRepository interface {
	Create(ctx context.Context, reset *domain.PasswordReset) error
	GetByToken(ctx context.Context, token string) (*domain.PasswordReset, error)
	MarkUsed(ctx context.Context, id string) error
}

// PasswordResetIndexes lists the indexes reset lookups rely on.
func PasswordResetIndexes() []directory.IndexSpec {
	return []directory.IndexSpec{
		{Name: "password_resets_token_uq", Collection: PasswordResetsCollection, Fields: []string{"tokenHash"}, Unique: true},
	}
}

type passwordResetRepository struct {
	dir directory.Directory
	now func() time.Time
}

// NewPasswordResetRepository constructs repository.
func NewPasswordResetRepository(dir directory.Directory) PasswordResetRepository {
	return &passwordResetRepository{dir: dir, now: time.Now}
}

func (r *passwordResetRepository) Create(ctx context.Context, reset *domain.PasswordReset) error {
	reset.CreatedAt = r.now().UTC()
	return mapDirectoryErr(r.dir.Insert(ctx, PasswordResetsCollection, reset.ID, directory.Document{
		"id":        reset.ID,
		"userId":    reset.UserID,
		"tokenHash": tokenDigest(reset.Token),
		"expiresAt": reset.ExpiresAt.UTC(),
		"usedAt":    nil,
		"createdAt": reset.CreatedAt,
	}))
}

func (r *passwordResetRepository) GetByToken(ctx context.Context, token string) (*domain.PasswordReset, error) {
	docs, err := r.dir.QueryEquals(ctx, PasswordResetsCollection, directory.Eq("tokenHash", tokenDigest(token)))
	if err != nil {
		return nil, mapDirectoryErr(err)
	}
	doc, err := first(docs)
	if err != nil {
		return nil, err
	}
	return &domain.PasswordReset{
		ID:        doc.String("id"),
		UserID:    doc.String("userId"),
		Token:     token,
		ExpiresAt: doc.Time("expiresAt"),
		UsedAt:    doc.TimePtr("usedAt"),
		CreatedAt: doc.Time("createdAt"),
	}, nil
}

func (r *passwordResetRepository) MarkUsed(ctx context.Context, id string) error {
	return mapDirectoryErr(r.dir.Merge(ctx, PasswordResetsCollection, id, directory.Document{
		"usedAt": r.now().UTC(),
	}))
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
