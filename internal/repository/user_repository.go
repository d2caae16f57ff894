package repository

import (
	"context"
	"time"

	"github.com/saber-em-movimento/backend/internal/directory"
	"github.com/saber-em-movimento/backend/internal/domain"
)

// UsersCollection holds one document per registered person.
const UsersCollection = "users"

const (
	fieldUserID         = "userId"
	fieldNationalID     = "nationalId"
	fieldRole           = "role"
	fieldFullName       = "fullName"
	fieldBirthDate      = "birthDate"
	fieldIdentifier     = "derivedIdentifier"
	fieldPasswordHash   = "passwordHash"
	fieldCurrentToken   = "currentToken"
	fieldTokenExpiresAt = "currentTokenExpiresAt"
	fieldCreatedAt      = "createdAt"
	fieldUpdatedAt      = "updatedAt"
)

// UserRepository defines persistence access for user records.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	GetByNationalIDAndRole(ctx context.Context, nationalID string, role domain.Role) (*domain.User, error)
	GetByCurrentToken(ctx context.Context, token string) (*domain.User, error)
	SetCurrentToken(ctx context.Context, id, token string, expiresAt *time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// UserIndexes lists the indexes the user lookups rely on.
func UserIndexes() []directory.IndexSpec {
	return []directory.IndexSpec{
		{Name: "users_identifier_uq", Collection: UsersCollection, Fields: []string{fieldIdentifier}, Unique: true},
		{Name: "users_national_id_role_uq", Collection: UsersCollection, Fields: []string{fieldNationalID, fieldRole}, Unique: true},
		{Name: "users_current_token", Collection: UsersCollection, Fields: []string{fieldCurrentToken}},
	}
}

type userRepository struct {
	dir directory.Directory
	now func() time.Time
}

// NewUserRepository returns a directory-backed implementation.
func NewUserRepository(dir directory.Directory) UserRepository {
	return &userRepository{dir: dir, now: time.Now}
}

// Create stores the record under its identity provider id.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	now := r.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	return mapDirectoryErr(r.dir.Insert(ctx, UsersCollection, user.ID, userToDocument(user)))
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	doc, err := r.dir.GetByKey(ctx, UsersCollection, id)
	if err != nil {
		return nil, mapDirectoryErr(err)
	}
	return userFromDocument(id, doc), nil
}

func (r *userRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	return r.findOne(ctx, directory.Eq(fieldIdentifier, identifier))
}

func (r *userRepository) GetByNationalIDAndRole(ctx context.Context, nationalID string, role domain.Role) (*domain.User, error) {
	return r.findOne(ctx, directory.Eq(fieldNationalID, nationalID), directory.Eq(fieldRole, string(role)))
}

func (r *userRepository) GetByCurrentToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, directory.Eq(fieldCurrentToken, token))
}

// SetCurrentToken records the last issued token. An empty token clears it.
func (r *userRepository) SetCurrentToken(ctx context.Context, id, token string, expiresAt *time.Time) error {
	fields := directory.Document{
		fieldCurrentToken:   nil,
		fieldTokenExpiresAt: nil,
		fieldUpdatedAt:      r.now().UTC(),
	}
	if token != "" {
		fields[fieldCurrentToken] = token
		if expiresAt != nil {
			fields[fieldTokenExpiresAt] = expiresAt.UTC()
		}
	}
	return mapDirectoryErr(r.dir.Merge(ctx, UsersCollection, id, fields))
}

func (r *userRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return mapDirectoryErr(r.dir.Merge(ctx, UsersCollection, id, directory.Document{
		fieldPasswordHash: hash,
		fieldUpdatedAt:    r.now().UTC(),
	}))
}

func (r *userRepository) findOne(ctx context.Context, filters ...directory.Filter) (*domain.User, error) {
	docs, err := r.dir.QueryEquals(ctx, UsersCollection, filters...)
	if err != nil {
		return nil, mapDirectoryErr(err)
	}
	doc, err := first(docs)
	if err != nil {
		return nil, err
	}
	return userFromDocument(doc.String(fieldUserID), doc), nil
}

func userToDocument(u *domain.User) directory.Document {
	doc := directory.Document{
		fieldUserID:       u.ID,
		fieldNationalID:   u.NationalID,
		fieldRole:         string(u.Role),
		fieldFullName:     u.FullName,
		fieldBirthDate:    u.BirthDate,
		fieldIdentifier:   u.Identifier,
		fieldPasswordHash: u.PasswordHash,
		fieldCreatedAt:    u.CreatedAt,
		fieldUpdatedAt:    u.UpdatedAt,
	}
	if u.CurrentToken != "" {
		doc[fieldCurrentToken] = u.CurrentToken
	}
	if u.CurrentTokenExpiresAt != nil {
		doc[fieldTokenExpiresAt] = u.CurrentTokenExpiresAt.UTC()
	}
	return doc
}

func userFromDocument(id string, doc directory.Document) *domain.User {
	if id == "" {
		id = doc.String(fieldUserID)
	}
	return &domain.User{
		ID:                    id,
		NationalID:            doc.String(fieldNationalID),
		Role:                  domain.Role(doc.String(fieldRole)),
		FullName:              doc.String(fieldFullName),
		BirthDate:             doc.String(fieldBirthDate),
		Identifier:            doc.String(fieldIdentifier),
		PasswordHash:          doc.String(fieldPasswordHash),
		CurrentToken:          doc.String(fieldCurrentToken),
		CurrentTokenExpiresAt: doc.TimePtr(fieldTokenExpiresAt),
		CreatedAt:             doc.Time(fieldCreatedAt),
		UpdatedAt:             doc.Time(fieldUpdatedAt),
	}
}
