package domain

import "time"

// Role is the closed set of account kinds a person can register as.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// User is one registered person. ID is the identity provider's account id
// and doubles as the directory key. NationalID, Role and Identifier never
// change after registration.
type User struct {
	ID                    string
	NationalID            string
	Role                  Role
	FullName              string
	BirthDate             string
	Identifier            string
	PasswordHash          string
	CurrentToken          string
	CurrentTokenExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
