package domain

import "time"

// Visibility controls who can list a question.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Question is a multiple-choice exercise authored by a teacher.
type Question struct {
	ID          string
	AuthorID    string
	Title       string
	Statement   string
	Options     []string
	AnswerIndex int
	Visibility  Visibility
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
