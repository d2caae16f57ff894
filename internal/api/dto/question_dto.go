package dto

import "time"

// QuestionRequest payload for creating or replacing a question.
type QuestionRequest struct {
	Title       string   `json:"title"`
	Statement   string   `json:"statement"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answerIndex"`
	Visibility  string   `json:"visibility"`
}

// VisibilityRequest payload for PATCH /questions/:id/visibility.
type VisibilityRequest struct {
	Visibility string `json:"visibility"`
}

// QuestionResponse is the public shape of a question.
type QuestionResponse struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"authorId"`
	Title       string    `json:"title"`
	Statement   string    `json:"statement"`
	Options     []string  `json:"options"`
	AnswerIndex int       `json:"answerIndex"`
	Visibility  string    `json:"visibility"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
