package repository

import (
	"context"
	"time"

	"github.com/saber-em-movimento/backend/internal/directory"
	"github.com/saber-em-movimento/backend/internal/domain"
)

// QuestionsCollection stores teacher-authored questions.
const QuestionsCollection = "questions"

// QuestionRepository persists questions.
type QuestionRepository interface {
	Create(ctx context.Context, q *domain.Question) error
	Update(ctx context.Context, q *domain.Question) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Question, error)
	ListByVisibility(ctx context.Context, visibility domain.Visibility) ([]domain.Question, error)
	ListByAuthor(ctx context.Context, authorID string) ([]domain.Question, error)
}

// QuestionIndexes lists the indexes question listings rely on.
func QuestionIndexes() []directory.IndexSpec {
	return []directory.IndexSpec{
		{Name: "questions_author", Collection: QuestionsCollection, Fields: []string{"authorId"}},
		{Name: "questions_visibility", Collection: QuestionsCollection, Fields: []string{"visibility"}},
	}
}

type questionRepository struct {
	dir directory.Directory
	now func() time.Time
}

// NewQuestionRepository constructs repository.
func NewQuestionRepository(dir directory.Directory) QuestionRepository {
	return &questionRepository{dir: dir, now: time.Now}
}

func (r *questionRepository) Create(ctx context.Context, q *domain.Question) error {
	now := r.now().UTC()
	q.CreatedAt = now
	q.UpdatedAt = now
	return mapDirectoryErr(r.dir.Insert(ctx, QuestionsCollection, q.ID, questionToDocument(q)))
}

func (r *questionRepository) Update(ctx context.Context, q *domain.Question) error {
	q.UpdatedAt = r.now().UTC()
	doc := questionToDocument(q)
	delete(doc, "createdAt")
	return mapDirectoryErr(r.dir.Merge(ctx, QuestionsCollection, q.ID, doc))
}

func (r *questionRepository) Delete(ctx context.Context, id string) error {
	return mapDirectoryErr(r.dir.Delete(ctx, QuestionsCollection, id))
}

func (r *questionRepository) GetByID(ctx context.Context, id string) (*domain.Question, error) {
	doc, err := r.dir.GetByKey(ctx, QuestionsCollection, id)
	if err != nil {
		return nil, mapDirectoryErr(err)
	}
	q := questionFromDocument(doc)
	return &q, nil
}

func (r *questionRepository) ListByVisibility(ctx context.Context, visibility domain.Visibility) ([]domain.Question, error) {
	return r.list(ctx, directory.Eq("visibility", string(visibility)))
}

func (r *questionRepository) ListByAuthor(ctx context.Context, authorID string) ([]domain.Question, error) {
	return r.list(ctx, directory.Eq("authorId", authorID))
}

func (r *questionRepository) list(ctx context.Context, filters ...directory.Filter) ([]domain.Question, error) {
	docs, err := r.dir.QueryEquals(ctx, QuestionsCollection, filters...)
	if err != nil {
		return nil, mapDirectoryErr(err)
	}
	out := make([]domain.Question, 0, len(docs))
	for _, doc := range docs {
		out = append(out, questionFromDocument(doc))
	}
	return out, nil
}

func questionToDocument(q *domain.Question) directory.Document {
	return directory.Document{
		"id":          q.ID,
		"authorId":    q.AuthorID,
		"title":       q.Title,
		"statement":   q.Statement,
		"options":     append([]string(nil), q.Options...),
		"answerIndex": q.AnswerIndex,
		"visibility":  string(q.Visibility),
		"createdAt":   q.CreatedAt,
		"updatedAt":   q.UpdatedAt,
	}
}

func questionFromDocument(doc directory.Document) domain.Question {
	return domain.Question{
		ID:          doc.String("id"),
		AuthorID:    doc.String("authorId"),
		Title:       doc.String("title"),
		Statement:   doc.String("statement"),
		Options:     doc.Strings("options"),
		AnswerIndex: doc.Int("answerIndex"),
		Visibility:  domain.Visibility(doc.String("visibility")),
		CreatedAt:   doc.Time("createdAt"),
		UpdatedAt:   doc.Time("updatedAt"),
	}
}
