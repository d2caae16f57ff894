package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saber-em-movimento/backend/internal/domain"
	"github.com/saber-em-movimento/backend/internal/repository"
	apperrors "github.com/saber-em-movimento/backend/pkg/util"
)

const (
	minQuestionOptions = 2
	maxQuestionOptions = 6
)

// QuestionService manages teacher-authored questions.
type QuestionService struct {
	questions   repository.QuestionRepository
	logger      *zap.Logger
	callTimeout time.Duration
}

// NewQuestionService builds the service.
func NewQuestionService(questions repository.QuestionRepository, logger *zap.Logger, callTimeout time.Duration) *QuestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuestionService{questions: questions, logger: logger, callTimeout: callTimeout}
}

// QuestionInput describes the editable fields of a question. An empty
// Visibility means public.
type QuestionInput struct {
	Title       string
	Statement   string
	Options     []string
	AnswerIndex int
	Visibility  string
}

// Create stores a new question authored by authorID.
func (s *QuestionService) Create(ctx context.Context, authorID string, in QuestionInput) (*domain.Question, error) {
	q, err := buildQuestion(in)
	if err != nil {
		return nil, err
	}
	q.ID = uuid.NewString()
	q.AuthorID = authorID

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.questions.Create(callCtx, q); err != nil {
		return nil, apperrors.NewDependencyError("directory_unavailable", err)
	}
	s.logger.Info("question created", zap.String("question_id", q.ID), zap.String("user_id", authorID))
	return q, nil
}

// Update replaces the content of a question owned by authorID.
func (s *QuestionService) Update(ctx context.Context, authorID, id string, in QuestionInput) (*domain.Question, error) {
	existing, err := s.owned(ctx, authorID, id)
	if err != nil {
		return nil, err
	}
	q, err := buildQuestion(in)
	if err != nil {
		return nil, err
	}
	q.ID = existing.ID
	q.AuthorID = existing.AuthorID
	q.CreatedAt = existing.CreatedAt

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.questions.Update(callCtx, q); err != nil {
		return nil, mapQuestionErr(err)
	}
	return q, nil
}

// SetVisibility toggles a question between public and private.
func (s *QuestionService) SetVisibility(ctx context.Context, authorID, id, visibility string) (*domain.Question, error) {
	v := domain.Visibility(strings.ToLower(strings.TrimSpace(visibility)))
	if !v.Valid() {
		return nil, apperrors.NewValidationError("invalid_visibility", "visibility must be public or private")
	}
	q, err := s.owned(ctx, authorID, id)
	if err != nil {
		return nil, err
	}
	q.Visibility = v

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.questions.Update(callCtx, q); err != nil {
		return nil, mapQuestionErr(err)
	}
	return q, nil
}

// Delete removes a question owned by authorID.
func (s *QuestionService) Delete(ctx context.Context, authorID, id string) error {
	if _, err := s.owned(ctx, authorID, id); err != nil {
		return err
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.questions.Delete(callCtx, id); err != nil {
		return mapQuestionErr(err)
	}
	s.logger.Info("question deleted", zap.String("question_id", id), zap.String("user_id", authorID))
	return nil
}

// Get returns a question visible to viewerID. Anonymous viewers pass "".
func (s *QuestionService) Get(ctx context.Context, viewerID, id string) (*domain.Question, error) {
	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Visibility != domain.VisibilityPublic && q.AuthorID != viewerID {
		return nil, apperrors.NewNotFound("question", nil)
	}
	return q, nil
}

// List returns public questions plus the viewer's own private ones, newest
// first.
func (s *QuestionService) List(ctx context.Context, viewerID string) ([]domain.Question, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	out, err := s.questions.ListByVisibility(callCtx, domain.VisibilityPublic)
	if err != nil {
		return nil, apperrors.NewDependencyError("directory_unavailable", err)
	}
	if viewerID != "" {
		own, err := s.questions.ListByAuthor(callCtx, viewerID)
		if err != nil {
			return nil, apperrors.NewDependencyError("directory_unavailable", err)
		}
		for _, q := range own {
			if q.Visibility == domain.VisibilityPrivate {
				out = append(out, q)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *QuestionService) owned(ctx context.Context, authorID, id string) (*domain.Question, error) {
	q, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.AuthorID != authorID {
		return nil, apperrors.NewForbidden("only the author can change this question")
	}
	return q, nil
}

func (s *QuestionService) load(ctx context.Context, id string) (*domain.Question, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	q, err := s.questions.GetByID(callCtx, id)
	if err != nil {
		return nil, mapQuestionErr(err)
	}
	return q, nil
}

func (s *QuestionService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.callTimeout)
}

func buildQuestion(in QuestionInput) (*domain.Question, error) {
	title := sanitizeText(in.Title)
	statement := sanitizeText(in.Statement)
	if title == "" || statement == "" {
		return nil, apperrors.NewValidationError("missing_fields", "title and statement are required")
	}

	if len(in.Options) < minQuestionOptions || len(in.Options) > maxQuestionOptions {
		return nil, apperrors.NewValidationError("invalid_options", "a question needs between 2 and 6 options")
	}
	options := make([]string, 0, len(in.Options))
	for _, opt := range in.Options {
		opt = sanitizeText(opt)
		if opt == "" {
			return nil, apperrors.NewValidationError("invalid_options", "options must not be empty")
		}
		options = append(options, opt)
	}
	if in.AnswerIndex < 0 || in.AnswerIndex >= len(options) {
		return nil, apperrors.NewValidationError("invalid_answer_index", "answerIndex must point at an option")
	}

	visibility := domain.Visibility(strings.ToLower(strings.TrimSpace(in.Visibility)))
	if visibility == "" {
		visibility = domain.VisibilityPublic
	}
	if !visibility.Valid() {
		return nil, apperrors.NewValidationError("invalid_visibility", "visibility must be public or private")
	}

	return &domain.Question{
		Title:       title,
		Statement:   statement,
		Options:     options,
		AnswerIndex: in.AnswerIndex,
		Visibility:  visibility,
	}, nil
}

func mapQuestionErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("question", nil)
	}
	return apperrors.NewDependencyError("directory_unavailable", err)
}
