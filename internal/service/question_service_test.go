package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saber-em-movimento/backend/internal/directory"
	"github.com/saber-em-movimento/backend/internal/domain"
	"github.com/saber-em-movimento/backend/internal/repository"
	apperrors "github.com/saber-em-movimento/backend/pkg/util"
)

func newQuestionService(t *testing.T) *QuestionService {
	t.Helper()
	dir := directory.NewMemory()
	require.NoError(t, dir.EnsureIndexes(context.Background(), repository.QuestionIndexes()...))
	return NewQuestionService(repository.NewQuestionRepository(dir), nil, time.Second)
}

func sampleQuestion() QuestionInput {
	return QuestionInput{
		Title:       "Capitals",
		Statement:   "What is the capital of Brazil?",
		Options:     []string{"Rio de Janeiro", "Brasília", "São Paulo"},
		AnswerIndex: 1,
	}
}

func TestQuestionService_CreateDefaultsToPublic(t *testing.T) {
	t.Parallel()
	svc := newQuestionService(t)

	q, err := svc.Create(context.Background(), "teacher-1", sampleQuestion())
	require.NoError(t, err)
	assert.NotEmpty(t, q.ID)
	assert.Equal(t, domain.VisibilityPublic, q.Visibility)
	assert.Equal(t, "teacher-1", q.AuthorID)
}

func TestQuestionService_Validation(t *testing.T) {
	t.Parallel()
	svc := newQuestionService(t)

	cases := map[string]struct {
		mutate func(*QuestionInput)
		code   string
	}{
		"no title":        {func(in *QuestionInput) { in.Title = " " }, "missing_fields"},
		"markup title":    {func(in *QuestionInput) { in.Title = "<i></i>" }, "missing_fields"},
		"one option":      {func(in *QuestionInput) { in.Options = []string{"a"} }, "invalid_options"},
		"seven options":   {func(in *QuestionInput) { in.Options = []string{"a", "b", "c", "d", "e", "f", "g"} }, "invalid_options"},
		"empty option":    {func(in *QuestionInput) { in.Options = []string{"a", ""} }, "invalid_options"},
		"answer too high": {func(in *QuestionInput) { in.AnswerIndex = 3 }, "invalid_answer_index"},
		"negative answer": {func(in *QuestionInput) { in.AnswerIndex = -1 }, "invalid_answer_index"},
		"bad visibility":  {func(in *QuestionInput) { in.Visibility = "friends" }, "invalid_visibility"},
	}
	for name, tc := range cases {
		in := sampleQuestion()
		tc.mutate(&in)
		_, err := svc.Create(context.Background(), "teacher-1", in)
		require.Error(t, err, name)
		assert.Equal(t, tc.code, apperrors.CodeOf(err), name)
	}
}

func TestQuestionService_SanitizesText(t *testing.T) {
	t.Parallel()
	svc := newQuestionService(t)

	in := sampleQuestion()
	in.Statement = `<img src=x onerror=alert(1)>Which one?`
	q, err := svc.Create(context.Background(), "teacher-1", in)
	require.NoError(t, err)
	assert.Equal(t, "Which one?", q.Statement)
}

func TestQuestionService_OnlyAuthorMutates(t *testing.T) {
	t.Parallel()
	svc := newQuestionService(t)
	ctx := context.Background()

	q, err := svc.Create(ctx, "teacher-1", sampleQuestion())
	require.NoError(t, err)

	_, err = svc.Update(ctx, "teacher-2", q.ID, sampleQuestion())
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
	_, err = svc.SetVisibility(ctx, "teacher-2", q.ID, "private")
	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
	assert.True(t, apperrors.IsKind(svc.Delete(ctx, "teacher-2", q.ID), apperrors.KindForbidden))

	edit := sampleQuestion()
	edit.Title = "Capital cities"
	updated, err := svc.Update(ctx, "teacher-1", q.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, "Capital cities", updated.Title)
	assert.Equal(t, q.CreatedAt, updated.CreatedAt)

	require.NoError(t, svc.Delete(ctx, "teacher-1", q.ID))
	_, err = svc.Get(ctx, "teacher-1", q.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestQuestionService_ListHonorsVisibility(t *testing.T) {
	t.Parallel()
	svc := newQuestionService(t)
	ctx := context.Background()

	public, err := svc.Create(ctx, "teacher-1", sampleQuestion())
	require.NoError(t, err)
	private, err := svc.Create(ctx, "teacher-1", sampleQuestion())
	require.NoError(t, err)
	_, err = svc.SetVisibility(ctx, "teacher-1", private.ID, "private")
	require.NoError(t, err)

	anonymous, err := svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, anonymous, 1)
	assert.Equal(t, public.ID, anonymous[0].ID)

	other, err := svc.List(ctx, "student-1")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	own, err := svc.List(ctx, "teacher-1")
	require.NoError(t, err)
	assert.Len(t, own, 2)

	_, err = svc.Get(ctx, "student-1", private.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	got, err := svc.Get(ctx, "teacher-1", private.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.VisibilityPrivate, got.Visibility)
}
