package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/saber-em-movimento/backend/internal/api/dto"
	"github.com/saber-em-movimento/backend/internal/auth"
	"github.com/saber-em-movimento/backend/internal/domain"
	"github.com/saber-em-movimento/backend/internal/service"
	apperrors "github.com/saber-em-movimento/backend/pkg/util"
)

// QuestionsHandler manages question endpoints.
type QuestionsHandler struct {
	service *service.QuestionService
}

// NewQuestionsHandler constructs handler.
func NewQuestionsHandler(questionService *service.QuestionService) *QuestionsHandler {
	return &QuestionsHandler{service: questionService}
}

// List GET /api/questions.
func (h *QuestionsHandler) List(c *fiber.Ctx) error {
	questions, err := h.service.List(c.UserContext(), viewerID(c))
	if err != nil {
		return err
	}
	items := make([]dto.QuestionResponse, 0, len(questions))
	for i := range questions {
		items = append(items, questionResponse(&questions[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /api/questions/:id.
func (h *QuestionsHandler) Get(c *fiber.Ctx) error {
	q, err := h.service.Get(c.UserContext(), viewerID(c), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": questionResponse(q)})
}

// Create POST /api/questions.
func (h *QuestionsHandler) Create(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewAuthError("missing_token")
	}
	var req dto.QuestionRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	q, err := h.service.Create(c.UserContext(), principal.UserID, questionInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": questionResponse(q)})
}

// Update PUT /api/questions/:id.
func (h *QuestionsHandler) Update(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewAuthError("missing_token")
	}
	var req dto.QuestionRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	q, err := h.service.Update(c.UserContext(), principal.UserID, c.Params("id"), questionInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": questionResponse(q)})
}

// SetVisibility PATCH /api/questions/:id/visibility.
func (h *QuestionsHandler) SetVisibility(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewAuthError("missing_token")
	}
	var req dto.VisibilityRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload()
	}
	q, err := h.service.SetVisibility(c.UserContext(), principal.UserID, c.Params("id"), req.Visibility)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": questionResponse(q)})
}

// Delete DELETE /api/questions/:id.
func (h *QuestionsHandler) Delete(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewAuthError("missing_token")
	}
	if err := h.service.Delete(c.UserContext(), principal.UserID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func viewerID(c *fiber.Ctx) string {
	if principal, ok := auth.PrincipalFromContext(c); ok {
		return principal.UserID
	}
	return ""
}

func questionInput(req dto.QuestionRequest) service.QuestionInput {
	return service.QuestionInput{
		Title:       req.Title,
		Statement:   req.Statement,
		Options:     req.Options,
		AnswerIndex: req.AnswerIndex,
		Visibility:  req.Visibility,
	}
}

func questionResponse(q *domain.Question) dto.QuestionResponse {
	return dto.QuestionResponse{
		ID:          q.ID,
		AuthorID:    q.AuthorID,
		Title:       q.Title,
		Statement:   q.Statement,
		Options:     q.Options,
		AnswerIndex: q.AnswerIndex,
		Visibility:  string(q.Visibility),
		CreatedAt:   q.CreatedAt,
		UpdatedAt:   q.UpdatedAt,
	}
}
