package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"studyforge/internal/features"
	"studyforge/internal/logging"
	"studyforge/internal/middleware"
	"studyforge/internal/services"
)

// FeatureHandler serves the catalog and runs feature controllers
type FeatureHandler struct {
	registry    *features.Registry
	controllers *services.ControllerSet
}

// NewFeatureHandler creates a new feature handler
func NewFeatureHandler(registry *features.Registry, controllers *services.ControllerSet) *FeatureHandler {
	return &FeatureHandler{registry: registry, controllers: controllers}
}

// GenerateRequest is the body of a submission. Input is a JSON string for
// text and choice features, or an object of named fields for pair features.
type GenerateRequest struct {
	Input json.RawMessage `json:"input"`
}

// QuizScoreRequest replays answers against the caller's last generated quiz
type QuizScoreRequest struct {
	Answers []string `json:"answers"`
}

// List returns every feature in catalog order
// GET /api/features
func (h *FeatureHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"features": h.registry.All(),
	})
}

// Get returns one feature descriptor
// GET /api/features/:id
func (h *FeatureHandler) Get(c *fiber.Ctx) error {
	d, ok := h.registry.Get(c.Params("id"))
	if !ok {
		return featureNotFound(c)
	}
	return c.JSON(d)
}

// Categories returns the feature groups
// GET /api/categories
func (h *FeatureHandler) Categories(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"categories": h.registry.Categories(),
	})
}

func featureNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "Feature not found",
	})
}

// Generate submits input to a feature
// POST /api/features/:id/generate
func (h *FeatureHandler) Generate(c *fiber.Ctx) error {
	ctrl, err := h.controllers.Get(c.Params("id"))
	if err != nil {
		return featureNotFound(c)
	}

	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	session := middleware.SessionFrom(c)
	state, err := ctrl.Submit(c.UserContext(), session, session.UserID, req.Input)
	switch {
	case err == nil:
		return c.JSON(state)
	case errors.Is(err, services.ErrEmptyInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Please provide some input first.",
			"state": state,
		})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
			"state": state,
		})
	case errors.Is(err, services.ErrSubmissionInFlight):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "A request for this tool is already running.",
			"state": state,
		})
	default:
		logging.WithRequest(c).Warn("generation failed", "feature_id", ctrl.Descriptor().ID, "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": state.Error,
			"state": state,
		})
	}
}

// State returns the caller's current state of a feature
// GET /api/features/:id/state
func (h *FeatureHandler) State(c *fiber.Ctx) error {
	ctrl, err := h.controllers.Get(c.Params("id"))
	if err != nil {
		return featureNotFound(c)
	}
	return c.JSON(ctrl.State(middleware.SessionFrom(c).UserID))
}

// Reset returns the caller's state to idle
// DELETE /api/features/:id/state
func (h *FeatureHandler) Reset(c *fiber.Ctx) error {
	ctrl, err := h.controllers.Get(c.Params("id"))
	if err != nil {
		return featureNotFound(c)
	}
	caller := middleware.SessionFrom(c).UserID
	ctrl.Reset(caller)
	return c.JSON(ctrl.State(caller))
}

// QuizScore scores answers against the caller's last generated practice quiz
// POST /api/features/practice-quiz/score
func (h *FeatureHandler) QuizScore(c *fiber.Ctx) error {
	ctrl, err := h.controllers.Get(features.PracticeQuizID)
	if err != nil {
		return featureNotFound(c)
	}

	var req QuizScoreRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c)
	}

	state := ctrl.State(middleware.SessionFrom(c).UserID)
	if state.Phase != services.PhaseSuccess {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Generate a quiz before submitting answers.",
		})
	}

	questions, err := features.QuestionsFromOutput(state.Result)
	if err != nil {
		logging.WithRequest(c).Error("stored quiz is unreadable", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to score quiz",
		})
	}
	return c.JSON(features.ScoreQuiz(questions, req.Answers))
}
