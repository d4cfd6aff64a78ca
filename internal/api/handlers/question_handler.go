package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/recoverlink/backend/internal/answer"
	"github.com/recoverlink/backend/internal/metrics"
	"github.com/recoverlink/backend/pkg/errs"
	"github.com/recoverlink/backend/pkg/logger"
)

type QuestionHandler struct {
	engine *answer.Engine
}

func NewQuestionHandler(engine *answer.Engine) *QuestionHandler {
	return &QuestionHandler{engine: engine}
}

// AskQuestion answers a patient question from their own discharge
// documents.
func (h *QuestionHandler) AskQuestion(c *fiber.Ctx) error {
	var req struct {
		Question  string `json:"question"`
		PatientID string `json:"patient_id"`
		TopK      int    `json:"top_k"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	start := time.Now()

	resp, err := h.engine.Answer(c.Context(), answer.Request{
		Question:  req.Question,
		PatientID: req.PatientID,
		TopK:      req.TopK,
	})
	if err != nil {
		if errors.Is(err, errs.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		logger.Error("Failed to answer question", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to answer question",
		})
	}

	metrics.QuestionDuration.Observe(time.Since(start).Seconds())
	metrics.RetrievedChunks.Observe(float64(len(resp.Sources)))
	metrics.QuestionsTotal.WithLabelValues(questionOutcome(resp)).Inc()
	if resp.Alert {
		metrics.SafetyAlertsTotal.Inc()
	}

	return c.JSON(resp)
}

func questionOutcome(resp *answer.Response) string {
	switch {
	case resp.Fallback:
		return "fallback"
	case len(resp.Sources) == 0:
		return "no_documents"
	default:
		return "answered"
	}
}
