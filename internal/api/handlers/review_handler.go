package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/recoverlink/backend/internal/storage/models"
	"github.com/recoverlink/backend/internal/storage/sqlite"
	"github.com/recoverlink/backend/pkg/logger"
)

const defaultAssessmentLimit = 50

// ReviewHandler serves the clinician view: patients ordered by current
// risk and per-patient assessment history.
type ReviewHandler struct {
	db *sqlite.Client
}

func NewReviewHandler(db *sqlite.Client) *ReviewHandler {
	return &ReviewHandler{db: db}
}

// ListPatients returns each patient's most recent assessment, highest
// score first.
func (h *ReviewHandler) ListPatients(c *fiber.Ctx) error {
	assessments, err := h.db.GetLatestAssessments()
	if err != nil {
		logger.Error("Failed to list latest assessments", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list patients",
		})
	}

	items := make([]fiber.Map, len(assessments))
	for i, a := range assessments {
		items[i] = assessmentJSON(a)
	}

	return c.JSON(fiber.Map{
		"patients": items,
	})
}

// GetPatientAssessments returns one patient's assessment history,
// newest first.
func (h *ReviewHandler) GetPatientAssessments(c *fiber.Ctx) error {
	patientID := c.Params("id")
	if patientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Patient id is required",
		})
	}

	limit := defaultAssessmentLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a positive integer",
			})
		}
		limit = parsed
	}

	assessments, err := h.db.GetAssessments(patientID, limit)
	if err != nil {
		logger.Error("Failed to list assessments", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list assessments",
		})
	}

	items := make([]fiber.Map, len(assessments))
	for i, a := range assessments {
		items[i] = assessmentJSON(a)
	}

	return c.JSON(fiber.Map{
		"patient_id":  patientID,
		"assessments": items,
	})
}

func assessmentJSON(a models.RiskAssessment) fiber.Map {
	return fiber.Map{
		"id":                 a.ID,
		"patient_id":         a.PatientID,
		"observation_id":     a.ObservationID,
		"score":              a.Score,
		"status":             a.Status,
		"deviation_flag":     a.DeviationFlag,
		"complication_index": a.ComplicationIndex,
		"created_at":         a.CreatedAt,
	}
}
