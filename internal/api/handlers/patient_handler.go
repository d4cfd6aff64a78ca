package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/recoverlink/backend/internal/storage/models"
	"github.com/recoverlink/backend/internal/storage/sqlite"
	"github.com/recoverlink/backend/pkg/errs"
	"github.com/recoverlink/backend/pkg/logger"
)

type PatientHandler struct {
	db *sqlite.Client
}

func NewPatientHandler(db *sqlite.Client) *PatientHandler {
	return &PatientHandler{db: db}
}

// UpsertBaseline sets a patient's recovery profile: start date and the
// acceptable pain ceilings for week 1 and week 3.
func (h *PatientHandler) UpsertBaseline(c *fiber.Ctx) error {
	patientID := c.Params("id")
	if patientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Patient id is required",
		})
	}

	var req struct {
		StartDate           string `json:"start_date"`
		AcceptablePainWeek1 int    `json:"acceptable_pain_week_1"`
		AcceptablePainWeek3 int    `json:"acceptable_pain_week_3"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "start_date must be formatted YYYY-MM-DD",
		})
	}
	if req.AcceptablePainWeek1 < 0 || req.AcceptablePainWeek1 > 10 ||
		req.AcceptablePainWeek3 < 0 || req.AcceptablePainWeek3 > 10 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Acceptable pain values must be between 0 and 10",
		})
	}

	baseline := &models.BaselineProfile{
		PatientID:           patientID,
		StartDate:           startDate,
		AcceptablePainWeek1: req.AcceptablePainWeek1,
		AcceptablePainWeek3: req.AcceptablePainWeek3,
		CreatedAt:           time.Now(),
	}
	if err := h.db.UpsertBaseline(baseline); err != nil {
		logger.Error("Failed to upsert baseline", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save baseline",
		})
	}

	logger.Info("Baseline saved", zap.String("patient_id", patientID))

	return c.JSON(fiber.Map{
		"patient_id":             patientID,
		"start_date":             req.StartDate,
		"acceptable_pain_week_1": req.AcceptablePainWeek1,
		"acceptable_pain_week_3": req.AcceptablePainWeek3,
	})
}

// GetGuidance returns stage-based recovery guidance derived from the
// days elapsed since the baseline start date.
func (h *PatientHandler) GetGuidance(c *fiber.Ctx) error {
	patientID := c.Params("id")
	if patientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Patient id is required",
		})
	}

	baseline, err := h.db.GetBaseline(patientID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Recovery profile not found",
			})
		}
		logger.Error("Failed to load baseline", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load guidance",
		})
	}

	daysSinceStart := int(time.Since(baseline.StartDate).Hours() / 24)
	guidance := stageGuidance(daysSinceStart, baseline)

	assessments, err := h.db.GetAssessments(patientID, 1)
	if err == nil && len(assessments) > 0 {
		guidance["current_risk_status"] = assessments[0].Status
		guidance["risk_score"] = assessments[0].Score
	}

	return c.JSON(guidance)
}

func stageGuidance(daysSinceStart int, baseline *models.BaselineProfile) fiber.Map {
	switch {
	case daysSinceStart <= 7:
		return fiber.Map{
			"stage":            "Week 1",
			"days_since_start": daysSinceStart,
			"focus":            "Rest and initial healing",
			"recommendations": []string{
				"Take prescribed medications as directed",
				"Rest the affected area",
				"Apply ice if recommended",
				"Monitor for signs of infection",
				"Keep follow-up appointments",
			},
			"acceptable_pain_range": fmt.Sprintf("0-%d", baseline.AcceptablePainWeek1),
			"warning_signs": []string{
				"Severe pain (8+)",
				"Signs of infection",
				"Excessive swelling",
				"Difficulty breathing",
			},
		}
	case daysSinceStart <= 21:
		return fiber.Map{
			"stage":            "Week 2-3",
			"days_since_start": daysSinceStart,
			"focus":            "Gradual activity increase",
			"recommendations": []string{
				"Begin gentle exercises as recommended",
				"Gradually increase activity level",
				"Continue medication as needed",
				"Monitor pain levels",
				"Attend physical therapy if prescribed",
			},
			"acceptable_pain_range": fmt.Sprintf("0-%d", baseline.AcceptablePainWeek3),
			"warning_signs": []string{
				"Increasing pain trend",
				"Pain exceeding acceptable range",
				"Swelling that worsens",
				"Limited mobility",
			},
		}
	default:
		return fiber.Map{
			"stage":            "Week 4+",
			"days_since_start": daysSinceStart,
			"focus":            "Continued recovery and strength building",
			"recommendations": []string{
				"Continue prescribed exercises",
				"Gradually return to normal activities",
				"Monitor for any complications",
				"Follow up with doctor as scheduled",
				"Report any concerns immediately",
			},
			"acceptable_pain_range": "0-3",
			"warning_signs": []string{
				"Persistent high pain",
				"New symptoms",
				"Complications",
				"Regression in recovery",
			},
		}
	}
}
