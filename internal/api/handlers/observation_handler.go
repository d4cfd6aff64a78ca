package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/recoverlink/backend/internal/metrics"
	"github.com/recoverlink/backend/internal/notify"
	"github.com/recoverlink/backend/internal/risk"
	"github.com/recoverlink/backend/internal/storage/models"
	"github.com/recoverlink/backend/internal/storage/sqlite"
	"github.com/recoverlink/backend/pkg/errs"
	"github.com/recoverlink/backend/pkg/logger"
)

const historyWindow = 2

var validAppetite = map[string]bool{"": true, "poor": true, "normal": true, "good": true}

type ObservationHandler struct {
	db  *sqlite.Client
	hub *notify.Hub
}

func NewObservationHandler(db *sqlite.Client, hub *notify.Hub) *ObservationHandler {
	return &ObservationHandler{db: db, hub: hub}
}

type observationRequest struct {
	PatientID  string  `json:"patient_id"`
	Date       string  `json:"date"`
	PainLevel  int     `json:"pain_level"`
	Swelling   bool    `json:"swelling"`
	SleepHours float64 `json:"sleep_hours"`
	MoodLevel  int     `json:"mood_level"`
	Appetite   string  `json:"appetite"`
	Note       string  `json:"note"`
}

// CreateObservation records a daily symptom report and returns the
// risk assessment derived from it.
func (h *ObservationHandler) CreateObservation(c *fiber.Ctx) error {
	var req observationRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if msg, ok := validateObservation(&req); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	date := time.Now()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Date must be formatted YYYY-MM-DD",
			})
		}
		date = parsed
	}

	baseline, err := h.db.GetBaseline(req.PatientID)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		logger.Error("Failed to load baseline", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record observation",
		})
	}

	history, err := h.db.GetRecentObservations(req.PatientID, date, historyWindow)
	if err != nil {
		logger.Error("Failed to load observation history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record observation",
		})
	}

	current := risk.Observation{
		PatientID:  req.PatientID,
		Date:       date,
		PainLevel:  req.PainLevel,
		Swelling:   req.Swelling,
		SleepHours: req.SleepHours,
		MoodLevel:  req.MoodLevel,
		Appetite:   req.Appetite,
		Note:       req.Note,
	}

	assessment := risk.Evaluate(current, toRiskHistory(history), toRiskBaseline(baseline))

	now := time.Now()
	observation := &models.Observation{
		ID:         uuid.New().String(),
		PatientID:  req.PatientID,
		Date:       date,
		PainLevel:  req.PainLevel,
		Swelling:   req.Swelling,
		SleepHours: req.SleepHours,
		MoodLevel:  req.MoodLevel,
		Appetite:   req.Appetite,
		Note:       req.Note,
		CreatedAt:  now,
	}
	if err := h.db.InsertObservation(observation); err != nil {
		logger.Error("Failed to insert observation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record observation",
		})
	}

	record := &models.RiskAssessment{
		ID:                uuid.New().String(),
		PatientID:         req.PatientID,
		ObservationID:     observation.ID,
		Score:             assessment.Score,
		Status:            assessment.Status.String(),
		DeviationFlag:     assessment.DeviationFlag,
		ComplicationIndex: assessment.ComplicationIndex,
		CreatedAt:         now,
	}
	if err := h.db.InsertAssessment(record); err != nil {
		logger.Error("Failed to insert assessment", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record observation",
		})
	}

	metrics.ObservationsTotal.WithLabelValues(record.Status).Inc()
	metrics.RiskScore.Observe(record.Score)

	if h.hub != nil {
		h.hub.Publish(notify.AssessmentEvent{
			PatientID:         record.PatientID,
			ObservationID:     record.ObservationID,
			AssessmentID:      record.ID,
			Score:             record.Score,
			Status:            record.Status,
			DeviationFlag:     record.DeviationFlag,
			ComplicationIndex: record.ComplicationIndex,
			CreatedAt:         record.CreatedAt,
		})
	}

	logger.Info("Observation recorded",
		zap.String("patient_id", req.PatientID),
		zap.String("observation_id", observation.ID),
		zap.String("status", record.Status),
		zap.Float64("score", record.Score),
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"observation_id": observation.ID,
		"assessment": fiber.Map{
			"id":                 record.ID,
			"score":              record.Score,
			"status":             record.Status,
			"deviation_flag":     record.DeviationFlag,
			"complication_index": record.ComplicationIndex,
		},
	})
}

// GetObservations lists a patient's observations, newest first.
func (h *ObservationHandler) GetObservations(c *fiber.Ctx) error {
	patientID := c.Params("id")
	if patientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Patient id is required",
		})
	}

	observations, err := h.db.GetObservations(patientID)
	if err != nil {
		logger.Error("Failed to list observations", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list observations",
		})
	}

	items := make([]fiber.Map, len(observations))
	for i, o := range observations {
		items[i] = fiber.Map{
			"id":          o.ID,
			"date":        o.Date.Format("2006-01-02"),
			"pain_level":  o.PainLevel,
			"swelling":    o.Swelling,
			"sleep_hours": o.SleepHours,
			"mood_level":  o.MoodLevel,
			"appetite":    o.Appetite,
			"note":        o.Note,
			"created_at":  o.CreatedAt,
		}
	}

	return c.JSON(fiber.Map{
		"patient_id":   patientID,
		"observations": items,
	})
}

func validateObservation(req *observationRequest) (string, bool) {
	if strings.TrimSpace(req.PatientID) == "" {
		return "Patient id is required", false
	}
	if req.PainLevel < 0 || req.PainLevel > 10 {
		return "Pain level must be between 0 and 10", false
	}
	if req.MoodLevel != 0 && (req.MoodLevel < 1 || req.MoodLevel > 5) {
		return "Mood level must be between 1 and 5", false
	}
	if req.SleepHours < 0 || req.SleepHours > 24 {
		return "Sleep hours must be between 0 and 24", false
	}
	if !validAppetite[req.Appetite] {
		return "Appetite must be one of poor, normal, good", false
	}
	return "", true
}

// toRiskHistory reverses newest-first storage order into the oldest to
// newest order the evaluator expects.
func toRiskHistory(observations []models.Observation) []risk.Observation {
	history := make([]risk.Observation, len(observations))
	for i, o := range observations {
		history[len(observations)-1-i] = risk.Observation{
			PatientID:  o.PatientID,
			Date:       o.Date,
			PainLevel:  o.PainLevel,
			Swelling:   o.Swelling,
			SleepHours: o.SleepHours,
			MoodLevel:  o.MoodLevel,
			Appetite:   o.Appetite,
			Note:       o.Note,
		}
	}
	return history
}

func toRiskBaseline(b *models.BaselineProfile) *risk.Baseline {
	if b == nil {
		return nil
	}
	return &risk.Baseline{
		PatientID:           b.PatientID,
		StartDate:           b.StartDate,
		AcceptablePainWeek1: b.AcceptablePainWeek1,
		AcceptablePainWeek3: b.AcceptablePainWeek3,
	}
}
