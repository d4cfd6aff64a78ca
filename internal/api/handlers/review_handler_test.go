package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recoverlink/backend/internal/storage/models"
	"github.com/recoverlink/backend/internal/storage/sqlite"
)

func newReviewApp(t *testing.T) (*fiber.App, *sqlite.Client) {
	t.Helper()

	db := newTestDB(t)
	h := NewReviewHandler(db)

	app := fiber.New()
	app.Get("/api/v1/review/patients", h.ListPatients)
	app.Get("/api/v1/review/patients/:id/assessments", h.GetPatientAssessments)
	return app, db
}

func seedAssessment(t *testing.T, db *sqlite.Client, id, patientID string, score float64, createdAt time.Time) {
	t.Helper()

	require.NoError(t, db.InsertObservation(&models.Observation{
		ID:        "obs-" + id,
		PatientID: patientID,
		Date:      createdAt,
		PainLevel: 3,
		CreatedAt: createdAt,
	}))
	require.NoError(t, db.InsertAssessment(&models.RiskAssessment{
		ID:            id,
		PatientID:     patientID,
		ObservationID: "obs-" + id,
		Score:         score,
		Status:        "monitor",
		CreatedAt:     createdAt,
	}))
}

func get(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	return resp
}

func TestListPatients_HighestRiskFirst(t *testing.T) {
	app, db := newReviewApp(t)

	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	seedAssessment(t, db, "a1", "p1", 0.2, base)
	seedAssessment(t, db, "a2", "p2", 0.8, base)
	seedAssessment(t, db, "a3", "p3", 0.5, base)

	resp := get(t, app, "/api/v1/review/patients")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	patients := body["patients"].([]interface{})
	require.Len(t, patients, 3)

	first := patients[0].(map[string]interface{})
	assert.Equal(t, "p2", first["patient_id"])
}

func TestGetPatientAssessments_LimitApplied(t *testing.T) {
	app, db := newReviewApp(t)

	base := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	seedAssessment(t, db, "a1", "p1", 0.2, base)
	seedAssessment(t, db, "a2", "p1", 0.4, base.Add(time.Hour))
	seedAssessment(t, db, "a3", "p1", 0.6, base.Add(2*time.Hour))

	resp := get(t, app, "/api/v1/review/patients/p1/assessments?limit=2")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assessments := body["assessments"].([]interface{})
	require.Len(t, assessments, 2)

	newest := assessments[0].(map[string]interface{})
	assert.Equal(t, "a3", newest["id"])
}

func TestGetPatientAssessments_RejectsBadLimit(t *testing.T) {
	app, _ := newReviewApp(t)

	resp := get(t, app, "/api/v1/review/patients/p1/assessments?limit=zero")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp = get(t, app, "/api/v1/review/patients/p1/assessments?limit=-3")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGetPatientAssessments_EmptyHistory(t *testing.T) {
	app, _ := newReviewApp(t)

	resp := get(t, app, "/api/v1/review/patients/p9/assessments")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decode(t, resp)
	assert.Empty(t, body["assessments"])
}
