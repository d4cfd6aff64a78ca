package sqlite

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recoverlink/backend/internal/storage/models"
	"github.com/recoverlink/backend/pkg/errs"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	c, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.InitSchema())
	return c
}

func observation(id, patientID string, date time.Time, pain int) *models.Observation {
	return &models.Observation{
		ID:         id,
		PatientID:  patientID,
		Date:       date,
		PainLevel:  pain,
		Swelling:   pain >= 7,
		SleepHours: 6.5,
		MoodLevel:  3,
		Appetite:   "normal",
		CreatedAt:  time.Now(),
	}
}

func TestBaseline_UpsertAndGet(t *testing.T) {
	c := newTestClient(t)

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.UpsertBaseline(&models.BaselineProfile{
		PatientID:           "p1",
		StartDate:           start,
		AcceptablePainWeek1: 5,
		AcceptablePainWeek3: 3,
	}))

	b, err := c.GetBaseline("p1")
	require.NoError(t, err)
	assert.Equal(t, start.Unix(), b.StartDate.Unix())
	assert.Equal(t, 5, b.AcceptablePainWeek1)
	assert.Equal(t, 3, b.AcceptablePainWeek3)

	// Second upsert replaces, not duplicates.
	require.NoError(t, c.UpsertBaseline(&models.BaselineProfile{
		PatientID:           "p1",
		StartDate:           start,
		AcceptablePainWeek1: 6,
		AcceptablePainWeek3: 4,
	}))

	b, err = c.GetBaseline("p1")
	require.NoError(t, err)
	assert.Equal(t, 6, b.AcceptablePainWeek1)
}

func TestBaseline_NotFound(t *testing.T) {
	c := newTestClient(t)

	_, err := c.GetBaseline("missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestObservations_RecentBeforeDate(t *testing.T) {
	c := newTestClient(t)

	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, c.InsertObservation(
			observation(string(rune('a'+i)), "p1", base.AddDate(0, 0, i), 2+i)))
	}
	require.NoError(t, c.InsertObservation(
		observation("other", "p2", base, 9)))

	recent, err := c.GetRecentObservations("p1", base.AddDate(0, 0, 3), 2)
	require.NoError(t, err)

	require.Len(t, recent, 2)
	// Newest first, strictly before the cutoff date.
	assert.Equal(t, 4, recent[0].PainLevel)
	assert.Equal(t, 3, recent[1].PainLevel)
}

func TestObservations_ListNewestFirst(t *testing.T) {
	c := newTestClient(t)

	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.InsertObservation(observation("a", "p1", base, 2)))
	require.NoError(t, c.InsertObservation(observation("b", "p1", base.AddDate(0, 0, 1), 5)))

	all, err := c.GetObservations("p1")
	require.NoError(t, err)

	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].ID)
	assert.True(t, all[1].Date.Before(all[0].Date))
}

func TestAssessments_LatestPerPatientOrderedByScore(t *testing.T) {
	c := newTestClient(t)

	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.InsertObservation(observation("o1", "p1", base, 3)))
	require.NoError(t, c.InsertObservation(observation("o2", "p2", base, 8)))

	insert := func(id, patientID, obsID string, score float64, createdAt time.Time) {
		require.NoError(t, c.InsertAssessment(&models.RiskAssessment{
			ID:            id,
			PatientID:     patientID,
			ObservationID: obsID,
			Score:         score,
			Status:        "monitor",
			CreatedAt:     createdAt,
		}))
	}

	insert("a1", "p1", "o1", 0.2, base)
	insert("a2", "p1", "o1", 0.4, base.Add(time.Hour))
	insert("a3", "p2", "o2", 0.9, base)

	latest, err := c.GetLatestAssessments()
	require.NoError(t, err)

	require.Len(t, latest, 2)
	assert.Equal(t, "a3", latest[0].ID)
	assert.Equal(t, "a2", latest[1].ID)
}

func TestAssessments_HistoryLimit(t *testing.T) {
	c := newTestClient(t)

	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.InsertObservation(observation("o1", "p1", base, 3)))

	for i := 0; i < 5; i++ {
		require.NoError(t, c.InsertAssessment(&models.RiskAssessment{
			ID:            string(rune('a' + i)),
			PatientID:     "p1",
			ObservationID: "o1",
			Score:         float64(i) / 10,
			Status:        "stable",
			DeviationFlag: i%2 == 0,
			CreatedAt:     base.Add(time.Duration(i) * time.Hour),
		}))
	}

	history, err := c.GetAssessments("p1", 3)
	require.NoError(t, err)

	require.Len(t, history, 3)
	assert.Equal(t, "e", history[0].ID)
	assert.True(t, history[0].DeviationFlag)
}

func TestDocuments_UpsertOverwrites(t *testing.T) {
	c := newTestClient(t)

	now := time.Now()
	doc := &models.Document{
		ID:         "d1",
		PatientID:  "p1",
		Extract:    "first version",
		TextLength: 100,
		ChunkCount: 2,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, c.UpsertDocument(doc))

	doc.Extract = "second version"
	doc.ChunkCount = 3
	require.NoError(t, c.UpsertDocument(doc))

	got, err := c.GetDocument("d1")
	require.NoError(t, err)
	assert.Equal(t, "second version", got.Extract)
	assert.Equal(t, 3, got.ChunkCount)

	_, err = c.GetDocument("missing")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestChunks_UpsertKeyedByDocumentAndIndex(t *testing.T) {
	c := newTestClient(t)

	now := time.Now()
	require.NoError(t, c.UpsertDocument(&models.Document{
		ID: "d1", PatientID: "p1", CreatedAt: now, UpdatedAt: now,
	}))

	require.NoError(t, c.UpsertChunk(&models.DocumentChunk{
		DocumentID: "d1", ChunkIndex: 0, Text: "old", CreatedAt: now,
	}))
	require.NoError(t, c.UpsertChunk(&models.DocumentChunk{
		DocumentID: "d1", ChunkIndex: 0, Text: "new", CreatedAt: now,
	}))

	var count int
	var text string
	row := c.db.QueryRow(`SELECT COUNT(*), MAX(text) FROM document_chunks WHERE document_id = 'd1'`)
	require.NoError(t, row.Scan(&count, &text))
	assert.Equal(t, 1, count)
	assert.Equal(t, "new", text)
}

func TestQuestions_RecordAndSources(t *testing.T) {
	c := newTestClient(t)

	require.NoError(t, c.InsertQuestionRecord(&models.QuestionRecord{
		ID:           "q1",
		PatientID:    "p1",
		QuestionText: "when can I shower?",
		Answer:       "after 48 hours",
		Alert:        false,
		SourceCount:  1,
		LatencyMS:    120,
		CreatedAt:    time.Now(),
	}))

	require.NoError(t, c.InsertQuestionSource(&models.QuestionSource{
		QuestionID: "q1",
		DocumentID: "d1",
		ChunkIndex: 0,
		Score:      0.87,
	}))

	var sourceCount int
	row := c.db.QueryRow(`SELECT COUNT(*) FROM question_sources WHERE question_id = 'q1'`)
	require.NoError(t, row.Scan(&sourceCount))
	assert.Equal(t, 1, sourceCount)
}
