package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/recoverlink/backend/internal/storage/models"
	"github.com/recoverlink/backend/pkg/errs"
	"github.com/recoverlink/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err = db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS baseline_profiles (
		patient_id TEXT PRIMARY KEY,
		start_date INTEGER NOT NULL,
		acceptable_pain_week_1 INTEGER NOT NULL,
		acceptable_pain_week_3 INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS observations (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		date INTEGER NOT NULL,
		pain_level INTEGER NOT NULL,
		swelling INTEGER NOT NULL DEFAULT 0,
		sleep_hours REAL NOT NULL DEFAULT 0,
		mood_level INTEGER,
		appetite TEXT,
		note TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_observations_patient ON observations(patient_id, date);

	CREATE TABLE IF NOT EXISTS risk_assessments (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		observation_id TEXT NOT NULL,
		score REAL NOT NULL,
		status TEXT NOT NULL,
		deviation_flag INTEGER NOT NULL DEFAULT 0,
		complication_index REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (observation_id) REFERENCES observations(id)
	);
	CREATE INDEX IF NOT EXISTS idx_assessments_patient ON risk_assessments(patient_id, created_at);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		content_type TEXT,
		extract TEXT,
		text_length INTEGER NOT NULL DEFAULT 0,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_patient ON documents(patient_id);

	CREATE TABLE IF NOT EXISTS document_chunks (
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (document_id, chunk_index),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS question_history (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		question_text TEXT NOT NULL,
		answer TEXT,
		alert INTEGER NOT NULL DEFAULT 0,
		source_count INTEGER NOT NULL DEFAULT 0,
		fallback INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_questions_patient ON question_history(patient_id, created_at);

	CREATE TABLE IF NOT EXISTS question_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id TEXT NOT NULL,
		document_id TEXT,
		chunk_index INTEGER,
		score REAL,
		FOREIGN KEY (question_id) REFERENCES question_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sources_question ON question_sources(question_id);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) UpsertBaseline(b *models.BaselineProfile) error {
	query := `
		INSERT INTO baseline_profiles (patient_id, start_date, acceptable_pain_week_1, acceptable_pain_week_3, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(patient_id) DO UPDATE SET
			start_date = excluded.start_date,
			acceptable_pain_week_1 = excluded.acceptable_pain_week_1,
			acceptable_pain_week_3 = excluded.acceptable_pain_week_3
	`

	_, err := c.db.Exec(query, b.PatientID, b.StartDate.Unix(), b.AcceptablePainWeek1, b.AcceptablePainWeek3, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert baseline: %w", err)
	}

	return nil
}

func (c *Client) GetBaseline(patientID string) (*models.BaselineProfile, error) {
	query := `SELECT patient_id, start_date, acceptable_pain_week_1, acceptable_pain_week_3, created_at
		FROM baseline_profiles WHERE patient_id = ?`

	var b models.BaselineProfile
	var startDate, createdAt int64

	err := c.db.QueryRow(query, patientID).Scan(
		&b.PatientID,
		&startDate,
		&b.AcceptablePainWeek1,
		&b.AcceptablePainWeek3,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("no baseline profile for patient %s", patientID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}

	b.StartDate = time.Unix(startDate, 0).UTC()
	b.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &b, nil
}

func (c *Client) InsertObservation(o *models.Observation) error {
	query := `
		INSERT INTO observations (id, patient_id, date, pain_level, swelling, sleep_hours, mood_level, appetite, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		o.ID,
		o.PatientID,
		o.Date.Unix(),
		o.PainLevel,
		boolToInt(o.Swelling),
		o.SleepHours,
		o.MoodLevel,
		o.Appetite,
		o.Note,
		o.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}

	logger.Debug("Observation inserted",
		zap.String("observation_id", o.ID),
		zap.String("patient_id", o.PatientID),
	)
	return nil
}

// GetRecentObservations returns up to limit observations for a patient
// dated strictly before the given date, newest first.
func (c *Client) GetRecentObservations(patientID string, before time.Time, limit int) ([]models.Observation, error) {
	query := `
		SELECT id, patient_id, date, pain_level, swelling, sleep_hours, mood_level, appetite, note, created_at
		FROM observations
		WHERE patient_id = ? AND date < ?
		ORDER BY date DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, patientID, before.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

func (c *Client) GetObservations(patientID string) ([]models.Observation, error) {
	query := `
		SELECT id, patient_id, date, pain_level, swelling, sleep_hours, mood_level, appetite, note, created_at
		FROM observations
		WHERE patient_id = ?
		ORDER BY date DESC
	`

	rows, err := c.db.Query(query, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get observations: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

func scanObservations(rows *sql.Rows) ([]models.Observation, error) {
	var observations []models.Observation
	for rows.Next() {
		var o models.Observation
		var date, createdAt int64
		var swelling int

		err := rows.Scan(&o.ID, &o.PatientID, &date, &o.PainLevel, &swelling, &o.SleepHours,
			&o.MoodLevel, &o.Appetite, &o.Note, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		o.Date = time.Unix(date, 0).UTC()
		o.CreatedAt = time.Unix(createdAt, 0).UTC()
		o.Swelling = swelling != 0
		observations = append(observations, o)
	}

	return observations, rows.Err()
}

func (c *Client) InsertAssessment(a *models.RiskAssessment) error {
	query := `
		INSERT INTO risk_assessments (id, patient_id, observation_id, score, status, deviation_flag, complication_index, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		a.ID,
		a.PatientID,
		a.ObservationID,
		a.Score,
		a.Status,
		boolToInt(a.DeviationFlag),
		a.ComplicationIndex,
		a.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}

	logger.Info("Assessment recorded",
		zap.String("assessment_id", a.ID),
		zap.String("patient_id", a.PatientID),
		zap.String("status", a.Status),
		zap.Float64("score", a.Score),
	)

	return nil
}

func (c *Client) GetAssessments(patientID string, limit int) ([]models.RiskAssessment, error) {
	query := `
		SELECT id, patient_id, observation_id, score, status, deviation_flag, complication_index, created_at
		FROM risk_assessments
		WHERE patient_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get assessments: %w", err)
	}
	defer rows.Close()

	return scanAssessments(rows)
}

// GetLatestAssessments returns the newest assessment per patient, used
// by the clinician review view.
func (c *Client) GetLatestAssessments() ([]models.RiskAssessment, error) {
	query := `
		SELECT a.id, a.patient_id, a.observation_id, a.score, a.status, a.deviation_flag, a.complication_index, a.created_at
		FROM risk_assessments a
		JOIN (
			SELECT patient_id, MAX(created_at) AS latest
			FROM risk_assessments
			GROUP BY patient_id
		) l ON a.patient_id = l.patient_id AND a.created_at = l.latest
		ORDER BY a.score DESC
	`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest assessments: %w", err)
	}
	defer rows.Close()

	return scanAssessments(rows)
}

func scanAssessments(rows *sql.Rows) ([]models.RiskAssessment, error) {
	var assessments []models.RiskAssessment
	for rows.Next() {
		var a models.RiskAssessment
		var createdAt int64
		var deviation int

		err := rows.Scan(&a.ID, &a.PatientID, &a.ObservationID, &a.Score, &a.Status,
			&deviation, &a.ComplicationIndex, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		a.DeviationFlag = deviation != 0
		assessments = append(assessments, a)
	}

	return assessments, rows.Err()
}

func (c *Client) UpsertDocument(doc *models.Document) error {
	query := `
		INSERT INTO documents (id, patient_id, content_type, extract, text_length, chunk_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content_type = excluded.content_type,
			extract = excluded.extract,
			text_length = excluded.text_length,
			chunk_count = excluded.chunk_count,
			updated_at = excluded.updated_at
	`

	_, err := c.db.Exec(
		query,
		doc.ID,
		doc.PatientID,
		doc.ContentType,
		doc.Extract,
		doc.TextLength,
		doc.ChunkCount,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	logger.Debug("Document upserted",
		zap.String("document_id", doc.ID),
		zap.String("patient_id", doc.PatientID),
	)
	return nil
}

func (c *Client) GetDocument(id string) (*models.Document, error) {
	query := `SELECT id, patient_id, content_type, extract, text_length, chunk_count, created_at, updated_at
		FROM documents WHERE id = ?`

	var doc models.Document
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&doc.ID,
		&doc.PatientID,
		&doc.ContentType,
		&doc.Extract,
		&doc.TextLength,
		&doc.ChunkCount,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("no document %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.CreatedAt = time.Unix(createdAt, 0).UTC()
	doc.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &doc, nil
}

// UpsertChunk is keyed by (document_id, chunk_index) so re-ingestion
// overwrites instead of duplicating.
func (c *Client) UpsertChunk(chunk *models.DocumentChunk) error {
	query := `
		INSERT INTO document_chunks (document_id, chunk_index, text, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id, chunk_index) DO UPDATE SET
			text = excluded.text
	`

	_, err := c.db.Exec(query, chunk.DocumentID, chunk.ChunkIndex, chunk.Text, chunk.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}

	return nil
}

func (c *Client) InsertQuestionRecord(record *models.QuestionRecord) error {
	query := `
		INSERT INTO question_history (id, patient_id, question_text, answer, alert, source_count, fallback, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		record.ID,
		record.PatientID,
		record.QuestionText,
		record.Answer,
		boolToInt(record.Alert),
		record.SourceCount,
		boolToInt(record.Fallback),
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert question record: %w", err)
	}

	logger.Info("Question recorded",
		zap.String("question_id", record.ID),
		zap.String("patient_id", record.PatientID),
		zap.Bool("alert", record.Alert),
	)

	return nil
}

func (c *Client) InsertQuestionSource(source *models.QuestionSource) error {
	query := `INSERT INTO question_sources (question_id, document_id, chunk_index, score) VALUES (?, ?, ?, ?)`

	_, err := c.db.Exec(query, source.QuestionID, source.DocumentID, source.ChunkIndex, source.Score)
	if err != nil {
		return fmt.Errorf("failed to insert question source: %w", err)
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
