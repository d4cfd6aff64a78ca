package models

import "time"

// Observation is a patient's daily symptom report. Immutable once
// created; one row per submission.
type Observation struct {
	ID         string
	PatientID  string
	Date       time.Time
	PainLevel  int
	Swelling   bool
	SleepHours float64
	MoodLevel  int
	Appetite   string
	Note       string
	CreatedAt  time.Time
}

// BaselineProfile is created once per patient at enrollment and is
// read-only to the risk evaluator.
type BaselineProfile struct {
	PatientID           string
	StartDate           time.Time
	AcceptablePainWeek1 int
	AcceptablePainWeek3 int
	CreatedAt           time.Time
}

// RiskAssessment is derived from exactly one observation and never
// mutated after creation.
type RiskAssessment struct {
	ID                string
	PatientID         string
	ObservationID     string
	Score             float64
	Status            string
	DeviationFlag     bool
	ComplicationIndex float64
	CreatedAt         time.Time
}

type Document struct {
	ID          string
	PatientID   string
	ContentType string
	Extract     string
	TextLength  int
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type DocumentChunk struct {
	DocumentID string
	ChunkIndex int
	Text       string
	CreatedAt  time.Time
}

type QuestionRecord struct {
	ID           string
	PatientID    string
	QuestionText string
	Answer       string
	Alert        bool
	SourceCount  int
	Fallback     bool
	LatencyMS    int
	CreatedAt    time.Time
}

type QuestionSource struct {
	ID         int
	QuestionID string
	DocumentID string
	ChunkIndex int
	Score      float64
}
