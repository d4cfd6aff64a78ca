// Package risk derives a risk assessment from a patient's daily
// observation, a short observation history and the recovery baseline.
// Evaluation is pure: no I/O, deterministic, safe to run concurrently
// for any number of patients.
package risk

import "time"

type Status int

const (
	StatusStable Status = iota
	StatusMonitor
	StatusNeedsReview
	StatusHighRisk
)

func (s Status) String() string {
	switch s {
	case StatusStable:
		return "stable"
	case StatusMonitor:
		return "monitor"
	case StatusNeedsReview:
		return "needs_review"
	case StatusHighRisk:
		return "high_risk"
	default:
		return "unknown"
	}
}

type Observation struct {
	PatientID  string
	Date       time.Time
	PainLevel  int
	Swelling   bool
	SleepHours float64
	MoodLevel  int
	Appetite   string
	Note       string
}

// Baseline is the per-patient recovery profile: start of recovery and
// the acceptable pain ceilings for week 1 and week 3.
type Baseline struct {
	PatientID           string
	StartDate           time.Time
	AcceptablePainWeek1 int
	AcceptablePainWeek3 int
}

type Assessment struct {
	Score             float64
	Status            Status
	DeviationFlag     bool
	ComplicationIndex float64
}

const (
	// ComplicationElevated is the complication index reported when
	// deviation, swelling and low sleep coincide.
	ComplicationElevated = 0.35

	painScoreCeiling  = 0.15
	deviationBonus    = 0.10
	lowSleepThreshold = 4.0
)

var statusBase = map[Status]float64{
	StatusStable:      0.0,
	StatusMonitor:     0.25,
	StatusNeedsReview: 0.50,
	StatusHighRisk:    0.75,
}

// Evaluate classifies a single observation. history holds up to the two
// most recent prior observations ordered oldest to newest; baseline may
// be nil, in which case the deviation check is skipped. Missing optional
// fields are zero values and never cause a failure.
func Evaluate(current Observation, history []Observation, baseline *Baseline) Assessment {
	status := StatusStable

	// Rule 1: severe pain needs clinician review.
	if current.PainLevel >= 8 {
		status = raise(status, StatusNeedsReview)
	}

	// Rule 2: swelling with high pain overrides rule 1.
	if current.Swelling && current.PainLevel >= 7 {
		status = raise(status, StatusHighRisk)
	}

	// Rule 3: strictly increasing pain across the last three days.
	if increasingTrend(current, history) {
		status = raise(status, StatusMonitor)
	}

	// Rule 4: deviation from the week-interpolated acceptable ceiling.
	// A deviation on its own only ever elevates stable to monitor.
	deviation := false
	if baseline != nil && !baseline.StartDate.IsZero() {
		threshold := baseline.thresholdAt(current.Date)
		if float64(current.PainLevel) > threshold {
			deviation = true
			status = raise(status, StatusMonitor)
		}
	}

	// Rule 5: complication index is elevated only under the triple
	// condition of deviation, swelling and short sleep.
	complication := 0.0
	if deviation && current.Swelling && current.SleepHours < lowSleepThreshold {
		complication = ComplicationElevated
	}

	score := statusBase[status] + float64(current.PainLevel)/10*painScoreCeiling
	if deviation {
		score += deviationBonus
	}

	return Assessment{
		Score:             clamp01(score),
		Status:            status,
		DeviationFlag:     deviation,
		ComplicationIndex: complication,
	}
}

// thresholdAt returns the acceptable pain ceiling for the recovery week
// the observation falls in. Week 1 uses the week-1 value, weeks 1-3
// interpolate linearly by the elapsed-week fraction, and anything past
// week 3 holds at the week-3 value.
func (b *Baseline) thresholdAt(date time.Time) float64 {
	weeks := date.Sub(b.StartDate).Hours() / (24 * 7)
	w1 := float64(b.AcceptablePainWeek1)
	w3 := float64(b.AcceptablePainWeek3)

	switch {
	case weeks <= 1:
		return w1
	case weeks <= 3:
		return w1 + (w3-w1)*(weeks-1)/2
	default:
		return w3
	}
}

func increasingTrend(current Observation, history []Observation) bool {
	if len(history) < 2 {
		return false
	}
	prev := history[len(history)-1]
	older := history[len(history)-2]
	return older.PainLevel < prev.PainLevel && prev.PainLevel < current.PainLevel
}

func raise(current, candidate Status) Status {
	if candidate > current {
		return candidate
	}
	return current
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
