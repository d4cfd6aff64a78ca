package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var day = 24 * time.Hour

func obs(pain int, swelling bool, sleep float64, date time.Time) Observation {
	return Observation{
		PatientID:  "p1",
		Date:       date,
		PainLevel:  pain,
		Swelling:   swelling,
		SleepHours: sleep,
	}
}

func baselineAt(start time.Time, w1, w3 int) *Baseline {
	return &Baseline{
		PatientID:           "p1",
		StartDate:           start,
		AcceptablePainWeek1: w1,
		AcceptablePainWeek3: w3,
	}
}

func TestEvaluate_StableByDefault(t *testing.T) {
	a := Evaluate(obs(2, false, 8, time.Now()), nil, nil)

	assert.Equal(t, StatusStable, a.Status)
	assert.False(t, a.DeviationFlag)
	assert.Equal(t, 0.0, a.ComplicationIndex)
	assert.InDelta(t, 0.03, a.Score, 1e-9)
}

func TestEvaluate_SeverePainNeedsReview(t *testing.T) {
	a := Evaluate(obs(8, false, 7, time.Now()), nil, nil)

	assert.Equal(t, StatusNeedsReview, a.Status)
	assert.InDelta(t, 0.5+0.8*0.15, a.Score, 1e-9)
}

func TestEvaluate_SwellingWithHighPainIsHighRisk(t *testing.T) {
	// Pain 7 alone would not reach needs_review; swelling makes it
	// high_risk outright.
	a := Evaluate(obs(7, true, 7, time.Now()), nil, nil)
	assert.Equal(t, StatusHighRisk, a.Status)

	// And at pain 8+ the swelling rule still wins over rule 1.
	a = Evaluate(obs(9, true, 7, time.Now()), nil, nil)
	assert.Equal(t, StatusHighRisk, a.Status)
}

func TestEvaluate_IncreasingTrendMonitors(t *testing.T) {
	now := time.Now()
	history := []Observation{
		obs(2, false, 8, now.Add(-2*day)),
		obs(4, false, 8, now.Add(-day)),
	}

	a := Evaluate(obs(6, false, 8, now), history, nil)
	assert.Equal(t, StatusMonitor, a.Status)
}

func TestEvaluate_FlatTrendStaysStable(t *testing.T) {
	now := time.Now()
	history := []Observation{
		obs(4, false, 8, now.Add(-2*day)),
		obs(4, false, 8, now.Add(-day)),
	}

	a := Evaluate(obs(5, false, 8, now), history, nil)
	assert.Equal(t, StatusStable, a.Status)
}

func TestEvaluate_SingleHistoryEntryNeverTrends(t *testing.T) {
	now := time.Now()
	history := []Observation{obs(1, false, 8, now.Add(-day))}

	a := Evaluate(obs(5, false, 8, now), history, nil)
	assert.Equal(t, StatusStable, a.Status)
}

func TestEvaluate_DeviationElevatesStableToMonitor(t *testing.T) {
	start := time.Now().Add(-3 * day)
	b := baselineAt(start, 5, 3)

	a := Evaluate(obs(6, false, 8, time.Now()), nil, b)

	assert.Equal(t, StatusMonitor, a.Status)
	assert.True(t, a.DeviationFlag)
	assert.InDelta(t, 0.25+0.6*0.15+0.10, a.Score, 1e-9)
}

func TestEvaluate_DeviationDoesNotDowngradeHigherStatus(t *testing.T) {
	start := time.Now().Add(-3 * day)
	b := baselineAt(start, 5, 3)

	a := Evaluate(obs(9, false, 8, time.Now()), nil, b)

	assert.Equal(t, StatusNeedsReview, a.Status)
	assert.True(t, a.DeviationFlag)
}

func TestEvaluate_ThresholdInterpolation(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := baselineAt(start, 6, 2)

	cases := []struct {
		name string
		at   time.Time
		want float64
	}{
		{"within week 1", start.Add(3 * day), 6},
		{"exactly week 1", start.Add(7 * day), 6},
		{"midpoint week 2", start.Add(14 * day), 4},
		{"exactly week 3", start.Add(21 * day), 2},
		{"past week 3", start.Add(40 * day), 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, b.thresholdAt(tc.at), 1e-9)
		})
	}
}

func TestEvaluate_ComplicationRequiresAllThree(t *testing.T) {
	start := time.Now().Add(-3 * day)
	b := baselineAt(start, 5, 3)
	now := time.Now()

	// Deviation + swelling + short sleep.
	a := Evaluate(obs(9, true, 3, now), nil, b)
	assert.Equal(t, StatusHighRisk, a.Status)
	assert.True(t, a.DeviationFlag)
	assert.Equal(t, ComplicationElevated, a.ComplicationIndex)

	// Same but enough sleep.
	a = Evaluate(obs(9, true, 6, now), nil, b)
	assert.Equal(t, 0.0, a.ComplicationIndex)

	// Same but no swelling.
	a = Evaluate(obs(9, false, 3, now), nil, b)
	assert.Equal(t, 0.0, a.ComplicationIndex)

	// Swelling and short sleep without a baseline cannot deviate.
	a = Evaluate(obs(9, true, 3, now), nil, nil)
	assert.Equal(t, 0.0, a.ComplicationIndex)
}

func TestEvaluate_ScoreClamped(t *testing.T) {
	start := time.Now().Add(-3 * day)
	b := baselineAt(start, 5, 3)

	a := Evaluate(obs(10, true, 2, time.Now()), nil, b)

	assert.LessOrEqual(t, a.Score, 1.0)
	assert.InDelta(t, 1.0, a.Score, 1e-9)
	assert.Equal(t, StatusHighRisk, a.Status)
}

func TestEvaluate_Deterministic(t *testing.T) {
	now := time.Now()
	history := []Observation{
		obs(2, false, 8, now.Add(-2*day)),
		obs(4, true, 5, now.Add(-day)),
	}
	b := baselineAt(now.Add(-10*day), 5, 3)
	current := obs(6, true, 3, now)

	first := Evaluate(current, history, b)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Evaluate(current, history, b))
	}
}

func TestEvaluate_StatusMonotonicInPain(t *testing.T) {
	now := time.Now()

	histories := map[string][]Observation{
		"no history": nil,
		"rising history": {
			obs(2, false, 8, now.Add(-2*day)),
			obs(4, false, 8, now.Add(-day)),
		},
		"flat history": {
			obs(4, false, 8, now.Add(-2*day)),
			obs(4, false, 8, now.Add(-day)),
		},
	}
	baselines := map[string]*Baseline{
		"no baseline":    nil,
		"early recovery": baselineAt(now.Add(-3*day), 5, 3),
		"late recovery":  baselineAt(now.Add(-30*day), 6, 2),
	}

	for _, swelling := range []bool{false, true} {
		for _, sleep := range []float64{3, 8} {
			for hName, history := range histories {
				for bName, b := range baselines {
					prev := StatusStable
					for pain := 0; pain <= 10; pain++ {
						a := Evaluate(obs(pain, swelling, sleep, now), history, b)
						assert.GreaterOrEqual(t, int(a.Status), int(prev),
							"pain %d, swelling %v, sleep %.0f, %s, %s",
							pain, swelling, sleep, hName, bName)
						prev = a.Status
					}
				}
			}
		}
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "stable", StatusStable.String())
	assert.Equal(t, "monitor", StatusMonitor.String())
	assert.Equal(t, "needs_review", StatusNeedsReview.String())
	assert.Equal(t, "high_risk", StatusHighRisk.String())
}
