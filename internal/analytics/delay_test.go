package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictDelay_NoDueDate(t *testing.T) {
	p := PredictDelay(WorkItem{ID: 1, Status: StatusCompleted, CompletedAt: ptrTime(refNow)}, nil, refNow)
	assert.Equal(t, 0, p.PredictedDelay)
	assert.Equal(t, "No due date set", p.DelayReason)
	assert.Equal(t, ConfidenceNone, p.Confidence)
	assert.Nil(t, p.AvgCompletionTime)
	assert.Equal(t, 0, p.HistoricalDataPoints)
}

func TestPredictDelay(t *testing.T) {
	due := refNow.AddDate(0, 0, -3)
	history := func(n int) []WorkItem {
		var out []WorkItem
		for i := 0; i < n; i++ {
			created := refNow.AddDate(0, 0, -30+i)
			out = append(out, completedItem(uint(100+i), created, created.AddDate(0, 0, 4)))
		}
		return out
	}

	tests := []struct {
		name       string
		completed  time.Time
		history    []WorkItem
		delay      int
		reason     string
		confidence string
		avg        float64
	}{
		{"late high confidence", refNow, history(6), 3, "Completed 3 days late", ConfidenceHigh, 4},
		{"on time medium", due.Add(2 * time.Hour), history(2), 0, "Completed on time", ConfidenceMedium, 4},
		{"early low", due.AddDate(0, 0, -2), history(1), -2, "Completed 2 days early", ConfidenceLow, 4},
		{"partial day early floors", due.Add(-time.Hour), nil, -1, "Completed 1 days early", ConfidenceLow, DefaultCycleDays},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := WorkItem{ID: 1, Status: StatusCompleted, CompletedAt: ptrTime(tt.completed), DueDate: ptrTime(due)}
			p := PredictDelay(item, tt.history, refNow)
			assert.Equal(t, tt.delay, p.PredictedDelay)
			assert.Equal(t, tt.reason, p.DelayReason)
			assert.Equal(t, tt.confidence, p.Confidence)
			require.NotNil(t, p.AvgCompletionTime)
			assert.Equal(t, tt.avg, *p.AvgCompletionTime)
			assert.Equal(t, len(tt.history), p.HistoricalDataPoints)
		})
	}
}

func TestPredictDelay_HistoryCapped(t *testing.T) {
	var history []WorkItem
	for i := 0; i < 30; i++ {
		created := refNow.AddDate(0, 0, -60+i)
		history = append(history, completedItem(uint(i+10), created, created.AddDate(0, 0, 1)))
	}
	history = append(history, WorkItem{ID: 500, Status: StatusInProgress, CreatedAt: refNow})

	item := WorkItem{ID: 1, Status: StatusCompleted, CompletedAt: ptrTime(refNow), DueDate: ptrTime(refNow)}
	p := PredictDelay(item, history, refNow)
	assert.Equal(t, DelayHistorySize, p.HistoricalDataPoints)
	assert.Equal(t, ConfidenceHigh, p.Confidence)
}
