package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
	ConfidenceNone   = "n/a"

	// DelayHistorySize bounds how many past completions feed the average.
	DelayHistorySize = 20
	// DefaultCycleDays is assumed when the assignee has no history.
	DefaultCycleDays = 7.0
)

// DelayPrediction describes how late a completed item finished relative to
// its due date, alongside the assignee's historical cycle time.
type DelayPrediction struct {
	PredictedDelay       int      `json:"predicted_delay"`
	DelayReason          string   `json:"delay_reason"`
	Confidence           string   `json:"confidence"`
	AvgCompletionTime    *float64 `json:"avg_completion_time"`
	HistoricalDataPoints int      `json:"historical_data_points"`
}

// PredictDelay evaluates item against the assignee's completed history.
// history may contain any items; only completed ones with both timestamps are
// used, newest first, up to DelayHistorySize. A positive delay is late.
func PredictDelay(item WorkItem, history []WorkItem, now time.Time) DelayPrediction {
	if item.DueDate == nil {
		return DelayPrediction{
			DelayReason: "No due date set",
			Confidence:  ConfidenceNone,
		}
	}

	completedAt := now
	if item.CompletedAt != nil {
		completedAt = *item.CompletedAt
	}
	delay := floorDays(completedAt.Sub(*item.DueDate))

	samples := make([]WorkItem, 0, len(history))
	for _, h := range history {
		if h.ID == item.ID || h.Status != StatusCompleted || h.CompletedAt == nil || h.CreatedAt.IsZero() {
			continue
		}
		samples = append(samples, h)
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].CompletedAt.After(*samples[j].CompletedAt)
	})
	if len(samples) > DelayHistorySize {
		samples = samples[:DelayHistorySize]
	}

	avg := DefaultCycleDays
	if len(samples) > 0 {
		var sum int
		for _, s := range samples {
			sum += floorDays(s.CompletedAt.Sub(s.CreatedAt))
		}
		avg = round1(float64(sum) / float64(len(samples)))
	}

	confidence := ConfidenceLow
	switch {
	case len(samples) >= 5:
		confidence = ConfidenceHigh
	case len(samples) >= 2:
		confidence = ConfidenceMedium
	}

	var reason string
	switch {
	case delay > 0:
		reason = fmt.Sprintf("Completed %d days late", delay)
	case delay == 0:
		reason = "Completed on time"
	default:
		reason = fmt.Sprintf("Completed %d days early", -delay)
	}

	return DelayPrediction{
		PredictedDelay:       delay,
		DelayReason:          reason,
		Confidence:           confidence,
		AvgCompletionTime:    &avg,
		HistoricalDataPoints: len(samples),
	}
}

func floorDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}
