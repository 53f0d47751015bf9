package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Health score weights. completionRate is on a 0-100 scale; on-time and
// delay rates are ratios.
const (
	CompletionWeight = 0.4
	OnTimeWeight     = 30
	PunctualWeight   = 30
)

// HealthScore blends completion, on-time and delay rates into 0..100.
func HealthScore(completionRate int, onTimeRate, delayRate float64) int {
	onTimeRate = clampFloat(onTimeRate, 0, 1)
	delayRate = clampFloat(delayRate, 0, 1)
	raw := float64(completionRate)*CompletionWeight + onTimeRate*OnTimeWeight + (1-delayRate)*PunctualWeight
	return clampInt(int(math.Round(raw)), 0, 100)
}

const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
)

// Blocker is a stale item surfaced to the advisory output.
type Blocker struct {
	ItemID      uint   `json:"item_id"`
	Title       string `json:"title"`
	Reason      string `json:"reason"`
	Priority    string `json:"priority"`
	DaysOverdue int    `json:"days_overdue"`
}

// ExtractBlockers maps stale items to blockers. DaysOverdue counts days past
// the stale threshold.
func ExtractBlockers(stale []StaleItem, th Thresholds) []Blocker {
	blockers := make([]Blocker, 0, len(stale))
	for _, s := range stale {
		overdue := s.DaysInProgress - th.StaleDays
		if overdue < 0 {
			overdue = 0
		}
		priority := PriorityMedium
		if overdue > th.HighPriorityOverdueDays {
			priority = PriorityHigh
		}
		reason := fmt.Sprintf("In progress for %d days", s.DaysInProgress)
		if s.Status == StatusBlocked {
			reason = fmt.Sprintf("Blocked for %d days", s.DaysInProgress)
		}
		blockers = append(blockers, Blocker{
			ItemID:      s.ID,
			Title:       s.Title,
			Reason:      reason,
			Priority:    priority,
			DaysOverdue: overdue,
		})
	}
	sort.SliceStable(blockers, func(i, j int) bool {
		return blockers[i].DaysOverdue > blockers[j].DaysOverdue
	})
	if len(blockers) > th.MaxBlockers {
		blockers = blockers[:th.MaxBlockers]
	}
	return blockers
}

// Severity orders recommendations.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	}
	return 2
}

// Recommendation kinds.
const (
	RecTeamReview      = "team_review"
	RecExtendDeadlines = "extend_deadlines"
	RecRebalance       = "rebalance_workload"
	RecUnblock         = "unblock"
	RecKeepPace        = "keep_pace"
)

type Recommendation struct {
	Kind     string   `json:"kind"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// AdvisorySignals are the computed numbers the recommendation rules read.
type AdvisorySignals struct {
	HealthScore  int
	DelayRate    float64
	AtRisk       []AtRiskMember
	BlockedItems int
}

// Recommend evaluates each rule independently and returns every one that
// fired, critical first. When none fire a single informational entry is
// returned.
func Recommend(sig AdvisorySignals, th Thresholds) []Recommendation {
	var recs []Recommendation

	if sig.HealthScore < th.LowHealthScore {
		recs = append(recs, Recommendation{
			Kind:     RecTeamReview,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("Health score is %d/100. Schedule team review to reset priorities.", sig.HealthScore),
		})
	}
	if sig.DelayRate > th.HighDelayRatio {
		recs = append(recs, Recommendation{
			Kind:     RecExtendDeadlines,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%.0f%% of work is late. Consider extending deadlines or reducing scope.", sig.DelayRate*100),
		})
	}
	if len(sig.AtRisk) > 0 {
		names := make([]string, 0, len(sig.AtRisk))
		for _, m := range sig.AtRisk {
			names = append(names, m.Name)
		}
		recs = append(recs, Recommendation{
			Kind:     RecRebalance,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Rebalance workload for at-risk members: %s.", strings.Join(names, ", ")),
		})
	}
	if sig.BlockedItems > 0 {
		recs = append(recs, Recommendation{
			Kind:     RecUnblock,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Unblock %d blocked item(s) before starting new work.", sig.BlockedItems),
		})
	}
	if len(recs) == 0 {
		recs = append(recs, Recommendation{
			Kind:     RecKeepPace,
			Severity: SeverityInfo,
			Message:  "Progress looks healthy. Keep the current pace.",
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Severity.rank() < recs[j].Severity.rank()
	})
	return recs
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
