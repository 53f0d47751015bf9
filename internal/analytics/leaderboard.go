package analytics

import (
	"sort"
	"time"
)

// MemberStats is one member's contribution snapshot.
type MemberStats struct {
	UserID            uint    `json:"user_id"`
	Name              string  `json:"name"`
	CompletionRate    int     `json:"completion_rate"`
	Completed         int     `json:"completed"`
	InProgress        int     `json:"in_progress"`
	Blocked           int     `json:"blocked"`
	Total             int     `json:"total"`
	AvgCompletionTime float64 `json:"avg_completion_time"`
}

// BuildMemberStats computes stats for each member over the items assigned to
// them. Output order follows members.
func BuildMemberStats(members []User, items []WorkItem) []MemberStats {
	byAssignee := make(map[uint][]WorkItem)
	for _, item := range items {
		if item.AssigneeID == nil {
			continue
		}
		byAssignee[*item.AssigneeID] = append(byAssignee[*item.AssigneeID], item)
	}

	stats := make([]MemberStats, 0, len(members))
	for _, m := range members {
		assigned := byAssignee[m.ID]
		b := Summarize(assigned)
		stats = append(stats, MemberStats{
			UserID:            m.ID,
			Name:              m.Name,
			CompletionRate:    b.CompletionRate,
			Completed:         b.Completed,
			InProgress:        b.InProgress,
			Blocked:           b.Blocked,
			Total:             b.Total,
			AvgCompletionTime: AvgCycleTimeDays(assigned),
		})
	}
	return stats
}

// RankMembers orders by completion rate then completed count, both
// descending. Ties keep input order. The input slice is not modified.
func RankMembers(stats []MemberStats) []MemberStats {
	ranked := make([]MemberStats, len(stats))
	copy(ranked, stats)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].CompletionRate != ranked[j].CompletionRate {
			return ranked[i].CompletionRate > ranked[j].CompletionRate
		}
		return ranked[i].Completed > ranked[j].Completed
	})
	return ranked
}

// TopPerformers returns the first n ranked members.
func TopPerformers(stats []MemberStats, n int) []MemberStats {
	ranked := RankMembers(stats)
	if n >= 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

const (
	ReasonMultipleBlocked = "multiple blocked tasks"
	ReasonLowCompletion   = "low completion rate"
)

// AtRiskMember is a flagged member with the reason that fired first.
type AtRiskMember struct {
	MemberStats
	Reason string `json:"reason"`
}

// IsAtRisk reports whether s is at risk and why. Members with no work are
// never at risk.
func IsAtRisk(s MemberStats, th Thresholds) (bool, string) {
	if s.Total <= 0 {
		return false, ""
	}
	if s.Blocked > th.AtRiskBlocked {
		return true, ReasonMultipleBlocked
	}
	if s.CompletionRate < th.AtRiskCompletionRate {
		return true, ReasonLowCompletion
	}
	return false, ""
}

func AtRiskMembers(stats []MemberStats, th Thresholds) []AtRiskMember {
	out := []AtRiskMember{}
	for _, s := range stats {
		if risky, reason := IsAtRisk(s, th); risky {
			out = append(out, AtRiskMember{MemberStats: s, Reason: reason})
		}
	}
	return out
}

// VelocityBucket is one trailing week of completions.
type VelocityBucket struct {
	Week      int       `json:"week"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Completed int       `json:"completed"`
}

// Velocity counts completions in weeks trailing windows, oldest first.
// Week 1 is the oldest bucket.
func Velocity(items []WorkItem, now time.Time, weeks int) []VelocityBucket {
	trend := WeeklyTrend(items, now, weeks)
	buckets := make([]VelocityBucket, len(trend))
	for i, p := range trend {
		buckets[i] = VelocityBucket{
			Week:      i + 1,
			Start:     p.Start,
			End:       p.End,
			Completed: p.Count,
		}
	}
	return buckets
}

// AverageVelocity is the mean completions per bucket, one decimal.
func AverageVelocity(buckets []VelocityBucket) float64 {
	if len(buckets) == 0 {
		return 0
	}
	var sum int
	for _, b := range buckets {
		sum += b.Completed
	}
	return round1(float64(sum) / float64(len(buckets)))
}
