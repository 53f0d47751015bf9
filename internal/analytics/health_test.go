package analytics

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthScore(t *testing.T) {
	tests := []struct {
		name       string
		completion int
		onTime     float64
		delay      float64
		want       int
	}{
		{"perfect", 100, 1, 0, 100},
		{"worst", 0, 0, 1, 0},
		{"empty scope", 0, 1, 0, 60},
		{"mixed", 50, 0.5, 0.5, 50},
		{"rounds", 33, 0.75, 0.2, 60},
		{"out of range ratios clamp", 100, 2, -1, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HealthScore(tt.completion, tt.onTime, tt.delay))
		})
	}
}

func TestHealthScore_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		score := HealthScore(rng.Intn(101), rng.Float64(), rng.Float64())
		require.GreaterOrEqual(t, score, 0)
		require.LessOrEqual(t, score, 100)
	}
}

func TestExtractBlockers(t *testing.T) {
	th := DefaultThresholds()
	var stale []StaleItem
	for i, age := range []int{15, 30, 22, 40, 18, 25, 21} {
		stale = append(stale, StaleItem{ID: uint(i + 1), Title: "item", Status: StatusInProgress, DaysInProgress: age})
	}
	stale[1].Status = StatusBlocked

	blockers := ExtractBlockers(stale, th)
	require.Len(t, blockers, 5)
	assert.Equal(t, uint(4), blockers[0].ItemID)
	assert.Equal(t, 26, blockers[0].DaysOverdue)
	assert.Equal(t, PriorityHigh, blockers[0].Priority)
	assert.Equal(t, "Blocked for 30 days", blockers[1].Reason)
	for i := 1; i < len(blockers); i++ {
		assert.GreaterOrEqual(t, blockers[i-1].DaysOverdue, blockers[i].DaysOverdue)
	}
	last := blockers[len(blockers)-1]
	assert.Equal(t, 7, last.DaysOverdue)
	assert.Equal(t, PriorityMedium, last.Priority)
}

func TestRecommend_Order(t *testing.T) {
	th := DefaultThresholds()
	recs := Recommend(AdvisorySignals{
		HealthScore:  30,
		DelayRate:    0.5,
		AtRisk:       []AtRiskMember{{MemberStats: MemberStats{Name: "ana"}, Reason: ReasonLowCompletion}},
		BlockedItems: 2,
	}, th)

	kinds := make([]string, len(recs))
	for i, r := range recs {
		kinds[i] = r.Kind
	}
	assert.Equal(t, []string{RecTeamReview, RecExtendDeadlines, RecRebalance, RecUnblock}, kinds)
	assert.Equal(t, SeverityCritical, recs[0].Severity)
	assert.Contains(t, recs[0].Message, "Schedule team review")
	assert.Contains(t, recs[1].Message, "extending deadlines")
	assert.Contains(t, recs[2].Message, "ana")
}

func TestRecommend_Thresholds(t *testing.T) {
	th := DefaultThresholds()

	recs := Recommend(AdvisorySignals{HealthScore: 50, DelayRate: 0.3}, th)
	require.Len(t, recs, 1)
	assert.Equal(t, RecKeepPace, recs[0].Kind)
	assert.Equal(t, SeverityInfo, recs[0].Severity)

	recs = Recommend(AdvisorySignals{HealthScore: 49, DelayRate: 0.31}, th)
	require.Len(t, recs, 2)
	assert.Equal(t, RecTeamReview, recs[0].Kind)
	assert.Equal(t, RecExtendDeadlines, recs[1].Kind)
}
