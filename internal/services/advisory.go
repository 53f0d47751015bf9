package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/teampulse/insight/internal/analytics"
	"github.com/teampulse/insight/pkg/logger"
	"github.com/teampulse/insight/pkg/response"
)

// AdvisoryResult is the advisory engine's answer for one scope.
type AdvisoryResult struct {
	Scope           string                     `json:"scope"`
	HealthScore     int                        `json:"health_score"`
	Insights        string                     `json:"insights"`
	InsightSource   InsightSource              `json:"insight_source"`
	Blockers        []analytics.Blocker        `json:"blockers"`
	Recommendations []analytics.Recommendation `json:"recommendations"`
	TeamPerformance []analytics.MemberStats    `json:"team_performance"`
	Breakdown       analytics.Breakdown        `json:"breakdown"`
	OnTimeRate      float64                    `json:"on_time_rate"`
	DelayRate       float64                    `json:"delay_rate"`
	GeneratedAt     time.Time                  `json:"generated_at"`
	Cached          bool                       `json:"cached"`
}

// AnswerAdvisoryQuery answers a free-text question over the actor's whole
// visible scope. Answers are cached per actor and normalized query until the
// next committed status change or the advisory TTL, whichever comes first.
func (s *InsightService) AnswerAdvisoryQuery(ctx context.Context, actor Actor, query string) (*AdvisoryResult, error) {
	normalized := NormalizeQuery(query)
	if normalized == "" {
		return nil, response.NewBadRequest("query is required")
	}
	// An abandoned request still finishes and caches a complete answer.
	ctx = context.WithoutCancel(ctx)

	gen, genErr := s.gens.Global(ctx)
	if genErr != nil {
		logger.Warn().Err(genErr).Uint("actor", actor.ID).Msg("[Advisory] Generation unavailable, bypassing cache")
	}
	key := CacheKey{ActorID: actor.ID, Kind: KindAdvisory, Query: normalized, Generation: gen}

	if genErr == nil {
		if cached := s.cachedAdvisory(ctx, key); cached != nil {
			return cached, nil
		}
	}

	scope, err := s.planner.Summary(ctx, actor)
	if err != nil {
		return nil, err
	}
	result := s.evaluate(ctx, scope, scopeLabel(scope), strings.TrimSpace(query))
	if genErr != nil {
		return result, nil
	}

	if payload, err := json.Marshal(result); err == nil {
		if err := s.cache.Put(ctx, key, payload, s.advisoryTTL); err != nil {
			logger.Warn().Err(err).Uint("actor", actor.ID).Msg("[Advisory] Failed to cache answer")
		}
	}
	return result, nil
}

func (s *InsightService) cachedAdvisory(ctx context.Context, key CacheKey) *AdvisoryResult {
	payload, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Uint("actor", key.ActorID).Msg("[Advisory] Cache read failed, recomputing")
		return nil
	}
	if !ok {
		return nil
	}
	var result AdvisoryResult
	if err := json.Unmarshal(payload, &result); err != nil {
		logger.Warn().Err(err).Msg("[Advisory] Dropping unreadable cache entry")
		_ = s.cache.Delete(ctx, key)
		return nil
	}
	result.Cached = true
	return &result
}

// evaluate runs the full pipeline over an already resolved scope: aggregate,
// rank, score, recommend, then write the insight text.
func (s *InsightService) evaluate(ctx context.Context, scope *Scope, label, query string) *AdvisoryResult {
	start := time.Now()
	defer func() {
		advisoryDuration.WithLabelValues(string(scope.Level)).Observe(time.Since(start).Seconds())
	}()

	now := s.now()
	items := scope.Items()
	b := analytics.Summarize(items)
	delivery := analytics.DeliveryRates(items, now)
	health := analytics.HealthScore(b.CompletionRate, delivery.OnTimeRate, delivery.DelayRate)

	stats := analytics.BuildMemberStats(scope.Users, items)
	ranked := analytics.RankMembers(stats)
	atRisk := analytics.AtRiskMembers(stats, s.th)
	blockers := analytics.ExtractBlockers(analytics.StaleItems(items, now, s.th.StaleDays), s.th)

	recs := analytics.Recommend(analytics.AdvisorySignals{
		HealthScore:  health,
		DelayRate:    delivery.DelayRate,
		AtRisk:       atRisk,
		BlockedItems: b.Blocked,
	}, s.th)

	text, source := s.insights.GenerateInsight(ctx, &InsightContext{
		Query:           query,
		ScopeLabel:      label,
		HealthScore:     health,
		Breakdown:       b,
		OnTimeRate:      delivery.OnTimeRate,
		DelayRate:       delivery.DelayRate,
		Blockers:        blockers,
		Recommendations: recs,
		TopPerformers:   analytics.TopPerformers(stats, s.th.TopPerformers),
		AtRisk:          atRisk,
	})

	return &AdvisoryResult{
		Scope:           label,
		HealthScore:     health,
		Insights:        text,
		InsightSource:   source,
		Blockers:        blockers,
		Recommendations: recs,
		TeamPerformance: ranked,
		Breakdown:       b,
		OnTimeRate:      delivery.OnTimeRate,
		DelayRate:       delivery.DelayRate,
		GeneratedAt:     now,
	}
}

func scopeLabel(scope *Scope) string {
	switch scope.Level {
	case AccessFull:
		return "organization"
	case AccessTeam:
		if len(scope.Teams) == 1 {
			return "team " + scope.Teams[0].Name
		}
		return "team"
	}
	return "your work"
}
