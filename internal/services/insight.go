package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teampulse/insight/internal/analytics"
	"github.com/teampulse/insight/internal/config"
	"github.com/teampulse/insight/pkg/logger"
)

// InsightSource says which path produced an insight text.
type InsightSource string

const (
	InsightFromModel    InsightSource = "model"
	InsightFromTemplate InsightSource = "template"
)

// InsightContext carries the computed numbers an insight is written from.
type InsightContext struct {
	Query           string                     `json:"query,omitempty"`
	ScopeLabel      string                     `json:"scope"`
	HealthScore     int                        `json:"health_score"`
	Breakdown       analytics.Breakdown        `json:"breakdown"`
	OnTimeRate      float64                    `json:"on_time_rate"`
	DelayRate       float64                    `json:"delay_rate"`
	Blockers        []analytics.Blocker        `json:"blockers"`
	Recommendations []analytics.Recommendation `json:"recommendations"`
	TopPerformers   []analytics.MemberStats    `json:"top_performers"`
	AtRisk          []analytics.AtRiskMember   `json:"at_risk"`
}

// TextInsightProvider turns computed numbers into prose. Implementations
// never fail; they report which path produced the text.
type TextInsightProvider interface {
	GenerateInsight(ctx context.Context, ic *InsightContext) (string, InsightSource)
}

// TemplateInsightProvider assembles a deterministic summary.
type TemplateInsightProvider struct{}

func NewTemplateInsightProvider() *TemplateInsightProvider {
	return &TemplateInsightProvider{}
}

func (TemplateInsightProvider) GenerateInsight(_ context.Context, ic *InsightContext) (string, InsightSource) {
	insightGenerations.WithLabelValues(string(InsightFromTemplate)).Inc()
	return buildTemplateInsight(ic), InsightFromTemplate
}

func buildTemplateInsight(ic *InsightContext) string {
	var sb strings.Builder
	b := ic.Breakdown

	sb.WriteString(fmt.Sprintf("%s health is %d/100 (%s).\n", scopeTitle(ic.ScopeLabel), ic.HealthScore, healthBand(ic.HealthScore)))
	if b.Total == 0 {
		sb.WriteString("There is no tracked work in scope yet.\n")
	} else {
		sb.WriteString(fmt.Sprintf("%d of %d items are complete (%d%%), %d in progress, %d not started and %d blocked.\n",
			b.Completed, b.Total, b.CompletionRate, b.InProgress, b.NotStarted, b.Blocked))
		sb.WriteString(fmt.Sprintf("On-time delivery is %.0f%% and %.0f%% of work is running late.\n", ic.OnTimeRate*100, ic.DelayRate*100))
	}

	if len(ic.TopPerformers) > 0 && ic.TopPerformers[0].Total > 0 {
		top := ic.TopPerformers[0]
		sb.WriteString(fmt.Sprintf("Top contributor: %s with %d completed (%d%%).\n", top.Name, top.Completed, top.CompletionRate))
	}
	if len(ic.Blockers) > 0 {
		titles := make([]string, 0, len(ic.Blockers))
		for _, bl := range ic.Blockers {
			titles = append(titles, fmt.Sprintf("%s (%d days over)", bl.Title, bl.DaysOverdue))
		}
		sb.WriteString("Stalled work: " + strings.Join(titles, "; ") + ".\n")
	}
	if len(ic.Recommendations) > 0 {
		sb.WriteString("Next step: " + ic.Recommendations[0].Message)
	}
	return strings.TrimSpace(sb.String())
}

func scopeTitle(label string) string {
	if label == "" {
		return "Overall"
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

func healthBand(score int) string {
	switch {
	case score >= 80:
		return "healthy"
	case score >= 50:
		return "needs attention"
	}
	return "at risk"
}

// LLMInsightProvider asks a generative backend and falls back to the
// template on any failure or empty answer.
type LLMInsightProvider struct {
	client   Completer
	fallback TextInsightProvider
}

func NewLLMInsightProvider(client Completer) *LLMInsightProvider {
	return &LLMInsightProvider{client: client, fallback: NewTemplateInsightProvider()}
}

func (p *LLMInsightProvider) GenerateInsight(ctx context.Context, ic *InsightContext) (string, InsightSource) {
	text, err := p.client.Complete(ctx, buildInsightPrompt(ic))
	text = strings.TrimSpace(text)
	if err == nil && text != "" {
		insightGenerations.WithLabelValues(string(InsightFromModel)).Inc()
		return text, InsightFromModel
	}
	if err == nil {
		err = fmt.Errorf("empty completion")
	}

	insightFallbacks.WithLabelValues(p.client.Provider()).Inc()
	logger.Warn().Err(err).Str("provider", p.client.Provider()).Msg("[Advisory] Model insight failed, using template")
	return p.fallback.GenerateInsight(ctx, ic)
}

func buildInsightPrompt(ic *InsightContext) string {
	contextJSON, _ := json.Marshal(ic)

	question := ic.Query
	if question == "" {
		question = "How is the team doing and what should it focus on next?"
	}

	return fmt.Sprintf(`You are an engineering manager reviewing a team project tracker.
Answer the question below using only the data provided.

Question: %s

Data:
%s

Notes:
- health_score is 0-100; below 50 means the work is at risk
- on_time_rate and delay_rate are ratios between 0 and 1
- blockers are items stuck longer than the stale threshold

Reply in at most 5 short sentences of plain text. Mention concrete names and numbers.`, question, string(contextJSON))
}

// NewInsightProvider picks the model-backed provider when an LLM is
// configured and the template otherwise.
func NewInsightProvider(cfg config.LLMConfig) TextInsightProvider {
	if cfg.Provider == "" {
		logger.Info().Msg("[Advisory] No LLM provider configured, insights use the template")
		return NewTemplateInsightProvider()
	}
	logger.Info().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("[Advisory] Model-backed insights enabled")
	return NewLLMInsightProvider(NewLLMClient(cfg))
}
