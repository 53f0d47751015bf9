package services

import (
	"context"
	"time"

	"github.com/teampulse/insight/internal/analytics"
)

// InsightService is the query surface of the analytics engine: role-scoped
// summaries, advisory answers and report artifacts.
type InsightService struct {
	planner     *ScopePlanner
	th          analytics.Thresholds
	cache       CacheStore
	insights    TextInsightProvider
	renderer    ReportRenderer
	artifacts   ArtifactRepository
	gens        *Generations
	now         func() time.Time
	advisoryTTL time.Duration
	reportTTL   time.Duration
	retention   time.Duration
	reportDir   string
}

// InsightDeps wires an InsightService. Zero TTLs fall back to 1h advisory,
// 6h report reuse and 7d artifact retention.
type InsightDeps struct {
	Planner     *ScopePlanner
	Thresholds  analytics.Thresholds
	Cache       CacheStore
	Insights    TextInsightProvider
	Renderer    ReportRenderer
	Artifacts   ArtifactRepository
	Generations *Generations
	Now         func() time.Time
	AdvisoryTTL time.Duration
	ReportTTL   time.Duration
	Retention   time.Duration
	ReportDir   string
}

func NewInsightService(d InsightDeps) *InsightService {
	s := &InsightService{
		planner:     d.Planner,
		th:          d.Thresholds.WithDefaults(),
		cache:       d.Cache,
		insights:    d.Insights,
		renderer:    d.Renderer,
		artifacts:   d.Artifacts,
		gens:        d.Generations,
		now:         d.Now,
		advisoryTTL: d.AdvisoryTTL,
		reportTTL:   d.ReportTTL,
		retention:   d.Retention,
		reportDir:   d.ReportDir,
	}
	if s.cache == nil {
		s.cache = NewMemoryCacheStore(nil)
	}
	if s.insights == nil {
		s.insights = NewTemplateInsightProvider()
	}
	if s.gens == nil {
		s.gens = NewGenerations()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.advisoryTTL <= 0 {
		s.advisoryTTL = time.Hour
	}
	if s.reportTTL <= 0 {
		s.reportTTL = 6 * time.Hour
	}
	if s.retention <= 0 {
		s.retention = 7 * 24 * time.Hour
	}
	if s.reportDir == "" {
		s.reportDir = "data/reports"
	}
	return s
}

// Planner exposes the scope planner for handlers that resolve actors.
func (s *InsightService) Planner() *ScopePlanner {
	return s.planner
}

// Summary types

type SummaryOverview struct {
	TotalProjects  int     `json:"total_projects"`
	ActiveProjects int     `json:"active_projects"`
	TotalTeams     int     `json:"total_teams"`
	TotalMembers   int     `json:"total_members"`
	TotalItems     int     `json:"total_items"`
	Completed      int     `json:"completed"`
	InProgress     int     `json:"in_progress"`
	NotStarted     int     `json:"not_started"`
	Blocked        int     `json:"blocked"`
	CompletionRate int     `json:"completion_rate"`
	AvgCycleTime   float64 `json:"avg_cycle_time"`
	HealthScore    int     `json:"health_score"`
}

// Alert types.
const (
	AlertStaleItem    = "stale_item"
	AlertAtRiskMember = "at_risk_member"
)

type Alert struct {
	Type     string             `json:"type"`
	Severity analytics.Severity `json:"severity"`
	Message  string             `json:"message"`
	ItemID   *uint              `json:"item_id,omitempty"`
	UserID   *uint              `json:"user_id,omitempty"`
}

type SummaryResult struct {
	Overview       SummaryOverview         `json:"overview"`
	RecentActivity []analytics.Completion  `json:"recent_activity"`
	TopPerformers  []analytics.MemberStats `json:"top_performers"`
	Alerts         []Alert                 `json:"alerts"`
	AccessLevel    AccessLevel             `json:"access_level"`
}

// GetSummary returns the actor's role-filtered dashboard.
func (s *InsightService) GetSummary(ctx context.Context, actor Actor) (*SummaryResult, error) {
	scope, err := s.planner.Summary(ctx, actor)
	if err != nil {
		return nil, err
	}
	now := s.now()
	items := scope.Items()
	b := analytics.Summarize(items)
	delivery := analytics.DeliveryRates(items, now)

	active := 0
	for _, p := range scope.Projects {
		if p.Status == analytics.ProjectActive {
			active++
		}
	}

	stats := analytics.BuildMemberStats(scope.Users, items)
	stale := analytics.StaleItems(items, now, s.th.StaleDays)

	return &SummaryResult{
		Overview: SummaryOverview{
			TotalProjects:  len(scope.Projects),
			ActiveProjects: active,
			TotalTeams:     len(scope.Teams),
			TotalMembers:   len(scope.Users),
			TotalItems:     b.Total,
			Completed:      b.Completed,
			InProgress:     b.InProgress,
			NotStarted:     b.NotStarted,
			Blocked:        b.Blocked,
			CompletionRate: b.CompletionRate,
			AvgCycleTime:   analytics.AvgCycleTimeDays(items),
			HealthScore:    analytics.HealthScore(b.CompletionRate, delivery.OnTimeRate, delivery.DelayRate),
		},
		RecentActivity: analytics.RecentCompletions(scope.Projects, s.th.RecentCompletions),
		TopPerformers:  analytics.TopPerformers(stats, s.th.TopPerformers),
		Alerts:         buildAlerts(stale, analytics.AtRiskMembers(stats, s.th), s.th),
		AccessLevel:    scope.Level,
	}, nil
}

func buildAlerts(stale []analytics.StaleItem, atRisk []analytics.AtRiskMember, th analytics.Thresholds) []Alert {
	alerts := []Alert{}
	for _, bl := range analytics.ExtractBlockers(stale, th) {
		id := bl.ItemID
		severity := analytics.SeverityWarning
		if bl.Priority == analytics.PriorityHigh {
			severity = analytics.SeverityCritical
		}
		alerts = append(alerts, Alert{
			Type:     AlertStaleItem,
			Severity: severity,
			Message:  bl.Title + ": " + bl.Reason,
			ItemID:   &id,
		})
	}
	for _, m := range atRisk {
		id := m.UserID
		alerts = append(alerts, Alert{
			Type:     AlertAtRiskMember,
			Severity: analytics.SeverityWarning,
			Message:  m.Name + ": " + m.Reason,
			UserID:   &id,
		})
	}
	return alerts
}

// Project analytics

type ProjectInfo struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	TeamID *uint  `json:"team_id,omitempty"`
	Scoped bool   `json:"scoped"` // only the actor's own items are counted
}

type ProjectOverview struct {
	TotalModules      int     `json:"total_modules"`
	CompletedModules  int     `json:"completed_modules"`
	InProgressModules int     `json:"in_progress_modules"`
	NotStartedModules int     `json:"not_started_modules"`
	BlockedModules    int     `json:"blocked_modules"`
	CompletionRate    int     `json:"completion_rate"`
	AvgCycleTime      float64 `json:"avg_cycle_time"`
	OnTimeRate        float64 `json:"on_time_rate"`
	DelayRate         float64 `json:"delay_rate"`
	HealthScore       int     `json:"health_score"`
}

type ProjectAnalytics struct {
	Project           ProjectInfo                   `json:"project"`
	Overview          ProjectOverview               `json:"overview"`
	ModulesByStatus   map[analytics.Status]int      `json:"modules_by_status"`
	ModulesByAssignee []analytics.AssigneeBreakdown `json:"modules_by_assignee"`
	TimelineProgress  *analytics.Timeline           `json:"timeline_progress"`
	OverdueModules    []analytics.StaleItem         `json:"overdue_modules"`
	CompletionTrend   []analytics.TrendPoint        `json:"completion_trend"`
}

func (s *InsightService) GetProjectAnalytics(ctx context.Context, actor Actor, projectID uint) (*ProjectAnalytics, error) {
	scope, err := s.planner.Project(ctx, actor, projectID)
	if err != nil {
		return nil, err
	}
	return buildProjectAnalytics(scope.Projects[0], scope.Names(), scope.Level == AccessSelf, s.now(), s.th), nil
}

// buildProjectAnalytics also produces the overview carried by change deltas.
func buildProjectAnalytics(p analytics.Project, names map[uint]string, scoped bool, now time.Time, th analytics.Thresholds) *ProjectAnalytics {
	b := analytics.Summarize(p.Items)
	delivery := analytics.DeliveryRates(p.Items, now)

	return &ProjectAnalytics{
		Project: ProjectInfo{ID: p.ID, Name: p.Name, Status: p.Status, TeamID: p.TeamID, Scoped: scoped},
		Overview: ProjectOverview{
			TotalModules:      b.Total,
			CompletedModules:  b.Completed,
			InProgressModules: b.InProgress,
			NotStartedModules: b.NotStarted,
			BlockedModules:    b.Blocked,
			CompletionRate:    b.CompletionRate,
			AvgCycleTime:      analytics.AvgCycleTimeDays(p.Items),
			OnTimeRate:        delivery.OnTimeRate,
			DelayRate:         delivery.DelayRate,
			HealthScore:       analytics.HealthScore(b.CompletionRate, delivery.OnTimeRate, delivery.DelayRate),
		},
		ModulesByStatus:   analytics.ByStatus(p.Items),
		ModulesByAssignee: analytics.ByAssignee(p.Items, names),
		TimelineProgress:  analytics.TimelineProgress(p.StartDate, p.EndDate, now, b.CompletionRate, th.OnTrackTolerance),
		OverdueModules:    analytics.StaleItems(p.Items, now, th.StaleDays),
		CompletionTrend:   analytics.DailyTrend(p.Items, now, th.TrendDays),
	}
}

// Team analytics

type TeamInfo struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	ProjectID *uint  `json:"project_id,omitempty"`
}

type TeamOverview struct {
	TotalMembers   int     `json:"total_members"`
	TotalProjects  int     `json:"total_projects"`
	TotalItems     int     `json:"total_items"`
	Completed      int     `json:"completed"`
	InProgress     int     `json:"in_progress"`
	Blocked        int     `json:"blocked"`
	CompletionRate int     `json:"completion_rate"`
	AvgCycleTime   float64 `json:"avg_cycle_time"`
}

type TeamAnalytics struct {
	Team          TeamInfo                   `json:"team"`
	Overview      TeamOverview               `json:"overview"`
	Leaderboard   []analytics.MemberStats    `json:"leaderboard"`
	Velocity      []analytics.VelocityBucket `json:"velocity"`
	AvgVelocity   float64                    `json:"avg_velocity"`
	AtRiskMembers []analytics.AtRiskMember   `json:"at_risk_members"`
}

func (s *InsightService) GetTeamAnalytics(ctx context.Context, actor Actor, teamID uint) (*TeamAnalytics, error) {
	scope, err := s.planner.Team(ctx, actor, teamID)
	if err != nil {
		return nil, err
	}
	team := scope.Teams[0]
	now := s.now()
	items := scope.Items()
	b := analytics.Summarize(items)
	stats := analytics.BuildMemberStats(team.Members, items)
	velocity := analytics.Velocity(items, now, s.th.VelocityWeeks)

	return &TeamAnalytics{
		Team: TeamInfo{ID: team.ID, Name: team.Name, ProjectID: team.ProjectID},
		Overview: TeamOverview{
			TotalMembers:   len(team.Members),
			TotalProjects:  len(scope.Projects),
			TotalItems:     b.Total,
			Completed:      b.Completed,
			InProgress:     b.InProgress,
			Blocked:        b.Blocked,
			CompletionRate: b.CompletionRate,
			AvgCycleTime:   analytics.AvgCycleTimeDays(items),
		},
		Leaderboard:   analytics.RankMembers(stats),
		Velocity:      velocity,
		AvgVelocity:   analytics.AverageVelocity(velocity),
		AtRiskMembers: analytics.AtRiskMembers(stats, s.th),
	}, nil
}

// User analytics

type UserInfo struct {
	ID     uint           `json:"id"`
	Name   string         `json:"name"`
	Role   analytics.Role `json:"role"`
	TeamID *uint          `json:"team_id,omitempty"`
}

type UserOverview struct {
	TotalItems     int     `json:"total_items"`
	Completed      int     `json:"completed"`
	InProgress     int     `json:"in_progress"`
	NotStarted     int     `json:"not_started"`
	Blocked        int     `json:"blocked"`
	CompletionRate int     `json:"completion_rate"`
	AvgCycleTime   float64 `json:"avg_cycle_time"`
}

type UserAnalytics struct {
	User              UserInfo                 `json:"user"`
	Overview          UserOverview             `json:"overview"`
	ProjectBreakdown  []analytics.ProjectShare `json:"project_breakdown"`
	ActivityTrend     []analytics.TrendPoint   `json:"activity_trend"`
	RecentCompletions []analytics.Completion   `json:"recent_completions"`
}

func (s *InsightService) GetUserAnalytics(ctx context.Context, actor Actor, userID uint) (*UserAnalytics, error) {
	scope, err := s.planner.User(ctx, actor, userID)
	if err != nil {
		return nil, err
	}
	u := scope.Users[0]
	items := scope.Items()
	b := analytics.Summarize(items)

	return &UserAnalytics{
		User: UserInfo{ID: u.ID, Name: u.Name, Role: u.Role, TeamID: u.TeamID},
		Overview: UserOverview{
			TotalItems:     b.Total,
			Completed:      b.Completed,
			InProgress:     b.InProgress,
			NotStarted:     b.NotStarted,
			Blocked:        b.Blocked,
			CompletionRate: b.CompletionRate,
			AvgCycleTime:   analytics.AvgCycleTimeDays(items),
		},
		ProjectBreakdown:  analytics.ProjectBreakdown(scope.Projects),
		ActivityTrend:     analytics.DailyTrend(items, s.now(), s.th.TrendDays),
		RecentCompletions: analytics.RecentCompletions(scope.Projects, s.th.RecentCompletions),
	}, nil
}
