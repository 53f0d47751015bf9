// Package analytics holds the pure aggregation, ranking and advisory math.
// Callers pass already scope-filtered records; nothing here checks visibility.
package analytics

import "time"

// Status is the lifecycle state of a work item.
type Status string

const (
	StatusNotStarted Status = "not-started"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// AllStatuses lists statuses in display order.
var AllStatuses = []Status{StatusNotStarted, StatusInProgress, StatusCompleted, StatusBlocked}

func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusBlocked:
		return true
	}
	return false
}

// Role is a user's visibility role, ascending in scope.
type Role string

const (
	RoleUser     Role = "user"
	RoleStudent  Role = "student"
	RoleTeamLead Role = "team_lead"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleStudent, RoleTeamLead, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Project status values.
const (
	ProjectPlanning  = "planning"
	ProjectActive    = "active"
	ProjectCompleted = "completed"
)

// WorkItem is a task or module inside a project.
type WorkItem struct {
	ID          uint       `json:"id"`
	ProjectID   uint       `json:"project_id"`
	Title       string     `json:"title"`
	Status      Status     `json:"status"`
	AssigneeID  *uint      `json:"assignee_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// AssignedTo reports whether the item is assigned to userID.
func (w WorkItem) AssignedTo(userID uint) bool {
	return w.AssigneeID != nil && *w.AssigneeID == userID
}

// Project owns an ordered collection of work items.
type Project struct {
	ID        uint       `json:"id"`
	Name      string     `json:"name"`
	TeamID    *uint      `json:"team_id,omitempty"`
	Status    string     `json:"status"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Items     []WorkItem `json:"items"`
}

// Team owns a unique member set and at most one active project.
type Team struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	ProjectID *uint  `json:"project_id,omitempty"`
	Members   []User `json:"members"`
}

// User is a person who can be assigned work.
type User struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	TeamID *uint  `json:"team_id,omitempty"`
}

// Thresholds collects the tunable policy numbers. The defaults mirror the
// values the product has always shipped with.
type Thresholds struct {
	StaleDays               int     `yaml:"stale_days"`
	OnTrackTolerance        int     `yaml:"on_track_tolerance"`
	AtRiskCompletionRate    int     `yaml:"at_risk_completion_rate"`
	AtRiskBlocked           int     `yaml:"at_risk_blocked"`
	HighPriorityOverdueDays int     `yaml:"high_priority_overdue_days"`
	LowHealthScore          int     `yaml:"low_health_score"`
	HighDelayRatio          float64 `yaml:"high_delay_ratio"`
	TopPerformers           int     `yaml:"top_performers"`
	MaxBlockers             int     `yaml:"max_blockers"`
	TrendDays               int     `yaml:"trend_days"`
	VelocityWeeks           int     `yaml:"velocity_weeks"`
	RecentCompletions       int     `yaml:"recent_completions"`
}

const (
	DefaultStaleDays               = 14
	DefaultOnTrackTolerance        = 10
	DefaultAtRiskCompletionRate    = 50
	DefaultAtRiskBlocked           = 2
	DefaultHighPriorityOverdueDays = 7
	DefaultLowHealthScore          = 50
	DefaultHighDelayRatio          = 0.3
	DefaultTopPerformers           = 5
	DefaultMaxBlockers             = 5
	DefaultTrendDays               = 30
	DefaultVelocityWeeks           = 4
	DefaultRecentCompletions       = 10
)

func DefaultThresholds() Thresholds {
	return Thresholds{
		StaleDays:               DefaultStaleDays,
		OnTrackTolerance:        DefaultOnTrackTolerance,
		AtRiskCompletionRate:    DefaultAtRiskCompletionRate,
		AtRiskBlocked:           DefaultAtRiskBlocked,
		HighPriorityOverdueDays: DefaultHighPriorityOverdueDays,
		LowHealthScore:          DefaultLowHealthScore,
		HighDelayRatio:          DefaultHighDelayRatio,
		TopPerformers:           DefaultTopPerformers,
		MaxBlockers:             DefaultMaxBlockers,
		TrendDays:               DefaultTrendDays,
		VelocityWeeks:           DefaultVelocityWeeks,
		RecentCompletions:       DefaultRecentCompletions,
	}
}

// WithDefaults fills unset fields from DefaultThresholds. Windows and list
// sizes have no meaningful zero and fall back when not positive. Rule
// thresholds honor an explicit zero and only fall back when negative. The
// zero Thresholds value means nothing was configured and yields the defaults.
func (t Thresholds) WithDefaults() Thresholds {
	d := DefaultThresholds()
	if t == (Thresholds{}) {
		return d
	}

	// windows and sizes
	if t.StaleDays <= 0 {
		t.StaleDays = d.StaleDays
	}
	if t.TopPerformers <= 0 {
		t.TopPerformers = d.TopPerformers
	}
	if t.MaxBlockers <= 0 {
		t.MaxBlockers = d.MaxBlockers
	}
	if t.TrendDays <= 0 {
		t.TrendDays = d.TrendDays
	}
	if t.VelocityWeeks <= 0 {
		t.VelocityWeeks = d.VelocityWeeks
	}
	if t.RecentCompletions <= 0 {
		t.RecentCompletions = d.RecentCompletions
	}

	// rule thresholds
	if t.OnTrackTolerance < 0 {
		t.OnTrackTolerance = d.OnTrackTolerance
	}
	if t.AtRiskCompletionRate < 0 {
		t.AtRiskCompletionRate = d.AtRiskCompletionRate
	}
	if t.AtRiskBlocked < 0 {
		t.AtRiskBlocked = d.AtRiskBlocked
	}
	if t.HighPriorityOverdueDays < 0 {
		t.HighPriorityOverdueDays = d.HighPriorityOverdueDays
	}
	if t.LowHealthScore < 0 {
		t.LowHealthScore = d.LowHealthScore
	}
	if t.HighDelayRatio < 0 {
		t.HighDelayRatio = d.HighDelayRatio
	}
	return t
}
