package analytics

import (
	"math"
	"sort"
	"time"
)

const day = 24 * time.Hour

// Breakdown counts work items per status.
type Breakdown struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	InProgress     int `json:"in_progress"`
	NotStarted     int `json:"not_started"`
	Blocked        int `json:"blocked"`
	CompletionRate int `json:"completion_rate"`
}

// CompletionRate returns round(completed/total*100), or 0 for an empty set.
func CompletionRate(completed, total int) int {
	if total <= 0 {
		return 0
	}
	rate := int(math.Round(float64(completed) / float64(total) * 100))
	return clampInt(rate, 0, 100)
}

// Summarize builds the status breakdown of items. Unknown statuses are
// counted as not-started so the per-status counts always sum to Total.
func Summarize(items []WorkItem) Breakdown {
	var b Breakdown
	for _, item := range items {
		b.Total++
		switch item.Status {
		case StatusCompleted:
			b.Completed++
		case StatusInProgress:
			b.InProgress++
		case StatusBlocked:
			b.Blocked++
		default:
			b.NotStarted++
		}
	}
	b.CompletionRate = CompletionRate(b.Completed, b.Total)
	return b
}

// ByStatus returns the per-status counts keyed by status, all keys present.
func ByStatus(items []WorkItem) map[Status]int {
	b := Summarize(items)
	return map[Status]int{
		StatusNotStarted: b.NotStarted,
		StatusInProgress: b.InProgress,
		StatusCompleted:  b.Completed,
		StatusBlocked:    b.Blocked,
	}
}

// AvgCycleTimeDays is the mean of completedAt-createdAt in days over
// completed items, rounded to one decimal. 0 when nothing qualifies.
func AvgCycleTimeDays(items []WorkItem) float64 {
	var sum float64
	var n int
	for _, item := range items {
		if item.Status != StatusCompleted || item.CompletedAt == nil || item.CreatedAt.IsZero() {
			continue
		}
		sum += item.CompletedAt.Sub(item.CreatedAt).Hours() / 24
		n++
	}
	if n == 0 {
		return 0
	}
	return round1(sum / float64(n))
}

// Timeline compares elapsed schedule with delivered work.
type Timeline struct {
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	TimeProgress   int       `json:"time_progress"`
	CompletionRate int       `json:"completion_rate"`
	DaysRemaining  int       `json:"days_remaining"`
	OnTrack        bool      `json:"on_track"`
}

// TimelineProgress returns nil when the project has no schedule.
func TimelineProgress(start, end *time.Time, now time.Time, completionRate, tolerance int) *Timeline {
	if start == nil || end == nil {
		return nil
	}

	var progress int
	span := end.Sub(*start)
	if span <= 0 {
		if !now.Before(*end) {
			progress = 100
		}
	} else {
		progress = int(math.Round(float64(now.Sub(*start)) / float64(span) * 100))
	}
	progress = clampInt(progress, 0, 100)

	remaining := 0
	if end.After(now) {
		remaining = int(math.Ceil(end.Sub(now).Hours() / 24))
	}

	return &Timeline{
		StartDate:      *start,
		EndDate:        *end,
		TimeProgress:   progress,
		CompletionRate: completionRate,
		DaysRemaining:  remaining,
		OnTrack:        completionRate >= progress-tolerance,
	}
}

// TrendPoint is one contiguous bucket of a completion trend.
type TrendPoint struct {
	Date  string    `json:"date"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Count int       `json:"count"`
}

// DailyTrend counts completions per calendar day for the last n days,
// ending with the day containing now. Empty days are kept.
func DailyTrend(items []WorkItem, now time.Time, n int) []TrendPoint {
	if n <= 0 {
		return []TrendPoint{}
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	points := make([]TrendPoint, n)
	for i := 0; i < n; i++ {
		start := today.AddDate(0, 0, i-(n-1))
		points[i] = TrendPoint{
			Date:  start.Format("2006-01-02"),
			Start: start,
			End:   start.AddDate(0, 0, 1),
		}
	}

	first := points[0].Start
	for _, item := range items {
		if item.CompletedAt == nil {
			continue
		}
		t := item.CompletedAt.In(now.Location())
		if t.Before(first) || !t.Before(points[n-1].End) {
			continue
		}
		for i := range points {
			if !t.Before(points[i].Start) && t.Before(points[i].End) {
				points[i].Count++
				break
			}
		}
	}
	return points
}

// WeeklyTrend counts completions in n trailing weeks aligned to now rather
// than calendar weeks. Bucket k covers (now-(k+1)w, now-kw], oldest first.
func WeeklyTrend(items []WorkItem, now time.Time, n int) []TrendPoint {
	if n <= 0 {
		return []TrendPoint{}
	}
	week := 7 * day
	points := make([]TrendPoint, n)
	for i := 0; i < n; i++ {
		k := n - 1 - i
		end := now.Add(-time.Duration(k) * week)
		start := end.Add(-week)
		points[i] = TrendPoint{
			Date:  start.Format("2006-01-02"),
			Start: start,
			End:   end,
		}
	}

	for _, item := range items {
		if item.CompletedAt == nil {
			continue
		}
		t := *item.CompletedAt
		for i := range points {
			if t.After(points[i].Start) && !t.After(points[i].End) {
				points[i].Count++
				break
			}
		}
	}
	return points
}

// StaleItem is an open item that has not moved for longer than the threshold.
type StaleItem struct {
	ID             uint   `json:"id"`
	ProjectID      uint   `json:"project_id"`
	Title          string `json:"title"`
	Status         Status `json:"status"`
	AssigneeID     *uint  `json:"assignee_id,omitempty"`
	DaysInProgress int    `json:"days_in_progress"`
}

// StaleItems flags in-progress or blocked items older than thresholdDays,
// oldest first. Age runs from the last status change, or creation.
func StaleItems(items []WorkItem, now time.Time, thresholdDays int) []StaleItem {
	stale := []StaleItem{}
	for _, item := range items {
		if item.Status != StatusInProgress && item.Status != StatusBlocked {
			continue
		}
		since := item.UpdatedAt
		if since.IsZero() {
			since = item.CreatedAt
		}
		if since.IsZero() {
			continue
		}
		age := wholeDays(now.Sub(since))
		if age <= thresholdDays {
			continue
		}
		stale = append(stale, StaleItem{
			ID:             item.ID,
			ProjectID:      item.ProjectID,
			Title:          item.Title,
			Status:         item.Status,
			AssigneeID:     item.AssigneeID,
			DaysInProgress: age,
		})
	}
	sort.SliceStable(stale, func(i, j int) bool {
		if stale[i].DaysInProgress != stale[j].DaysInProgress {
			return stale[i].DaysInProgress > stale[j].DaysInProgress
		}
		return stale[i].ID < stale[j].ID
	})
	return stale
}

// Delivery holds on-time and delay ratios in [0,1].
type Delivery struct {
	OnTimeRate float64 `json:"on_time_rate"`
	DelayRate  float64 `json:"delay_rate"`
	Delayed    int     `json:"delayed"`
}

// DeliveryRates derives on-time and delay ratios from due dates.
// Completed items without a due date count as on time; with no completed
// items the on-time rate is 1. An item is delayed when it finished after its
// due date or is still open past it.
func DeliveryRates(items []WorkItem, now time.Time) Delivery {
	if len(items) == 0 {
		return Delivery{OnTimeRate: 1}
	}
	var completed, onTime, delayed int
	for _, item := range items {
		if item.Status == StatusCompleted && item.CompletedAt != nil {
			completed++
			if item.DueDate == nil || !item.CompletedAt.After(*item.DueDate) {
				onTime++
			} else {
				delayed++
			}
			continue
		}
		if item.DueDate != nil && now.After(*item.DueDate) {
			delayed++
		}
	}

	d := Delivery{OnTimeRate: 1, Delayed: delayed}
	if completed > 0 {
		d.OnTimeRate = float64(onTime) / float64(completed)
	}
	d.DelayRate = float64(delayed) / float64(len(items))
	return d
}

// Completion is a completed item with its owning project name.
type Completion struct {
	ID          uint      `json:"id"`
	ProjectID   uint      `json:"project_id"`
	ProjectName string    `json:"project_name"`
	Title       string    `json:"title"`
	AssigneeID  *uint     `json:"assignee_id,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// RecentCompletions returns up to limit completed items across projects,
// newest first.
func RecentCompletions(projects []Project, limit int) []Completion {
	out := []Completion{}
	for _, p := range projects {
		for _, item := range p.Items {
			if item.Status != StatusCompleted || item.CompletedAt == nil {
				continue
			}
			out = append(out, Completion{
				ID:          item.ID,
				ProjectID:   p.ID,
				ProjectName: p.Name,
				Title:       item.Title,
				AssigneeID:  item.AssigneeID,
				CompletedAt: *item.CompletedAt,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].CompletedAt.After(out[j].CompletedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// AssigneeBreakdown is the per-assignee slice of a project.
type AssigneeBreakdown struct {
	AssigneeID     uint   `json:"assignee_id"`
	Name           string `json:"name"`
	Total          int    `json:"total"`
	Completed      int    `json:"completed"`
	InProgress     int    `json:"in_progress"`
	Blocked        int    `json:"blocked"`
	CompletionRate int    `json:"completion_rate"`
}

// ByAssignee groups items by assignee. Unassigned work is reported under id 0.
// names maps user id to display name; missing names fall back to "Unassigned"
// for id 0 and "Unknown" otherwise.
func ByAssignee(items []WorkItem, names map[uint]string) []AssigneeBreakdown {
	groups := make(map[uint][]WorkItem)
	for _, item := range items {
		var id uint
		if item.AssigneeID != nil {
			id = *item.AssigneeID
		}
		groups[id] = append(groups[id], item)
	}

	out := make([]AssigneeBreakdown, 0, len(groups))
	for id, group := range groups {
		b := Summarize(group)
		name, ok := names[id]
		if !ok {
			name = "Unknown"
			if id == 0 {
				name = "Unassigned"
			}
		}
		out = append(out, AssigneeBreakdown{
			AssigneeID:     id,
			Name:           name,
			Total:          b.Total,
			Completed:      b.Completed,
			InProgress:     b.InProgress,
			Blocked:        b.Blocked,
			CompletionRate: b.CompletionRate,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].AssigneeID < out[j].AssigneeID
	})
	return out
}

// ProjectShare is one project's contribution to a user's workload.
type ProjectShare struct {
	ProjectID      uint   `json:"project_id"`
	ProjectName    string `json:"project_name"`
	Total          int    `json:"total"`
	Completed      int    `json:"completed"`
	CompletionRate int    `json:"completion_rate"`
}

// ProjectBreakdown summarizes each project's items, skipping empty projects.
func ProjectBreakdown(projects []Project) []ProjectShare {
	out := []ProjectShare{}
	for _, p := range projects {
		if len(p.Items) == 0 {
			continue
		}
		b := Summarize(p.Items)
		out = append(out, ProjectShare{
			ProjectID:      p.ID,
			ProjectName:    p.Name,
			Total:          b.Total,
			Completed:      b.Completed,
			CompletionRate: b.CompletionRate,
		})
	}
	return out
}

// Flatten concatenates the items of all projects in order.
func Flatten(projects []Project) []WorkItem {
	var n int
	for _, p := range projects {
		n += len(p.Items)
	}
	items := make([]WorkItem, 0, n)
	for _, p := range projects {
		items = append(items, p.Items...)
	}
	return items
}

func wholeDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / day)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
