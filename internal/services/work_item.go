package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/teampulse/insight/internal/analytics"
	"github.com/teampulse/insight/pkg/logger"
	"github.com/teampulse/insight/pkg/response"
	"gorm.io/gorm"
)

const itemLockStripes = 64

// WorkItemService owns the status commit point. Every transition goes
// through UpdateStatus, which bumps cache generations and publishes deltas
// before returning.
type WorkItemService struct {
	planner  *ScopePlanner
	store    Store
	items    ItemRepository
	gens     *Generations
	notifier *Notifier
	th       analytics.Thresholds
	now      func() time.Time
	locks    [itemLockStripes]sync.Mutex
}

type WorkItemDeps struct {
	Planner     *ScopePlanner
	Store       Store
	Items       ItemRepository
	Generations *Generations
	Notifier    *Notifier
	Thresholds  analytics.Thresholds
	Now         func() time.Time
}

func NewWorkItemService(d WorkItemDeps) *WorkItemService {
	s := &WorkItemService{
		planner:  d.Planner,
		store:    d.Store,
		items:    d.Items,
		gens:     d.Generations,
		notifier: d.Notifier,
		th:       d.Thresholds.WithDefaults(),
		now:      d.Now,
	}
	if s.gens == nil {
		s.gens = NewGenerations()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// StatusChange is the outcome of UpdateStatus.
type StatusChange struct {
	Item           analytics.WorkItem         `json:"item"`
	PreviousStatus analytics.Status           `json:"previous_status"`
	Changed        bool                       `json:"changed"`
	Overview       *ProjectOverview           `json:"overview,omitempty"`
	Delay          *analytics.DelayPrediction `json:"delay_prediction,omitempty"`
}

// UpdateStatus moves an item to status on behalf of actor. Setting the
// current status again is a no-op and publishes nothing.
func (s *WorkItemService) UpdateStatus(ctx context.Context, actor Actor, itemID uint, status analytics.Status) (*StatusChange, error) {
	if itemID == 0 {
		return nil, response.NewBadRequest("invalid work item id")
	}
	if !status.Valid() {
		return nil, response.NewBadRequest(fmt.Sprintf("invalid status %q", status))
	}

	// Transitions on one item are serialized so deltas leave in commit order.
	mu := &s.locks[itemID%itemLockStripes]
	mu.Lock()
	defer mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	item, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("load work item: %w", err)
	}
	if item == nil {
		return nil, response.NewNotFound("work item not found")
	}
	projects, err := s.store.FindProjects(ctx, ProjectFilter{IDs: []uint{item.ProjectID}})
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if len(projects) == 0 {
		return nil, response.NewNotFound("project not found")
	}
	project := projects[0]
	if err := s.planner.AuthorizeItem(actor, *item, project); err != nil {
		return nil, err
	}

	prev := item.Status
	if prev == status {
		return &StatusChange{Item: *item, PreviousStatus: prev}, nil
	}

	now := s.now()
	item.Status = status
	item.UpdatedAt = now
	if status == analytics.StatusCompleted {
		completed := now
		item.CompletedAt = &completed
	} else {
		item.CompletedAt = nil
	}

	if err := s.items.SaveStatus(ctx, item); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, response.NewNotFound("work item not found")
		}
		return nil, fmt.Errorf("save work item status: %w", err)
	}
	if err := s.gens.Bump(ctx, project.ID); err != nil {
		logger.Error().Err(err).Uint("project", project.ID).Msg("[WorkItem] Failed to invalidate cached insights")
	}
	statusTransitions.WithLabelValues(string(status)).Inc()

	change := &StatusChange{Item: *item, PreviousStatus: prev, Changed: true}
	if status == analytics.StatusCompleted {
		change.Delay = s.predictDelay(ctx, *item, now)
	}

	replaceItem(&project, *item)
	change.Overview = s.actorOverview(actor, project, now)

	logger.Info().
		Uint("item", item.ID).
		Uint("project", project.ID).
		Uint("actor", actor.ID).
		Str("from", string(prev)).
		Str("to", string(status)).
		Msg("[WorkItem] Status changed")

	base := Delta{
		ProjectID:      project.ID,
		TeamID:         project.TeamID,
		ItemID:         item.ID,
		Title:          item.Title,
		AssigneeID:     item.AssigneeID,
		Status:         status,
		PreviousStatus: prev,
		Timestamp:      now,
	}
	taskDelta := base
	taskDelta.Type = DeltaTaskUpdated
	taskDelta.Delay = change.Delay
	s.notifier.Publish(&taskDelta)

	moduleDelta := base
	moduleDelta.Type = DeltaModuleUpdated
	moduleDelta.Overview = projectOverview(project, now, s.th)
	if item.AssigneeID != nil {
		own := restrictToAssignee([]analytics.Project{project}, *item.AssigneeID)[0]
		moduleDelta.assigneeOverview = projectOverview(own, now, s.th)
	}
	s.notifier.Publish(&moduleDelta)

	return change, nil
}

func (s *WorkItemService) predictDelay(ctx context.Context, item analytics.WorkItem, now time.Time) *analytics.DelayPrediction {
	var history []analytics.WorkItem
	if item.AssigneeID != nil {
		var err error
		// one extra row in case the item itself comes back
		history, err = s.items.CompletedByAssignee(ctx, *item.AssigneeID, analytics.DelayHistorySize+1)
		if err != nil {
			logger.Warn().Err(err).Uint("item", item.ID).Msg("[WorkItem] Failed to load completion history")
		}
	}
	pred := analytics.PredictDelay(item, history, now)
	return &pred
}

// actorOverview is the project overview as actor may see it. An actor who
// changed an item outside their visible projects sees their own items only.
func (s *WorkItemService) actorOverview(actor Actor, project analytics.Project, now time.Time) *ProjectOverview {
	visible, err := s.planner.VisibleProject(actor, project)
	if err != nil {
		visible = restrictToAssignee([]analytics.Project{project}, actor.ID)[0]
	}
	return projectOverview(visible, now, s.th)
}

func projectOverview(p analytics.Project, now time.Time, th analytics.Thresholds) *ProjectOverview {
	overview := buildProjectAnalytics(p, nil, false, now, th).Overview
	return &overview
}

func replaceItem(p *analytics.Project, item analytics.WorkItem) {
	for i := range p.Items {
		if p.Items[i].ID == item.ID {
			p.Items[i] = item
			return
		}
	}
	p.Items = append(p.Items, item)
}
