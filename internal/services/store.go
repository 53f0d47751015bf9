package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/teampulse/insight/internal/analytics"
	"github.com/teampulse/insight/internal/models"
	"gorm.io/gorm"
)

// ProjectFilter narrows FindProjects. Zero values mean no restriction.
// With AssigneeID set, only projects holding at least one item assigned to
// that user are returned and their Items contain only those items.
type ProjectFilter struct {
	IDs        []uint
	TeamIDs    []uint
	AssigneeID *uint
	Status     string
}

type TeamFilter struct {
	IDs []uint
}

type UserFilter struct {
	IDs     []uint
	TeamIDs []uint
}

// Store is the read API over persisted projects, teams and users. Records
// come back denormalized: projects carry their items, teams their members.
type Store interface {
	FindProjects(ctx context.Context, f ProjectFilter) ([]analytics.Project, error)
	FindTeams(ctx context.Context, f TeamFilter) ([]analytics.Team, error)
	FindUsers(ctx context.Context, f UserFilter) ([]analytics.User, error)
}

// ItemRepository is the write side used by the status commit point.
type ItemRepository interface {
	GetItem(ctx context.Context, id uint) (*analytics.WorkItem, error)
	SaveStatus(ctx context.Context, item *analytics.WorkItem) error
	CompletedByAssignee(ctx context.Context, assigneeID uint, limit int) ([]analytics.WorkItem, error)
}

// GormStore implements Store and ItemRepository on the gorm models.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC, id ASC")
}

func (s *GormStore) FindProjects(ctx context.Context, f ProjectFilter) ([]analytics.Project, error) {
	q := s.db.WithContext(ctx).Model(&models.Project{})
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if len(f.TeamIDs) > 0 {
		q = q.Where("team_id IN ?", f.TeamIDs)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.AssigneeID != nil {
		assignee := *f.AssigneeID
		sub := s.db.WithContext(ctx).Model(&models.WorkItem{}).Select("project_id").Where("assignee_id = ?", assignee)
		q = q.Where("id IN (?)", sub).Preload("Items", func(db *gorm.DB) *gorm.DB {
			return orderedItems(db.Where("assignee_id = ?", assignee))
		})
	} else {
		q = q.Preload("Items", orderedItems)
	}

	var rows []models.Project
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find projects: %w", err)
	}

	projects := make([]analytics.Project, 0, len(rows))
	for _, row := range rows {
		projects = append(projects, toProject(row))
	}
	return projects, nil
}

func (s *GormStore) FindTeams(ctx context.Context, f TeamFilter) ([]analytics.Team, error) {
	q := s.db.WithContext(ctx).Model(&models.Team{}).Preload("Members", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	})
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}

	var rows []models.Team
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find teams: %w", err)
	}

	teams := make([]analytics.Team, 0, len(rows))
	for _, row := range rows {
		team := analytics.Team{ID: row.ID, Name: row.Name, ProjectID: row.ProjectID, Members: make([]analytics.User, 0, len(row.Members))}
		for _, m := range row.Members {
			team.Members = append(team.Members, toUser(m))
		}
		teams = append(teams, team)
	}
	return teams, nil
}

func (s *GormStore) FindUsers(ctx context.Context, f UserFilter) ([]analytics.User, error) {
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("is_active = ?", true)
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if len(f.TeamIDs) > 0 {
		q = q.Where("team_id IN ?", f.TeamIDs)
	}

	var rows []models.User
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}

	users := make([]analytics.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, toUser(row))
	}
	return users, nil
}

func (s *GormStore) GetItem(ctx context.Context, id uint) (*analytics.WorkItem, error) {
	var row models.WorkItem
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work item %d: %w", id, err)
	}
	item := toWorkItem(row)
	return &item, nil
}

func (s *GormStore) SaveStatus(ctx context.Context, item *analytics.WorkItem) error {
	updates := map[string]interface{}{
		"status":       string(item.Status),
		"completed_at": item.CompletedAt,
		"updated_at":   item.UpdatedAt,
	}
	res := s.db.WithContext(ctx).Model(&models.WorkItem{}).Where("id = ?", item.ID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("save work item %d: %w", item.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) CompletedByAssignee(ctx context.Context, assigneeID uint, limit int) ([]analytics.WorkItem, error) {
	var rows []models.WorkItem
	err := s.db.WithContext(ctx).
		Where("assignee_id = ? AND status = ? AND completed_at IS NOT NULL", assigneeID, string(analytics.StatusCompleted)).
		Order("completed_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("completed history for user %d: %w", assigneeID, err)
	}
	items := make([]analytics.WorkItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, toWorkItem(row))
	}
	return items, nil
}

func toProject(p models.Project) analytics.Project {
	out := analytics.Project{
		ID:        p.ID,
		Name:      p.Name,
		TeamID:    p.TeamID,
		Status:    p.Status,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
		Items:     make([]analytics.WorkItem, 0, len(p.Items)),
	}
	for _, item := range p.Items {
		out.Items = append(out.Items, toWorkItem(item))
	}
	return out
}

func toWorkItem(w models.WorkItem) analytics.WorkItem {
	return analytics.WorkItem{
		ID:          w.ID,
		ProjectID:   w.ProjectID,
		Title:       w.Title,
		Status:      analytics.Status(w.Status),
		AssigneeID:  w.AssigneeID,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
		CompletedAt: w.CompletedAt,
		DueDate:     w.DueDate,
	}
}

func toUser(u models.User) analytics.User {
	return analytics.User{
		ID:     u.ID,
		Name:   u.DisplayName(),
		Role:   analytics.Role(u.Role),
		TeamID: u.TeamID,
	}
}
